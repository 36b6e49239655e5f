package handler

import (
	"affiliate-commission/internal/dto"
	"affiliate-commission/internal/service"
	"net/http"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// OrderWebhook receives a storefront order notification. Deliveries may
// repeat; each one is acknowledged once recorded.
func (h *OrderHandler) OrderWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.OrderEvent
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order payload")
	}

	result, err := h.orderService.ProcessOrder(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"result": string(result),
	})
}
