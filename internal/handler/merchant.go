package handler

import (
	"affiliate-commission/internal/dto"
	"affiliate-commission/internal/middleware"
	"affiliate-commission/internal/model"
	"affiliate-commission/internal/service"
	"net/http"

	"github.com/labstack/echo/v4"
)

type MerchantHandler struct {
	merchantService service.MerchantService
}

func NewMerchantHandler(merchantService service.MerchantService) *MerchantHandler {
	return &MerchantHandler{
		merchantService: merchantService,
	}
}

func (h *MerchantHandler) CreateMerchant(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.MerchantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid merchant payload")
	}

	merchant, err := h.merchantService.Register(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, merchantResponse(merchant))
}

func (h *MerchantHandler) UpdateMerchant(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.MerchantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid merchant payload")
	}

	merchant, err := h.merchantService.Update(ctx, middleware.Merchant(c), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, merchantResponse(merchant))
}

func merchantResponse(m *model.Merchant) dto.MerchantResponse {
	return dto.MerchantResponse{
		ID:          m.ID,
		Domain:      m.Domain,
		DisplayName: m.DisplayName,
	}
}
