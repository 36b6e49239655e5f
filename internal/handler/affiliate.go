package handler

import (
	"affiliate-commission/internal/dto"
	"affiliate-commission/internal/middleware"
	"affiliate-commission/internal/service"
	"net/http"

	"github.com/labstack/echo/v4"
)

type AffiliateHandler struct {
	affiliateService service.AffiliateService
	payoutService    service.PayoutService
}

func NewAffiliateHandler(affiliateService service.AffiliateService, payoutService service.PayoutService) *AffiliateHandler {
	return &AffiliateHandler{
		affiliateService: affiliateService,
		payoutService:    payoutService,
	}
}

func (h *AffiliateHandler) EnrollAffiliate(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.AffiliateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid affiliate payload")
	}

	reg, err := h.affiliateService.RegisterAffiliate(ctx, middleware.Merchant(c), req)
	if err != nil {
		return err
	}

	status := http.StatusOK
	if reg.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, dto.AffiliateResponse{
		ID:             reg.Affiliate.ID,
		MerchantID:     reg.Affiliate.MerchantID,
		CommissionRate: reg.Affiliate.CommissionRate.String(),
		DiscountCode:   reg.Affiliate.DiscountCode,
	})
}

// Payout schedules settlement of every unpaid order of the affiliate.
func (h *AffiliateHandler) Payout(c echo.Context) error {
	ctx := c.Request().Context()

	affiliateID := c.Param("id")

	enqueued, err := h.payoutService.Payout(ctx, middleware.Merchant(c), affiliateID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, dto.PayoutResponse{
		AffiliateID: affiliateID,
		Enqueued:    enqueued,
	})
}

func (h *AffiliateHandler) ResetPayout(c echo.Context) error {
	ctx := c.Request().Context()

	orderID := c.Param("id")

	if err := h.payoutService.ResetPayout(ctx, middleware.Merchant(c), orderID); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "reset",
	})
}
