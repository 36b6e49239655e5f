package server

import (
	"affiliate-commission/internal/dto"
	"affiliate-commission/internal/handler"
	authmw "affiliate-commission/internal/middleware"
	"affiliate-commission/internal/service"
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	echo             *echo.Echo
	logger           *zap.Logger
	merchantService  service.MerchantService
	orderHandler     *handler.OrderHandler
	merchantHandler  *handler.MerchantHandler
	affiliateHandler *handler.AffiliateHandler
}

func NewServer(
	orderService service.OrderService,
	merchantService service.MerchantService,
	affiliateService service.AffiliateService,
	payoutService service.PayoutService,
	logger *zap.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:             e,
		logger:           logger,
		merchantService:  merchantService,
		orderHandler:     handler.NewOrderHandler(orderService),
		merchantHandler:  handler.NewMerchantHandler(merchantService),
		affiliateHandler: handler.NewAffiliateHandler(affiliateService, payoutService),
	}

	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogRemoteIP: true,

		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api.POST("/webhook/orders", s.orderHandler.OrderWebhook)
	api.POST("/merchants", s.merchantHandler.CreateMerchant)

	// -------- authenticated merchant --------
	merchant := api.Group("/merchant", authmw.MerchantAuth(s.merchantService))
	merchant.PUT("", s.merchantHandler.UpdateMerchant)
	merchant.POST("/affiliates", s.affiliateHandler.EnrollAffiliate)
	merchant.POST("/affiliates/:id/payout", s.affiliateHandler.Payout)
	merchant.POST("/orders/:id/payout-reset", s.affiliateHandler.ResetPayout)
}

// errorHandler maps service errors onto status codes. Unknown errors are
// logged and hidden behind a 500.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := s.errorResponse(err)
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.logger.Error("write error response", zap.Error(err))
	}
}

func (s *Server) errorResponse(err error) (int, dto.ErrorResponse) {
	var (
		validationErr *service.ValidationError
		notFoundErr   *service.NotFoundError
		createErr     *service.AffiliateCreateError
		httpErr       *echo.HTTPError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity, dto.ErrorResponse{
			Message: "validation failed",
			Errors:  validationErr.Fields,
		}
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, dto.ErrorResponse{Message: notFoundErr.Error()}
	case errors.As(err, &createErr):
		resp := dto.ErrorResponse{Message: createErr.Error()}
		if errors.As(createErr.Err, &validationErr) {
			resp.Errors = validationErr.Fields
		}
		return http.StatusUnprocessableEntity, resp
	case errors.As(err, &httpErr):
		msg, ok := httpErr.Message.(string)
		if !ok {
			msg = http.StatusText(httpErr.Code)
		}
		return httpErr.Code, dto.ErrorResponse{Message: msg}
	default:
		s.logger.Error("unhandled request error", zap.Error(err))
		return http.StatusInternalServerError, dto.ErrorResponse{Message: "internal server error"}
	}
}

// Handler exposes the router for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
