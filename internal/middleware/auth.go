package middleware

import (
	"affiliate-commission/internal/model"
	"context"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

const merchantKey = "merchant"

type MerchantAuthenticator interface {
	Authenticate(ctx context.Context, email, apiKey string) (*model.Merchant, error)
}

// MerchantAuth authenticates a merchant with HTTP basic auth, the email as
// user name and the api key as password.
func MerchantAuth(auth MerchantAuthenticator) echo.MiddlewareFunc {
	return echomw.BasicAuthWithConfig(echomw.BasicAuthConfig{
		Realm: "merchant",
		Validator: func(email, apiKey string, c echo.Context) (bool, error) {
			merchant, err := auth.Authenticate(c.Request().Context(), email, apiKey)
			if err != nil {
				return false, err
			}
			if merchant == nil {
				return false, nil
			}
			c.Set(merchantKey, merchant)
			return true, nil
		},
	})
}

// Merchant returns the merchant set by MerchantAuth.
func Merchant(c echo.Context) *model.Merchant {
	merchant, _ := c.Get(merchantKey).(*model.Merchant)
	return merchant
}
