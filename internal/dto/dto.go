package dto

import (
	"strconv"
	"strings"
)

// Numeric keeps the text of a JSON number or numeric string so that a bad
// value surfaces as a field error instead of a decode failure.
type Numeric string

func (n *Numeric) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*n = ""
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		*n = Numeric(unquoted)
		return nil
	}
	*n = Numeric(s)
	return nil
}

// OrderEvent is the storefront order notification.
type OrderEvent struct {
	OrderID        string  `json:"order_id"`
	SubtotalPrice  Numeric `json:"subtotal_price"`
	MerchantDomain string  `json:"merchant_domain"`
	DiscountCode   string  `json:"discount_code"`
	CustomerEmail  string  `json:"customer_email"`
	CustomerName   string  `json:"customer_name"`
}

type MerchantRequest struct {
	Domain string `json:"domain"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	APIKey string `json:"api_key"`
}

type MerchantResponse struct {
	ID          string `json:"id"`
	Domain      string `json:"domain"`
	DisplayName string `json:"display_name"`
}

type AffiliateRequest struct {
	Email          string  `json:"email"`
	Name           string  `json:"name"`
	CommissionRate Numeric `json:"commission_rate"`
}

type AffiliateResponse struct {
	ID             string `json:"id"`
	MerchantID     string `json:"merchant_id"`
	CommissionRate string `json:"commission_rate"`
	DiscountCode   string `json:"discount_code"`
}

type PayoutResponse struct {
	AffiliateID string `json:"affiliate_id"`
	Enqueued    int    `json:"enqueued"`
}

type ErrorResponse struct {
	Message string      `json:"message"`
	Errors  interface{} `json:"errors,omitempty"`
}
