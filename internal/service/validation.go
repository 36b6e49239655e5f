package service

import (
	"affiliate-commission/internal/dto"
	"net/mail"
	"strings"

	"github.com/shopspring/decimal"
)

const maxNameLength = 255

// maxAmount is the largest value a decimal(12,2) money column holds.
var maxAmount = decimal.RequireFromString("9999999999.99")

// ValidOrder is an order event that passed ValidateOrderEvent.
type ValidOrder struct {
	OrderID        string
	Subtotal       decimal.Decimal
	MerchantDomain string
	DiscountCode   string
	CustomerEmail  string
	CustomerName   string
}

func ValidateOrderEvent(ev dto.OrderEvent) (ValidOrder, error) {
	verr := &ValidationError{}
	out := ValidOrder{
		OrderID:        strings.TrimSpace(ev.OrderID),
		MerchantDomain: strings.ToLower(strings.TrimSpace(ev.MerchantDomain)),
		DiscountCode:   strings.TrimSpace(ev.DiscountCode),
		CustomerEmail:  normalizeEmail(ev.CustomerEmail),
		CustomerName:   strings.TrimSpace(ev.CustomerName),
	}

	requireField(verr, "order_id", out.OrderID)
	requireField(verr, "merchant_domain", out.MerchantDomain)
	requireField(verr, "discount_code", out.DiscountCode)
	requireField(verr, "customer_name", out.CustomerName)

	subtotal, ok := validateAmount(verr, "subtotal_price", string(ev.SubtotalPrice))
	switch {
	case !ok:
	case subtotal.IsNegative():
		verr.Add("subtotal_price", "must not be negative")
	case !subtotal.Equal(subtotal.Truncate(2)):
		verr.Add("subtotal_price", "must have at most 2 decimal places")
	case subtotal.GreaterThan(maxAmount):
		verr.Add("subtotal_price", "must be at most 9999999999.99")
	}
	out.Subtotal = subtotal

	validateEmail(verr, "customer_email", out.CustomerEmail)

	return out, verr.OrNil()
}

// ValidMerchant is a merchant request that passed ValidateMerchantRequest.
type ValidMerchant struct {
	Domain string
	Name   string
	Email  string
	APIKey string
}

// ValidateMerchantRequest checks the shape of a merchant registration or
// update. Uniqueness is checked by the caller against storage.
func ValidateMerchantRequest(req dto.MerchantRequest) (ValidMerchant, *ValidationError) {
	verr := &ValidationError{}
	out := ValidMerchant{
		Domain: strings.ToLower(strings.TrimSpace(req.Domain)),
		Name:   strings.TrimSpace(req.Name),
		Email:  normalizeEmail(req.Email),
		APIKey: req.APIKey,
	}

	requireField(verr, "domain", out.Domain)
	requireField(verr, "name", out.Name)
	requireField(verr, "api_key", out.APIKey)
	if len(out.Name) > maxNameLength {
		verr.Add("name", "must be at most 255 characters")
	}
	validateEmail(verr, "email", out.Email)

	return out, verr
}

// ValidateAffiliateInput checks the registration input of an affiliate.
func ValidateAffiliateInput(email, name string, rate decimal.Decimal) error {
	verr := &ValidationError{}
	validateEmail(verr, "email", email)
	requireField(verr, "name", name)
	if len(name) > maxNameLength {
		verr.Add("name", "must be at most 255 characters")
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		verr.Add("commission_rate", "must be between 0 and 1")
	}
	return verr.OrNil()
}

func requireField(verr *ValidationError, field, value string) {
	if value == "" {
		verr.Add(field, "is required")
	}
}

func validateAmount(verr *ValidationError, field, raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		verr.Add(field, "is required")
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		verr.Add(field, "must be numeric")
		return decimal.Zero, false
	}
	return amount, true
}

func validateEmail(verr *ValidationError, field, email string) {
	if email == "" {
		verr.Add(field, "is required")
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		verr.Add(field, "must be a valid email address")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
