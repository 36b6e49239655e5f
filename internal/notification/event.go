package notification

import (
	"context"
	"fmt"
	"html"
	"time"
)

const EventAffiliateCreated = "affiliate.created"

type AffiliateCreated struct {
	Type           string    `json:"type"`
	AffiliateID    string    `json:"affiliate_id"`
	MerchantID     string    `json:"merchant_id"`
	MerchantName   string    `json:"merchant_name"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	DiscountCode   string    `json:"discount_code"`
	CommissionRate string    `json:"commission_rate"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher hands an event to the mail pipeline. Implementations must not
// block on delivery.
type Publisher interface {
	PublishAffiliateCreated(ctx context.Context, event AffiliateCreated) error
}

// Mailer delivers a single message.
type Mailer interface {
	Send(to, subject, body string) error
}

func affiliateCreatedMail(event AffiliateCreated) (string, string) {
	subject := fmt.Sprintf("Welcome to the %s affiliate program", event.MerchantName)
	body := fmt.Sprintf(
		"<p>Hi %s,</p>"+
			"<p>You are now an affiliate of %s.</p>"+
			"<p>Your discount code is <strong>%s</strong>. Every order placed with it earns you a %s commission.</p>",
		html.EscapeString(event.Name),
		html.EscapeString(event.MerchantName),
		html.EscapeString(event.DiscountCode),
		html.EscapeString(event.CommissionRate),
	)
	return subject, body
}
