package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type UserType string

const (
	UserTypeMerchant  UserType = "merchant"
	UserTypeAffiliate UserType = "affiliate"
)

type PayoutStatus string

const (
	PayoutStatusUnpaid     PayoutStatus = "unpaid"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusPaid       PayoutStatus = "paid"
)

type User struct {
	ID       string   `gorm:"primaryKey;size:36;not null"`
	Email    string   `gorm:"size:255;uniqueIndex;not null"`
	Name     string   `gorm:"size:255;not null"`
	Type     UserType `gorm:"size:16;index;not null"` // merchant, affiliate
	Password string   `gorm:"size:255"`                // bcrypt hash of the merchant api key
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Merchant struct {
	ID          string `gorm:"primaryKey;size:36;not null"`
	UserID      string `gorm:"size:36;uniqueIndex;not null"`
	Domain      string `gorm:"size:255;uniqueIndex;not null"`
	DisplayName string `gorm:"size:255;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Affiliate struct {
	ID string `gorm:"primaryKey;size:36;not null"`
	// one affiliate row per (user, merchant)
	UserID         string          `gorm:"size:36;not null;uniqueIndex:idx_affiliates_user_merchant,priority:1"`
	MerchantID     string          `gorm:"size:36;not null;uniqueIndex:idx_affiliates_user_merchant,priority:2;index"`
	CommissionRate decimal.Decimal `gorm:"type:decimal(5,4);not null"`
	DiscountCode   string          `gorm:"size:64;index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Order struct {
	ID             string          `gorm:"primaryKey;size:64;not null"` // external order id
	MerchantID     string          `gorm:"size:36;index;not null"`
	AffiliateID    *string         `gorm:"size:36;index"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountCode   string          `gorm:"size:64"`
	CommissionOwed decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	PayoutStatus   PayoutStatus    `gorm:"size:16;index;not null"` // unpaid, processing, paid

	PayoutAttempts  int    `gorm:"not null"`
	PayoutFlagged   bool   `gorm:"index;not null"` // retry budget exhausted, needs an operator
	LastPayoutError string `gorm:"size:512"`
	PayoutReference string `gorm:"size:128"` // settlement batch id
	ClaimedAt       *time.Time
	PaidAt          *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Payee is the settlement target of an affiliate.
type Payee struct {
	AffiliateID string
	MerchantID  string
	Email       string
	Name        string
}
