package client

import (
	"affiliate-commission/internal/config"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

type PaypalClient interface {
	SendPayout(ctx context.Context, req *PayoutRequest) (*PayoutResponse, error)
}

type paypalClientImpl struct {
	httpClient         *http.Client
	baseApiURL         string
	paypalClientID     string
	paypalClientSecret string
	currency           string
}

type PayoutRequest struct {
	SenderBatchID string // idempotency key on the PayPal side
	ItemID        string
	ReceiverEmail string
	Amount        decimal.Decimal
	Note          string
}

type PayoutResponse struct {
	BatchID     string
	BatchStatus string
}

type paypalAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type paypalPayoutItem struct {
	RecipientType string       `json:"recipient_type"`
	Amount        paypalAmount `json:"amount"`
	Receiver      string       `json:"receiver"`
	Note          string       `json:"note,omitempty"`
	SenderItemID  string       `json:"sender_item_id"`
}

type paypalSenderBatchHeader struct {
	SenderBatchID string `json:"sender_batch_id"`
	EmailSubject  string `json:"email_subject"`
}

type paypalPayoutPayload struct {
	SenderBatchHeader paypalSenderBatchHeader `json:"sender_batch_header"`
	Items             []paypalPayoutItem      `json:"items"`
}

type paypalPayoutResult struct {
	BatchHeader struct {
		PayoutBatchID string `json:"payout_batch_id"`
		BatchStatus   string `json:"batch_status"`
	} `json:"batch_header"`
}

func NewPaypalClient(paypalCfg *config.Paypal) PaypalClient {
	return &paypalClientImpl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseApiURL:         paypalCfg.BaseApiURL,
		paypalClientID:     paypalCfg.ClientID,
		paypalClientSecret: paypalCfg.ClientSecret,
		currency:           paypalCfg.Currency,
	}
}

func (c *paypalClientImpl) getAccessToken(ctx context.Context) (string, error) {
	auth := base64.StdEncoding.EncodeToString(
		[]byte(c.paypalClientID + ":" + c.paypalClientSecret),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseApiURL+"/v1/oauth2/token",
		bytes.NewBufferString("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", &APIError{Service: "paypal", StatusCode: resp.StatusCode, Body: string(b)}
	}

	var res struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("decode paypal token: %w", err)
	}

	return res.AccessToken, nil
}

func (c *paypalClientImpl) SendPayout(ctx context.Context, payout *PayoutRequest) (*PayoutResponse, error) {
	accessToken, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get paypal access token: %w", err)
	}

	payload := paypalPayoutPayload{
		SenderBatchHeader: paypalSenderBatchHeader{
			SenderBatchID: payout.SenderBatchID,
			EmailSubject:  "You have a commission payout",
		},
		Items: []paypalPayoutItem{
			{
				RecipientType: "EMAIL",
				Amount: paypalAmount{
					Value:    payout.Amount.StringFixed(2),
					Currency: c.currency,
				},
				Receiver:     payout.ReceiverEmail,
				Note:         payout.Note,
				SenderItemID: payout.ItemID,
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal req payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseApiURL+"/v1/payments/payouts",
		bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paypal payout request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, &APIError{Service: "paypal", StatusCode: resp.StatusCode, Body: string(b)}
	}

	var result paypalPayoutResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode paypal response: %w", err)
	}

	return &PayoutResponse{
		BatchID:     result.BatchHeader.PayoutBatchID,
		BatchStatus: result.BatchHeader.BatchStatus,
	}, nil
}
