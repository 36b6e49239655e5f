package client

import (
	"affiliate-commission/internal/config"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DiscountClient issues storefront discount codes for new affiliates.
type DiscountClient interface {
	CreateDiscountCode(ctx context.Context, merchantDomain string) (string, error)
}

type discountClientImpl struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewDiscountClient(cfg *config.DiscountAPI) DiscountClient {
	return &discountClientImpl{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
	}
}

func (c *discountClientImpl) CreateDiscountCode(ctx context.Context, merchantDomain string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"merchant_domain": merchantDomain,
	})
	if err != nil {
		return "", fmt.Errorf("marshal req payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/discount-codes",
		bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("discount api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", &APIError{Service: "discount api", StatusCode: resp.StatusCode, Body: string(b)}
	}

	var result struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode discount api response: %w", err)
	}
	if result.Code == "" {
		return "", fmt.Errorf("discount api returned an empty code")
	}

	return result.Code, nil
}
