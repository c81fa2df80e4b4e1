package lis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client is the LIS-Skins REST API client.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL, apiKey string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e *apiError) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

type balanceResponse struct {
	Data struct {
		Balance string `json:"balance"`
	} `json:"data"`
	apiError
}

// GetUserBalance returns the account balance in USD.
func (c *Client) GetUserBalance(ctx context.Context) (float64, error) {
	var out balanceResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&out).
		Get("/v1/user/balance")
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("get balance: status %d: %s", resp.StatusCode(), out.text())
	}
	bal, err := strconv.ParseFloat(out.Data.Balance, 64)
	if err != nil {
		return 0, fmt.Errorf("get balance: parse %q: %w", out.Data.Balance, err)
	}
	return bal, nil
}

type wsTokenResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
	apiError
}

// GetWSToken fetches a short-lived token for the websocket feed.
func (c *Client) GetWSToken(ctx context.Context) (string, error) {
	var out wsTokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&out).
		Get("/v1/user/get-ws-token")
	if err != nil {
		return "", fmt.Errorf("get ws token: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("get ws token: status %d: %s", resp.StatusCode(), out.text())
	}
	if out.Data.Token == "" {
		return "", fmt.Errorf("get ws token: empty token")
	}
	return out.Data.Token, nil
}

// BuyRequest is the market buy payload. Partner and Token identify the Steam
// trade link of the receiving account.
type BuyRequest struct {
	IDs             []int64 `json:"ids"`
	Partner         string  `json:"partner"`
	Token           string  `json:"token"`
	CustomID        string  `json:"custom_id"`
	MaxPrice        float64 `json:"max_price,omitempty"`
	SkipUnavailable bool    `json:"skip_unavailable"`
}

// BuyResponse is the marketplace's acknowledgement of a buy.
type BuyResponse struct {
	Data struct {
		PurchaseID int64  `json:"purchase_id"`
		SteamID    string `json:"steam_id"`
		CustomID   string `json:"custom_id"`
	} `json:"data"`
	apiError
	Raw string `json:"-"`
}

// BuyForUser submits a real market buy.
func (c *Client) BuyForUser(ctx context.Context, req BuyRequest) (*BuyResponse, error) {
	var out BuyResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post("/v1/market/buy")
	if err != nil {
		return nil, fmt.Errorf("market buy: %w", err)
	}
	out.Raw = string(resp.Body())
	if resp.IsError() {
		return &out, fmt.Errorf("market buy: status %d: %s", resp.StatusCode(), out.text())
	}
	return &out, nil
}
