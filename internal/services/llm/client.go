package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"lis-trader/internal/services"
)

const systemPrompt = `You are a quantitative analyst for CS2 skin prices. ` +
	`Given the current listing, its 7-day price history and a prior, estimate the ` +
	`probability the price is higher after the short horizon and after the hold horizon, ` +
	`and the expected relative move at each. Respond with strict JSON only, using exactly ` +
	`these keys: label ("up"|"down"|"flat"), probUp_short, probUp_hold, ` +
	`exp_up_pct_short, exp_up_usd_short, exp_up_pct_hold, exp_up_usd_hold.`

// Client calls an OpenAI-compatible chat completions endpoint and parses the
// structured forecast out of the reply. Implements services.Predictor.
type Client struct {
	http  *resty.Client
	model string
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetHeader("Content-Type", "application/json")
	return &Client{http: c, model: model}
}

type chatRequest struct {
	Model          string         `json:"model"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
	Messages       []chatMessage  `json:"messages"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) Predict(ctx context.Context, req services.PredictRequest) (*services.ModelForecast, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal predict request: %w", err)
	}

	body := chatRequest{
		Model:          c.model,
		Temperature:    0,
		ResponseFormat: responseFormat{Type: "json_object"},
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(payload)},
		},
	}

	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("chat completions: %w", err)
	}
	if resp.IsError() {
		if out.Error != nil {
			return nil, fmt.Errorf("chat completions: %s (%s)", out.Error.Message, out.Error.Type)
		}
		return nil, fmt.Errorf("chat completions: status %d", resp.StatusCode())
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("chat completions: empty choices")
	}

	var f services.ModelForecast
	if err := json.Unmarshal([]byte(stripFences(out.Choices[0].Message.Content)), &f); err != nil {
		return nil, fmt.Errorf("parse model forecast: %w", err)
	}
	return &f, nil
}

// stripFences tolerates models that wrap JSON in a markdown code block
// despite the json_object response format.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
