package rest

import (
	"context"
	"fmt"
	"net/http"
)

// GatewayInfo is the response of GET /gateway.
type GatewayInfo struct {
	URL string `json:"url"`
}

// SessionStartLimit describes how many identify calls the bot may make.
type SessionStartLimit struct {
	Total          int `json:"total"`
	Remaining      int `json:"remaining"`
	ResetAfter     int `json:"reset_after"` // milliseconds
	MaxConcurrency int `json:"max_concurrency"`
}

// GatewayBotInfo is the response of GET /gateway/bot.
type GatewayBotInfo struct {
	URL               string            `json:"url"`
	Shards            int               `json:"shards"`
	SessionStartLimit SessionStartLimit `json:"session_start_limit"`
}

// GetGateway returns the public gateway URL. This endpoint requires no
// authentication.
func (c *Client) GetGateway(ctx context.Context) (*GatewayInfo, error) {
	resp, err := c.Do(ctx, Request{Route: NewRoute(http.MethodGet, "/gateway", nil)})
	if err != nil {
		return nil, fmt.Errorf("get gateway: %w", err)
	}
	var info GatewayInfo
	if err := resp.JSON(&info); err != nil {
		return nil, fmt.Errorf("parse gateway response: %w", err)
	}
	return &info, nil
}

// GetGatewayBot returns the gateway URL plus the bot's shard count and
// session start limits.
func (c *Client) GetGatewayBot(ctx context.Context) (*GatewayBotInfo, error) {
	resp, err := c.Do(ctx, Request{Route: NewRoute(http.MethodGet, "/gateway/bot", nil)})
	if err != nil {
		return nil, fmt.Errorf("get gateway bot: %w", err)
	}
	var info GatewayBotInfo
	if err := resp.JSON(&info); err != nil {
		return nil, fmt.Errorf("parse gateway bot response: %w", err)
	}
	return &info, nil
}
