package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Webhook endpoints. Webhook id and token are both major parameters, so
// execution against different webhooks never shares a bucket.

// CreateWebhook creates a webhook on a channel.
func (c *Client) CreateWebhook(ctx context.Context, channelID, name, reason string) (json.RawMessage, error) {
	resp, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodPost, "/channels/{channel_id}/webhooks",
			map[string]string{paramChannelID: channelID}),
		Body:   map[string]string{"name": name},
		Reason: reason,
	})
	if err != nil {
		return nil, fmt.Errorf("create webhook on %s: %w", channelID, err)
	}
	return resp.Body, nil
}

// ExecuteWebhook posts a message through a webhook, optionally waiting for
// the created message to be returned.
func (c *Client) ExecuteWebhook(ctx context.Context, webhookID, webhookToken string, message any, wait bool, files ...File) (json.RawMessage, error) {
	query := url.Values{}
	if wait {
		query.Set("wait", "true")
	}
	resp, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodPost, "/webhooks/{webhook_id}/{webhook_token}",
			map[string]string{paramWebhookID: webhookID, paramWebhookToken: webhookToken}),
		Query: query,
		Body:  message,
		Files: files,
	})
	if err != nil {
		return nil, fmt.Errorf("execute webhook %s: %w", webhookID, err)
	}
	return resp.Body, nil
}

// DeleteWebhook deletes a webhook by id.
func (c *Client) DeleteWebhook(ctx context.Context, webhookID, reason string) error {
	_, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodDelete, "/webhooks/{webhook_id}",
			map[string]string{paramWebhookID: webhookID}),
		Reason: reason,
	})
	if err != nil {
		return fmt.Errorf("delete webhook %s: %w", webhookID, err)
	}
	return nil
}
