package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Channel and message endpoints. Payload shapes belong to the caller's data
// model, so bodies go in as any and come back as raw JSON.

// GetChannel fetches a channel by id.
func (c *Client) GetChannel(ctx context.Context, channelID string) (json.RawMessage, error) {
	resp, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodGet, "/channels/{channel_id}",
			map[string]string{paramChannelID: channelID}),
	})
	if err != nil {
		return nil, fmt.Errorf("get channel %s: %w", channelID, err)
	}
	return resp.Body, nil
}

// ModifyChannel updates a channel's settings.
func (c *Client) ModifyChannel(ctx context.Context, channelID string, settings any, reason string) (json.RawMessage, error) {
	resp, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodPatch, "/channels/{channel_id}",
			map[string]string{paramChannelID: channelID}),
		Body:   settings,
		Reason: reason,
	})
	if err != nil {
		return nil, fmt.Errorf("modify channel %s: %w", channelID, err)
	}
	return resp.Body, nil
}

// DeleteChannel deletes a channel, or closes a DM.
func (c *Client) DeleteChannel(ctx context.Context, channelID, reason string) error {
	_, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodDelete, "/channels/{channel_id}",
			map[string]string{paramChannelID: channelID}),
		Reason: reason,
	})
	if err != nil {
		return fmt.Errorf("delete channel %s: %w", channelID, err)
	}
	return nil
}

// GetChannelMessages fetches up to limit messages around the given anchor.
// anchorKind is "around", "before", or "after"; both anchor arguments may be
// empty to fetch the most recent messages.
func (c *Client) GetChannelMessages(ctx context.Context, channelID, anchorKind, anchorID string, limit int) (json.RawMessage, error) {
	query := url.Values{}
	if anchorKind != "" && anchorID != "" {
		query.Set(anchorKind, anchorID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	resp, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodGet, "/channels/{channel_id}/messages",
			map[string]string{paramChannelID: channelID}),
		Query: query,
	})
	if err != nil {
		return nil, fmt.Errorf("get messages in %s: %w", channelID, err)
	}
	return resp.Body, nil
}

// GetChannelMessage fetches one message.
func (c *Client) GetChannelMessage(ctx context.Context, channelID, messageID string) (json.RawMessage, error) {
	resp, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodGet, "/channels/{channel_id}/messages/{message_id}",
			map[string]string{paramChannelID: channelID, "message_id": messageID}),
	})
	if err != nil {
		return nil, fmt.Errorf("get message %s in %s: %w", messageID, channelID, err)
	}
	return resp.Body, nil
}

// CreateMessage posts a message, attaching files as multipart content when
// present.
func (c *Client) CreateMessage(ctx context.Context, channelID string, message any, files ...File) (json.RawMessage, error) {
	resp, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodPost, "/channels/{channel_id}/messages",
			map[string]string{paramChannelID: channelID}),
		Body:  message,
		Files: files,
	})
	if err != nil {
		return nil, fmt.Errorf("create message in %s: %w", channelID, err)
	}
	return resp.Body, nil
}

// EditMessage edits a previously sent message.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, message any) (json.RawMessage, error) {
	resp, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodPatch, "/channels/{channel_id}/messages/{message_id}",
			map[string]string{paramChannelID: channelID, "message_id": messageID}),
		Body: message,
	})
	if err != nil {
		return nil, fmt.Errorf("edit message %s in %s: %w", messageID, channelID, err)
	}
	return resp.Body, nil
}

// DeleteMessage deletes one message.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID, reason string) error {
	_, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodDelete, "/channels/{channel_id}/messages/{message_id}",
			map[string]string{paramChannelID: channelID, "message_id": messageID}),
		Reason: reason,
	})
	if err != nil {
		return fmt.Errorf("delete message %s in %s: %w", messageID, channelID, err)
	}
	return nil
}

// BulkDeleteMessages deletes 2-100 messages in one call.
func (c *Client) BulkDeleteMessages(ctx context.Context, channelID string, messageIDs []string, reason string) error {
	_, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodPost, "/channels/{channel_id}/messages/bulk-delete",
			map[string]string{paramChannelID: channelID}),
		Body:   map[string][]string{"messages": messageIDs},
		Reason: reason,
	})
	if err != nil {
		return fmt.Errorf("bulk delete in %s: %w", channelID, err)
	}
	return nil
}

// TriggerTypingIndicator starts the typing indicator in a channel.
func (c *Client) TriggerTypingIndicator(ctx context.Context, channelID string) error {
	_, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodPost, "/channels/{channel_id}/typing",
			map[string]string{paramChannelID: channelID}),
	})
	if err != nil {
		return fmt.Errorf("trigger typing in %s: %w", channelID, err)
	}
	return nil
}
