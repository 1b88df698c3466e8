package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// User endpoints.

// GetCurrentUser fetches the bot's own user object.
func (c *Client) GetCurrentUser(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodGet, "/users/@me", nil),
	})
	if err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	return resp.Body, nil
}

// GetUser fetches a user by id.
func (c *Client) GetUser(ctx context.Context, userID string) (json.RawMessage, error) {
	resp, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodGet, "/users/{user_id}",
			map[string]string{"user_id": userID}),
	})
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return resp.Body, nil
}

// CreateDM opens (or reuses) a DM channel with a user.
func (c *Client) CreateDM(ctx context.Context, recipientID string) (json.RawMessage, error) {
	resp, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodPost, "/users/@me/channels", nil),
		Body:  map[string]string{"recipient_id": recipientID},
	})
	if err != nil {
		return nil, fmt.Errorf("create dm with %s: %w", recipientID, err)
	}
	return resp.Body, nil
}

// LeaveGuild removes the bot from a guild.
func (c *Client) LeaveGuild(ctx context.Context, guildID string) error {
	_, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodDelete, "/users/@me/guilds/{guild_id}",
			map[string]string{paramGuildID: guildID}),
	})
	if err != nil {
		return fmt.Errorf("leave guild %s: %w", guildID, err)
	}
	return nil
}
