package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Guild endpoints.

// GetGuild fetches a guild by id.
func (c *Client) GetGuild(ctx context.Context, guildID string) (json.RawMessage, error) {
	resp, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodGet, "/guilds/{guild_id}",
			map[string]string{paramGuildID: guildID}),
	})
	if err != nil {
		return nil, fmt.Errorf("get guild %s: %w", guildID, err)
	}
	return resp.Body, nil
}

// GetGuildChannels lists a guild's channels.
func (c *Client) GetGuildChannels(ctx context.Context, guildID string) (json.RawMessage, error) {
	resp, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodGet, "/guilds/{guild_id}/channels",
			map[string]string{paramGuildID: guildID}),
	})
	if err != nil {
		return nil, fmt.Errorf("get channels of guild %s: %w", guildID, err)
	}
	return resp.Body, nil
}

// GetGuildMember fetches one member of a guild.
func (c *Client) GetGuildMember(ctx context.Context, guildID, userID string) (json.RawMessage, error) {
	resp, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodGet, "/guilds/{guild_id}/members/{user_id}",
			map[string]string{paramGuildID: guildID, "user_id": userID}),
	})
	if err != nil {
		return nil, fmt.Errorf("get member %s of guild %s: %w", userID, guildID, err)
	}
	return resp.Body, nil
}

// ListGuildMembers pages through a guild's members.
func (c *Client) ListGuildMembers(ctx context.Context, guildID string, limit int, afterID string) (json.RawMessage, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if afterID != "" {
		query.Set("after", afterID)
	}
	resp, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodGet, "/guilds/{guild_id}/members",
			map[string]string{paramGuildID: guildID}),
		Query: query,
	})
	if err != nil {
		return nil, fmt.Errorf("list members of guild %s: %w", guildID, err)
	}
	return resp.Body, nil
}

// AddGuildMemberRole grants a role to a member.
func (c *Client) AddGuildMemberRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	_, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodPut, "/guilds/{guild_id}/members/{user_id}/roles/{role_id}",
			map[string]string{paramGuildID: guildID, "user_id": userID, "role_id": roleID}),
		Reason: reason,
	})
	if err != nil {
		return fmt.Errorf("add role %s to %s in guild %s: %w", roleID, userID, guildID, err)
	}
	return nil
}

// RemoveGuildMemberRole revokes a role from a member.
func (c *Client) RemoveGuildMemberRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	_, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodDelete, "/guilds/{guild_id}/members/{user_id}/roles/{role_id}",
			map[string]string{paramGuildID: guildID, "user_id": userID, "role_id": roleID}),
		Reason: reason,
	})
	if err != nil {
		return fmt.Errorf("remove role %s from %s in guild %s: %w", roleID, userID, guildID, err)
	}
	return nil
}

// RemoveGuildMember kicks a member from a guild.
func (c *Client) RemoveGuildMember(ctx context.Context, guildID, userID, reason string) error {
	_, err := c.Do(ctx, Request{
		Route: NewRoute(http.MethodDelete, "/guilds/{guild_id}/members/{user_id}",
			map[string]string{paramGuildID: guildID, "user_id": userID}),
		Reason: reason,
	})
	if err != nil {
		return fmt.Errorf("remove member %s from guild %s: %w", userID, guildID, err)
	}
	return nil
}
