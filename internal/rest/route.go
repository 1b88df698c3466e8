// Package rest implements the REST half of the concord client: route
// identity, the per-route bucket ledger, the rate-limit scheduler that gates
// every outbound request against per-bucket and global quotas, and the HTTP
// executor. Endpoint wrappers are thin request builders that all funnel
// through Client.Do.
package rest

import (
	"net/url"
	"strings"
)

// Major path parameters. The server partitions rate limits by these values,
// so they participate in bucket identity; all other path parameters do not.
const (
	paramGuildID      = "guild_id"
	paramChannelID    = "channel_id"
	paramWebhookID    = "webhook_id"
	paramWebhookToken = "webhook_token"
)

var majorParams = [...]string{paramGuildID, paramChannelID, paramWebhookID, paramWebhookToken}

// Route identifies one logical REST operation: an HTTP method plus an
// unsubstituted path template such as
// "/channels/{channel_id}/messages/{message_id}". Bucket lookup identity is
// the method and template with only the major parameters substituted, never
// the fully expanded path.
type Route struct {
	Method string
	Path   string
	params map[string]string
}

// NewRoute builds a Route from a method, a path template, and the values for
// the template's parameters.
func NewRoute(method, path string, params map[string]string) Route {
	return Route{Method: method, Path: path, params: params}
}

// Endpoint returns the fully substituted request path. Non-major parameter
// values are escaped; major parameters are IDs and pass through as-is.
func (r Route) Endpoint() string {
	path := r.Path
	for k, v := range r.params {
		if isMajor(k) {
			path = strings.ReplaceAll(path, "{"+k+"}", v)
		} else {
			path = strings.ReplaceAll(path, "{"+k+"}", url.PathEscape(v))
		}
	}
	return path
}

// Key returns the bucket lookup identity: method and template with only the
// major parameters filled in. Two requests to the same template that differ
// only in minor parameters (e.g. message id) share a key; requests that
// differ in a major parameter (e.g. channel id) do not.
func (r Route) Key() string {
	path := r.Path
	for _, k := range majorParams {
		if v, ok := r.params[k]; ok {
			path = strings.ReplaceAll(path, "{"+k+"}", v)
		}
	}
	return r.Method + ":" + path
}

func isMajor(name string) bool {
	for _, m := range majorParams {
		if name == m {
			return true
		}
	}
	return false
}
