package dispatch

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher() *Dispatcher {
	return New(slog.New(slog.DiscardHandler))
}

func TestDispatcher_DeliversInRegistrationOrder(t *testing.T) {
	d := newTestDispatcher()

	var order []string
	d.Subscribe("MESSAGE_CREATE", func(event string, data json.RawMessage) {
		order = append(order, "first")
	})
	d.Subscribe("MESSAGE_CREATE", func(event string, data json.RawMessage) {
		order = append(order, "second")
	})

	d.Dispatch("MESSAGE_CREATE", nil)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestDispatcher_OnlyMatchingEventFires(t *testing.T) {
	d := newTestDispatcher()

	fired := 0
	d.Subscribe("GUILD_CREATE", func(event string, data json.RawMessage) { fired++ })

	d.Dispatch("MESSAGE_CREATE", nil)
	assert.Zero(t, fired)

	d.Dispatch("GUILD_CREATE", nil)
	assert.Equal(t, 1, fired)
}

func TestDispatcher_WildcardSeesEverything(t *testing.T) {
	d := newTestDispatcher()

	var seen []string
	d.Subscribe("", func(event string, data json.RawMessage) {
		seen = append(seen, event)
	})

	d.Dispatch("MESSAGE_CREATE", nil)
	d.Dispatch("GUILD_CREATE", nil)
	assert.Equal(t, []string{"MESSAGE_CREATE", "GUILD_CREATE"}, seen)
}

func TestDispatcher_PayloadPassesThrough(t *testing.T) {
	d := newTestDispatcher()

	var got json.RawMessage
	d.Subscribe("MESSAGE_CREATE", func(event string, data json.RawMessage) {
		got = data
	})

	d.Dispatch("MESSAGE_CREATE", json.RawMessage(`{"id":"42"}`))

	var msg struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(got, &msg))
	assert.Equal(t, "42", msg.ID)
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	d := newTestDispatcher()

	fired := 0
	id := d.Subscribe("MESSAGE_CREATE", func(event string, data json.RawMessage) { fired++ })

	d.Dispatch("MESSAGE_CREATE", nil)
	d.Unsubscribe(id)
	d.Dispatch("MESSAGE_CREATE", nil)

	assert.Equal(t, 1, fired)

	// Unknown ids are ignored.
	d.Unsubscribe(HandlerID(9999))
}

func TestDispatcher_PanickingHandlerDoesNotStarveOthers(t *testing.T) {
	d := newTestDispatcher()

	fired := false
	d.Subscribe("MESSAGE_CREATE", func(event string, data json.RawMessage) {
		panic("handler bug")
	})
	d.Subscribe("MESSAGE_CREATE", func(event string, data json.RawMessage) {
		fired = true
	})

	assert.NotPanics(t, func() { d.Dispatch("MESSAGE_CREATE", nil) })
	assert.True(t, fired, "handlers after a panicking one must still run")
}
