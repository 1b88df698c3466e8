package rest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"concord/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAPIConfig(baseURL string) models.APIConfig {
	return models.APIConfig{
		BaseURL:        baseURL,
		Version:        10,
		RequestTimeout: 5 * time.Second,
		MaxRetries:     5,
		GlobalLimit:    50,
		GlobalWindow:   time.Second,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(testAPIConfig(srv.URL), "test-token", slog.New(slog.DiscardHandler))
	t.Cleanup(c.Close)
	return c
}

func TestClient_Do_Success(t *testing.T) {
	var gotAuth, gotUA string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		assert.Equal(t, "/v10/gateway", r.URL.Path)
		w.Write([]byte(`{"url":"wss://gateway.example.test"}`))
	})

	info, err := c.GetGateway(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "wss://gateway.example.test", info.URL)
	assert.Equal(t, "Bot test-token", gotAuth)
	assert.Contains(t, gotUA, "DiscordBot")
}

func TestClient_Do_429RetriedNotSurfaced(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set(headerRetryAfter, "0.15")
			w.Header().Set(headerBucket, "b1")
			w.Header().Set(headerLimit, "5")
			w.Header().Set(headerRemaining, "0")
			w.Header().Set(headerResetAfter, "0.15")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"message":"You are being rate limited.","retry_after":0.15}`))
			return
		}
		w.Write([]byte(`{"id":"42"}`))
	})

	start := time.Now()
	resp, err := c.Do(t.Context(), Request{
		Route: NewRoute(http.MethodGet, "/channels/{channel_id}",
			map[string]string{paramChannelID: "1"}),
	})
	require.NoError(t, err, "a 429 followed by success must not surface")
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond,
		"retry must not happen before Retry-After")
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Do_429ConsumesSingleToken(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerBucket, "b1")
		w.Header().Set(headerLimit, "2")
		switch calls.Add(1) {
		case 1:
			w.Header().Set(headerRetryAfter, "0.1")
			w.Header().Set(headerRemaining, "0")
			w.Header().Set(headerResetAfter, "0.1")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.Header().Set(headerRemaining, "1")
			w.Header().Set(headerResetAfter, "1")
			w.Write([]byte(`{}`))
		}
	})

	route := NewRoute(http.MethodGet, "/channels/{channel_id}",
		map[string]string{paramChannelID: "1"})

	_, err := c.Do(t.Context(), Request{Route: route})
	require.NoError(t, err)

	// One wire request was granted after the correction, so exactly one token
	// of the fresh window is gone.
	limit, remaining, _ := c.ledger.bucket(route.Key()).state()
	assert.Equal(t, 2, limit)
	assert.Equal(t, 1, remaining, "a retried request must consume one token, not two")

	// The leftover token is immediately available to the next caller.
	start := time.Now()
	_, err = c.Do(t.Context(), Request{Route: route})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Do_429RetryAheadOfNewCallers(t *testing.T) {
	var mu sync.Mutex
	var order []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		mu.Lock()
		first := len(order) == 0
		order = append(order, payload.ID)
		mu.Unlock()

		w.Header().Set(headerBucket, "b1")
		w.Header().Set(headerLimit, "1")
		w.Header().Set(headerRemaining, "0")
		w.Header().Set(headerResetAfter, "0.15")
		if first {
			w.Header().Set(headerRetryAfter, "0.15")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	})

	route := NewRoute(http.MethodPost, "/channels/{channel_id}/messages",
		map[string]string{paramChannelID: "1"})

	var wg sync.WaitGroup
	post := func(id string) {
		defer wg.Done()
		_, err := c.Do(t.Context(), Request{Route: route, Body: map[string]string{"id": id}})
		require.NoError(t, err)
	}

	wg.Add(2)
	go post("A")
	time.Sleep(50 * time.Millisecond) // B arrives during A's Retry-After wait
	go post("B")
	wg.Wait()

	// A's retry holds its slot through the correction; B queues behind it.
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"A", "A", "B"}, order)
}

func TestClient_Do_429BudgetExhausted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerRetryAfter, "0.01")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Do(t.Context(), Request{
		Route: NewRoute(http.MethodGet, "/gateway", nil),
	})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestClient_Do_GlobalThrottleArrestsAllRoutes(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set(headerRetryAfter, "0.2")
			w.Header().Set(headerScope, "global")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	})

	start := time.Now()
	_, err := c.Do(t.Context(), Request{Route: NewRoute(http.MethodGet, "/gateway", nil)})
	require.NoError(t, err)

	// A request on an unrelated route is also held back by the global gate.
	_, err = c.Do(t.Context(), Request{
		Route: NewRoute(http.MethodGet, "/users/@me", nil),
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestClient_Do_PreemptiveWaitOnExhaustedBucket(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerBucket, "b1")
		w.Header().Set(headerLimit, "1")
		if calls.Add(1) == 1 {
			w.Header().Set(headerRemaining, "0")
			w.Header().Set(headerResetAfter, "0.2")
		} else {
			w.Header().Set(headerRemaining, "1")
			w.Header().Set(headerResetAfter, "0.2")
		}
		w.Write([]byte(`{}`))
	})

	route := NewRoute(http.MethodGet, "/channels/{channel_id}",
		map[string]string{paramChannelID: "1"})

	_, err := c.Do(t.Context(), Request{Route: route})
	require.NoError(t, err)

	// Second call sees remaining=0 locally and waits for the reset without
	// ever hitting the server early.
	start := time.Now()
	_, err = c.Do(t.Context(), Request{Route: route})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestClient_Do_APIErrorParsed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"code":50013,"message":"Missing Permissions"}`))
	})

	_, err := c.Do(t.Context(), Request{
		Route: NewRoute(http.MethodDelete, "/channels/{channel_id}",
			map[string]string{paramChannelID: "1"}),
	})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, 50013, apiErr.Code)
	assert.Equal(t, "Missing Permissions", apiErr.Message)
}

func TestClient_Do_ServerErrorRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	})

	resp, err := c.Do(t.Context(), Request{Route: NewRoute(http.MethodGet, "/gateway", nil)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Do_TransportFailureExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // all connections now fail

	cfg := testAPIConfig(srv.URL)
	cfg.MaxRetries = 2
	c := New(cfg, "tok", slog.New(slog.DiscardHandler))
	defer c.Close()

	_, err := c.Do(t.Context(), Request{Route: NewRoute(http.MethodGet, "/gateway", nil)})
	assert.ErrorIs(t, err, ErrTransportExhausted)
}

func TestClient_Do_RateLimitTimeout(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set(headerBucket, "b1")
		w.Header().Set(headerLimit, "1")
		w.Header().Set(headerRemaining, "0")
		w.Header().Set(headerResetAfter, "30")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cfg := testAPIConfig(srv.URL)
	cfg.RequestTimeout = 100 * time.Millisecond
	c := New(cfg, "tok", slog.New(slog.DiscardHandler))
	defer c.Close()

	route := NewRoute(http.MethodGet, "/channels/{channel_id}",
		map[string]string{paramChannelID: "1"})

	_, err := c.Do(t.Context(), Request{Route: route})
	require.NoError(t, err)

	_, err = c.Do(t.Context(), Request{Route: route})
	assert.ErrorIs(t, err, ErrRateLimitTimeout)
	assert.Equal(t, int32(1), calls.Load(), "the waiting request must not reach the server")
}

func TestClient_Close_ReleasesWaiters(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerBucket, "b1")
		w.Header().Set(headerLimit, "1")
		w.Header().Set(headerRemaining, "0")
		w.Header().Set(headerResetAfter, "30")
		w.Write([]byte(`{}`))
	})

	route := NewRoute(http.MethodGet, "/channels/{channel_id}",
		map[string]string{paramChannelID: "1"})

	_, err := c.Do(t.Context(), Request{Route: route})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Do(context.Background(), Request{Route: route})
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	c.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClientClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released on Close")
	}
}

func TestClient_Do_MultipartWithFiles(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		require.Equal(t, "multipart/form-data", mediaType)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		_ = params

		var payload map[string]string
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("payload_json")), &payload))
		assert.Equal(t, "hello", payload["content"])

		file, header, err := r.FormFile("files[0]")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "notes.txt", header.Filename)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "attachment body", string(data))

		w.Write([]byte(`{"id":"99"}`))
	})

	_, err := c.CreateMessage(t.Context(), "123",
		map[string]string{"content": "hello"},
		File{Name: "notes.txt", ContentType: "text/plain", Reader: strings.NewReader("attachment body")},
	)
	require.NoError(t, err)
}

func TestClient_Do_AuditLogReasonHeader(t *testing.T) {
	var gotReason string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotReason = r.Header.Get("X-Audit-Log-Reason")
		w.Write([]byte(`{}`))
	})

	err := c.DeleteMessage(t.Context(), "1", "2", "spam cleanup")
	require.NoError(t, err)
	assert.Equal(t, "spam+cleanup", gotReason)
}
