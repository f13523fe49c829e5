package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/nhle/inbox-sync/internal/model"
	"github.com/nhle/inbox-sync/internal/normalize"
)

// apiRecorder captures requests seen by a test server.
type apiRecorder struct {
	mu       gosync.Mutex
	requests []string
	bodies   map[string][]byte
	auth     []string
}

func (r *apiRecorder) record(req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	key := req.Method + " " + req.URL.Path
	r.requests = append(r.requests, key)
	r.auth = append(r.auth, req.Header.Get("Authorization"))
	if r.bodies == nil {
		r.bodies = make(map[string][]byte)
	}
	r.bodies[key] = body
}

func newTestAPI(t *testing.T) (*httptest.Server, *apiRecorder) {
	t.Helper()
	rec := &apiRecorder{}
	mux := http.NewServeMux()

	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("GET /v1/users/{id}/notifications", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		_, _ = io.WriteString(w, `[{"id":"1","user_id":"`+r.PathValue("id")+`","type":"t","read":"true"},{"bogus":true}]`)
	})
	mux.HandleFunc("DELETE /v1/users/{id}/notifications", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /v1/notifications", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /v1/notifications/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /v1/notifications/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /v1/users/{id}/conversations", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		writeJSON(w, []map[string]any{
			{"id": "alice-bob", "participants": []string{"alice", "bob"}, "updatedAt": "2024-01-01T00:00:00Z"},
		})
	})
	mux.HandleFunc("GET /v1/conversations/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		writeJSON(w, []model.Message{{ID: "m1", SenderID: "bob", ReceiverID: "alice", Content: "hi"}})
	})
	mux.HandleFunc("POST /v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		writeJSON(w, okResponse{OK: true})
	})
	mux.HandleFunc("PUT /v1/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		writeJSON(w, okResponse{OK: true})
	})
	mux.HandleFunc("DELETE /v1/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		if r.PathValue("id") == "missing" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, okResponse{OK: true})
	})
	mux.HandleFunc("POST /v1/messages", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		writeJSON(w, okResponse{OK: false})
	})
	mux.HandleFunc("GET /v1/users", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		writeJSON(w, []model.User{{ID: "alice", DisplayName: "Alice"}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestNotificationService_RoutesAndAuth(t *testing.T) {
	ctx := context.Background()
	srv, rec := newTestAPI(t)
	svc := NewClient(srv.URL+"/", "secret").Notifications()

	payload, err := svc.GetAll(ctx, "alice")
	require.NoError(t, err)
	got := normalize.Notifications(payload)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].UserID)
	assert.True(t, got[0].Read)

	require.NoError(t, svc.MarkAsRead(ctx, "1"))
	require.NoError(t, svc.Delete(ctx, "1"))
	require.NoError(t, svc.ClearAll(ctx, "alice"))
	require.NoError(t, svc.Create(ctx, model.Notification{ID: "n", UserID: "bob", Type: "message"}))

	assert.Equal(t, []string{
		"GET /v1/users/alice/notifications",
		"POST /v1/notifications/1/read",
		"DELETE /v1/notifications/1",
		"DELETE /v1/users/alice/notifications",
		"POST /v1/notifications",
	}, rec.requests)
	for _, a := range rec.auth {
		assert.Equal(t, "Bearer secret", a)
	}

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.bodies["POST /v1/notifications"], &created))
	assert.Equal(t, "bob", created["userId"])
}

func TestConversationService_Routes(t *testing.T) {
	ctx := context.Background()
	srv, rec := newTestAPI(t)
	c := NewClient(srv.URL, "")
	svc := c.Conversations()

	payload, err := svc.GetUserConversations(ctx, "alice")
	require.NoError(t, err)
	convs := normalize.Conversations(payload)
	require.Len(t, convs, 1)
	assert.Equal(t, []string{"alice", "bob"}, convs[0].Participants)

	payload, err = svc.GetMessages(ctx, "alice-bob")
	require.NoError(t, err)
	msgs := normalize.Messages(payload)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)

	ok, err := svc.Create(ctx, model.Conversation{ID: "alice-bob"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Update(ctx, "alice-bob", model.Conversation{ID: "alice-bob"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Delete(ctx, "alice-bob")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Delete(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.Send(ctx, model.Message{ID: "m", SenderID: "alice", ReceiverID: "bob"})
	require.NoError(t, err)
	assert.False(t, ok, "server answered ok=false")

	users, err := c.Users().GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.User{{ID: "alice", DisplayName: "Alice"}}, users)

	assert.Contains(t, rec.requests, "PUT /v1/conversations/alice-bob")
	assert.Contains(t, rec.requests, "POST /v1/messages")
	assert.Empty(t, rec.auth[0], "no token configured")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = io.WriteString(w, `[]`)
		}
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "t", WithRetry(3, time.Millisecond))
	var out []any
	require.NoError(t, c.Get(context.Background(), "/x", &out))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "t", WithRetry(2, time.Millisecond))
	err := c.Get(context.Background(), "/x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries (2) exceeded")

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryPostOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 && r.URL.Path == "/throttled" {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if r.URL.Path == "/throttled" {
			_, _ = io.WriteString(w, `{"ok":true}`)
			return
		}
		http.Error(w, "committed but failed", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "t", WithRetry(3, time.Millisecond))
	ctx := context.Background()

	err := c.Post(ctx, "/v1/messages", map[string]string{"content": "hi"}, nil)
	require.Error(t, err)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	assert.NotContains(t, err.Error(), "max retries")
	assert.Equal(t, int32(1), calls.Load())

	calls.Store(0)
	require.NoError(t, c.Post(ctx, "/throttled", map[string]string{"content": "hi"}, nil))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ErrorStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth":
			w.WriteHeader(http.StatusUnauthorized)
		case "/missing":
			http.NotFound(w, r)
		default:
			http.Error(w, "bad", http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "t", WithRetry(0, time.Millisecond))
	ctx := context.Background()

	assert.True(t, IsAuthError(c.Get(ctx, "/auth", nil)))
	assert.True(t, IsNotFound(c.Get(ctx, "/missing", nil)))

	err := c.Post(ctx, "/bad", map[string]string{"a": "b"}, nil)
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "unexpected status 400 on POST /bad")
}

func TestSubscribeNotifications_DeliversFrames(t *testing.T) {
	var authHeader atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/alice/notifications/stream", r.URL.Path)
		authHeader.Store(r.Header.Get("Authorization"))

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		_ = wsjson.Write(ctx, conn, []map[string]any{{"id": "1", "userId": "alice", "type": "t"}})
		_ = wsjson.Write(ctx, conn, []map[string]any{})

		// Hold the connection open until the client goes away.
		_, _, _ = conn.Read(ctx)
	}))
	t.Cleanup(srv.Close)

	batches := make(chan any, 4)
	c := NewClient(srv.URL, "secret")
	sub, err := c.Notifications().Subscribe(context.Background(), "alice", func(p any) { batches <- p })
	require.NoError(t, err)

	first := <-batches
	require.Len(t, normalize.Notifications(first), 1)
	second := <-batches
	assert.Empty(t, normalize.Notifications(second))
	assert.Equal(t, "Bearer secret", authHeader.Load())

	require.NoError(t, sub.Cancel())
	require.NoError(t, sub.Cancel())
}

func TestSubscribeNotifications_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL, "bad").SubscribeNotifications(context.Background(), "alice", func(any) {})
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
}
