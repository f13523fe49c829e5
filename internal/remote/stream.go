package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	gosync "sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/nhle/inbox-sync/internal/service"
)

const (
	streamReadLimit   = 4 << 20
	maxReconnectDelay = 30 * time.Second
)

// stream is an open notification push subscription. Each text frame from
// the server carries the user's full notification list as a JSON array.
type stream struct {
	c       *Client
	path    string
	onBatch service.BatchHandler

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   gosync.Once
}

// SubscribeNotifications opens the notification stream of userID. The
// first connection is made synchronously so that failures surface to the
// caller; afterwards dropped connections are re-established with backoff
// until the subscription is cancelled.
func (c *Client) SubscribeNotifications(
	ctx context.Context,
	userID string,
	onBatch service.BatchHandler,
) (service.Subscription, error) {
	st := &stream{
		c:       c,
		path:    userPath(userID, "/notifications/stream"),
		onBatch: onBatch,
		done:    make(chan struct{}),
	}

	conn, err := st.dial(ctx)
	if err != nil {
		return nil, err
	}

	st.ctx, st.cancel = context.WithCancel(context.Background())
	go st.run(conn)
	return st, nil
}

func (s *stream) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if s.c.token != "" {
		header.Set("Authorization", "Bearer "+s.c.token)
	}

	conn, resp, err := websocket.Dial(ctx, s.c.baseURL+s.path, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, &AuthError{BaseURL: s.c.baseURL, Message: "stream rejected the API token"}
		}
		return nil, fmt.Errorf("dialing notification stream: %w", err)
	}
	conn.SetReadLimit(streamReadLimit)
	return conn, nil
}

func (s *stream) run(conn *websocket.Conn) {
	defer close(s.done)

	attempt := 0
	for {
		err := closeReason(s.read(conn))
		if s.ctx.Err() != nil {
			return
		}
		s.c.logger.Warn("notification stream dropped", "path", s.path, "error", err)

		for {
			delay := s.c.baseBackoff * time.Duration(1<<uint(min(attempt, 5)))
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			attempt++

			select {
			case <-s.ctx.Done():
				return
			case <-time.After(delay):
			}

			conn, err = s.dial(s.ctx)
			if err == nil {
				attempt = 0
				break
			}
			if s.ctx.Err() != nil {
				return
			}
			s.c.logger.Warn("reconnecting notification stream", "path", s.path, "error", err)
		}
	}
}

// read delivers frames from conn until it fails or the stream is cancelled.
func (s *stream) read(conn *websocket.Conn) error {
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		typ, data, err := conn.Read(s.ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		if s.ctx.Err() != nil {
			return s.ctx.Err()
		}
		s.onBatch(json.RawMessage(data))
	}
}

// Cancel closes the stream and waits for the reader to exit.
func (s *stream) Cancel() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// errStreamClosed is reported by streams the server closed cleanly.
var errStreamClosed = errors.New("notification stream closed")

func closeReason(err error) error {
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return errStreamClosed
	}
	return err
}
