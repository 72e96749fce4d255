package transport

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vk/entitystorego/internal/record"
)

// Link is the replica side of the transport: one websocket connection to
// the authority's sync endpoint.
type Link struct {
	conn *websocket.Conn

	// writeMu serializes writers; gorilla/websocket allows at most one
	// concurrent writer per connection.
	writeMu sync.Mutex
}

// Dial connects to the authority's sync endpoint, announcing the entity id
// this replica owns.
func Dial(ctx context.Context, authorityURL string, entity record.EntityID) (*Link, error) {
	u, err := url.Parse(authorityURL)
	if err != nil {
		return nil, fmt.Errorf("parse authority URL: %w", err)
	}
	q := u.Query()
	q.Set("entity", strconv.FormatInt(int64(entity), 10))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial authority: %w", err)
	}
	return &Link{conn: conn}, nil
}

// Send writes one frame to the authority.
func (l *Link) Send(ctx context.Context, frame []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// ReadLoop delivers inbound frames to fn until the connection fails or the
// context is canceled. It always returns a non-nil error describing why
// the loop ended.
func (l *Link) ReadLoop(ctx context.Context, fn func(frame []byte)) error {
	// Unblock the blocking read when the caller gives up.
	stop := context.AfterFunc(ctx, func() { l.conn.Close() })
	defer stop()

	for {
		_, frame, err := l.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read from authority: %w", err)
		}
		fn(frame)
	}
}

// Close shuts the connection down.
func (l *Link) Close() error {
	return l.conn.Close()
}
