package echo

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/websocket"
)

// DefaultSendTimeout bounds a whole Send exchange.
const DefaultSendTimeout = 10 * time.Second

// Send dials url, sends each message as a text frame and waits for one
// reply per message. Replies are returned in send order.
func Send(ctx context.Context, url string, messages []string, timeout time.Duration) ([]string, error) {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.CloseNow()

	replies := make([]string, 0, len(messages))
	for i, msg := range messages {
		if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
			return replies, fmt.Errorf("send message %d: %w", i, err)
		}
		_, data, err := conn.Read(ctx)
		if err != nil {
			return replies, fmt.Errorf("read reply %d: %w", i, err)
		}
		replies = append(replies, string(data))
	}

	// Every reply arrived; a failed close handshake does not change that.
	_ = conn.Close(websocket.StatusNormalClosure, "")
	return replies, nil
}
