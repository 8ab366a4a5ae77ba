package observe

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Watch dials a running session's feed and renders one line per event until
// the stream ends or the context is canceled.
func Watch(ctx context.Context, listen string, out io.Writer) error {
	feedURL := url.URL{Scheme: "ws", Host: listen, Path: "/feed"}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, feedURL.String(), nil)
	if err != nil {
		return fmt.Errorf("dial feed %s: %w", feedURL.String(), err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read feed: %w", err)
		}
		fmt.Fprintln(out, FormatEvent(event))
	}
}

// FormatEvent renders one feed event for terminal output.
func FormatEvent(event Event) string {
	var b strings.Builder
	b.WriteString(event.Time.Local().Format("15:04:05"))
	fmt.Fprintf(&b, " turn=%d", event.Turn)
	fmt.Fprintf(&b, " %-8s", event.Kind)
	if event.Phase != "" {
		b.WriteString(" ")
		b.WriteString(event.Phase)
	}
	if event.Detail != "" {
		b.WriteString(" ")
		b.WriteString(event.Detail)
	}
	return b.String()
}
