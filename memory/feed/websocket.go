package feed

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/m-mizutani/goerr/v2"

	"github.com/MichaelIeong/SAGE/logging"
)

// WebSocketSource reads location messages from a websocket endpoint.
type WebSocketSource struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
}

// Run dials URL and handles every text or binary message. It returns nil
// when ctx is canceled or the server closes normally.
func (s *WebSocketSource) Run(ctx context.Context, h *Handler) error {
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, _, err := dialer.DialContext(ctx, s.URL, s.Header)
	if err != nil {
		return goerr.Wrap(err, "failed to connect to location feed", goerr.V("url", s.URL))
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	logging.From(ctx).Info("listening for location updates", "url", s.URL)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return goerr.Wrap(err, "location feed read failed", goerr.V("url", s.URL))
		}
		h.dispatch(ctx, msg)
	}
}
