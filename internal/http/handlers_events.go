package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/target/jobqueue/internal/core"
	apperrors "github.com/target/jobqueue/internal/errors"
)

const (
	defaultPingInterval = 30 * time.Second
	eventWriteTimeout   = 10 * time.Second
	eventReadLimit      = 512
)

// EventHandlers streams the caller's job lifecycle events over a websocket.
type EventHandlers struct {
	Subscriber   core.JobEventSubscriber
	PingInterval time.Duration
	Logger       *slog.Logger
	upgrader     websocket.Upgrader
}

// EventHandlersOptions configures event handlers.
type EventHandlersOptions struct {
	Subscriber   core.JobEventSubscriber
	PingInterval time.Duration
	Logger       *slog.Logger
}

// NewEventHandlers constructs EventHandlers with explicit dependency injection.
func NewEventHandlers(opts EventHandlersOptions) *EventHandlers {
	ping := opts.PingInterval
	if ping <= 0 {
		ping = defaultPingInterval
	}
	return &EventHandlers{
		Subscriber:   opts.Subscriber,
		PingInterval: ping,
		Logger:       opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The handshake is authenticated by bearer token, not cookies.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *EventHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Stream upgrades to a websocket and relays the caller's job events until
// either side disconnects.
// GET /jobs/events.
func (h *EventHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	if principal.UserID == "" {
		RenderError(w, r, h.Logger, apperrors.Unauthorized("authentication required"))
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	sub, err := h.Subscriber.Subscribe(ctx, principal.UserID)
	if err != nil {
		RenderError(w, r, h.Logger, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "event stream unavailable"))
		return
	}
	defer func() { _ = sub.Close() }()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		h.logger().DebugContext(ctx, "websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger().DebugContext(ctx, "event stream opened", "user_id", principal.UserID)
	go h.readPump(conn, cancel)
	h.writePump(ctx, conn, sub)
}

// readPump drains client frames so control messages are processed, and
// cancels the stream once the client goes away.
func (h *EventHandlers) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(eventReadLimit)
	deadline := 2 * h.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHandlers) writePump(ctx context.Context, conn *websocket.Conn, sub core.JobEventSubscription) {
	ticker := time.NewTicker(h.PingInterval)
	defer ticker.Stop()

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(eventWriteTimeout))
			return
		case evt, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "event stream closed"),
					time.Now().Add(eventWriteTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				h.logger().DebugContext(ctx, "event write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteTimeout)); err != nil {
				return
			}
		}
	}
}
