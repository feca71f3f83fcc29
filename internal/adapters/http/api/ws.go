package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/clicker/internal/domain/model"
	"github.com/okian/clicker/pkg/logger"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsReadTimeout    = 60 * time.Second
	wsPingInterval   = 30 * time.Second
	wsMaxMessageSize = 1024
)

// SocketHandler streams round updates over a websocket and accepts taps
// from it.
type SocketHandler struct {
	deps     Dependencies
	upgrader websocket.Upgrader
	settings
}

// NewSocketHandler creates a new websocket handler.
func NewSocketHandler(deps Dependencies, s settings) *SocketHandler {
	return &SocketHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		settings: s,
	}
}

// socketTap is the optional JSON body of a client frame. Any other payload
// counts as a tap without an echo id.
type socketTap struct {
	EchoID string `json:"echoId"`
}

// socketError reports a tap that failed before reaching the round.
type socketError struct {
	Error  string `json:"error"`
	EchoID string `json:"echoId,omitempty"`
}

// HandleSocket handles GET /api/rounds/{id}/ws. Each text frame from the
// client is a tap; the tapping user receives {tap, round} and everyone else
// {round}.
func (h *SocketHandler) HandleSocket(w http.ResponseWriter, r *http.Request) {
	const op = "api.round_socket"
	roundID := r.PathValue("id")

	user, err := h.deps.CurrentUser(r.Context(), tokenFrom(r))
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := h.deps.SubscribeToRound(ctx, roundID)
	if err != nil {
		writeError(ctx, h.logger, w, Wrap(op, err))
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		h.logger.Warn(ctx, "websocket upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()

	log := h.logger.With(
		logger.String("user_id", user.ID),
		logger.String("round_id", roundID),
		logger.String("subscription_id", sub.ID),
	)
	log.Debug(ctx, "websocket connected")

	errs := make(chan socketError, 16)
	go func() {
		defer cancel()
		h.readPump(ctx, conn, user.ID, roundID, errs, log)
	}()

	h.writePump(ctx, conn, user.ID, sub.Updates(), errs, log)
	log.Debug(ctx, "websocket disconnected", logger.Bool("dropped", sub.Dropped()))
}

// readPump turns client frames into taps until the connection fails.
func (h *SocketHandler) readPump(ctx context.Context, conn *websocket.Conn, userID, roundID string, errs chan<- socketError, log logger.Logger) {
	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		kind, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn(ctx, "unexpected websocket close", logger.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if kind != websocket.TextMessage {
			continue
		}

		var frame socketTap
		_ = json.Unmarshal(message, &frame)

		// Outcomes arrive through the subscription; only failures that
		// never reach the round are reported here.
		_, err = h.deps.SubmitTap(ctx, userID, roundID, frame.EchoID)
		if err == nil || errors.Is(err, model.ErrRoundNotActive) {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		_, code := classify(err)
		select {
		case errs <- socketError{Error: code, EchoID: frame.EchoID}:
		default:
		}
	}
}

// writePump is the only writer on conn.
func (h *SocketHandler) writePump(ctx context.Context, conn *websocket.Conn, userID string, updates <-chan model.RoundUpdate, errs <-chan socketError, log logger.Logger) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	write := func(msgType int, v any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		var err error
		if v == nil {
			err = conn.WriteMessage(msgType, nil)
		} else {
			err = conn.WriteJSON(v)
		}
		if err != nil {
			log.Debug(ctx, "websocket write failed", logger.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteTimeout))
			return
		case u, ok := <-updates:
			if !ok {
				// dropped for falling behind, or the hub shut down
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscription closed"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			if !write(websocket.TextMessage, u.ForUser(userID)) {
				return
			}
		case e := <-errs:
			if !write(websocket.TextMessage, e) {
				return
			}
		case <-ticker.C:
			if !write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}
