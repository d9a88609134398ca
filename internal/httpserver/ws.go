package httpserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"lv-brokerage/internal/auth"
	"lv-brokerage/internal/logging"
	"lv-brokerage/internal/marketdata"
	"lv-brokerage/internal/model"
	"lv-brokerage/internal/orders"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const wsWriteTimeout = 5 * time.Second

// WSHandler streams bus events to one websocket client. Events that belong
// to a user are only sent to that user's connection.
type WSHandler struct {
	bus      *marketdata.Bus
	authSvc  *auth.Service
	upgrader websocket.Upgrader
}

// NewWSHandler builds the event feed. A nil authSvc disables authentication
// and the client may narrow the feed with ?userId=.
func NewWSHandler(bus *marketdata.Bus, authSvc *auth.Service, origin string) *WSHandler {
	return &WSHandler{
		bus:     bus,
		authSvc: authSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" {
		return true
	}
	reqOrigin := r.Header.Get("Origin")
	if reqOrigin == "" {
		return true
	}
	return strings.EqualFold(reqOrigin, origin)
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var userID int64
	if h.authSvc != nil {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		id, err := h.authSvc.ParseToken(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		userID = id
	} else if raw := r.URL.Query().Get("userId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "userId must be a positive integer", http.StatusBadRequest)
			return
		}
		userID = id
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	log := logging.FromContext(r.Context())
	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return
			}
			if !visible(evt, userID) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(wireEvent(evt)); err != nil {
				log.Debug("ws write failed", zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}

// visible reports whether evt may go to a connection for userID; zero
// means an unfiltered connection.
func visible(evt marketdata.Event, userID int64) bool {
	return evt.UserID == 0 || userID == 0 || evt.UserID == userID
}

// wireEvent renders order payloads the same way the REST API does.
func wireEvent(evt marketdata.Event) marketdata.Event {
	if o, ok := evt.Data.(model.Order); ok {
		evt.Data = orders.NewOrderResponse(o)
	}
	return evt
}
