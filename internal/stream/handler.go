package stream

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
)

// Message is the JSON envelope written for every delivery.
type Message struct {
	Event string               `json:"event"`
	Data  models.AlertDelivery `json:"data"`
}

// Filter narrows a subscription. Empty fields match everything.
type Filter struct {
	RuleID string
	UserID string
	Status models.DeliveryStatus
	Method models.NotificationMethod
}

func FilterFromQuery(q url.Values) Filter {
	return Filter{
		RuleID: q.Get("rule_id"),
		UserID: q.Get("user_id"),
		Status: models.DeliveryStatus(q.Get("status")),
		Method: models.NotificationMethod(q.Get("method")),
	}
}

func (f Filter) Match(d models.AlertDelivery) bool {
	if f.RuleID != "" && d.AlertRuleID != f.RuleID {
		return false
	}
	if f.UserID != "" && d.UserID != f.UserID {
		return false
	}
	if f.Status != "" && d.DeliveryStatus != f.Status {
		return false
	}
	if f.Method != "" && d.DeliveryMethod != f.Method {
		return false
	}
	return true
}

// Handler upgrades requests to websockets and streams finished deliveries
// matching the query filter until the client or the broadcaster goes away.
type Handler struct {
	broadcaster *Broadcaster
	upgrader    websocket.Upgrader
}

func NewHandler(b *Broadcaster) *Handler {
	return &Handler{
		broadcaster: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Any origin may subscribe. The feed is read-only and carries no
			// credentials; restrict it at the proxy if that changes.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filter := FilterFromQuery(r.URL.Query())

	id, ch := h.broadcaster.Subscribe(filter)
	defer func() {
		if dropped := h.broadcaster.Unsubscribe(id); dropped > 0 {
			slog.Warn("delivery stream subscriber missed rows", "subscriber_id", id, "dropped", dropped)
		}
	}()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	done := make(chan struct{})
	go func() {
		readPump(conn)
		close(done)
	}()
	defer func() {
		conn.Close()
		<-done
	}()

	slog.Info("client subscribed to delivery stream", "subscriber_id", id)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			slog.Info("client disconnected from delivery stream", "subscriber_id", id)
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case d, ok := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := conn.WriteJSON(Message{Event: "delivery", Data: d}); err != nil {
				slog.Warn("failed to send delivery to stream", "error", err, "subscriber_id", id)
				return
			}
		}
	}
}

// readPump consumes control frames and returns once the connection fails.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
