// Package notify keeps the delivery bookkeeping for payment-request
// events: the per-session live event, monotonic sequence numbers, and
// the acknowledgment flag. Events are ephemeral; the pull query over
// the live set is the durable fallback for reconnecting staff clients.
package notify

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"github.com/tabslip/api/internal/ws"
)

// Wire event types. Clients de-duplicate payment.requested by
// (session_id, seq) and discard stale sequence numbers.
const (
	EventPaymentRequested = "payment.requested"
	EventPaymentResolved  = "payment.resolved"
)

// ErrNoLiveRequest is returned when acknowledging a session that has no
// live payment request.
var ErrNoLiveRequest = errors.New("no live payment request for session")

var paymentRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tabslip_payment_requests_total",
		Help: "Payment request events published, by kind",
	},
	[]string{"kind"},
)

// PaymentRequestEvent is the payload pushed to staff clients and the
// unit of the live-event registry.
type PaymentRequestEvent struct {
	SessionID    uuid.UUID `json:"session_id"`
	Seq          uint64    `json:"seq"`
	TableNumber  int32     `json:"table_number"`
	CustomerName string    `json:"customer_name"`
	Total        string    `json:"total"`
	RequestedAt  time.Time `json:"requested_at"`
	Acknowledged bool      `json:"acknowledged"`
}

type resolvedPayload struct {
	SessionID uuid.UUID `json:"session_id"`
}

// Broadcaster pushes an event to all connected staff clients.
// Satisfied by *ws.Hub.
type Broadcaster interface {
	Broadcast(event ws.Event)
}

// Notifier owns the live payment-request map. At most one event per
// session is live; re-publishing refreshes it with a new sequence
// number. Sequence counters outlive their events so a session's numbers
// never move backward.
type Notifier struct {
	hub Broadcaster

	mu   sync.Mutex
	live map[uuid.UUID]PaymentRequestEvent
	seq  map[uuid.UUID]uint64
}

// NewNotifier creates a Notifier over the given hub.
func NewNotifier(hub Broadcaster) *Notifier {
	return &Notifier{
		hub:  hub,
		live: make(map[uuid.UUID]PaymentRequestEvent),
		seq:  make(map[uuid.UUID]uint64),
	}
}

// PublishRequest registers (or refreshes) the session's live event and
// broadcasts it. A refresh resets the acknowledged flag: the customer
// is still waiting, so staff should look again.
func (n *Notifier) PublishRequest(sessionID uuid.UUID, tableNumber int32, customerName string, total decimal.Decimal) {
	n.mu.Lock()
	n.seq[sessionID]++
	event := PaymentRequestEvent{
		SessionID:    sessionID,
		Seq:          n.seq[sessionID],
		TableNumber:  tableNumber,
		CustomerName: customerName,
		Total:        total.StringFixed(2),
		RequestedAt:  time.Now().UTC(),
	}
	n.live[sessionID] = event
	n.mu.Unlock()

	paymentRequests.WithLabelValues("requested").Inc()
	n.push(EventPaymentRequested, event)
}

// Acknowledge marks the session's live event as seen by staff. It does
// not touch billing status; acknowledgment and settlement are
// independent operations.
func (n *Notifier) Acknowledge(sessionID uuid.UUID) (PaymentRequestEvent, error) {
	n.mu.Lock()
	event, ok := n.live[sessionID]
	if !ok {
		n.mu.Unlock()
		return PaymentRequestEvent{}, ErrNoLiveRequest
	}
	event.Acknowledged = true
	n.live[sessionID] = event
	n.mu.Unlock()

	paymentRequests.WithLabelValues("acknowledged").Inc()
	return event, nil
}

// Resolve drops the session's event (settled or cancelled) and tells
// connected clients to clear it. Missing events are fine: resolving is
// idempotent.
func (n *Notifier) Resolve(sessionID uuid.UUID) {
	n.mu.Lock()
	_, existed := n.live[sessionID]
	delete(n.live, sessionID)
	n.mu.Unlock()

	if existed {
		paymentRequests.WithLabelValues("resolved").Inc()
		n.push(EventPaymentResolved, resolvedPayload{SessionID: sessionID})
	}
}

// Live returns the unacknowledged events, oldest first. This is the
// pull fallback for staff clients that reconnect or missed a push.
func (n *Notifier) Live() []PaymentRequestEvent {
	n.mu.Lock()
	events := make([]PaymentRequestEvent, 0, len(n.live))
	for _, event := range n.live {
		if !event.Acknowledged {
			events = append(events, event)
		}
	}
	n.mu.Unlock()

	sort.Slice(events, func(i, j int) bool {
		if events[i].RequestedAt.Equal(events[j].RequestedAt) {
			return events[i].SessionID.String() < events[j].SessionID.String()
		}
		return events[i].RequestedAt.Before(events[j].RequestedAt)
	})
	return events
}

func (n *Notifier) push(eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	n.hub.Broadcast(ws.Event{Type: eventType, Payload: data})
}
