package outbox

import (
	"encoding/json"
	"time"

	"github.com/eutonafila/shopqueue/services/queue-service/internal/model"
)

const (
	AggregateTicket = "ticket"

	EventTicketCreated       = "queue.ticket.created.v1"
	EventTicketStatusChanged = "queue.ticket.status_changed.v1"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type TicketCreated struct {
	TicketID      string     `json:"ticket_id"`
	ShopID        string     `json:"shop_id"`
	ServiceID     string     `json:"service_id"`
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type TicketStatusChanged struct {
	TicketID         string    `json:"ticket_id"`
	ShopID           string    `json:"shop_id"`
	From             string    `json:"from"`
	To               string    `json:"to"`
	AssignedServerID string    `json:"assigned_server_id,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

func NewTicketCreated(t model.Ticket) (Event, error) {
	payload, err := json.Marshal(TicketCreated{
		TicketID:      t.ID,
		ShopID:        t.ShopID,
		ServiceID:     t.ServiceID,
		Type:          string(t.Type),
		Status:        string(t.Status),
		ScheduledTime: t.ScheduledTime,
		CreatedAt:     t.CreatedAt,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{AggregateType: AggregateTicket, AggregateID: t.ID, EventType: EventTicketCreated, Payload: payload}, nil
}

func NewTicketStatusChanged(t model.Ticket, from model.TicketStatus, at time.Time) (Event, error) {
	payload, err := json.Marshal(TicketStatusChanged{
		TicketID:         t.ID,
		ShopID:           t.ShopID,
		From:             string(from),
		To:               string(t.Status),
		AssignedServerID: t.AssignedServerID,
		OccurredAt:       at.UTC(),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{AggregateType: AggregateTicket, AggregateID: t.ID, EventType: EventTicketStatusChanged, Payload: payload}, nil
}
