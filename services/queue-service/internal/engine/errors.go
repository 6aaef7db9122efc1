package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrUnavailable      = errors.New("unavailable")
)

// Error carries the failing kind plus enough context to render a precise message.
type Error struct {
	Kind     error
	ShopID   string
	TicketID string
	Field    string
	Message  string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	var ctx []string
	if e.ShopID != "" {
		ctx = append(ctx, "shop_id="+e.ShopID)
	}
	if e.TicketID != "" {
		ctx = append(ctx, "ticket_id="+e.TicketID)
	}
	if e.Field != "" {
		ctx = append(ctx, "field="+e.Field)
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, " "))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Kind }

// AsError returns the engine error inside err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func notFound(shopID, ticketID, field, msg string) *Error {
	return &Error{Kind: ErrNotFound, ShopID: shopID, TicketID: ticketID, Field: field, Message: msg}
}

func invalid(shopID, ticketID, field, msg string) *Error {
	return &Error{Kind: ErrValidation, ShopID: shopID, TicketID: ticketID, Field: field, Message: msg}
}
