package model

import (
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrStaleState = errors.New("ticket state changed concurrently")
)

type TicketType string

const (
	TicketWalkIn      TicketType = "walk_in"
	TicketAppointment TicketType = "appointment"
)

type TicketStatus string

const (
	StatusPending    TicketStatus = "pending"
	StatusWaiting    TicketStatus = "waiting"
	StatusInProgress TicketStatus = "in_progress"
	StatusCompleted  TicketStatus = "completed"
	StatusCancelled  TicketStatus = "cancelled"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case StatusPending, StatusWaiting, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s TicketStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Ticket is one customer's claim on a server. Empty id strings mean unset.
type Ticket struct {
	ID                   string
	ShopID               string
	ServiceID            string
	CustomerName         string
	Type                 TicketType
	Status               TicketStatus
	AssignedServerID     string
	PreferredServerID    string
	CreatedAt            time.Time
	ScheduledTime        *time.Time
	StartedAt            *time.Time
	CompletedAt          *time.Time
	Position             int
	EstimatedWaitMinutes *int
}

// StatusUpdate carries the fields written alongside a status change.
type StatusUpdate struct {
	Status           TicketStatus
	AssignedServerID string
	StartedAt        *time.Time
	CompletedAt      *time.Time
	Position         int
}
