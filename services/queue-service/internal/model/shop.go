package model

import (
	"math"
	"time"
)

// Server is a worker able to complete any service of its shop.
type Server struct {
	ID        string
	ShopID    string
	Name      string
	IsActive  bool
	IsPresent bool
}

type Service struct {
	ID              string
	ShopID          string
	Name            string
	DurationMinutes int
	IsActive        bool
}

// DayHours is one weekday window expressed in minutes since local midnight.
type DayHours struct {
	OpenMinute       int
	CloseMinute      int
	LunchStartMinute int
	LunchEndMinute   int
	HasLunch         bool
}

type ShopSchedule struct {
	ShopID                        string
	Timezone                      string
	Hours                         map[time.Weekday]DayHours
	MaxQueueSize                  int
	MaxAppointmentsFraction       float64
	AllowAppointments             bool
	DefaultServiceDurationMinutes int
	AssumedSlotMinutes            int
	SlotBufferMinutes             int
}

const (
	DefaultAssumedSlotMinutes = 20
	DefaultSlotBufferMinutes  = 5
	DefaultServiceMinutes     = 30
)

// WithDefaults fills zero valued tunables.
func (s ShopSchedule) WithDefaults() ShopSchedule {
	if s.AssumedSlotMinutes <= 0 {
		s.AssumedSlotMinutes = DefaultAssumedSlotMinutes
	}
	if s.SlotBufferMinutes < 0 {
		s.SlotBufferMinutes = 0
	}
	if s.DefaultServiceDurationMinutes <= 0 {
		s.DefaultServiceDurationMinutes = DefaultServiceMinutes
	}
	return s
}

// AppointmentCap is the number of non-terminal appointment tickets the shop accepts.
func (s ShopSchedule) AppointmentCap() int {
	if s.MaxQueueSize <= 0 || s.MaxAppointmentsFraction <= 0 {
		return 0
	}
	// Fractions like 0.29 are not exact in binary; nudge before flooring.
	return int(math.Floor(float64(s.MaxQueueSize)*s.MaxAppointmentsFraction + 1e-9))
}
