package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/eutonafila/shopqueue/libs/httpx"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/engine"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/model"
	"github.com/go-playground/validator/v10"
)

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
	ShopID   string `json:"shop_id,omitempty"`
	TicketID string `json:"ticket_id,omitempty"`
}

type ticketResponse struct {
	ID                   string  `json:"id"`
	ShopID               string  `json:"shop_id"`
	ServiceID            string  `json:"service_id"`
	CustomerName         string  `json:"customer_name,omitempty"`
	Type                 string  `json:"type"`
	Status               string  `json:"status"`
	AssignedServerID     string  `json:"assigned_server_id,omitempty"`
	PreferredServerID    string  `json:"preferred_server_id,omitempty"`
	Position             int     `json:"position"`
	EstimatedWaitMinutes *int    `json:"estimated_wait_minutes"`
	CreatedAt            string  `json:"created_at"`
	ScheduledTime        *string `json:"scheduled_time,omitempty"`
	StartedAt            *string `json:"started_at,omitempty"`
	CompletedAt          *string `json:"completed_at,omitempty"`
}

func toTicketResponse(t model.Ticket) ticketResponse {
	return ticketResponse{
		ID:                   t.ID,
		ShopID:               t.ShopID,
		ServiceID:            t.ServiceID,
		CustomerName:         t.CustomerName,
		Type:                 string(t.Type),
		Status:               string(t.Status),
		AssignedServerID:     t.AssignedServerID,
		PreferredServerID:    t.PreferredServerID,
		Position:             t.Position,
		EstimatedWaitMinutes: t.EstimatedWaitMinutes,
		CreatedAt:            t.CreatedAt.UTC().Format(time.RFC3339),
		ScheduledTime:        formatTime(t.ScheduledTime),
		StartedAt:            formatTime(t.StartedAt),
		CompletedAt:          formatTime(t.CompletedAt),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: httpx.RequestIDFromContext(r.Context()),
		Error:     responseError{Code: code, Message: message},
	})
}

// writeEngineError maps the engine error taxonomy onto HTTP statuses.
func (h *QueueHandler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, engine.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, engine.ErrValidation):
		status, code = http.StatusBadRequest, "validation_failed"
	case errors.Is(err, engine.ErrCapacityExceeded):
		status, code = http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, engine.ErrUnavailable):
		status, code = http.StatusForbidden, "unavailable"
	}

	resp := errorResponse{
		RequestID: httpx.RequestIDFromContext(r.Context()),
		Error:     responseError{Code: code, Message: "internal error"},
	}
	if e, ok := engine.AsError(err); ok {
		resp.Error.Message = e.Message
		resp.Error.Field = e.Field
		resp.Error.ShopID = e.ShopID
		resp.Error.TicketID = e.TicketID
	} else {
		h.logger.Error("request failed", "request_id", resp.RequestID, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// writeValidationError reports the first failing field of a request body.
func writeValidationError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		writeJSON(w, http.StatusBadRequest, errorResponse{
			RequestID: httpx.RequestIDFromContext(r.Context()),
			Error: responseError{
				Code:    "validation_failed",
				Message: fe.Field() + " failed " + fe.Tag() + " validation",
				Field:   fe.Field(),
			},
		})
		return
	}
	logger.Warn("request validation error", "err", err)
	writeError(w, r, http.StatusBadRequest, "validation_failed", "invalid request")
}
