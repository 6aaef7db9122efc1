package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/eutonafila/shopqueue/services/queue-service/internal/engine"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/model"
	"github.com/go-playground/validator/v10"
)

// Scheduler is the queue engine surface served over HTTP.
type Scheduler interface {
	GetWaitEstimate(ctx context.Context, shopID string, position int) (*int, error)
	GetTicketWait(ctx context.Context, ticketID string) (engine.TicketWait, error)
	RecalculatePositions(ctx context.Context, shopID string) (int, error)
	SimulateWait(ctx context.Context, shopID, serviceID string, servers, jobs int) (int, error)
	QueueClearMinutes(ctx context.Context, shopID string) (int, error)
	ListAppointmentSlots(ctx context.Context, q engine.SlotQuery) ([]engine.Slot, error)
	TransitionTicketStatus(ctx context.Context, req engine.TransitionRequest) (model.Ticket, error)
	JoinQueue(ctx context.Context, req engine.JoinRequest) (model.Ticket, error)
	BookAppointment(ctx context.Context, req engine.BookRequest) (model.Ticket, error)
}

type QueueHandler struct {
	scheduler Scheduler
	logger    *slog.Logger
	validator *validator.Validate
}

func NewQueueHandler(scheduler Scheduler, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{
		scheduler: scheduler,
		logger:    logger,
		validator: newValidator(),
	}
}

func (h *QueueHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/queue/wait", h.WaitEstimate)
	mux.HandleFunc("/api/v1/queue/tickets/wait", h.TicketWait)
	mux.HandleFunc("/api/v1/queue/positions/recalculate", h.Recalculate)
	mux.HandleFunc("/api/v1/queue/simulate", h.Simulate)
	mux.HandleFunc("/api/v1/tickets/status", h.TransitionStatus)
	mux.HandleFunc("/api/v1/public/queue/join", h.Join)
	mux.HandleFunc("/api/v1/public/slots", h.Slots)
	mux.HandleFunc("/api/v1/public/book", h.Book)
}

type waitResponse struct {
	ShopID      string `json:"shop_id"`
	TicketID    string `json:"ticket_id,omitempty"`
	Position    int    `json:"position"`
	WaitMinutes *int   `json:"wait_minutes"`
}

func (h *QueueHandler) WaitEstimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	q := r.URL.Query()
	shopID := strings.TrimSpace(q.Get("shop_id"))
	if shopID == "" {
		writeError(w, r, http.StatusBadRequest, "validation_failed", "shop_id is required")
		return
	}
	position, err := strconv.Atoi(q.Get("position"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_failed", "position must be an integer")
		return
	}

	wait, err := h.scheduler.GetWaitEstimate(r.Context(), shopID, position)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, waitResponse{ShopID: shopID, Position: position, WaitMinutes: wait})
}

func (h *QueueHandler) TicketWait(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	ticketID := strings.TrimSpace(r.URL.Query().Get("ticket_id"))
	if ticketID == "" {
		writeError(w, r, http.StatusBadRequest, "validation_failed", "ticket_id is required")
		return
	}

	res, err := h.scheduler.GetTicketWait(r.Context(), ticketID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	pos := res.Ticket.Position
	if res.Ticket.Status != model.StatusWaiting {
		pos = 0
	}
	writeJSON(w, http.StatusOK, waitResponse{
		ShopID:      res.Ticket.ShopID,
		TicketID:    res.Ticket.ID,
		Position:    pos,
		WaitMinutes: res.WaitMinutes,
	})
}

type recalculateRequest struct {
	ShopID string `json:"shop_id" validate:"required"`
}

type recalculateResponse struct {
	ShopID  string `json:"shop_id"`
	Updated int    `json:"updated"`
}

func (h *QueueHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req recalculateRequest
	if !h.decode(w, r, &req) {
		return
	}

	n, err := h.scheduler.RecalculatePositions(r.Context(), req.ShopID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recalculateResponse{ShopID: req.ShopID, Updated: n})
}

type simulateResponse struct {
	ShopID      string `json:"shop_id"`
	ServiceID   string `json:"service_id"`
	Servers     int    `json:"servers"`
	Jobs        int    `json:"jobs"`
	WaitMinutes int    `json:"wait_minutes"`
}

func (h *QueueHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	q := r.URL.Query()
	shopID := strings.TrimSpace(q.Get("shop_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	if shopID == "" || serviceID == "" {
		writeError(w, r, http.StatusBadRequest, "validation_failed", "shop_id and service_id are required")
		return
	}
	servers, err := strconv.Atoi(q.Get("servers"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_failed", "servers must be an integer")
		return
	}
	jobs, err := strconv.Atoi(q.Get("jobs"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_failed", "jobs must be an integer")
		return
	}

	wait, err := h.scheduler.SimulateWait(r.Context(), shopID, serviceID, servers, jobs)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, simulateResponse{ShopID: shopID, ServiceID: serviceID, Servers: servers, Jobs: jobs, WaitMinutes: wait})
}

type transitionRequest struct {
	TicketID         string `json:"ticket_id" validate:"required"`
	Status           string `json:"status" validate:"required,oneof=pending waiting in_progress completed cancelled"`
	AssignedServerID string `json:"assigned_server_id"`
}

func (h *QueueHandler) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req transitionRequest
	if !h.decode(w, r, &req) {
		return
	}

	t, err := h.scheduler.TransitionTicketStatus(r.Context(), engine.TransitionRequest{
		TicketID:         req.TicketID,
		Status:           model.TicketStatus(req.Status),
		AssignedServerID: req.AssignedServerID,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTicketResponse(t))
}

type joinRequest struct {
	ShopID       string `json:"shop_id" validate:"required"`
	ServiceID    string `json:"service_id" validate:"required"`
	CustomerName string `json:"customer_name" validate:"required,max=120"`
}

func (h *QueueHandler) Join(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req joinRequest
	if !h.decode(w, r, &req) {
		return
	}

	t, err := h.scheduler.JoinQueue(r.Context(), engine.JoinRequest{
		ShopID:       req.ShopID,
		ServiceID:    req.ServiceID,
		CustomerName: req.CustomerName,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTicketResponse(t))
}

type slotItem struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

type slotsResponse struct {
	ShopID string     `json:"shop_id"`
	Date   string     `json:"date"`
	Slots  []slotItem `json:"slots"`
}

func (h *QueueHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	q := r.URL.Query()
	query := engine.SlotQuery{
		ShopID:    strings.TrimSpace(q.Get("shop_id")),
		Date:      strings.TrimSpace(q.Get("date")),
		ServiceID: strings.TrimSpace(q.Get("service_id")),
		ServerID:  strings.TrimSpace(q.Get("server_id")),
	}
	if query.ShopID == "" || query.Date == "" || query.ServiceID == "" {
		writeError(w, r, http.StatusBadRequest, "validation_failed", "shop_id, date and service_id are required")
		return
	}

	switch {
	case q.Get("queue_clear") == "auto":
		minutes, err := h.scheduler.QueueClearMinutes(r.Context(), query.ShopID)
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		query.QueueClearMinutes = &minutes
	case q.Get("queue_clear_minutes") != "":
		minutes, err := strconv.Atoi(q.Get("queue_clear_minutes"))
		if err != nil || minutes < 0 {
			writeError(w, r, http.StatusBadRequest, "validation_failed", "queue_clear_minutes must be a non-negative integer")
			return
		}
		query.QueueClearMinutes = &minutes
	}

	slots, err := h.scheduler.ListAppointmentSlots(r.Context(), query)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{Time: s.Time, Available: s.Available})
	}
	writeJSON(w, http.StatusOK, slotsResponse{ShopID: query.ShopID, Date: query.Date, Slots: items})
}

type bookRequest struct {
	ShopID       string `json:"shop_id" validate:"required"`
	ServiceID    string `json:"service_id" validate:"required"`
	Date         string `json:"date" validate:"required"`
	Time         string `json:"time" validate:"required"`
	ServerID     string `json:"server_id"`
	CustomerName string `json:"customer_name" validate:"max=120"`
}

func (h *QueueHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req bookRequest
	if !h.decode(w, r, &req) {
		return
	}

	t, err := h.scheduler.BookAppointment(r.Context(), engine.BookRequest{
		ShopID:       req.ShopID,
		ServiceID:    req.ServiceID,
		Date:         req.Date,
		Time:         req.Time,
		ServerID:     req.ServerID,
		CustomerName: req.CustomerName,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTicketResponse(t))
}

// decode reads a JSON body into dst and validates it, writing the error response itself.
func (h *QueueHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid json body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		writeValidationError(w, r, err, h.logger)
		return false
	}
	return true
}
