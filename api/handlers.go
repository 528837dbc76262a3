/*
handlers.go - HTTP API handlers for appointment and invoice reconciliation

PURPOSE:
  Exposes the billing engines via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to billing logic. No business rule
  lives here.

ENDPOINTS:
  Appointments (customer, lawyer or admin):
    GET    /api/appointments/{id}              Appointment details
    POST   /api/appointments/{id}/cancel       Cancel (joint invoice update)
    GET    /api/invoices/{id}                  Invoice details

  Admin:
    GET    /api/admin/revenue                  Revenue summary + transactions
    GET    /api/admin/refunds                  Pending refund requests
    PUT    /api/admin/refunds/{id}/amount      Decide refund amount
    POST   /api/admin/refunds/{id}/process     Finalize refund
    POST   /api/admin/accounts/{id}/deactivate Deactivate (cascades for lawyers)
    POST   /api/admin/accounts/{id}/reactivate Reactivate
    POST   /api/admin/accounts/{id}/cascade-cancel  Re-run the lawyer cascade
    DELETE /api/admin/appointments/{id}        Purge appointment + invoice
    GET    /api/admin/audit                    Audit trail

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Lookups, audit queries and scenario resets
  - Reconciler, Aggregator, RefundDesk, Accounts: billing engines

ERROR HANDLING:
  Errors are returned as JSON with a status derived from billing.Kind:
  - 400: invalid_input
  - 403: unauthorized
  - 404: not_found
  - 409: invalid_state_transition
  - 500: persistence_failure (message is always "internal error"; the
         cause is logged, never sent)

SEE ALSO:
  - auth.go: Bearer token middleware
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/consult-ledger/billing"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the storage the API needs: the billing store, its audit log,
// and a reset for demo scenarios.
type Store interface {
	billing.TxStore
	billing.AuditLog
	Reset(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Store      Store
	Auth       *Authenticator
	Reconciler *billing.Reconciler
	Revenue    *billing.Aggregator
	Refunds    *billing.RefundDesk
	Accounts   *billing.Accounts

	logger *zap.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the billing engines over store. opts are passed to every
// engine after the logger and audit log.
func NewHandler(store Store, auth *Authenticator, logger *zap.Logger, opts ...billing.Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]billing.Option{
		billing.WithLogger(logger),
		billing.WithAuditLog(store),
	}, opts...)

	return &Handler{
		Store:      store,
		Auth:       auth,
		Reconciler: billing.NewReconciler(store, opts...),
		Revenue:    billing.NewAggregator(store, opts...),
		Refunds:    billing.NewRefundDesk(store, opts...),
		Accounts:   billing.NewAccounts(store, opts...),
		logger:     logger,
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// APPOINTMENT HANDLERS
// =============================================================================

// GetAppointment returns one appointment. Customers and lawyers only see
// their own.
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := ActorFrom(ctx)
	id := billing.AppointmentID(chi.URLParam(r, "id"))

	appt, err := h.Store.GetAppointment(ctx, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if appt == nil || !canSee(actor, appt.CustomerID, appt.LawyerID) {
		h.writeDomainError(w, r, &billing.NotFoundError{Entity: "appointment", ID: string(id)})
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentDTO(*appt))
}

// CancelAppointment cancels an appointment and reconciles its invoice.
func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := ActorFrom(ctx)
	id := billing.AppointmentID(chi.URLParam(r, "id"))

	var req CancelRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	result, err := h.Reconciler.CancelAppointment(ctx, id, actor, req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCancelResponse(*result))
}

// GetInvoice returns one invoice. Customers and lawyers only see their own.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := ActorFrom(ctx)
	id := billing.InvoiceID(chi.URLParam(r, "id"))

	inv, err := h.Store.GetInvoice(ctx, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if inv == nil || !canSee(actor, inv.UserID) {
		h.writeDomainError(w, r, &billing.NotFoundError{Entity: "invoice", ID: string(id)})
		return
	}

	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv))
}

// canSee hides other people's records behind a 404.
func canSee(actor billing.Actor, owners ...billing.UserID) bool {
	if actor.IsAdmin() {
		return true
	}
	for _, o := range owners {
		if o == actor.ID {
			return true
		}
	}
	return false
}

// =============================================================================
// REVENUE HANDLERS
// =============================================================================

// GetRevenue returns the revenue summary for ?period=day|month|year|all.
func (h *Handler) GetRevenue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := intParam(q.Get("page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "page must be a number", err)
		return
	}
	size, err := intParam(q.Get("page_size"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "page_size must be a number", err)
		return
	}

	summary, err := h.Revenue.ComputeRevenue(r.Context(), billing.Period(q.Get("period")), billing.Page{Number: page, Size: size})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toRevenueDTO(summary))
}

// =============================================================================
// REFUND HANDLERS
// =============================================================================

// ListRefunds returns every invoice awaiting a refund, newest first.
func (h *Handler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Refunds.ListRefundRequests(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	dtos := make([]RefundRequestDTO, 0, len(requests))
	for _, req := range requests {
		dtos = append(dtos, toRefundRequestDTO(req))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DecideRefundAmount fixes how much of a pending refund goes back.
func (h *Handler) DecideRefundAmount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := ActorFrom(ctx)
	id := billing.InvoiceID(chi.URLParam(r, "id"))

	var req RefundAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := billing.ParseMoney(req.Amount)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	inv, err := h.Refunds.DecideRefundAmount(ctx, actor, id, amount)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv))
}

// ProcessRefund finalizes a refund.
func (h *Handler) ProcessRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := ActorFrom(ctx)
	id := billing.InvoiceID(chi.URLParam(r, "id"))

	confirmation, err := h.Refunds.ProcessRefund(ctx, actor, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toRefundConfirmationDTO(confirmation))
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// DeactivateAccount disables an account; a lawyer's open bookings are
// cancelled with it.
func (h *Handler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := ActorFrom(ctx)
	id := billing.UserID(chi.URLParam(r, "id"))

	res, err := h.Accounts.DeactivateAccount(ctx, actor, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	cancelled := make([]CancelResponse, 0, len(res.Cancelled))
	for _, c := range res.Cancelled {
		cancelled = append(cancelled, toCancelResponse(c))
	}
	writeJSON(w, http.StatusOK, DeactivationDTO{
		User:           toUserDTO(res.User),
		CancelledCount: len(cancelled),
		Cancelled:      cancelled,
	})
}

// ReactivateAccount restores access. Cancelled bookings stay cancelled.
func (h *Handler) ReactivateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := ActorFrom(ctx)

	u, err := h.Accounts.ReactivateAccount(ctx, actor, billing.UserID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

// CascadeCancel re-runs the lawyer cascade without touching the account.
func (h *Handler) CascadeCancel(w http.ResponseWriter, r *http.Request) {
	id := billing.UserID(chi.URLParam(r, "id"))

	n, err := h.Reconciler.CascadeCancelForAccount(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account_id":      id,
		"cancelled_count": n,
	})
}

// PurgeAppointment deletes an appointment and its invoice.
func (h *Handler) PurgeAppointment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := ActorFrom(ctx)

	if err := h.Accounts.PurgeAppointment(ctx, actor, billing.AppointmentID(chi.URLParam(r, "id"))); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// ListAudit returns audit entries, newest first. Optional filters:
// ?limit=50&resource_id=...&action=...
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a number", err)
		return
	}
	if limit <= 0 {
		limit = 50
	}
	filter := billing.AuditFilter{Limit: limit}
	if rid := q.Get("resource_id"); rid != "" {
		filter.ResourceID = &rid
	}
	for _, a := range q["action"] {
		filter.Actions = append(filter.Actions, billing.AuditAction(a))
	}

	entries, err := h.Store.Query(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	dtos := make([]AuditEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toAuditEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a billing error to its HTTP status. Anything that
// is not a business error is logged and answered with a generic message.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := billing.Kind(err)
	var status int
	switch kind {
	case billing.KindNotFound:
		status = http.StatusNotFound
	case billing.KindInvalidStateTransition:
		status = http.StatusConflict
	case billing.KindUnauthorized:
		status = http.StatusForbidden
	case billing.KindInvalidInput:
		status = http.StatusBadRequest
	case billing.KindPersistenceFailure, billing.KindNone:
		h.logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "internal error",
			Code:  string(billing.KindPersistenceFailure),
		})
		return
	default:
		panic("api: unhandled error kind " + string(kind))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: string(kind)})
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
