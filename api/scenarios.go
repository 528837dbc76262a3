/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	marketplace data: accounts, booked consultations and their invoices.

AVAILABLE SCENARIOS:

	paid-booking:       One customer, one lawyer; a paid, an unpaid and a
	                    completed booking to cancel and refund
	lawyer-offboarding: A lawyer with open bookings in every payment state,
	                    ready to be deactivated
	monthly-revenue:    Subscriptions and bookings across this month, this
	                    year and last year, including a refunded booking

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create users with fixed IDs (see ScenarioUsers)
 3. Create appointments and invoices with random IDs

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "paid-booking"}

	Then issue a token for one of the users:
	go run ./cmd/devtoken -user admin

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler struct
  - cmd/devtoken: Tokens for scenario users
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/consult-ledger/billing"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "paid-booking",
		Name:        "Paid Booking",
		Description: "A customer with a paid, an unpaid and a completed consultation",
		Category:    "reconciliation",
	},
	{
		ID:          "lawyer-offboarding",
		Name:        "Lawyer Offboarding",
		Description: "A lawyer with open bookings in every payment state, to deactivate",
		Category:    "reconciliation",
	},
	{
		ID:          "monthly-revenue",
		Name:        "Monthly Revenue",
		Description: "Subscriptions, bookings and refunds spread over two years",
		Category:    "revenue",
	},
}

// ScenarioUsers are the fixed accounts every scenario creates.
var ScenarioUsers = []billing.User{
	{ID: "admin", Name: "Ada Admin", Email: "ada@consult.example", Role: billing.RoleAdmin, Active: true},
	{ID: "cust-alice", Name: "Alice Customer", Email: "alice@consult.example", Role: billing.RoleCustomer, Active: true},
	{ID: "cust-bob", Name: "Bob Customer", Email: "bob@consult.example", Role: billing.RoleCustomer, Active: true},
	{ID: "lawyer-lena", Name: "Lena Lawyer", Email: "lena@consult.example", Role: billing.RoleLawyer, Active: true},
	{ID: "lawyer-marc", Name: "Marc Lawyer", Email: "marc@consult.example", Role: billing.RoleLawyer, Active: true},
}

// ListScenarios returns all available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, map[string]any{"scenario": s})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
}

// LoadScenario resets the database and loads a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !knownScenario(req.ScenarioID) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err := h.Seed(r.Context(), req.ScenarioID); err != nil {
		h.logger.Error("scenario load failed", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", nil)
		return
	}

	users := make([]UserDTO, 0, len(ScenarioUsers))
	for _, u := range ScenarioUsers {
		users = append(users, toUserDTO(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "loaded",
		"scenario_id": req.ScenarioID,
		"users":       users,
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		h.logger.Error("reset failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to reset database", nil)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Seed resets the store and loads scenario id.
func (h *Handler) Seed(ctx context.Context, id string) error {
	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	s := &seeder{ctx: ctx, store: h.Store, now: time.Now().UTC()}
	for _, u := range ScenarioUsers {
		u.CreatedAt = s.now.AddDate(-1, 0, 0)
		s.do(func() error { return h.Store.SaveUser(ctx, u) })
	}

	switch id {
	case "paid-booking":
		loadPaidBookingScenario(s)
	case "lawyer-offboarding":
		loadLawyerOffboardingScenario(s)
	case "monthly-revenue":
		loadMonthlyRevenueScenario(s)
	default:
		return fmt.Errorf("unknown scenario %q", id)
	}
	if s.err != nil {
		return s.err
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	h.logger.Info("scenario loaded", zap.String("scenario", id))
	return nil
}

func knownScenario(id string) bool {
	for _, s := range scenarios {
		if s.ID == id {
			return true
		}
	}
	return false
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadPaidBookingScenario(s *seeder) {
	// Paid, starts tomorrow: cancelling it opens a refund.
	s.booking("cust-alice", "lawyer-lena", billing.AppointmentConfirmed, 24*time.Hour,
		"220.00", billing.InvoiceSuccess, s.now.Add(-2*time.Hour))
	// Checkout never completed.
	s.booking("cust-alice", "lawyer-lena", billing.AppointmentPending, 48*time.Hour,
		"110.00", billing.InvoicePending, s.now.Add(-time.Hour))
	// Already held.
	s.booking("cust-bob", "lawyer-lena", billing.AppointmentCompleted, -72*time.Hour,
		"330.00", billing.InvoiceSuccess, s.now.Add(-96*time.Hour))
}

func loadLawyerOffboardingScenario(s *seeder) {
	s.booking("cust-alice", "lawyer-marc", billing.AppointmentConfirmed, 24*time.Hour,
		"220.00", billing.InvoiceSuccess, s.now.Add(-3*time.Hour))
	s.booking("cust-bob", "lawyer-marc", billing.AppointmentPending, 26*time.Hour,
		"220.00", billing.InvoicePending, s.now.Add(-2*time.Hour))
	s.booking("cust-bob", "lawyer-marc", billing.AppointmentConfirmed, 50*time.Hour,
		"110.00", billing.InvoiceFailed, s.now.Add(-time.Hour))
	s.appointment("cust-alice", "lawyer-marc", billing.AppointmentPending, 72*time.Hour)
	// Finished work is not touched by deactivation.
	s.booking("cust-alice", "lawyer-marc", billing.AppointmentCompleted, -48*time.Hour,
		"330.00", billing.InvoiceSuccess, s.now.Add(-72*time.Hour))
	s.subscription("lawyer-marc", "1100.00", billing.InvoiceSuccess, billing.StartOfMonth(s.now))
}

func loadMonthlyRevenueScenario(s *seeder) {
	month := billing.StartOfMonth(s.now)
	lastYear := billing.StartOfYear(s.now).AddDate(0, -2, 0)

	s.subscription("lawyer-lena", "1100.00", billing.InvoiceSuccess, month)
	s.subscription("lawyer-marc", "1100.00", billing.InvoiceSuccess, lastYear)
	s.subscription("lawyer-marc", "1100.00", billing.InvoiceFailed, month)

	s.booking("cust-alice", "lawyer-lena", billing.AppointmentCompleted, -24*time.Hour,
		"220.00", billing.InvoiceSuccess, month)
	s.booking("cust-bob", "lawyer-marc", billing.AppointmentCompleted, -48*time.Hour,
		"330.00", billing.InvoiceSuccess, lastYear)
	s.booking("cust-bob", "lawyer-lena", billing.AppointmentRefundPending, 24*time.Hour,
		"330.00", billing.InvoiceRefundPending, s.now.Add(-time.Hour))

	// Refunded with 100.00 returned: the platform keeps 120.00.
	a := s.appointment("cust-alice", "lawyer-marc", billing.AppointmentCancelled, -24*time.Hour)
	inv := s.invoice("cust-alice", &a.ID, nil, "220.00", billing.InvoiceRefunded, month)
	inv.RefundAmount = billing.MustMoney("100.00")
	s.do(func() error { return s.store.SaveInvoice(s.ctx, inv) })
}

// =============================================================================
// SEEDER
// =============================================================================

// seeder writes scenario rows and keeps the first error.
type seeder struct {
	ctx   context.Context
	store billing.Store
	now   time.Time
	err   error
}

func (s *seeder) do(fn func() error) {
	if s.err == nil {
		s.err = fn()
	}
}

func (s *seeder) appointment(customer, lawyer billing.UserID, status billing.AppointmentStatus, startsIn time.Duration) billing.Appointment {
	a := billing.Appointment{
		ID:              billing.AppointmentID(uuid.NewString()),
		Status:          status,
		SlotID:          uuid.NewString(),
		CustomerID:      customer,
		LawyerID:        lawyer,
		StartsAt:        s.now.Add(startsIn).Truncate(time.Hour),
		DurationMinutes: 60,
		CreatedAt:       s.now.Add(-time.Hour),
		UpdatedAt:       s.now.Add(-time.Hour),
	}
	s.do(func() error { return s.store.SaveAppointment(s.ctx, a) })
	return a
}

// invoice builds (but does not save) an invoice.
func (s *seeder) invoice(owner billing.UserID, appt *billing.AppointmentID, sub *string, amount string, status billing.InvoiceStatus, created time.Time) billing.Invoice {
	return billing.Invoice{
		ID:             billing.InvoiceID(uuid.NewString()),
		UserID:         owner,
		AppointmentID:  appt,
		SubscriptionID: sub,
		Amount:         billing.MustMoney(amount),
		Status:         status,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func (s *seeder) booking(customer, lawyer billing.UserID, apptStatus billing.AppointmentStatus, startsIn time.Duration, amount string, invStatus billing.InvoiceStatus, created time.Time) {
	a := s.appointment(customer, lawyer, apptStatus, startsIn)
	a.CommissionFee = billing.SplitBooking(billing.MustMoney(amount)).Commission
	s.do(func() error { return s.store.SaveAppointment(s.ctx, a) })

	inv := s.invoice(customer, &a.ID, nil, amount, invStatus, created)
	s.do(func() error { return s.store.SaveInvoice(s.ctx, inv) })
}

func (s *seeder) subscription(lawyer billing.UserID, amount string, status billing.InvoiceStatus, created time.Time) {
	plan := "plan-pro-" + uuid.NewString()[:8]
	inv := s.invoice(lawyer, nil, &plan, amount, status, created)
	s.do(func() error { return s.store.SaveInvoice(s.ctx, inv) })
}
