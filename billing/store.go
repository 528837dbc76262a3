/*
store.go - Persistence and audit interfaces

PURPOSE:
  Defines what the billing engines need from storage. Implementations:
  - billing/store: in-memory (tests, demos)
  - store/sqlite: embedded SQLite (default runtime)
  - store/postgres: PostgreSQL via gorm

NOT-FOUND CONVENTION:
  Get* methods return (nil, nil) when the row does not exist. The engines
  turn that into a NotFoundError with the right entity name.

TRANSACTIONS:
  TxStore.WithTx runs fn against a Store bound to one transaction. Reads
  made through that Store must observe the rows exclusively until commit
  (row locks, or a serialized writer), so two cancellations of the same
  appointment cannot both see it as open.

SEE ALSO:
  - reconcile.go, refund.go, accounts.go: Use TxStore
  - revenue.go: Uses plain Store reads (no locks)
*/
package billing

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Entity persistence
// =============================================================================

// Store provides access to users, appointments and invoices.
type Store interface {
	GetUser(ctx context.Context, id UserID) (*User, error)
	SaveUser(ctx context.Context, u User) error

	GetAppointment(ctx context.Context, id AppointmentID) (*Appointment, error)
	SaveAppointment(ctx context.Context, a Appointment) error
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]Appointment, error)
	DeleteAppointment(ctx context.Context, id AppointmentID) error

	GetInvoice(ctx context.Context, id InvoiceID) (*Invoice, error)
	GetInvoiceByAppointment(ctx context.Context, id AppointmentID) (*Invoice, error)
	SaveInvoice(ctx context.Context, inv Invoice) error
	DeleteInvoice(ctx context.Context, id InvoiceID) error

	// ListInvoiceViews returns invoices joined with their owner's role,
	// newest first.
	ListInvoiceViews(ctx context.Context, filter InvoiceFilter) ([]InvoiceView, error)
}

// AppointmentFilter narrows ListAppointments. Zero values match everything.
type AppointmentFilter struct {
	LawyerID   *UserID
	CustomerID *UserID
	Statuses   []AppointmentStatus
}

// Matches reports whether a passes the filter. Stores without a query
// language use it directly.
func (f AppointmentFilter) Matches(a Appointment) bool {
	if f.LawyerID != nil && a.LawyerID != *f.LawyerID {
		return false
	}
	if f.CustomerID != nil && a.CustomerID != *f.CustomerID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if a.Status == s {
			return true
		}
	}
	return false
}

// InvoiceFilter narrows ListInvoiceViews by creation time and status.
type InvoiceFilter struct {
	Window   Window
	Statuses []InvoiceStatus
}

// Matches reports whether inv passes the filter.
func (f InvoiceFilter) Matches(inv Invoice) bool {
	if !f.Window.Contains(inv.CreatedAt) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if inv.Status == s {
			return true
		}
	}
	return false
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG - Separate from entities, tracks who did what when
// =============================================================================

// AuditEntry records who did what when.
type AuditEntry struct {
	ID         string
	Timestamp  time.Time
	ActorID    UserID
	ActorRole  Role
	Action     AuditAction
	Resource   string // "appointment", "invoice", "user"
	ResourceID string
	Message    string
	Payload    map[string]string
}

type AuditAction string

const (
	AuditAppointmentCancelled AuditAction = "appointment_cancelled"
	AuditCascadeCancelled     AuditAction = "cascade_cancelled"
	AuditAppointmentPurged    AuditAction = "appointment_purged"
	AuditRefundAmountDecided  AuditAction = "refund_amount_decided"
	AuditRefundProcessed      AuditAction = "refund_processed"
	AuditAccountDeactivated   AuditAction = "account_deactivated"
	AuditAccountReactivated   AuditAction = "account_reactivated"
)

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// AuditFilter narrows Query. Results are newest first.
type AuditFilter struct {
	ActorID    *UserID
	ResourceID *string
	Actions    []AuditAction
	Limit      int
}

// Matches reports whether e passes the filter (Limit is not applied).
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if f.ResourceID != nil && e.ResourceID != *f.ResourceID {
		return false
	}
	if len(f.Actions) == 0 {
		return true
	}
	for _, a := range f.Actions {
		if e.Action == a {
			return true
		}
	}
	return false
}
