/*
types.go - Ledger entities and their closed status types

PURPOSE:
  Defines Appointment, Invoice and User records plus the state machines
  that govern them. Statuses are closed string types: every value that can
  reach the engines has passed ParseAppointmentStatus/ParseInvoiceStatus,
  and every transition site switches over the full set.

APPOINTMENT STATES:
  Pending -> Confirmed -> Completed                (terminal)
  Pending|Confirmed -> Cancelled                   (terminal)
  Pending|Confirmed -> Refund_Pending -> Cancelled (refund finalized)
  Refunded is recognized for stored rows but never produced here; the
  financial terminal marker of a refunded booking lives on the invoice.

INVOICE STATES:
  Pending -> Success | Failed | Cancelled
  Failed  -> Cancelled
  Success -> Refund_Pending -> Refunded            (terminal)
  Success -> Refunded                              (direct refund)

SEE ALSO:
  - money.go: Amount math on Invoice.Amount / RefundAmount
  - reconcile.go: Uses the transition rules
*/
package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	UserID        string
	AppointmentID string
	InvoiceID     string
)

// =============================================================================
// ROLES
// =============================================================================

// Role is an account role. It decides how an invoice is classified.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleLawyer   Role = "lawyer"
	RoleAdmin    Role = "admin"
)

// ParseRole validates a stored or transported role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCustomer, RoleLawyer, RoleAdmin:
		return r, nil
	default:
		return "", &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", s)}
	}
}

// PaymentType is the derived kind of an invoice row.
type PaymentType string

const (
	PaymentSubscription PaymentType = "Subscription"
	PaymentBooking      PaymentType = "Booking"
)

// PaymentTypeFor derives the payment type from the payer's role.
// Lawyers pay subscriptions; everyone else pays bookings.
func PaymentTypeFor(role Role) PaymentType {
	if role == RoleLawyer {
		return PaymentSubscription
	}
	return PaymentBooking
}

// =============================================================================
// APPOINTMENT STATUS
// =============================================================================

type AppointmentStatus string

const (
	AppointmentPending       AppointmentStatus = "Pending"
	AppointmentConfirmed     AppointmentStatus = "Confirmed"
	AppointmentCompleted     AppointmentStatus = "Completed"
	AppointmentCancelled     AppointmentStatus = "Cancelled"
	AppointmentRefundPending AppointmentStatus = "Refund_Pending"
	AppointmentRefunded      AppointmentStatus = "Refunded"
)

// ParseAppointmentStatus validates a stored status string.
func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	switch st := AppointmentStatus(s); st {
	case AppointmentPending, AppointmentConfirmed, AppointmentCompleted,
		AppointmentCancelled, AppointmentRefundPending, AppointmentRefunded:
		return st, nil
	default:
		return "", &ValidationError{Field: "appointment.status", Message: fmt.Sprintf("unknown status %q", s)}
	}
}

// IsTerminal reports whether no further transition is permitted.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case AppointmentCompleted, AppointmentCancelled, AppointmentRefunded:
		return true
	case AppointmentPending, AppointmentConfirmed, AppointmentRefundPending:
		return false
	default:
		panic(fmt.Sprintf("billing: unknown appointment status %q", string(s)))
	}
}

// IsCancellable reports whether a cancellation event may act on s.
// Refund_Pending is already the outcome of a cancellation and only moves
// forward through refund processing.
func (s AppointmentStatus) IsCancellable() bool {
	switch s {
	case AppointmentPending, AppointmentConfirmed:
		return true
	case AppointmentCompleted, AppointmentCancelled, AppointmentRefunded, AppointmentRefundPending:
		return false
	default:
		panic(fmt.Sprintf("billing: unknown appointment status %q", string(s)))
	}
}

// =============================================================================
// INVOICE STATUS
// =============================================================================

type InvoiceStatus string

const (
	InvoicePending       InvoiceStatus = "Pending"
	InvoiceSuccess       InvoiceStatus = "Success"
	InvoiceFailed        InvoiceStatus = "Failed"
	InvoiceRefundPending InvoiceStatus = "Refund_Pending"
	InvoiceRefunded      InvoiceStatus = "Refunded"
	InvoiceCancelled     InvoiceStatus = "Cancelled"
)

// ParseInvoiceStatus validates a stored status string.
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	switch st := InvoiceStatus(s); st {
	case InvoicePending, InvoiceSuccess, InvoiceFailed,
		InvoiceRefundPending, InvoiceRefunded, InvoiceCancelled:
		return st, nil
	default:
		return "", &ValidationError{Field: "invoice.status", Message: fmt.Sprintf("unknown status %q", s)}
	}
}

// IsTerminal reports whether no further transition is permitted.
func (s InvoiceStatus) IsTerminal() bool {
	switch s {
	case InvoiceRefunded, InvoiceCancelled:
		return true
	case InvoicePending, InvoiceSuccess, InvoiceFailed, InvoiceRefundPending:
		return false
	default:
		panic(fmt.Sprintf("billing: unknown invoice status %q", string(s)))
	}
}

// CanTransitionTo reports whether s -> next is an edge of the invoice
// state machine.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	switch s {
	case InvoicePending:
		return next == InvoiceSuccess || next == InvoiceFailed || next == InvoiceCancelled
	case InvoiceFailed:
		return next == InvoiceCancelled
	case InvoiceSuccess:
		return next == InvoiceRefundPending || next == InvoiceRefunded
	case InvoiceRefundPending:
		return next == InvoiceRefunded
	case InvoiceRefunded, InvoiceCancelled:
		return false
	default:
		panic(fmt.Sprintf("billing: unknown invoice status %q", string(s)))
	}
}

// IsRecognized reports whether invoices in s count toward revenue.
func (s InvoiceStatus) IsRecognized() bool {
	return s == InvoiceSuccess || s == InvoiceRefunded
}

// =============================================================================
// ENTITIES
// =============================================================================

// User is a marketplace account.
type User struct {
	ID        UserID
	Name      string
	Email     string
	Role      Role
	Active    bool
	CreatedAt time.Time
}

// Appointment is a booked consultation between a customer and a lawyer.
type Appointment struct {
	ID              AppointmentID
	Status          AppointmentStatus
	SlotID          string
	CustomerID      UserID
	LawyerID        UserID
	StartsAt        time.Time
	DurationMinutes int
	Note            string
	CommissionFee   decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Invoice is a payment record. Exactly one of AppointmentID and
// SubscriptionID is set.
type Invoice struct {
	ID             InvoiceID
	UserID         UserID
	AppointmentID  *AppointmentID
	SubscriptionID *string
	Amount         decimal.Decimal
	RefundAmount   decimal.Decimal // zero means "not yet decided"
	Status         InvoiceStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsBooking reports whether the invoice pays for an appointment.
func (inv Invoice) IsBooking() bool {
	return inv.AppointmentID != nil
}

// Validate checks the invoice's structural invariants.
func (inv Invoice) Validate() error {
	if (inv.AppointmentID == nil) == (inv.SubscriptionID == nil) {
		return &ValidationError{Field: "invoice", Message: "exactly one of appointment and subscription must be set"}
	}
	if inv.Amount.IsNegative() {
		return &ValidationError{Field: "invoice.amount", Message: "must not be negative"}
	}
	if inv.RefundAmount.IsNegative() || inv.RefundAmount.GreaterThan(inv.Amount) {
		return &ValidationError{Field: "invoice.refund_amount", Message: "must be between 0 and amount"}
	}
	return nil
}

// InvoiceView is an invoice joined with its owner. PayerRole is resolved
// once by the store query, not stored on the invoice.
type InvoiceView struct {
	Invoice
	PayerRole  Role
	PayerName  string
	PayerEmail string
}

// =============================================================================
// ACTOR
// =============================================================================

// Actor is the authenticated caller, as supplied by the identity provider.
type Actor struct {
	ID   UserID
	Role Role
	Name string
}

// SystemActor is used for engine-initiated changes (cascades).
func SystemActor() Actor {
	return Actor{ID: "system", Role: RoleAdmin, Name: "system"}
}

// IsAdmin reports whether the actor has admin rights.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
