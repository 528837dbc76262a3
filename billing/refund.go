/*
refund.go - Refund workflow: pending refunds and their finalization

PURPOSE:
  Lists invoices awaiting a refund decision with a suggested amount, lets
  an admin fix the refund amount, and finalizes refunds.

SUGGESTION:
  suggested_refund  = refund amount if already decided (> 0),
                      else amount / 1.1 rounded to cents (the base price)
  platform_kept_fee = amount - suggested_refund

FINALIZATION (one transaction):
  invoice Refund_Pending|Success -> Refunded
  paired appointment             -> Cancelled (the financial terminal
                                    marker stays on the invoice)
  actual refund = refund amount if > 0, else the full amount

  No money moves here. Paying the customer back is the payment
  gateway's concern.

SEE ALSO:
  - reconcile.go: Produces Refund_Pending pairs
  - money.go: SuggestedRefund, ActualRefund
*/
package billing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RefundRequest is a Refund_Pending invoice prepared for operator review.
type RefundRequest struct {
	Invoice         InvoiceView
	Appointment     *Appointment // nil for subscription invoices
	SuggestedRefund decimal.Decimal
	PlatformKeptFee decimal.Decimal
}

// RefundConfirmation is the outcome of ProcessRefund.
type RefundConfirmation struct {
	InvoiceID         InvoiceID
	InvoiceStatus     InvoiceStatus
	AppointmentID     *AppointmentID
	AppointmentStatus *AppointmentStatus
	ActualRefund      decimal.Decimal
	Message           string
}

// RefundDesk runs the refund workflow.
type RefundDesk struct {
	engine
}

// NewRefundDesk creates a refund desk over store.
func NewRefundDesk(store TxStore, opts ...Option) *RefundDesk {
	return &RefundDesk{engine: newEngine(store, opts)}
}

// =============================================================================
// LIST
// =============================================================================

// ListRefundRequests returns all Refund_Pending invoices, newest first.
func (d *RefundDesk) ListRefundRequests(ctx context.Context) ([]RefundRequest, error) {
	views, err := d.store.ListInvoiceViews(ctx, InvoiceFilter{
		Statuses: []InvoiceStatus{InvoiceRefundPending},
	})
	if err != nil {
		return nil, d.persistenceFailure("list refund requests", err)
	}

	out := make([]RefundRequest, 0, len(views))
	for _, v := range views {
		suggested := SuggestedRefund(v.Amount, v.RefundAmount)
		req := RefundRequest{
			Invoice:         v,
			SuggestedRefund: suggested,
			PlatformKeptFee: RoundMoney(v.Amount.Sub(suggested)),
		}
		if v.AppointmentID != nil {
			appt, err := d.store.GetAppointment(ctx, *v.AppointmentID)
			if err != nil {
				return nil, d.persistenceFailure("list refund requests", err,
					zap.String("appointment_id", string(*v.AppointmentID)))
			}
			req.Appointment = appt
		}
		out = append(out, req)
	}
	return out, nil
}

// =============================================================================
// DECIDE AMOUNT
// =============================================================================

// DecideRefundAmount fixes the refund amount of a Refund_Pending invoice.
// The amount must be positive and at most the invoice amount.
func (d *RefundDesk) DecideRefundAmount(ctx context.Context, actor Actor, id InvoiceID, amount decimal.Decimal) (*Invoice, error) {
	if !actor.IsAdmin() {
		return nil, &UnauthorizedError{ActorID: actor.ID, Action: "decide refund amounts"}
	}
	amount = RoundMoney(amount)
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "must be positive"}
	}

	var updated Invoice
	err := d.inTx(ctx, "decide refund amount", func(s Store) error {
		inv, err := s.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv == nil {
			return &NotFoundError{Entity: "invoice", ID: string(id)}
		}
		if inv.Status != InvoiceRefundPending {
			return &StateTransitionError{
				Entity: "invoice",
				ID:     string(id),
				From:   string(inv.Status),
				To:     string(inv.Status),
				Reason: fmt.Sprintf("refund amount can only be set while the invoice is %s", InvoiceRefundPending),
			}
		}
		if amount.GreaterThan(inv.Amount) {
			return &ValidationError{Field: "amount", Message: "must not exceed the invoice amount"}
		}
		inv.RefundAmount = amount
		inv.UpdatedAt = d.now()
		updated = *inv
		return s.SaveInvoice(ctx, *inv)
	}, zap.String("invoice_id", string(id)))
	if err != nil {
		return nil, err
	}

	d.record(ctx, actor, AuditRefundAmountDecided, "invoice", string(id),
		fmt.Sprintf("refund amount for invoice %s set to %s", id, amount.StringFixed(MoneyPlaces)),
		map[string]string{"refund_amount": amount.StringFixed(MoneyPlaces)})
	return &updated, nil
}

// =============================================================================
// PROCESS
// =============================================================================

// ProcessRefund finalizes the refund of an invoice.
//
// Rows are locked appointment first, then invoice, in the same order as
// CancelAppointment. The unlocked first read only finds the appointment;
// status checks use the locked re-read.
func (d *RefundDesk) ProcessRefund(ctx context.Context, actor Actor, id InvoiceID) (*RefundConfirmation, error) {
	if !actor.IsAdmin() {
		return nil, &UnauthorizedError{ActorID: actor.ID, Action: "process refunds"}
	}

	peek, err := d.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, d.persistenceFailure("process refund", err, zap.String("invoice_id", string(id)))
	}
	if peek == nil {
		return nil, &NotFoundError{Entity: "invoice", ID: string(id)}
	}

	var conf *RefundConfirmation
	err = d.inTx(ctx, "process refund", func(s Store) error {
		var appt *Appointment
		if peek.AppointmentID != nil {
			var err error
			if appt, err = s.GetAppointment(ctx, *peek.AppointmentID); err != nil {
				return err
			}
		}

		inv, err := s.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv == nil {
			return &NotFoundError{Entity: "invoice", ID: string(id)}
		}
		if !sameAppointment(inv.AppointmentID, peek.AppointmentID) {
			return fmt.Errorf("invoice %s was moved to another appointment during refund", id)
		}
		if !inv.Status.CanTransitionTo(InvoiceRefunded) {
			return &StateTransitionError{
				Entity: "invoice",
				ID:     string(id),
				From:   string(inv.Status),
				To:     string(InvoiceRefunded),
				Reason: fmt.Sprintf("only %s or %s invoices can be refunded (invoice is %s)",
					InvoiceRefundPending, InvoiceSuccess, inv.Status),
			}
		}

		now := d.now()
		inv.Status = InvoiceRefunded
		inv.UpdatedAt = now
		if err := s.SaveInvoice(ctx, *inv); err != nil {
			return err
		}

		conf = &RefundConfirmation{
			InvoiceID:     inv.ID,
			InvoiceStatus: inv.Status,
			ActualRefund:  RoundMoney(ActualRefund(inv.Amount, inv.RefundAmount)),
			Message:       "Refund processed.",
		}

		if inv.AppointmentID == nil {
			return nil
		}
		if appt == nil {
			d.logger.Warn("refunded invoice references a missing appointment",
				zap.String("invoice_id", string(id)),
				zap.String("appointment_id", string(*inv.AppointmentID)))
			return nil
		}
		if closeForRefund(appt) {
			appt.UpdatedAt = now
			if err := s.SaveAppointment(ctx, *appt); err != nil {
				return err
			}
		}
		apptID, st := appt.ID, appt.Status
		conf.AppointmentID = &apptID
		conf.AppointmentStatus = &st
		return nil
	}, zap.String("invoice_id", string(id)))
	if err != nil {
		return nil, err
	}

	payload := map[string]string{"actual_refund": conf.ActualRefund.StringFixed(MoneyPlaces)}
	if conf.AppointmentID != nil {
		payload["appointment_id"] = string(*conf.AppointmentID)
	}
	d.record(ctx, actor, AuditRefundProcessed, "invoice", string(id),
		fmt.Sprintf("refund of %s processed for invoice %s", conf.ActualRefund.StringFixed(MoneyPlaces), id),
		payload)
	return conf, nil
}

func sameAppointment(a, b *AppointmentID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// closeForRefund moves a refunded booking's appointment to Cancelled and
// reports whether it changed. Terminal appointments are left as they are.
func closeForRefund(appt *Appointment) bool {
	switch appt.Status {
	case AppointmentPending, AppointmentConfirmed, AppointmentRefundPending:
		appt.Status = AppointmentCancelled
		return true
	case AppointmentCancelled, AppointmentCompleted, AppointmentRefunded:
		return false
	default:
		panic(fmt.Sprintf("billing: unknown appointment status %q", string(appt.Status)))
	}
}
