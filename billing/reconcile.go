/*
reconcile.go - Reconciliation engine: joint appointment/invoice cancellation

PURPOSE:
  Whenever something cancels an appointment (customer or lawyer cancel,
  admin force-cancel, account deactivation) the appointment and its paired
  invoice must land in a consistent joint state, in one transaction.

JOINT OUTCOMES:
  invoice Success            -> invoice Refund_Pending, appointment Refund_Pending
  no invoice / not paid yet  -> invoice Cancelled (if any), appointment Cancelled

  Only Pending and Confirmed appointments can be cancelled. Terminal ones
  are rejected, and so is Refund_Pending: it already is the result of a
  cancellation and only moves on through RefundDesk.ProcessRefund.

CONCURRENCY:
  The open-state check and the writes happen inside WithTx on rows the
  store holds exclusively, so of two racing cancels exactly one succeeds;
  the other sees the new state and fails with InvalidStateTransition.

AUDIT:
  Written after commit, best effort. A failing audit sink never undoes a
  committed cancellation.

SEE ALSO:
  - accounts.go: DeactivateAccount reuses cascadeInTx
  - refund.go: The Refund_Pending follow-up
*/
package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CascadeNote is appended to the note of every appointment cancelled
// because its lawyer's account was deactivated.
const CascadeNote = "[system] Cancelled automatically: the lawyer's account was deactivated."

// CancelResult is the joint outcome of one cancellation.
type CancelResult struct {
	AppointmentID     AppointmentID
	AppointmentStatus AppointmentStatus
	InvoiceID         *InvoiceID
	InvoiceStatus     *InvoiceStatus
	Message           string
}

// RefundPending reports whether the customer is now owed a refund.
func (r CancelResult) RefundPending() bool {
	return r.AppointmentStatus == AppointmentRefundPending
}

// Reconciler applies cancellation events.
type Reconciler struct {
	engine
}

// NewReconciler creates a reconciler over store.
func NewReconciler(store TxStore, opts ...Option) *Reconciler {
	return &Reconciler{engine: newEngine(store, opts)}
}

// =============================================================================
// CANCEL APPOINTMENT
// =============================================================================

// CancelAppointment cancels one appointment on behalf of actor.
// The actor must be the appointment's customer or lawyer, or an admin.
func (r *Reconciler) CancelAppointment(ctx context.Context, id AppointmentID, actor Actor, reason string) (*CancelResult, error) {
	var result *CancelResult
	var from AppointmentStatus

	err := r.inTx(ctx, "cancel appointment", func(s Store) error {
		appt, err := s.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if appt == nil {
			return &NotFoundError{Entity: "appointment", ID: string(id)}
		}
		if err := authorizeCancel(actor, *appt); err != nil {
			return err
		}

		inv, err := s.GetInvoiceByAppointment(ctx, id)
		if err != nil {
			return err
		}

		from = appt.Status
		note := ""
		if reason = strings.TrimSpace(reason); reason != "" {
			note = fmt.Sprintf("Cancelled by %s: %s", actor.Role, reason)
		}
		result, err = cancelPair(ctx, s, *appt, inv, note, r.now())
		return err
	}, zap.String("appointment_id", string(id)))
	if err != nil {
		return nil, err
	}

	payload := map[string]string{
		"from":   string(from),
		"to":     string(result.AppointmentStatus),
		"reason": reason,
	}
	if result.InvoiceID != nil {
		payload["invoice_id"] = string(*result.InvoiceID)
		payload["invoice_status"] = string(*result.InvoiceStatus)
	}
	r.record(ctx, actor, AuditAppointmentCancelled, "appointment", string(id),
		fmt.Sprintf("%s %s cancelled appointment %s (%s -> %s)", actor.Role, actor.ID, id, from, result.AppointmentStatus),
		payload)

	return result, nil
}

func authorizeCancel(actor Actor, appt Appointment) error {
	switch actor.Role {
	case RoleAdmin:
		return nil
	case RoleCustomer:
		if appt.CustomerID == actor.ID {
			return nil
		}
	case RoleLawyer:
		if appt.LawyerID == actor.ID {
			return nil
		}
	}
	return &UnauthorizedError{
		ActorID: actor.ID,
		Action:  "cancel appointment " + string(appt.ID),
		Reason:  "you can only cancel your own appointments",
	}
}

// =============================================================================
// CASCADE CANCEL
// =============================================================================

// CascadeCancelForAccount cancels every open appointment of a lawyer in a
// single transaction and returns how many were cancelled. A second call
// finds nothing open and returns 0.
func (r *Reconciler) CascadeCancelForAccount(ctx context.Context, lawyerID UserID) (int, error) {
	var results []CancelResult

	err := r.inTx(ctx, "cascade cancel", func(s Store) error {
		user, err := s.GetUser(ctx, lawyerID)
		if err != nil {
			return err
		}
		if user == nil {
			return &NotFoundError{Entity: "user", ID: string(lawyerID)}
		}
		results, err = cascadeInTx(ctx, s, lawyerID, r.now(), r.logger)
		return err
	}, zap.String("lawyer_id", string(lawyerID)))
	if err != nil {
		return 0, err
	}

	if len(results) > 0 {
		r.record(ctx, SystemActor(), AuditCascadeCancelled, "user", string(lawyerID),
			fmt.Sprintf("cascade cancelled %d appointment(s) of lawyer %s", len(results), lawyerID),
			cascadePayload(results))
	}
	return len(results), nil
}

// cascadeInTx cancels all Pending/Confirmed appointments of lawyerID using
// the transaction-bound store s. One appointment that cannot be cancelled
// fails the whole cascade; it is logged so an operator can fix it.
func cascadeInTx(ctx context.Context, s Store, lawyerID UserID, now time.Time, logger *zap.Logger) ([]CancelResult, error) {
	appts, err := s.ListAppointments(ctx, AppointmentFilter{
		LawyerID: &lawyerID,
		Statuses: []AppointmentStatus{AppointmentPending, AppointmentConfirmed},
	})
	if err != nil {
		return nil, err
	}

	results := make([]CancelResult, 0, len(appts))
	for _, appt := range appts {
		inv, err := s.GetInvoiceByAppointment(ctx, appt.ID)
		if err != nil {
			return nil, err
		}
		res, err := cancelPair(ctx, s, appt, inv, CascadeNote, now)
		if err != nil {
			fields := []zap.Field{
				zap.String("lawyer_id", string(lawyerID)),
				zap.String("appointment_id", string(appt.ID)),
				zap.String("appointment_status", string(appt.Status)),
				zap.Error(err),
			}
			if inv != nil {
				fields = append(fields,
					zap.String("invoice_id", string(inv.ID)),
					zap.String("invoice_status", string(inv.Status)))
			}
			logger.Warn("cascade cancel stopped at appointment", fields...)
			return nil, err
		}
		results = append(results, *res)
	}
	return results, nil
}

func cascadePayload(results []CancelResult) map[string]string {
	ids := make([]string, len(results))
	refunds := 0
	for i, r := range results {
		ids[i] = string(r.AppointmentID)
		if r.RefundPending() {
			refunds++
		}
	}
	return map[string]string{
		"count":           fmt.Sprint(len(results)),
		"refunds_pending": fmt.Sprint(refunds),
		"appointments":    strings.Join(ids, ","),
	}
}

// =============================================================================
// JOINT TRANSITION
// =============================================================================

// cancelPair moves appt and its invoice (may be nil) to their joint
// cancelled state and persists both through s. All checks run before the
// first write.
func cancelPair(ctx context.Context, s Store, appt Appointment, inv *Invoice, note string, now time.Time) (*CancelResult, error) {
	if !appt.Status.IsCancellable() {
		reason := "cannot cancel an appointment already in a terminal state"
		if appt.Status == AppointmentRefundPending {
			reason = "a refund is already pending for this appointment"
		}
		return nil, &StateTransitionError{
			Entity: "appointment",
			ID:     string(appt.ID),
			From:   string(appt.Status),
			To:     string(AppointmentCancelled),
			Reason: reason,
		}
	}

	result := &CancelResult{AppointmentID: appt.ID}
	invoiceChanged := false

	if inv != nil && inv.Status == InvoiceSuccess {
		inv.Status = InvoiceRefundPending
		invoiceChanged = true
		appt.Status = AppointmentRefundPending
		result.Message = "Appointment cancelled. The payment was captured, so a refund is now pending."
	} else {
		if inv != nil {
			switch {
			case inv.Status == InvoiceCancelled:
			case inv.Status.CanTransitionTo(InvoiceCancelled):
				inv.Status = InvoiceCancelled
				invoiceChanged = true
			default:
				return nil, &StateTransitionError{
					Entity: "invoice",
					ID:     string(inv.ID),
					From:   string(inv.Status),
					To:     string(InvoiceCancelled),
					Reason: fmt.Sprintf("invoice %s is %s and cannot be cancelled", inv.ID, inv.Status),
				}
			}
		}
		appt.Status = AppointmentCancelled
		result.Message = "Appointment cancelled."
	}

	appt.Note = appendNote(appt.Note, note)
	appt.UpdatedAt = now
	if err := s.SaveAppointment(ctx, appt); err != nil {
		return nil, err
	}
	if invoiceChanged {
		inv.UpdatedAt = now
		if err := s.SaveInvoice(ctx, *inv); err != nil {
			return nil, err
		}
	}

	result.AppointmentStatus = appt.Status
	if inv != nil {
		id, st := inv.ID, inv.Status
		result.InvoiceID = &id
		result.InvoiceStatus = &st
	}
	return result, nil
}

func appendNote(note, suffix string) string {
	switch {
	case suffix == "":
		return note
	case note == "":
		return suffix
	default:
		return note + "\n" + suffix
	}
}
