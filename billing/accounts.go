package billing

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// =============================================================================
// ACCOUNT ADMINISTRATION
// =============================================================================

// DeactivationResult reports what deactivating an account changed.
type DeactivationResult struct {
	User      User
	Cancelled []CancelResult
}

// Accounts handles admin actions on users and their bookings.
type Accounts struct {
	engine
}

// NewAccounts creates the account administration service.
func NewAccounts(store TxStore, opts ...Option) *Accounts {
	return &Accounts{engine: newEngine(store, opts)}
}

// DeactivateAccount disables userID. For lawyers, every open appointment is
// cancelled in the same transaction as the account change.
func (a *Accounts) DeactivateAccount(ctx context.Context, actor Actor, userID UserID) (*DeactivationResult, error) {
	if err := requireAdminOnOther(actor, userID, "deactivate"); err != nil {
		return nil, err
	}

	result := &DeactivationResult{}
	err := a.inTx(ctx, "deactivate account", func(s Store) error {
		user, err := s.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return &NotFoundError{Entity: "user", ID: string(userID)}
		}

		if user.Active {
			user.Active = false
			if err := s.SaveUser(ctx, *user); err != nil {
				return err
			}
		}
		result.User = *user

		if user.Role != RoleLawyer {
			return nil
		}
		result.Cancelled, err = cascadeInTx(ctx, s, userID, a.now(), a.logger)
		return err
	}, zap.String("user_id", string(userID)))
	if err != nil {
		return nil, err
	}

	a.record(ctx, actor, AuditAccountDeactivated, "user", string(userID),
		fmt.Sprintf("account %s deactivated, %d appointment(s) cancelled", userID, len(result.Cancelled)),
		map[string]string{"cancelled": fmt.Sprint(len(result.Cancelled))})
	if len(result.Cancelled) > 0 {
		a.record(ctx, SystemActor(), AuditCascadeCancelled, "user", string(userID),
			fmt.Sprintf("cascade cancelled %d appointment(s) of lawyer %s", len(result.Cancelled), userID),
			cascadePayload(result.Cancelled))
	}
	return result, nil
}

// ReactivateAccount re-enables userID. Cancelled appointments stay
// cancelled.
func (a *Accounts) ReactivateAccount(ctx context.Context, actor Actor, userID UserID) (*User, error) {
	if err := requireAdminOnOther(actor, userID, "reactivate"); err != nil {
		return nil, err
	}

	var out User
	err := a.inTx(ctx, "reactivate account", func(s Store) error {
		user, err := s.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return &NotFoundError{Entity: "user", ID: string(userID)}
		}
		user.Active = true
		out = *user
		return s.SaveUser(ctx, *user)
	}, zap.String("user_id", string(userID)))
	if err != nil {
		return nil, err
	}

	a.record(ctx, actor, AuditAccountReactivated, "user", string(userID),
		fmt.Sprintf("account %s reactivated", userID), nil)
	return &out, nil
}

// PurgeAppointment physically deletes an appointment together with its
// invoice. Admin only.
func (a *Accounts) PurgeAppointment(ctx context.Context, actor Actor, id AppointmentID) error {
	if !actor.IsAdmin() {
		return &UnauthorizedError{ActorID: actor.ID, Action: "purge appointments"}
	}

	var invoiceID InvoiceID
	err := a.inTx(ctx, "purge appointment", func(s Store) error {
		appt, err := s.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if appt == nil {
			return &NotFoundError{Entity: "appointment", ID: string(id)}
		}
		inv, err := s.GetInvoiceByAppointment(ctx, id)
		if err != nil {
			return err
		}
		if inv != nil {
			invoiceID = inv.ID
			if err := s.DeleteInvoice(ctx, inv.ID); err != nil {
				return err
			}
		}
		return s.DeleteAppointment(ctx, id)
	}, zap.String("appointment_id", string(id)))
	if err != nil {
		return err
	}

	a.record(ctx, actor, AuditAppointmentPurged, "appointment", string(id),
		fmt.Sprintf("appointment %s purged", id),
		map[string]string{"invoice_id": string(invoiceID)})
	return nil
}

func requireAdminOnOther(actor Actor, target UserID, verb string) error {
	if !actor.IsAdmin() {
		return &UnauthorizedError{ActorID: actor.ID, Action: verb + " accounts"}
	}
	if actor.ID == target {
		return &UnauthorizedError{
			ActorID: actor.ID,
			Action:  verb + " own account",
			Reason:  fmt.Sprintf("you cannot %s your own account", verb),
		}
	}
	return nil
}
