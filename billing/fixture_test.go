package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/consult-ledger/billing"
	"github.com/warp/consult-ledger/billing/store"
)

// now is the fixed clock for every engine in these tests.
var now = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

var (
	admin    = billing.Actor{ID: "admin-1", Role: billing.RoleAdmin, Name: "Ada Admin"}
	customer = billing.Actor{ID: "cust-1", Role: billing.RoleCustomer, Name: "Carl Customer"}
	lawyer   = billing.Actor{ID: "law-1", Role: billing.RoleLawyer, Name: "Lena Lawyer"}
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *store.Memory

	reconciler *billing.Reconciler
	aggregator *billing.Aggregator
	refunds    *billing.RefundDesk
	accounts   *billing.Accounts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	opts := []billing.Option{
		billing.WithLogger(zap.NewNop()),
		billing.WithAuditLog(mem),
		billing.WithClock(func() time.Time { return now }),
	}
	f := &fixture{
		t:          t,
		ctx:        context.Background(),
		store:      mem,
		reconciler: billing.NewReconciler(mem, opts...),
		aggregator: billing.NewAggregator(mem, opts...),
		refunds:    billing.NewRefundDesk(mem, opts...),
		accounts:   billing.NewAccounts(mem, opts...),
	}
	f.user(admin.ID, billing.RoleAdmin)
	f.user(customer.ID, billing.RoleCustomer)
	f.user(lawyer.ID, billing.RoleLawyer)
	return f
}

func (f *fixture) user(id billing.UserID, role billing.Role) billing.User {
	f.t.Helper()
	u := billing.User{
		ID:        id,
		Name:      string(id),
		Email:     string(id) + "@example.com",
		Role:      role,
		Active:    true,
		CreatedAt: now.AddDate(-1, 0, 0),
	}
	require.NoError(f.t, f.store.SaveUser(f.ctx, u))
	return u
}

// appointment stores an appointment between customer and lawyerID.
// startOffset orders appointments of the same lawyer.
func (f *fixture) appointment(id billing.AppointmentID, lawyerID billing.UserID, status billing.AppointmentStatus, startOffset int) billing.Appointment {
	f.t.Helper()
	a := billing.Appointment{
		ID:              id,
		Status:          status,
		SlotID:          "slot-" + string(id),
		CustomerID:      customer.ID,
		LawyerID:        lawyerID,
		StartsAt:        now.Add(time.Duration(24+startOffset) * time.Hour),
		DurationMinutes: 60,
		Note:            "initial consultation",
		CommissionFee:   decimal.RequireFromString("40.00"),
		CreatedAt:       now.Add(-48 * time.Hour),
		UpdatedAt:       now.Add(-48 * time.Hour),
	}
	require.NoError(f.t, f.store.SaveAppointment(f.ctx, a))
	return a
}

func (f *fixture) bookingInvoice(id billing.InvoiceID, apptID billing.AppointmentID, amount, refund string, status billing.InvoiceStatus, createdAt time.Time) billing.Invoice {
	f.t.Helper()
	appt := apptID
	inv := billing.Invoice{
		ID:            id,
		UserID:        customer.ID,
		AppointmentID: &appt,
		Amount:        billing.MustMoney(amount),
		RefundAmount:  billing.MustMoney(refund),
		Status:        status,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	require.NoError(f.t, f.store.SaveInvoice(f.ctx, inv))
	return inv
}

func (f *fixture) subscriptionInvoice(id billing.InvoiceID, owner billing.UserID, amount string, status billing.InvoiceStatus, createdAt time.Time) billing.Invoice {
	f.t.Helper()
	sub := "plan-gold"
	inv := billing.Invoice{
		ID:             id,
		UserID:         owner,
		SubscriptionID: &sub,
		Amount:         billing.MustMoney(amount),
		Status:         status,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	require.NoError(f.t, f.store.SaveInvoice(f.ctx, inv))
	return inv
}

func (f *fixture) mustAppointment(id billing.AppointmentID) billing.Appointment {
	f.t.Helper()
	a, err := f.store.GetAppointment(f.ctx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, a)
	return *a
}

func (f *fixture) mustInvoice(id billing.InvoiceID) billing.Invoice {
	f.t.Helper()
	inv, err := f.store.GetInvoice(f.ctx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, inv)
	return *inv
}

func (f *fixture) auditActions() []billing.AuditAction {
	f.t.Helper()
	entries, err := f.store.Query(f.ctx, billing.AuditFilter{})
	require.NoError(f.t, err)
	out := make([]billing.AuditAction, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2), msgAndArgs...)
}
