package billing_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/consult-ledger/billing"
)

// =============================================================================
// LIST REFUND REQUESTS
// =============================================================================

func TestListRefundRequests_NoDecidedAmount_SuggestsBasePrice(t *testing.T) {
	f := newFixture(t)
	f.appointment("appt-1", lawyer.ID, billing.AppointmentRefundPending, 0)
	f.bookingInvoice("inv-1", "appt-1", "220.00", "0", billing.InvoiceRefundPending, now)

	reqs, err := f.refunds.ListRefundRequests(f.ctx)

	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assertMoney(t, "200.00", reqs[0].SuggestedRefund)
	assertMoney(t, "20.00", reqs[0].PlatformKeptFee)
	require.NotNil(t, reqs[0].Appointment)
	assert.Equal(t, "slot-appt-1", reqs[0].Appointment.SlotID)
	assert.Equal(t, billing.RoleCustomer, reqs[0].Invoice.PayerRole)
	assert.Equal(t, string(customer.ID)+"@example.com", reqs[0].Invoice.PayerEmail)
}

func TestListRefundRequests_DecidedAmount_UsedAsIs(t *testing.T) {
	f := newFixture(t)
	f.appointment("appt-1", lawyer.ID, billing.AppointmentRefundPending, 0)
	f.bookingInvoice("inv-1", "appt-1", "220.00", "150.00", billing.InvoiceRefundPending, now)

	reqs, err := f.refunds.ListRefundRequests(f.ctx)

	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assertMoney(t, "150.00", reqs[0].SuggestedRefund)
	assertMoney(t, "70.00", reqs[0].PlatformKeptFee)
}

func TestListRefundRequests_OnlyPending_NewestFirst(t *testing.T) {
	f := newFixture(t)
	f.appointment("a1", lawyer.ID, billing.AppointmentRefundPending, 0)
	f.bookingInvoice("old", "a1", "110.00", "0", billing.InvoiceRefundPending, now.Add(-3*time.Hour))
	f.appointment("a2", lawyer.ID, billing.AppointmentRefundPending, 1)
	f.bookingInvoice("new", "a2", "110.00", "0", billing.InvoiceRefundPending, now.Add(-1*time.Hour))
	f.appointment("a3", lawyer.ID, billing.AppointmentCompleted, 2)
	f.bookingInvoice("paid", "a3", "110.00", "0", billing.InvoiceSuccess, now)
	f.subscriptionInvoice("sub", lawyer.ID, "1100.00", billing.InvoiceRefundPending, now.Add(-2*time.Hour))

	reqs, err := f.refunds.ListRefundRequests(f.ctx)

	require.NoError(t, err)
	require.Len(t, reqs, 3)
	assert.Equal(t, billing.InvoiceID("new"), reqs[0].Invoice.ID)
	assert.Equal(t, billing.InvoiceID("sub"), reqs[1].Invoice.ID)
	assert.Equal(t, billing.InvoiceID("old"), reqs[2].Invoice.ID)
	assert.Nil(t, reqs[1].Appointment)
	assertMoney(t, "1000.00", reqs[1].SuggestedRefund)
}

// =============================================================================
// PROCESS REFUND
// =============================================================================

func TestProcessRefund_FromRefundPending_CancelsAppointment(t *testing.T) {
	// GIVEN: A cancelled-after-payment booking waiting for its refund
	f := newFixture(t)
	f.appointment("appt-1", lawyer.ID, billing.AppointmentRefundPending, 0)
	f.bookingInvoice("inv-1", "appt-1", "220.00", "0", billing.InvoiceRefundPending, now)

	// WHEN: An admin processes it
	conf, err := f.refunds.ProcessRefund(f.ctx, admin, "inv-1")

	// THEN: Invoice Refunded, appointment Cancelled (never Refunded)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceRefunded, conf.InvoiceStatus)
	require.NotNil(t, conf.AppointmentStatus)
	assert.Equal(t, billing.AppointmentCancelled, *conf.AppointmentStatus)
	assertMoney(t, "220.00", conf.ActualRefund)

	assert.Equal(t, billing.InvoiceRefunded, f.mustInvoice("inv-1").Status)
	assert.Equal(t, billing.AppointmentCancelled, f.mustAppointment("appt-1").Status)

	entries, err := f.store.Query(f.ctx, billing.AuditFilter{Actions: []billing.AuditAction{billing.AuditRefundProcessed}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "inv-1", entries[0].ResourceID)
	assert.Equal(t, "220.00", entries[0].Payload["actual_refund"])
}

func TestProcessRefund_FromSuccess_Allowed(t *testing.T) {
	f := newFixture(t)
	f.appointment("appt-1", lawyer.ID, billing.AppointmentConfirmed, 0)
	f.bookingInvoice("inv-1", "appt-1", "220.00", "0", billing.InvoiceSuccess, now)

	conf, err := f.refunds.ProcessRefund(f.ctx, admin, "inv-1")

	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceRefunded, conf.InvoiceStatus)
	assert.Equal(t, billing.AppointmentCancelled, f.mustAppointment("appt-1").Status)
}

func TestProcessRefund_CompletedAppointment_LeftTerminal(t *testing.T) {
	f := newFixture(t)
	f.appointment("appt-1", lawyer.ID, billing.AppointmentCompleted, 0)
	f.bookingInvoice("inv-1", "appt-1", "220.00", "0", billing.InvoiceSuccess, now)

	conf, err := f.refunds.ProcessRefund(f.ctx, admin, "inv-1")

	require.NoError(t, err)
	assert.Equal(t, billing.AppointmentCompleted, *conf.AppointmentStatus)
	assert.Equal(t, billing.AppointmentCompleted, f.mustAppointment("appt-1").Status)
}

func TestProcessRefund_DecidedAmount_IsActualRefund(t *testing.T) {
	f := newFixture(t)
	f.appointment("appt-1", lawyer.ID, billing.AppointmentRefundPending, 0)
	f.bookingInvoice("inv-1", "appt-1", "220.00", "0", billing.InvoiceRefundPending, now)

	_, err := f.refunds.DecideRefundAmount(f.ctx, admin, "inv-1", decimal.RequireFromString("100"))
	require.NoError(t, err)
	conf, err := f.refunds.ProcessRefund(f.ctx, admin, "inv-1")

	require.NoError(t, err)
	assertMoney(t, "100.00", conf.ActualRefund)

	sum, err := f.aggregator.ComputeRevenue(f.ctx, billing.PeriodAll, billing.Page{})
	require.NoError(t, err)
	assertMoney(t, "120.00", sum.TotalNetRevenue)
	assertMoney(t, "0.00", sum.CommissionTotal)
}

func TestProcessRefund_OtherStatuses_Rejected(t *testing.T) {
	for _, status := range []billing.InvoiceStatus{
		billing.InvoicePending,
		billing.InvoiceFailed,
		billing.InvoiceCancelled,
		billing.InvoiceRefunded,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			f.appointment("appt-1", lawyer.ID, billing.AppointmentConfirmed, 0)
			f.bookingInvoice("inv-1", "appt-1", "220.00", "0", status, now)

			_, err := f.refunds.ProcessRefund(f.ctx, admin, "inv-1")

			assert.ErrorIs(t, err, billing.ErrInvalidStateTransition)
			assert.Equal(t, status, f.mustInvoice("inv-1").Status)
			assert.Equal(t, billing.AppointmentConfirmed, f.mustAppointment("appt-1").Status)
		})
	}
}

func TestProcessRefund_StoreFailure_RolledBackEntirely(t *testing.T) {
	// GIVEN: A pending refund and a store that fails on the appointment write
	f := newFixture(t)
	f.appointment("appt-1", lawyer.ID, billing.AppointmentRefundPending, 0)
	f.bookingInvoice("inv-1", "appt-1", "220.00", "0", billing.InvoiceRefundPending, now)
	f.store.FailOn("SaveAppointment", errors.New("connection reset"))

	// WHEN: Processing the refund
	_, err := f.refunds.ProcessRefund(f.ctx, admin, "inv-1")
	f.store.FailOn("SaveAppointment", nil)

	// THEN: Generic error, the invoice write is undone and nothing is audited
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrPersistenceFailure)
	assert.Equal(t, "internal error: could not process refund", err.Error())
	assert.Equal(t, billing.InvoiceRefundPending, f.mustInvoice("inv-1").Status)
	assert.Equal(t, billing.AppointmentRefundPending, f.mustAppointment("appt-1").Status)
	assert.Empty(t, f.auditActions())
}

func TestProcessRefund_Missing_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.refunds.ProcessRefund(f.ctx, admin, "nope")

	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func TestProcessRefund_NonAdmin_Unauthorized(t *testing.T) {
	f := newFixture(t)
	f.appointment("appt-1", lawyer.ID, billing.AppointmentRefundPending, 0)
	f.bookingInvoice("inv-1", "appt-1", "220.00", "0", billing.InvoiceRefundPending, now)

	_, err := f.refunds.ProcessRefund(f.ctx, customer, "inv-1")

	assert.ErrorIs(t, err, billing.ErrUnauthorized)
	assert.Equal(t, billing.InvoiceRefundPending, f.mustInvoice("inv-1").Status)
}

// =============================================================================
// DECIDE REFUND AMOUNT
// =============================================================================

func TestDecideRefundAmount_Validation(t *testing.T) {
	f := newFixture(t)
	f.appointment("appt-1", lawyer.ID, billing.AppointmentRefundPending, 0)
	f.bookingInvoice("inv-1", "appt-1", "220.00", "0", billing.InvoiceRefundPending, now)
	f.appointment("appt-2", lawyer.ID, billing.AppointmentConfirmed, 1)
	f.bookingInvoice("inv-2", "appt-2", "220.00", "0", billing.InvoiceSuccess, now)

	_, err := f.refunds.DecideRefundAmount(f.ctx, admin, "inv-1", decimal.RequireFromString("220.01"))
	assert.ErrorIs(t, err, billing.ErrInvalidInput)

	_, err = f.refunds.DecideRefundAmount(f.ctx, admin, "inv-1", decimal.Zero)
	assert.ErrorIs(t, err, billing.ErrInvalidInput)

	_, err = f.refunds.DecideRefundAmount(f.ctx, admin, "inv-2", decimal.RequireFromString("10"))
	assert.ErrorIs(t, err, billing.ErrInvalidStateTransition)

	_, err = f.refunds.DecideRefundAmount(f.ctx, lawyer, "inv-1", decimal.RequireFromString("10"))
	assert.ErrorIs(t, err, billing.ErrUnauthorized)

	inv, err := f.refunds.DecideRefundAmount(f.ctx, admin, "inv-1", decimal.RequireFromString("220"))
	require.NoError(t, err)
	assertMoney(t, "220.00", inv.RefundAmount)
	assertMoney(t, "220.00", f.mustInvoice("inv-1").RefundAmount)
}

// =============================================================================
// END TO END
// =============================================================================

func TestRefundFlow_CancelPaidBooking_ThroughToRevenue(t *testing.T) {
	// GIVEN: A paid 220.00 booking
	f := newFixture(t)
	f.appointment("appt-1", lawyer.ID, billing.AppointmentConfirmed, 0)
	f.bookingInvoice("inv-1", "appt-1", "220.00", "0", billing.InvoiceSuccess, now)

	// WHEN: The customer cancels, the suggestion is accepted, and the refund processed
	_, err := f.reconciler.CancelAppointment(f.ctx, "appt-1", customer, "changed my mind")
	require.NoError(t, err)

	reqs, err := f.refunds.ListRefundRequests(f.ctx)
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	_, err = f.refunds.DecideRefundAmount(f.ctx, admin, "inv-1", reqs[0].SuggestedRefund)
	require.NoError(t, err)
	conf, err := f.refunds.ProcessRefund(f.ctx, admin, "inv-1")
	require.NoError(t, err)

	// THEN: 200.00 returned, 20.00 kept as service fee
	assertMoney(t, "200.00", conf.ActualRefund)
	sum, err := f.aggregator.ComputeRevenue(f.ctx, billing.PeriodAll, billing.Page{})
	require.NoError(t, err)
	assertMoney(t, "20.00", sum.ServiceFeeTotal)
	assertMoney(t, "20.00", sum.TotalNetRevenue)
	assertMoney(t, "0.00", sum.CommissionTotal)

	remaining, err := f.refunds.ListRefundRequests(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	assert.Equal(t, []billing.AuditAction{
		billing.AuditRefundProcessed,
		billing.AuditRefundAmountDecided,
		billing.AuditAppointmentCancelled,
	}, f.auditActions())
}
