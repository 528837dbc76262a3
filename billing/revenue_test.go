package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/consult-ledger/billing"
)

func TestComputeRevenue_PaidBooking_SplitsBasePrice(t *testing.T) {
	// GIVEN: A paid booking of 220.00 (base 200 + 10% markup)
	f := newFixture(t)
	f.appointment("appt-1", lawyer.ID, billing.AppointmentCompleted, 0)
	f.bookingInvoice("inv-1", "appt-1", "220.00", "0", billing.InvoiceSuccess, now)

	// WHEN: Computing all-time revenue
	sum, err := f.aggregator.ComputeRevenue(f.ctx, billing.PeriodAll, billing.Page{})

	// THEN: Fee and commission are taken on the 200.00 base
	require.NoError(t, err)
	assertMoney(t, "220.00", sum.BookingGross)
	assertMoney(t, "20.00", sum.ServiceFeeTotal)
	assertMoney(t, "40.00", sum.CommissionTotal)
	assertMoney(t, "60.00", sum.BookingNet)
	assertMoney(t, "60.00", sum.TotalNetRevenue)
	assertMoney(t, "0.00", sum.SubscriptionRevenue)

	require.Len(t, sum.Transactions, 1)
	assert.Equal(t, billing.PaymentBooking, sum.Transactions[0].PaymentType)
	assertMoney(t, "60.00", sum.Transactions[0].NetAmount)
}

func TestComputeRevenue_RefundedBooking_KeepsFeeWithoutCommission(t *testing.T) {
	// GIVEN: A 220.00 booking refunded with 100.00 returned
	f := newFixture(t)
	f.appointment("appt-1", lawyer.ID, billing.AppointmentCancelled, 0)
	f.bookingInvoice("inv-1", "appt-1", "220.00", "100.00", billing.InvoiceRefunded, now)

	sum, err := f.aggregator.ComputeRevenue(f.ctx, billing.PeriodAll, billing.Page{})

	// THEN: The kept 120.00 counts as service fee and net, not commission
	require.NoError(t, err)
	assertMoney(t, "120.00", sum.ServiceFeeTotal)
	assertMoney(t, "120.00", sum.BookingNet)
	assertMoney(t, "120.00", sum.TotalNetRevenue)
	assertMoney(t, "0.00", sum.CommissionTotal)
	assertMoney(t, "0.00", sum.BookingGross)
	assertMoney(t, "120.00", sum.Transactions[0].NetAmount)
}

func TestComputeRevenue_Subscription_CountsWholeAmount(t *testing.T) {
	f := newFixture(t)
	f.subscriptionInvoice("sub-1", lawyer.ID, "1100.00", billing.InvoiceSuccess, now)

	sum, err := f.aggregator.ComputeRevenue(f.ctx, billing.PeriodAll, billing.Page{})

	require.NoError(t, err)
	assertMoney(t, "1100.00", sum.SubscriptionRevenue)
	assertMoney(t, "1100.00", sum.TotalNetRevenue)
	assertMoney(t, "0.00", sum.BookingGross)
	assertMoney(t, "0.00", sum.BookingNet)
	assertMoney(t, "0.00", sum.ServiceFeeTotal)
	assertMoney(t, "0.00", sum.CommissionTotal)
	assert.Equal(t, billing.PaymentSubscription, sum.Transactions[0].PaymentType)
}

func TestComputeRevenue_UnsettledInvoices_NotListed(t *testing.T) {
	// GIVEN: Invoices that are not recognized revenue
	f := newFixture(t)
	f.appointment("a1", lawyer.ID, billing.AppointmentRefundPending, 0)
	f.bookingInvoice("pending-refund", "a1", "220.00", "0", billing.InvoiceRefundPending, now)
	f.appointment("a2", lawyer.ID, billing.AppointmentCancelled, 1)
	f.bookingInvoice("cancelled", "a2", "220.00", "0", billing.InvoiceCancelled, now)
	f.subscriptionInvoice("sub-pending", lawyer.ID, "1100.00", billing.InvoicePending, now)
	f.subscriptionInvoice("sub-failed", lawyer.ID, "1100.00", billing.InvoiceFailed, now)

	sum, err := f.aggregator.ComputeRevenue(f.ctx, billing.PeriodAll, billing.Page{})

	// THEN: Every total is zero and no row is listed
	require.NoError(t, err)
	assertMoney(t, "0.00", sum.TotalNetRevenue)
	assertMoney(t, "0.00", sum.SubscriptionRevenue)
	assertMoney(t, "0.00", sum.ServiceFeeTotal)
	assert.Equal(t, 0, sum.TotalTransactions)
	assert.Empty(t, sum.Transactions)
}

func TestComputeRevenue_RefundedSubscription_RowNetWithoutRevenue(t *testing.T) {
	// GIVEN: A refunded 1100.00 subscription with no decided refund amount
	f := newFixture(t)
	f.subscriptionInvoice("sub-refunded", lawyer.ID, "1100.00", billing.InvoiceRefunded, now)

	sum, err := f.aggregator.ComputeRevenue(f.ctx, billing.PeriodAll, billing.Page{})

	// THEN: The row shows amount - refund amount, the totals count nothing
	require.NoError(t, err)
	require.Len(t, sum.Transactions, 1)
	assert.Equal(t, billing.PaymentSubscription, sum.Transactions[0].PaymentType)
	assertMoney(t, "1100.00", sum.Transactions[0].NetAmount)
	assertMoney(t, "0.00", sum.SubscriptionRevenue)
	assertMoney(t, "0.00", sum.TotalNetRevenue)
}

func TestRowNet(t *testing.T) {
	booking := func(amount, refund string, status billing.InvoiceStatus) billing.InvoiceView {
		return billing.InvoiceView{
			Invoice:   billing.Invoice{Amount: billing.MustMoney(amount), RefundAmount: billing.MustMoney(refund), Status: status},
			PayerRole: billing.RoleCustomer,
		}
	}
	subscription := booking("1100.00", "100.00", billing.InvoiceRefunded)
	subscription.PayerRole = billing.RoleLawyer

	assertMoney(t, "60.00", billing.RowNet(booking("220.00", "0", billing.InvoiceSuccess)))
	assertMoney(t, "120.00", billing.RowNet(booking("220.00", "100.00", billing.InvoiceRefunded)))
	assertMoney(t, "1000.00", billing.RowNet(subscription))
	assertMoney(t, "0.00", billing.RowNet(booking("220.00", "0", billing.InvoiceRefundPending)))
}

func TestComputeRevenue_MixedLedger_TotalsAddUp(t *testing.T) {
	f := newFixture(t)
	f.appointment("a1", lawyer.ID, billing.AppointmentCompleted, 0)
	f.bookingInvoice("b1", "a1", "220.00", "0", billing.InvoiceSuccess, now)
	f.appointment("a2", lawyer.ID, billing.AppointmentCancelled, 1)
	f.bookingInvoice("b2", "a2", "220.00", "100.00", billing.InvoiceRefunded, now)
	f.subscriptionInvoice("s1", lawyer.ID, "1100.00", billing.InvoiceSuccess, now)

	sum, err := f.aggregator.ComputeRevenue(f.ctx, billing.PeriodAll, billing.Page{})

	require.NoError(t, err)
	assertMoney(t, "1100.00", sum.SubscriptionRevenue)
	assertMoney(t, "220.00", sum.BookingGross)
	assertMoney(t, "140.00", sum.ServiceFeeTotal)
	assertMoney(t, "40.00", sum.CommissionTotal)
	assertMoney(t, "180.00", sum.BookingNet)
	assertMoney(t, "1280.00", sum.TotalNetRevenue)
}

func TestComputeRevenue_RoundsToCents(t *testing.T) {
	// GIVEN: 100.00 gross, whose base is 90.9090...
	f := newFixture(t)
	f.appointment("a1", lawyer.ID, billing.AppointmentCompleted, 0)
	f.bookingInvoice("b1", "a1", "100.00", "0", billing.InvoiceSuccess, now)

	sum, err := f.aggregator.ComputeRevenue(f.ctx, billing.PeriodAll, billing.Page{})

	require.NoError(t, err)
	assertMoney(t, "9.09", sum.ServiceFeeTotal)
	assertMoney(t, "18.18", sum.CommissionTotal)
	assertMoney(t, "27.27", sum.BookingNet)
	assert.Equal(t, "27.27", sum.TotalNetRevenue.String())
}

func TestComputeRevenue_PeriodWindows(t *testing.T) {
	// GIVEN: Subscriptions created today, earlier this month, earlier this
	// year, and last year (now = 2026-03-15)
	f := newFixture(t)
	f.subscriptionInvoice("today", lawyer.ID, "1.00", billing.InvoiceSuccess, now.Add(-2*time.Hour))
	f.subscriptionInvoice("this-month", lawyer.ID, "10.00", billing.InvoiceSuccess, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	f.subscriptionInvoice("this-year", lawyer.ID, "100.00", billing.InvoiceSuccess, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	f.subscriptionInvoice("last-year", lawyer.ID, "1000.00", billing.InvoiceSuccess, time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC))
	f.subscriptionInvoice("tomorrow", lawyer.ID, "5000.00", billing.InvoiceSuccess, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC))

	cases := []struct {
		period billing.Period
		want   string
		rows   int
	}{
		{billing.PeriodDay, "1.00", 1},
		{billing.PeriodMonth, "5011.00", 3},
		{billing.PeriodYear, "5111.00", 4},
		{billing.PeriodAll, "6111.00", 5},
	}
	for _, tc := range cases {
		t.Run(string(tc.period), func(t *testing.T) {
			sum, err := f.aggregator.ComputeRevenue(f.ctx, tc.period, billing.Page{})
			require.NoError(t, err)
			assertMoney(t, tc.want, sum.SubscriptionRevenue)
			assert.Equal(t, tc.rows, sum.TotalTransactions)
		})
	}
}

func TestComputeRevenue_TransactionsNewestFirstAndPaginated(t *testing.T) {
	f := newFixture(t)
	for i, id := range []billing.InvoiceID{"s1", "s2", "s3", "s4", "s5"} {
		f.subscriptionInvoice(id, lawyer.ID, "10.00", billing.InvoiceSuccess, now.Add(-time.Duration(5-i)*time.Hour))
	}

	first, err := f.aggregator.ComputeRevenue(f.ctx, billing.PeriodAll, billing.Page{Number: 1, Size: 2})
	require.NoError(t, err)
	last, err := f.aggregator.ComputeRevenue(f.ctx, billing.PeriodAll, billing.Page{Number: 3, Size: 2})
	require.NoError(t, err)
	beyond, err := f.aggregator.ComputeRevenue(f.ctx, billing.PeriodAll, billing.Page{Number: 9, Size: 2})
	require.NoError(t, err)

	require.Len(t, first.Transactions, 2)
	assert.Equal(t, billing.InvoiceID("s5"), first.Transactions[0].ID)
	assert.Equal(t, billing.InvoiceID("s4"), first.Transactions[1].ID)
	require.Len(t, last.Transactions, 1)
	assert.Equal(t, billing.InvoiceID("s1"), last.Transactions[0].ID)
	assert.Empty(t, beyond.Transactions)

	// Totals ignore pagination
	assertMoney(t, "50.00", first.TotalNetRevenue)
	assert.Equal(t, 5, first.TotalTransactions)
}

func TestComputeRevenue_PayerRoleResolvedAtReadTime(t *testing.T) {
	// GIVEN: A subscription invoice whose owner later became a customer
	f := newFixture(t)
	f.subscriptionInvoice("s1", lawyer.ID, "220.00", billing.InvoiceSuccess, now)
	u := f.user(lawyer.ID, billing.RoleCustomer)
	require.Equal(t, billing.RoleCustomer, u.Role)

	sum, err := f.aggregator.ComputeRevenue(f.ctx, billing.PeriodAll, billing.Page{})

	// THEN: The current role classifies it
	require.NoError(t, err)
	assertMoney(t, "0.00", sum.SubscriptionRevenue)
	assertMoney(t, "60.00", sum.BookingNet)
}

func TestComputeRevenue_UnknownPeriod_InvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.aggregator.ComputeRevenue(f.ctx, billing.Period("week"), billing.Page{})

	assert.ErrorIs(t, err, billing.ErrInvalidInput)
}

func TestComputeRevenue_DefaultsPageSize(t *testing.T) {
	f := newFixture(t)

	sum, err := f.aggregator.ComputeRevenue(f.ctx, "", billing.Page{Size: 1000})

	require.NoError(t, err)
	assert.Equal(t, billing.PeriodAll, sum.Period)
	assert.Equal(t, billing.MaxPageSize, sum.Page.Size)
	assert.Equal(t, 1, sum.Page.Number)
	assert.NotNil(t, sum.Transactions)
}
