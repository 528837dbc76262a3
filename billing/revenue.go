/*
revenue.go - Revenue aggregator: platform earnings from invoice records

PURPOSE:
  Classifies every invoice created in a calendar window and sums what the
  platform recognizes as revenue. Read only; takes no locks and may miss
  or include a row whose status flips while the pass runs.

CLASSIFICATION (by payer role, resolved once by the store join):
  lawyer   + Success  -> subscription revenue, all of amount is net
  customer + Success  -> booking: base = amount / 1.1,
                         service fee = 10% of base, commission = 20% of base,
                         net = fee + commission
  customer + Refunded -> platform keeps amount - refund amount; counted as
                         service fee and booking net, never as commission
  lawyer   + Refunded -> nothing

  Only Success and Refunded invoices are listed. A row's net_amount follows
  RowNet, which differs from the totals for a refunded subscription: the
  row shows amount - refund amount while the totals count nothing.

SEE ALSO:
  - money.go: SplitBooking, KeptOnRefund
  - period.go: Calendar windows
*/
package billing

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page selects a slice of the transaction list. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

func (p Page) normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// RevenueSummary is the result of one revenue pass. Totals cover the whole
// window; Transactions holds only the requested page.
type RevenueSummary struct {
	Period Period
	Window Window

	SubscriptionRevenue decimal.Decimal
	BookingGross        decimal.Decimal
	BookingNet          decimal.Decimal
	ServiceFeeTotal     decimal.Decimal
	CommissionTotal     decimal.Decimal
	TotalNetRevenue     decimal.Decimal

	Transactions      []TransactionRow
	Page              Page
	TotalTransactions int
}

// TransactionRow is one invoice annotated with its derived type and net.
type TransactionRow struct {
	InvoiceView
	PaymentType PaymentType
	NetAmount   decimal.Decimal
}

// Contribution is what a single invoice adds to each accumulator.
type Contribution struct {
	Subscription decimal.Decimal
	BookingGross decimal.Decimal
	ServiceFee   decimal.Decimal
	Commission   decimal.Decimal
	BookingNet   decimal.Decimal
	Net          decimal.Decimal
}

// Contribute classifies one invoice.
func Contribute(v InvoiceView) Contribution {
	var c Contribution
	if !v.Status.IsRecognized() {
		return c
	}

	switch v.PayerRole {
	case RoleLawyer:
		if v.Status == InvoiceSuccess {
			c.Subscription = v.Amount
			c.Net = v.Amount
		}
	case RoleCustomer:
		switch v.Status {
		case InvoiceSuccess:
			split := SplitBooking(v.Amount)
			c.BookingGross = v.Amount
			c.ServiceFee = split.ServiceFee
			c.Commission = split.Commission
			c.BookingNet = split.Net
			c.Net = split.Net
		case InvoiceRefunded:
			kept := KeptOnRefund(v.Amount, v.RefundAmount)
			c.ServiceFee = kept
			c.BookingNet = kept
			c.Net = kept
		}
	case RoleAdmin:
	}
	return c
}

// RowNet is the net shown on a transaction row.
//
//	Refunded             -> amount - refund amount, any payer
//	Success subscription -> amount
//	Success booking      -> 30% of base
func RowNet(v InvoiceView) decimal.Decimal {
	switch v.Status {
	case InvoiceRefunded:
		return KeptOnRefund(v.Amount, v.RefundAmount)
	case InvoiceSuccess:
		switch v.PayerRole {
		case RoleLawyer:
			return v.Amount
		case RoleCustomer:
			return SplitBooking(v.Amount).Net
		}
	}
	return decimal.Zero
}

// Aggregator computes revenue summaries.
type Aggregator struct {
	engine
}

// NewAggregator creates an aggregator. Only the read side of store is used.
func NewAggregator(store TxStore, opts ...Option) *Aggregator {
	return &Aggregator{engine: newEngine(store, opts)}
}

// ComputeRevenue summarizes invoices created in the current calendar
// period.
func (a *Aggregator) ComputeRevenue(ctx context.Context, period Period, page Page) (*RevenueSummary, error) {
	period, err := ParsePeriod(string(period))
	if err != nil {
		return nil, err
	}
	page = page.normalize()
	window := period.WindowAt(a.now())

	views, err := a.store.ListInvoiceViews(ctx, InvoiceFilter{
		Window:   window,
		Statuses: []InvoiceStatus{InvoiceSuccess, InvoiceRefunded},
	})
	if err != nil {
		return nil, a.persistenceFailure("compute revenue", err)
	}

	summary := &RevenueSummary{
		Period:            period,
		Window:            window,
		Page:              page,
		TotalTransactions: len(views),
	}

	var totals Contribution
	rows := make([]TransactionRow, 0, len(views))
	for _, v := range views {
		c := Contribute(v)
		totals.Subscription = totals.Subscription.Add(c.Subscription)
		totals.BookingGross = totals.BookingGross.Add(c.BookingGross)
		totals.ServiceFee = totals.ServiceFee.Add(c.ServiceFee)
		totals.Commission = totals.Commission.Add(c.Commission)
		totals.BookingNet = totals.BookingNet.Add(c.BookingNet)
		totals.Net = totals.Net.Add(c.Net)

		rows = append(rows, TransactionRow{
			InvoiceView: v,
			PaymentType: PaymentTypeFor(v.PayerRole),
			NetAmount:   RoundMoney(RowNet(v)),
		})
	}

	summary.SubscriptionRevenue = RoundMoney(totals.Subscription)
	summary.BookingGross = RoundMoney(totals.BookingGross)
	summary.BookingNet = RoundMoney(totals.BookingNet)
	summary.ServiceFeeTotal = RoundMoney(totals.ServiceFee)
	summary.CommissionTotal = RoundMoney(totals.Commission)
	summary.TotalNetRevenue = RoundMoney(totals.Net)

	start := (page.Number - 1) * page.Size
	if start < len(rows) {
		end := start + page.Size
		if end > len(rows) {
			end = len(rows)
		}
		summary.Transactions = rows[start:end]
	} else {
		summary.Transactions = []TransactionRow{}
	}

	a.logger.Debug("revenue pass",
		zap.String("period", string(period)),
		zap.Int("invoices", len(views)),
	)
	return summary, nil
}
