/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the billing domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Every amount is a string with exactly two decimals ("220.00"). Clients
  never see floats.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/consult-ledger/billing"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CancelRequest is the body of POST /appointments/{id}/cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// RefundAmountRequest is the body of PUT /admin/refunds/{id}/amount.
type RefundAmountRequest struct {
	Amount string `json:"amount"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type UserDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type AppointmentDTO struct {
	ID              string    `json:"id"`
	Status          string    `json:"status"`
	SlotID          string    `json:"slot_id,omitempty"`
	CustomerID      string    `json:"customer_id"`
	LawyerID        string    `json:"lawyer_id"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Note            string    `json:"note"`
	CommissionFee   string    `json:"commission_fee"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type InvoiceDTO struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	AppointmentID  *string   `json:"appointment_id"`
	SubscriptionID *string   `json:"subscription_id"`
	Amount         string    `json:"amount"`
	RefundAmount   string    `json:"refund_amount"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TransactionDTO is one row of the revenue transaction list.
type TransactionDTO struct {
	InvoiceDTO
	PayerName   string `json:"payer_name"`
	PayerEmail  string `json:"payer_email"`
	PayerRole   string `json:"payer_role"`
	PaymentType string `json:"payment_type"`
	NetAmount   string `json:"net_amount"`
}

// CancelResponse is the joint outcome of a cancellation.
type CancelResponse struct {
	AppointmentID     string  `json:"appointment_id"`
	AppointmentStatus string  `json:"appointment_status"`
	InvoiceID         *string `json:"invoice_id"`
	InvoiceStatus     *string `json:"invoice_status"`
	RefundPending     bool    `json:"refund_pending"`
	Message           string  `json:"message"`
}

type RevenueDTO struct {
	Period string     `json:"period"`
	From   *time.Time `json:"from"`
	To     *time.Time `json:"to"`

	SubscriptionRevenue string `json:"subscription_revenue"`
	BookingGross        string `json:"booking_gross"`
	BookingNet          string `json:"booking_net"`
	ServiceFeeTotal     string `json:"service_fee_total"`
	CommissionTotal     string `json:"commission_total"`
	TotalNetRevenue     string `json:"total_net_revenue"`

	Transactions      []TransactionDTO `json:"transactions"`
	Page              int              `json:"page"`
	PageSize          int              `json:"page_size"`
	TotalTransactions int              `json:"total_transactions"`
}

type RefundRequestDTO struct {
	Invoice         TransactionDTO  `json:"invoice"`
	Appointment     *AppointmentDTO `json:"appointment"`
	SuggestedRefund string          `json:"suggested_refund"`
	PlatformKeptFee string          `json:"platform_kept_fee"`
}

type RefundConfirmationDTO struct {
	InvoiceID         string  `json:"invoice_id"`
	InvoiceStatus     string  `json:"invoice_status"`
	AppointmentID     *string `json:"appointment_id"`
	AppointmentStatus *string `json:"appointment_status"`
	ActualRefund      string  `json:"actual_refund"`
	Message           string  `json:"message"`
}

type DeactivationDTO struct {
	User           UserDTO          `json:"user"`
	CancelledCount int              `json:"cancelled_count"`
	Cancelled      []CancelResponse `json:"cancelled"`
}

type AuditEntryDTO struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	ActorID    string            `json:"actor_id"`
	ActorRole  string            `json:"actor_role"`
	Action     string            `json:"action"`
	Resource   string            `json:"resource"`
	ResourceID string            `json:"resource_id"`
	Message    string            `json:"message"`
	Payload    map[string]string `json:"payload,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(d decimal.Decimal) string {
	return d.StringFixed(billing.MoneyPlaces)
}

func toUserDTO(u billing.User) UserDTO {
	return UserDTO{
		ID:        string(u.ID),
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

func toAppointmentDTO(a billing.Appointment) AppointmentDTO {
	return AppointmentDTO{
		ID:              string(a.ID),
		Status:          string(a.Status),
		SlotID:          a.SlotID,
		CustomerID:      string(a.CustomerID),
		LawyerID:        string(a.LawyerID),
		StartsAt:        a.StartsAt,
		DurationMinutes: a.DurationMinutes,
		Note:            a.Note,
		CommissionFee:   money(a.CommissionFee),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toInvoiceDTO(inv billing.Invoice) InvoiceDTO {
	dto := InvoiceDTO{
		ID:             string(inv.ID),
		UserID:         string(inv.UserID),
		SubscriptionID: inv.SubscriptionID,
		Amount:         money(inv.Amount),
		RefundAmount:   money(inv.RefundAmount),
		Status:         string(inv.Status),
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
	if inv.AppointmentID != nil {
		dto.AppointmentID = strPtr(string(*inv.AppointmentID))
	}
	return dto
}

func toTransactionDTO(v billing.InvoiceView, net decimal.Decimal) TransactionDTO {
	return TransactionDTO{
		InvoiceDTO:  toInvoiceDTO(v.Invoice),
		PayerName:   v.PayerName,
		PayerEmail:  v.PayerEmail,
		PayerRole:   string(v.PayerRole),
		PaymentType: string(billing.PaymentTypeFor(v.PayerRole)),
		NetAmount:   money(net),
	}
}

func toCancelResponse(r billing.CancelResult) CancelResponse {
	resp := CancelResponse{
		AppointmentID:     string(r.AppointmentID),
		AppointmentStatus: string(r.AppointmentStatus),
		RefundPending:     r.RefundPending(),
		Message:           r.Message,
	}
	if r.InvoiceID != nil {
		resp.InvoiceID = strPtr(string(*r.InvoiceID))
	}
	if r.InvoiceStatus != nil {
		resp.InvoiceStatus = strPtr(string(*r.InvoiceStatus))
	}
	return resp
}

func toRevenueDTO(s *billing.RevenueSummary) RevenueDTO {
	rows := make([]TransactionDTO, 0, len(s.Transactions))
	for _, row := range s.Transactions {
		rows = append(rows, toTransactionDTO(row.InvoiceView, row.NetAmount))
	}
	return RevenueDTO{
		Period:              string(s.Period),
		From:                s.Window.From,
		To:                  s.Window.To,
		SubscriptionRevenue: money(s.SubscriptionRevenue),
		BookingGross:        money(s.BookingGross),
		BookingNet:          money(s.BookingNet),
		ServiceFeeTotal:     money(s.ServiceFeeTotal),
		CommissionTotal:     money(s.CommissionTotal),
		TotalNetRevenue:     money(s.TotalNetRevenue),
		Transactions:        rows,
		Page:                s.Page.Number,
		PageSize:            s.Page.Size,
		TotalTransactions:   s.TotalTransactions,
	}
}

func toRefundRequestDTO(r billing.RefundRequest) RefundRequestDTO {
	dto := RefundRequestDTO{
		Invoice:         toTransactionDTO(r.Invoice, billing.RowNet(r.Invoice)),
		SuggestedRefund: money(r.SuggestedRefund),
		PlatformKeptFee: money(r.PlatformKeptFee),
	}
	if r.Appointment != nil {
		a := toAppointmentDTO(*r.Appointment)
		dto.Appointment = &a
	}
	return dto
}

func toRefundConfirmationDTO(c *billing.RefundConfirmation) RefundConfirmationDTO {
	dto := RefundConfirmationDTO{
		InvoiceID:     string(c.InvoiceID),
		InvoiceStatus: string(c.InvoiceStatus),
		ActualRefund:  money(c.ActualRefund),
		Message:       c.Message,
	}
	if c.AppointmentID != nil {
		dto.AppointmentID = strPtr(string(*c.AppointmentID))
	}
	if c.AppointmentStatus != nil {
		dto.AppointmentStatus = strPtr(string(*c.AppointmentStatus))
	}
	return dto
}

func toAuditEntryDTO(e billing.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:         e.ID,
		Timestamp:  e.Timestamp,
		ActorID:    string(e.ActorID),
		ActorRole:  string(e.ActorRole),
		Action:     string(e.Action),
		Resource:   e.Resource,
		ResourceID: e.ResourceID,
		Message:    e.Message,
		Payload:    e.Payload,
	}
}

func strPtr(s string) *string {
	return &s
}
