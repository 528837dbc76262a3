/*
Package postgres provides a PostgreSQL implementation of the billing storage
interfaces, built on GORM.

PURPOSE:
  Production storage. Same tables as store/sqlite, with numeric(12,2)
  money columns and row locks instead of a process mutex.

CONCURRENCY:
  Every read made through the store handed to WithTx is issued as
  SELECT ... FOR UPDATE. Two transactions cancelling the same appointment
  therefore serialize on its row: the second one reads the status the first
  one committed and is rejected.

USAGE:
  store, err := postgres.New(os.Getenv("DATABASE_URL"))
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - billing/store.go: Interface definitions
  - store/sqlite: SQLite implementation (same semantics)
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/warp/consult-ledger/billing"
)

// =============================================================================
// ROW MODELS
// =============================================================================

type userRow struct {
	ID        string    `gorm:"primaryKey"`
	Name      string    `gorm:"not null"`
	Email     string    `gorm:"not null;default:''"`
	Role      string    `gorm:"not null;check:chk_users_role,role IN ('customer','lawyer','admin')"`
	Active    bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
}

func (userRow) TableName() string { return "users" }

type appointmentRow struct {
	ID              string          `gorm:"primaryKey"`
	Status          string          `gorm:"not null;index:idx_appointments_lawyer_status,priority:2"`
	SlotID          string          `gorm:"not null;default:''"`
	CustomerID      string          `gorm:"not null;index"`
	LawyerID        string          `gorm:"not null;index:idx_appointments_lawyer_status,priority:1"`
	StartsAt        time.Time       `gorm:"not null"`
	DurationMinutes int             `gorm:"not null"`
	Note            string          `gorm:"not null;default:''"`
	CommissionFee   decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	CreatedAt       time.Time       `gorm:"autoCreateTime:false"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime:false"`
}

func (appointmentRow) TableName() string { return "appointments" }

type invoiceRow struct {
	ID             string          `gorm:"primaryKey"`
	UserID         string          `gorm:"not null;index"`
	AppointmentID  *string         `gorm:"uniqueIndex;check:chk_invoice_reference,(appointment_id IS NULL) <> (subscription_id IS NULL)"`
	SubscriptionID *string
	Amount         decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	RefundAmount   decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	Status         string          `gorm:"not null;index"`
	CreatedAt      time.Time       `gorm:"index;autoCreateTime:false"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime:false"`
}

func (invoiceRow) TableName() string { return "payment_invoices" }

type auditRow struct {
	ID         string    `gorm:"primaryKey"`
	Ts         time.Time `gorm:"not null;index"`
	ActorID    string    `gorm:"not null"`
	ActorRole  string
	Action     string `gorm:"not null"`
	Resource   string
	ResourceID string `gorm:"index"`
	Message    string
	Payload    string `gorm:"type:text"`
}

func (auditRow) TableName() string { return "audit_logs" }

// viewRow is the invoice joined with its owner.
type viewRow struct {
	Invoice    invoiceRow `gorm:"embedded"`
	PayerRole  string
	PayerName  string
	PayerEmail string
}

// =============================================================================
// STORE
// =============================================================================

// Store implements billing.TxStore and billing.AuditLog.
type Store struct {
	db        *gorm.DB
	forUpdate bool
}

// New connects to dsn and migrates the schema.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// AutoMigrate creates or updates the billing tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&userRow{},
		&appointmentRow{},
		&invoiceRow{},
		&auditRow{},
	)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in a database transaction. Reads made through the store
// passed to fn lock the rows they return.
func (s *Store) WithTx(ctx context.Context, fn func(store billing.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, forUpdate: true})
	})
}

// read returns a query builder, locking rows inside a transaction.
func (s *Store) read(ctx context.Context) *gorm.DB {
	q := s.db.WithContext(ctx)
	if s.forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

// Reset truncates every table (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Exec("TRUNCATE audit_logs, payment_invoices, appointments, users").Error
}

// =============================================================================
// USERS
// =============================================================================

func (s *Store) GetUser(ctx context.Context, id billing.UserID) (*billing.User, error) {
	var row userRow
	if err := s.read(ctx).First(&row, "id = ?", string(id)).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	role, err := billing.ParseRole(row.Role)
	if err != nil {
		return nil, err
	}
	return &billing.User{
		ID:        billing.UserID(row.ID),
		Name:      row.Name,
		Email:     row.Email,
		Role:      role,
		Active:    row.Active,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (s *Store) SaveUser(ctx context.Context, u billing.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	row := userRow{
		ID:        string(u.ID),
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
	return upsert(ctx, s.db, &row, "name", "email", "role", "active")
}

// =============================================================================
// APPOINTMENTS
// =============================================================================

func (s *Store) GetAppointment(ctx context.Context, id billing.AppointmentID) (*billing.Appointment, error) {
	var row appointmentRow
	if err := s.read(ctx).First(&row, "id = ?", string(id)).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	a, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) SaveAppointment(ctx context.Context, a billing.Appointment) error {
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
	row := appointmentRow{
		ID:              string(a.ID),
		Status:          string(a.Status),
		SlotID:          a.SlotID,
		CustomerID:      string(a.CustomerID),
		LawyerID:        string(a.LawyerID),
		StartsAt:        a.StartsAt,
		DurationMinutes: a.DurationMinutes,
		Note:            a.Note,
		CommissionFee:   a.CommissionFee,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	return upsert(ctx, s.db, &row,
		"status", "slot_id", "customer_id", "lawyer_id", "starts_at",
		"duration_minutes", "note", "commission_fee", "updated_at")
}

func (s *Store) ListAppointments(ctx context.Context, filter billing.AppointmentFilter) ([]billing.Appointment, error) {
	q := s.read(ctx).Model(&appointmentRow{})
	if filter.LawyerID != nil {
		q = q.Where("lawyer_id = ?", string(*filter.LawyerID))
	}
	if filter.CustomerID != nil {
		q = q.Where("customer_id = ?", string(*filter.CustomerID))
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", appointmentStatusStrings(filter.Statuses))
	}

	var rows []appointmentRow
	if err := q.Order("starts_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]billing.Appointment, 0, len(rows))
	for _, row := range rows {
		a, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) DeleteAppointment(ctx context.Context, id billing.AppointmentID) error {
	return s.db.WithContext(ctx).Delete(&appointmentRow{}, "id = ?", string(id)).Error
}

func (row appointmentRow) toDomain() (billing.Appointment, error) {
	status, err := billing.ParseAppointmentStatus(row.Status)
	if err != nil {
		return billing.Appointment{}, err
	}
	return billing.Appointment{
		ID:              billing.AppointmentID(row.ID),
		Status:          status,
		SlotID:          row.SlotID,
		CustomerID:      billing.UserID(row.CustomerID),
		LawyerID:        billing.UserID(row.LawyerID),
		StartsAt:        row.StartsAt,
		DurationMinutes: row.DurationMinutes,
		Note:            row.Note,
		CommissionFee:   row.CommissionFee,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}, nil
}

// =============================================================================
// INVOICES
// =============================================================================

func (s *Store) GetInvoice(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	return s.getInvoice(ctx, "id = ?", string(id))
}

func (s *Store) GetInvoiceByAppointment(ctx context.Context, id billing.AppointmentID) (*billing.Invoice, error) {
	return s.getInvoice(ctx, "appointment_id = ?", string(id))
}

func (s *Store) getInvoice(ctx context.Context, cond string, arg string) (*billing.Invoice, error) {
	var row invoiceRow
	if err := s.read(ctx).First(&row, cond, arg).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	inv, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Store) SaveInvoice(ctx context.Context, inv billing.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	now := time.Now()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	if inv.UpdatedAt.IsZero() {
		inv.UpdatedAt = now
	}
	row := invoiceRow{
		ID:             string(inv.ID),
		UserID:         string(inv.UserID),
		SubscriptionID: inv.SubscriptionID,
		Amount:         inv.Amount,
		RefundAmount:   inv.RefundAmount,
		Status:         string(inv.Status),
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
	if inv.AppointmentID != nil {
		id := string(*inv.AppointmentID)
		row.AppointmentID = &id
	}
	return upsert(ctx, s.db, &row,
		"user_id", "appointment_id", "subscription_id", "amount",
		"refund_amount", "status", "updated_at")
}

func (s *Store) DeleteInvoice(ctx context.Context, id billing.InvoiceID) error {
	return s.db.WithContext(ctx).Delete(&invoiceRow{}, "id = ?", string(id)).Error
}

// ListInvoiceViews joins each invoice with its owner's current role,
// newest first.
func (s *Store) ListInvoiceViews(ctx context.Context, filter billing.InvoiceFilter) ([]billing.InvoiceView, error) {
	q := s.db.WithContext(ctx).
		Table("payment_invoices AS i").
		Select("i.*, u.role AS payer_role, u.name AS payer_name, u.email AS payer_email").
		Joins("JOIN users u ON u.id = i.user_id")
	if filter.Window.From != nil {
		q = q.Where("i.created_at >= ?", *filter.Window.From)
	}
	if filter.Window.To != nil {
		q = q.Where("i.created_at < ?", *filter.Window.To)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		q = q.Where("i.status IN ?", statuses)
	}

	var rows []viewRow
	if err := q.Order("i.created_at DESC, i.id DESC").Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]billing.InvoiceView, 0, len(rows))
	for _, row := range rows {
		inv, err := row.Invoice.toDomain()
		if err != nil {
			return nil, err
		}
		role, err := billing.ParseRole(row.PayerRole)
		if err != nil {
			return nil, err
		}
		out = append(out, billing.InvoiceView{
			Invoice:    inv,
			PayerRole:  role,
			PayerName:  row.PayerName,
			PayerEmail: row.PayerEmail,
		})
	}
	return out, nil
}

func (row invoiceRow) toDomain() (billing.Invoice, error) {
	status, err := billing.ParseInvoiceStatus(row.Status)
	if err != nil {
		return billing.Invoice{}, err
	}
	inv := billing.Invoice{
		ID:             billing.InvoiceID(row.ID),
		UserID:         billing.UserID(row.UserID),
		SubscriptionID: row.SubscriptionID,
		Amount:         row.Amount,
		RefundAmount:   row.RefundAmount,
		Status:         status,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if row.AppointmentID != nil {
		id := billing.AppointmentID(*row.AppointmentID)
		inv.AppointmentID = &id
	}
	return inv, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) Append(ctx context.Context, e billing.AuditEntry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	return s.db.WithContext(ctx).Create(&auditRow{
		ID:         e.ID,
		Ts:         e.Timestamp,
		ActorID:    string(e.ActorID),
		ActorRole:  string(e.ActorRole),
		Action:     string(e.Action),
		Resource:   e.Resource,
		ResourceID: e.ResourceID,
		Message:    e.Message,
		Payload:    string(payload),
	}).Error
}

func (s *Store) Query(ctx context.Context, filter billing.AuditFilter) ([]billing.AuditEntry, error) {
	q := s.db.WithContext(ctx).Model(&auditRow{})
	if filter.ActorID != nil {
		q = q.Where("actor_id = ?", string(*filter.ActorID))
	}
	if filter.ResourceID != nil {
		q = q.Where("resource_id = ?", *filter.ResourceID)
	}
	if len(filter.Actions) > 0 {
		actions := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			actions[i] = string(a)
		}
		q = q.Where("action IN ?", actions)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []auditRow
	if err := q.Order("ts DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]billing.AuditEntry, 0, len(rows))
	for _, row := range rows {
		e := billing.AuditEntry{
			ID:         row.ID,
			Timestamp:  row.Ts,
			ActorID:    billing.UserID(row.ActorID),
			ActorRole:  billing.Role(row.ActorRole),
			Action:     billing.AuditAction(row.Action),
			Resource:   row.Resource,
			ResourceID: row.ResourceID,
			Message:    row.Message,
		}
		if row.Payload != "" && row.Payload != "null" {
			if err := json.Unmarshal([]byte(row.Payload), &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode audit payload: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// Helper functions

func upsert(ctx context.Context, db *gorm.DB, row any, columns ...string) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(row).Error
}

func notFoundAsNil(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

func appointmentStatusStrings(statuses []billing.AppointmentStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}
