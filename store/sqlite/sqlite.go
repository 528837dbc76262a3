/*
Package sqlite provides a SQLite-backed implementation of the billing storage
interfaces.

PURPOSE:
  Implements billing.TxStore and billing.AuditLog using SQLite. The same
  schema runs on PostgreSQL through store/postgres; only the locking
  strategy differs.

INTERFACES IMPLEMENTED:
  billing.Store:    Users, appointments, invoices
  billing.TxStore:  WithTx for atomic appointment+invoice writes
  billing.AuditLog: Append-only audit entries

KEY TABLES:
  users:            Accounts and their role (customer, lawyer, admin)
  appointments:     Consultations and their status
  payment_invoices: Booking or subscription payments (CHECK: exactly one)
  audit_logs:       Who did what when

CONCURRENCY:
  One connection, and a sync.RWMutex held for the whole of WithTx. Writers
  therefore serialize: a transaction that reads an appointment as open is
  guaranteed to still see it open when it writes. Plain reads take the
  read lock and never observe a half-applied transaction.

MONEY AND TIME:
  Decimals are stored as TEXT (decimal.String()), timestamps as fixed-width
  UTC TEXT so that string comparison orders them correctly.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  reconciler := billing.NewReconciler(store, billing.WithAuditLog(store))

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/consult-ledger/billing"
)

// timeLayout is fixed width so TEXT comparison matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// ":memory:" databases exist per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL CHECK (role IN ('customer', 'lawyer', 'admin')),
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS appointments (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		slot_id TEXT NOT NULL DEFAULT '',
		customer_id TEXT NOT NULL REFERENCES users(id),
		lawyer_id TEXT NOT NULL REFERENCES users(id),
		starts_at TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL DEFAULT 60,
		note TEXT NOT NULL DEFAULT '',
		commission_fee TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Cascade cancel selects open appointments per lawyer
	CREATE INDEX IF NOT EXISTS idx_appointments_lawyer_status
		ON appointments(lawyer_id, status);

	CREATE TABLE IF NOT EXISTS payment_invoices (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		appointment_id TEXT UNIQUE REFERENCES appointments(id),
		subscription_id TEXT,
		amount TEXT NOT NULL,
		refund_amount TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK ((appointment_id IS NULL) <> (subscription_id IS NULL))
	);

	-- Revenue windows and refund queue
	CREATE INDEX IF NOT EXISTS idx_invoices_created_at
		ON payment_invoices(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_invoices_status
		ON payment_invoices(status);

	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		actor_role TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		resource TEXT NOT NULL DEFAULT '',
		resource_id TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_resource
		ON audit_logs(resource_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// USERS
// =============================================================================

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id billing.UserID) (*billing.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getUser(ctx, s.db, id)
}

// SaveUser creates or updates a user.
func (s *Store) SaveUser(ctx context.Context, u billing.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveUser(ctx, s.db, u)
}

func getUser(ctx context.Context, q querier, id billing.UserID) (*billing.User, error) {
	var u billing.User
	var role, createdAt string

	err := q.QueryRowContext(ctx,
		"SELECT id, name, email, role, active, created_at FROM users WHERE id = ?",
		id,
	).Scan(&u.ID, &u.Name, &u.Email, &role, &u.Active, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if u.Role, err = billing.ParseRole(role); err != nil {
		return nil, err
	}
	if u.CreatedAt, err = parseTime("users.created_at", createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func saveUser(ctx context.Context, q querier, u billing.User) error {
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, name, email, role, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			active = excluded.active
	`, u.ID, u.Name, u.Email, string(u.Role), u.Active, formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// =============================================================================
// APPOINTMENTS
// =============================================================================

const appointmentColumns = `id, status, slot_id, customer_id, lawyer_id, starts_at,
	duration_minutes, note, commission_fee, created_at, updated_at`

// GetAppointment retrieves an appointment by ID.
func (s *Store) GetAppointment(ctx context.Context, id billing.AppointmentID) (*billing.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAppointment(ctx, s.db, id)
}

// SaveAppointment creates or updates an appointment.
func (s *Store) SaveAppointment(ctx context.Context, a billing.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveAppointment(ctx, s.db, a)
}

// ListAppointments returns appointments matching filter, earliest first.
func (s *Store) ListAppointments(ctx context.Context, filter billing.AppointmentFilter) ([]billing.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAppointments(ctx, s.db, filter)
}

// DeleteAppointment removes an appointment. Its invoice must be deleted
// first (foreign key).
func (s *Store) DeleteAppointment(ctx context.Context, id billing.AppointmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteAppointment(ctx, s.db, id)
}

func getAppointment(ctx context.Context, q querier, id billing.AppointmentID) (*billing.Appointment, error) {
	row := q.QueryRowContext(ctx, "SELECT "+appointmentColumns+" FROM appointments WHERE id = ?", id)
	a, err := scanAppointment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func saveAppointment(ctx context.Context, q querier, a billing.Appointment) error {
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			slot_id = excluded.slot_id,
			customer_id = excluded.customer_id,
			lawyer_id = excluded.lawyer_id,
			starts_at = excluded.starts_at,
			duration_minutes = excluded.duration_minutes,
			note = excluded.note,
			commission_fee = excluded.commission_fee,
			updated_at = excluded.updated_at
	`,
		a.ID,
		string(a.Status),
		a.SlotID,
		a.CustomerID,
		a.LawyerID,
		formatTime(a.StartsAt),
		a.DurationMinutes,
		a.Note,
		a.CommissionFee.String(),
		formatTime(a.CreatedAt),
		formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save appointment: %w", err)
	}
	return nil
}

func listAppointments(ctx context.Context, q querier, filter billing.AppointmentFilter) ([]billing.Appointment, error) {
	var where []string
	var args []any
	if filter.LawyerID != nil {
		where = append(where, "lawyer_id = ?")
		args = append(args, *filter.LawyerID)
	}
	if filter.CustomerID != nil {
		where = append(where, "customer_id = ?")
		args = append(args, *filter.CustomerID)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}

	query := "SELECT " + appointmentColumns + " FROM appointments" + whereClause(where) +
		" ORDER BY starts_at ASC, id ASC"
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func deleteAppointment(ctx context.Context, q querier, id billing.AppointmentID) error {
	_, err := q.ExecContext(ctx, "DELETE FROM appointments WHERE id = ?", id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row scanner) (billing.Appointment, error) {
	var a billing.Appointment
	var status, startsAt, fee, createdAt, updatedAt string

	err := row.Scan(
		&a.ID, &status, &a.SlotID, &a.CustomerID, &a.LawyerID, &startsAt,
		&a.DurationMinutes, &a.Note, &fee, &createdAt, &updatedAt,
	)
	if err != nil {
		return a, err
	}

	if a.Status, err = billing.ParseAppointmentStatus(status); err != nil {
		return a, err
	}
	if a.StartsAt, err = parseTime("appointments.starts_at", startsAt); err != nil {
		return a, err
	}
	if a.CommissionFee, err = parseDecimal("appointments.commission_fee", fee); err != nil {
		return a, err
	}
	if a.CreatedAt, err = parseTime("appointments.created_at", createdAt); err != nil {
		return a, err
	}
	if a.UpdatedAt, err = parseTime("appointments.updated_at", updatedAt); err != nil {
		return a, err
	}
	return a, nil
}

// =============================================================================
// INVOICES
// =============================================================================

const invoiceColumns = `i.id, i.user_id, i.appointment_id, i.subscription_id, i.amount,
	i.refund_amount, i.status, i.created_at, i.updated_at`

// GetInvoice retrieves an invoice by ID.
func (s *Store) GetInvoice(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getInvoice(ctx, s.db, "i.id = ?", id)
}

// GetInvoiceByAppointment retrieves the invoice paired with an appointment.
func (s *Store) GetInvoiceByAppointment(ctx context.Context, id billing.AppointmentID) (*billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getInvoice(ctx, s.db, "i.appointment_id = ?", id)
}

// SaveInvoice creates or updates an invoice.
func (s *Store) SaveInvoice(ctx context.Context, inv billing.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveInvoice(ctx, s.db, inv)
}

// DeleteInvoice removes an invoice.
func (s *Store) DeleteInvoice(ctx context.Context, id billing.InvoiceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteInvoice(ctx, s.db, id)
}

// ListInvoiceViews returns invoices joined with their owner, newest first.
func (s *Store) ListInvoiceViews(ctx context.Context, filter billing.InvoiceFilter) ([]billing.InvoiceView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listInvoiceViews(ctx, s.db, filter)
}

func getInvoice(ctx context.Context, q querier, cond string, arg any) (*billing.Invoice, error) {
	row := q.QueryRowContext(ctx, "SELECT "+invoiceColumns+" FROM payment_invoices i WHERE "+cond, arg)
	inv, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func saveInvoice(ctx context.Context, q querier, inv billing.Invoice) error {
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

	var apptID, subID sql.NullString
	if inv.AppointmentID != nil {
		apptID = sql.NullString{String: string(*inv.AppointmentID), Valid: true}
	}
	if inv.SubscriptionID != nil {
		subID = sql.NullString{String: *inv.SubscriptionID, Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO payment_invoices
		(id, user_id, appointment_id, subscription_id, amount, refund_amount, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			appointment_id = excluded.appointment_id,
			subscription_id = excluded.subscription_id,
			amount = excluded.amount,
			refund_amount = excluded.refund_amount,
			status = excluded.status,
			updated_at = excluded.updated_at
	`,
		inv.ID,
		inv.UserID,
		apptID,
		subID,
		inv.Amount.String(),
		inv.RefundAmount.String(),
		string(inv.Status),
		formatTime(inv.CreatedAt),
		formatTime(inv.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save invoice: %w", err)
	}
	return nil
}

func deleteInvoice(ctx context.Context, q querier, id billing.InvoiceID) error {
	_, err := q.ExecContext(ctx, "DELETE FROM payment_invoices WHERE id = ?", id)
	return err
}

func listInvoiceViews(ctx context.Context, q querier, filter billing.InvoiceFilter) ([]billing.InvoiceView, error) {
	var where []string
	var args []any
	if filter.Window.From != nil {
		where = append(where, "i.created_at >= ?")
		args = append(args, formatTime(*filter.Window.From))
	}
	if filter.Window.To != nil {
		where = append(where, "i.created_at < ?")
		args = append(args, formatTime(*filter.Window.To))
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "i.status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}

	// Payer role is resolved here, once per pass, from the owner's row.
	query := "SELECT " + invoiceColumns + ", u.role, u.name, u.email" +
		" FROM payment_invoices i JOIN users u ON u.id = i.user_id" +
		whereClause(where) +
		" ORDER BY i.created_at DESC, i.id DESC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.InvoiceView
	for rows.Next() {
		var v billing.InvoiceView
		var role string
		inv, err := scanInvoice(rows, &role, &v.PayerName, &v.PayerEmail)
		if err != nil {
			return nil, err
		}
		v.Invoice = inv
		if v.PayerRole, err = billing.ParseRole(role); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanInvoice(row scanner, extra ...any) (billing.Invoice, error) {
	var inv billing.Invoice
	var apptID, subID sql.NullString
	var amount, refund, status, createdAt, updatedAt string

	dest := append([]any{
		&inv.ID, &inv.UserID, &apptID, &subID, &amount, &refund, &status, &createdAt, &updatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return inv, err
	}

	var err error
	if inv.Status, err = billing.ParseInvoiceStatus(status); err != nil {
		return inv, err
	}
	if apptID.Valid {
		id := billing.AppointmentID(apptID.String)
		inv.AppointmentID = &id
	}
	if subID.Valid {
		sub := subID.String
		inv.SubscriptionID = &sub
	}
	if inv.Amount, err = parseDecimal("payment_invoices.amount", amount); err != nil {
		return inv, err
	}
	if inv.RefundAmount, err = parseDecimal("payment_invoices.refund_amount", refund); err != nil {
		return inv, err
	}
	if inv.CreatedAt, err = parseTime("payment_invoices.created_at", createdAt); err != nil {
		return inv, err
	}
	if inv.UpdatedAt, err = parseTime("payment_invoices.updated_at", updatedAt); err != nil {
		return inv, err
	}
	return inv, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes a function within a database transaction. The write
// lock is held until commit or rollback.
func (s *Store) WithTx(ctx context.Context, fn func(store billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every call through the open *sql.Tx. It takes no locks;
// the parent's write lock is held by WithTx.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetUser(ctx context.Context, id billing.UserID) (*billing.User, error) {
	return getUser(ctx, ts.tx, id)
}

func (ts *txStore) SaveUser(ctx context.Context, u billing.User) error {
	return saveUser(ctx, ts.tx, u)
}

func (ts *txStore) GetAppointment(ctx context.Context, id billing.AppointmentID) (*billing.Appointment, error) {
	return getAppointment(ctx, ts.tx, id)
}

func (ts *txStore) SaveAppointment(ctx context.Context, a billing.Appointment) error {
	return saveAppointment(ctx, ts.tx, a)
}

func (ts *txStore) ListAppointments(ctx context.Context, filter billing.AppointmentFilter) ([]billing.Appointment, error) {
	return listAppointments(ctx, ts.tx, filter)
}

func (ts *txStore) DeleteAppointment(ctx context.Context, id billing.AppointmentID) error {
	return deleteAppointment(ctx, ts.tx, id)
}

func (ts *txStore) GetInvoice(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	return getInvoice(ctx, ts.tx, "i.id = ?", id)
}

func (ts *txStore) GetInvoiceByAppointment(ctx context.Context, id billing.AppointmentID) (*billing.Invoice, error) {
	return getInvoice(ctx, ts.tx, "i.appointment_id = ?", id)
}

func (ts *txStore) SaveInvoice(ctx context.Context, inv billing.Invoice) error {
	return saveInvoice(ctx, ts.tx, inv)
}

func (ts *txStore) DeleteInvoice(ctx context.Context, id billing.InvoiceID) error {
	return deleteInvoice(ctx, ts.tx, id)
}

func (ts *txStore) ListInvoiceViews(ctx context.Context, filter billing.InvoiceFilter) ([]billing.InvoiceView, error) {
	return listInvoiceViews(ctx, ts.tx, filter)
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// Append writes an audit entry.
func (s *Store) Append(ctx context.Context, e billing.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, ts, actor_id, actor_role, action, resource, resource_id, message, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, formatTime(e.Timestamp), e.ActorID, string(e.ActorRole), string(e.Action),
		e.Resource, e.ResourceID, e.Message, string(payload))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Query returns audit entries, newest first.
func (s *Store) Query(ctx context.Context, filter billing.AuditFilter) ([]billing.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if filter.ActorID != nil {
		where = append(where, "actor_id = ?")
		args = append(args, *filter.ActorID)
	}
	if filter.ResourceID != nil {
		where = append(where, "resource_id = ?")
		args = append(args, *filter.ResourceID)
	}
	if len(filter.Actions) > 0 {
		where = append(where, "action IN ("+placeholders(len(filter.Actions))+")")
		for _, a := range filter.Actions {
			args = append(args, string(a))
		}
	}
	query := `SELECT id, ts, actor_id, actor_role, action, resource, resource_id, message, payload_json
		FROM audit_logs` + whereClause(where) + " ORDER BY ts DESC, rowid DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.AuditEntry
	for rows.Next() {
		var e billing.AuditEntry
		var ts, role, action string
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &role, &action, &e.Resource, &e.ResourceID, &e.Message, &payload); err != nil {
			return nil, err
		}
		if e.Timestamp, err = parseTime("audit_logs.ts", ts); err != nil {
			return nil, err
		}
		e.ActorRole = billing.Role(role)
		e.Action = billing.AuditAction(action)
		if payload.Valid && payload.String != "" && payload.String != "null" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode audit payload: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears all data (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"audit_logs", "payment_invoices", "appointments", "users"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts the fixed-width layout and plain RFC3339. Anything else
// is corrupt data and an error.
func parseTime(column, s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt %s %q: %w", column, s, err)
	}
	return t, nil
}

func parseDecimal(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt %s %q: %w", column, s, err)
	}
	return d, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}
