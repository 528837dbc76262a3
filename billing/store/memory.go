// Package store provides an in-memory billing store.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/consult-ledger/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements billing.TxStore and billing.AuditLog.
type Memory struct {
	mu       sync.RWMutex
	users    map[billing.UserID]billing.User
	appts    map[billing.AppointmentID]billing.Appointment
	invoices map[billing.InvoiceID]billing.Invoice
	audit    []billing.AuditEntry

	// failures injects store errors by method name, for rollback tests.
	failures map[string]error
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[billing.UserID]billing.User),
		appts:    make(map[billing.AppointmentID]billing.Appointment),
		invoices: make(map[billing.InvoiceID]billing.Invoice),
		failures: make(map[string]error),
	}
}

// FailOn makes every later call to method return err. A nil err clears it.
func (m *Memory) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

func (m *Memory) GetUser(_ context.Context, id billing.UserID) (*billing.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getUser(id)
}

func (m *Memory) SaveUser(_ context.Context, u billing.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUser(u)
}

func (m *Memory) GetAppointment(_ context.Context, id billing.AppointmentID) (*billing.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAppointment(id)
}

func (m *Memory) SaveAppointment(_ context.Context, a billing.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveAppointment(a)
}

func (m *Memory) ListAppointments(_ context.Context, filter billing.AppointmentFilter) ([]billing.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAppointments(filter)
}

func (m *Memory) DeleteAppointment(_ context.Context, id billing.AppointmentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteAppointment(id)
}

func (m *Memory) GetInvoice(_ context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getInvoice(id)
}

func (m *Memory) GetInvoiceByAppointment(_ context.Context, id billing.AppointmentID) (*billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getInvoiceByAppointment(id)
}

func (m *Memory) SaveInvoice(_ context.Context, inv billing.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveInvoice(inv)
}

func (m *Memory) DeleteInvoice(_ context.Context, id billing.InvoiceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteInvoice(id)
}

func (m *Memory) ListInvoiceViews(_ context.Context, filter billing.InvoiceFilter) ([]billing.InvoiceView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listInvoiceViews(filter)
}

// =============================================================================
// LOCKED HELPERS - Caller holds m.mu
// =============================================================================

func (m *Memory) fail(method string) error {
	return m.failures[method]
}

func (m *Memory) getUser(id billing.UserID) (*billing.User, error) {
	if err := m.fail("GetUser"); err != nil {
		return nil, err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) saveUser(u billing.User) error {
	if err := m.fail("SaveUser"); err != nil {
		return err
	}
	m.users[u.ID] = u
	return nil
}

func (m *Memory) getAppointment(id billing.AppointmentID) (*billing.Appointment, error) {
	if err := m.fail("GetAppointment"); err != nil {
		return nil, err
	}
	a, ok := m.appts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) saveAppointment(a billing.Appointment) error {
	if err := m.fail("SaveAppointment"); err != nil {
		return err
	}
	m.appts[a.ID] = a
	return nil
}

func (m *Memory) listAppointments(filter billing.AppointmentFilter) ([]billing.Appointment, error) {
	if err := m.fail("ListAppointments"); err != nil {
		return nil, err
	}
	var out []billing.Appointment
	for _, a := range m.appts {
		if filter.Matches(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) deleteAppointment(id billing.AppointmentID) error {
	if err := m.fail("DeleteAppointment"); err != nil {
		return err
	}
	delete(m.appts, id)
	return nil
}

func (m *Memory) getInvoice(id billing.InvoiceID) (*billing.Invoice, error) {
	if err := m.fail("GetInvoice"); err != nil {
		return nil, err
	}
	inv, ok := m.invoices[id]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (m *Memory) getInvoiceByAppointment(id billing.AppointmentID) (*billing.Invoice, error) {
	if err := m.fail("GetInvoiceByAppointment"); err != nil {
		return nil, err
	}
	for _, inv := range m.invoices {
		if inv.AppointmentID != nil && *inv.AppointmentID == id {
			return &inv, nil
		}
	}
	return nil, nil
}

func (m *Memory) saveInvoice(inv billing.Invoice) error {
	if err := m.fail("SaveInvoice"); err != nil {
		return err
	}
	if err := inv.Validate(); err != nil {
		return err
	}
	m.invoices[inv.ID] = inv
	return nil
}

func (m *Memory) deleteInvoice(id billing.InvoiceID) error {
	if err := m.fail("DeleteInvoice"); err != nil {
		return err
	}
	delete(m.invoices, id)
	return nil
}

func (m *Memory) listInvoiceViews(filter billing.InvoiceFilter) ([]billing.InvoiceView, error) {
	if err := m.fail("ListInvoiceViews"); err != nil {
		return nil, err
	}
	var out []billing.InvoiceView
	for _, inv := range m.invoices {
		if !filter.Matches(inv) {
			continue
		}
		owner, ok := m.users[inv.UserID]
		if !ok {
			continue // inner join
		}
		out = append(out, billing.InvoiceView{
			Invoice:    inv,
			PayerRole:  owner.Role,
			PayerName:  owner.Name,
			PayerEmail: owner.Email,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The write lock is held for the whole of fn, so transactions serialize.
func (m *Memory) WithTx(ctx context.Context, fn func(billing.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{m: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	users    map[billing.UserID]billing.User
	appts    map[billing.AppointmentID]billing.Appointment
	invoices map[billing.InvoiceID]billing.Invoice
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		users:    make(map[billing.UserID]billing.User, len(m.users)),
		appts:    make(map[billing.AppointmentID]billing.Appointment, len(m.appts)),
		invoices: make(map[billing.InvoiceID]billing.Invoice, len(m.invoices)),
	}
	for k, v := range m.users {
		s.users[k] = v
	}
	for k, v := range m.appts {
		s.appts[k] = v
	}
	for k, v := range m.invoices {
		s.invoices[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.users = s.users
	m.appts = s.appts
	m.invoices = s.invoices
}

// txView is the Store handed to WithTx callbacks. The parent lock is
// already held.
type txView struct {
	m *Memory
}

func (v *txView) GetUser(_ context.Context, id billing.UserID) (*billing.User, error) {
	return v.m.getUser(id)
}

func (v *txView) SaveUser(_ context.Context, u billing.User) error {
	return v.m.saveUser(u)
}

func (v *txView) GetAppointment(_ context.Context, id billing.AppointmentID) (*billing.Appointment, error) {
	return v.m.getAppointment(id)
}

func (v *txView) SaveAppointment(_ context.Context, a billing.Appointment) error {
	return v.m.saveAppointment(a)
}

func (v *txView) ListAppointments(_ context.Context, filter billing.AppointmentFilter) ([]billing.Appointment, error) {
	return v.m.listAppointments(filter)
}

func (v *txView) DeleteAppointment(_ context.Context, id billing.AppointmentID) error {
	return v.m.deleteAppointment(id)
}

func (v *txView) GetInvoice(_ context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	return v.m.getInvoice(id)
}

func (v *txView) GetInvoiceByAppointment(_ context.Context, id billing.AppointmentID) (*billing.Invoice, error) {
	return v.m.getInvoiceByAppointment(id)
}

func (v *txView) SaveInvoice(_ context.Context, inv billing.Invoice) error {
	return v.m.saveInvoice(inv)
}

func (v *txView) DeleteInvoice(_ context.Context, id billing.InvoiceID) error {
	return v.m.deleteInvoice(id)
}

func (v *txView) ListInvoiceViews(_ context.Context, filter billing.InvoiceFilter) ([]billing.InvoiceView, error) {
	return v.m.listInvoiceViews(filter)
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) Append(_ context.Context, entry billing.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("AppendAudit"); err != nil {
		return err
	}
	m.audit = append(m.audit, entry)
	return nil
}

// Query returns matching entries, newest first.
func (m *Memory) Query(_ context.Context, filter billing.AuditFilter) ([]billing.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []billing.AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		if filter.Matches(m.audit[i]) {
			out = append(out, m.audit[i])
		}
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Reset clears all data, including the audit log.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = make(map[billing.UserID]billing.User)
	m.appts = make(map[billing.AppointmentID]billing.Appointment)
	m.invoices = make(map[billing.InvoiceID]billing.Invoice)
	m.audit = nil
	return nil
}
