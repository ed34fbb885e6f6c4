// Package testutil provides in-memory stand-ins for the Postgres repositories and the Razorpay
// client so orchestration code can be tested without external services. Every fake shares one
// mutex through DB, so uniqueness rules hold under concurrent callers the way the real
// constraints do.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/gateway"
	"github.com/alumni-connect/backend/internal/models"
)

// DB is the shared in-memory state behind the fakes.
type DB struct {
	mu       sync.Mutex
	orders   map[string]models.PaymentOrder
	txs      map[uuid.UUID]models.Transaction
	tokens   map[uuid.UUID]models.Token
	students map[uuid.UUID]models.Student
	events   map[uuid.UUID]models.Event
	users    map[uuid.UUID]models.User

	Orders   *Orders
	Ledger   *Ledger
	Tokens   *Tokens
	Students *Students
	Events   *Events
	Users    *Users
}

// NewDB returns an empty in-memory database.
func NewDB() *DB {
	db := &DB{
		orders:   map[string]models.PaymentOrder{},
		txs:      map[uuid.UUID]models.Transaction{},
		tokens:   map[uuid.UUID]models.Token{},
		students: map[uuid.UUID]models.Student{},
		events:   map[uuid.UUID]models.Event{},
		users:    map[uuid.UUID]models.User{},
	}
	db.Orders = &Orders{db: db}
	db.Ledger = &Ledger{db: db}
	db.Tokens = &Tokens{db: db}
	db.Students = &Students{db: db}
	db.Events = &Events{db: db}
	db.Users = &Users{db: db}
	return db
}

// Lock exposes the shared mutex so package-local fakes can join the same critical sections.
func (db *DB) Lock() { db.mu.Lock() }
func (db *DB) Unlock() { db.mu.Unlock() }

// Orders fakes ledger.OrderRepository.
type Orders struct{ db *DB }

func (o *Orders) Create(_ context.Context, po *models.PaymentOrder) error {
	o.db.mu.Lock()
	defer o.db.mu.Unlock()
	if _, ok := o.db.orders[po.OrderID]; ok {
		return fmt.Errorf("duplicate order %s", po.OrderID)
	}
	po.CreatedAt = time.Now().UTC()
	o.db.orders[po.OrderID] = *po
	return nil
}

func (o *Orders) Get(_ context.Context, orderID string) (*models.PaymentOrder, error) {
	o.db.mu.Lock()
	defer o.db.mu.Unlock()
	po, ok := o.db.orders[orderID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &po, nil
}

// Count returns the number of stored orders.
func (o *Orders) Count() int {
	o.db.mu.Lock()
	defer o.db.mu.Unlock()
	return len(o.db.orders)
}

// Ledger fakes ledger.Repository.
type Ledger struct{ db *DB }

func (l *Ledger) InsertGateway(_ context.Context, t *models.Transaction) (*models.Transaction, bool, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	for _, existing := range l.db.txs {
		if existing.PaymentID == t.PaymentID {
			out := existing
			return &out, false, nil
		}
	}
	out := *t
	out.ID = uuid.New()
	out.Source = models.SourceGateway
	out.CreatedAt = time.Now().UTC()
	l.db.txs[out.ID] = out
	return &out, true, nil
}

// InsertManualLocked records a manual transaction. The caller must hold the DB lock.
func (l *Ledger) InsertManualLocked(t *models.Transaction) (*models.Transaction, error) {
	if t.CoTransactionID != nil {
		for _, existing := range l.db.txs {
			if existing.CoTransactionID != nil && *existing.CoTransactionID == *t.CoTransactionID {
				return nil, fmt.Errorf("duplicate co_transaction_id %s", *t.CoTransactionID)
			}
		}
	}
	out := *t
	out.ID = uuid.New()
	out.Source = models.SourceManual
	out.CreatedAt = time.Now().UTC()
	l.db.txs[out.ID] = out
	return &out, nil
}

func (l *Ledger) Promote(_ context.Context, id uuid.UUID, status string, raw []byte) (*models.Transaction, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	t, ok := l.db.txs[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if t.Status == models.TxStatusCreated || t.Status == models.TxStatusPending {
		t.Status = status
		if len(raw) > 0 {
			t.Raw = json.RawMessage(raw)
		}
		l.db.txs[id] = t
	}
	return &t, nil
}

func (l *Ledger) GetByID(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	t, ok := l.db.txs[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &t, nil
}

func (l *Ledger) GetByPaymentID(_ context.Context, paymentID string) (*models.Transaction, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	for _, t := range l.db.txs {
		if t.PaymentID != "" && t.PaymentID == paymentID {
			out := t
			return &out, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (l *Ledger) List(_ context.Context, eventID *uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	var list []models.Transaction
	for _, t := range l.db.txs {
		if eventID != nil && (t.EventID == nil || *t.EventID != *eventID) {
			continue
		}
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	if offset >= len(list) {
		return nil, nil
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list, nil
}

func (l *Ledger) ListOrphans(_ context.Context) ([]models.Transaction, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	var list []models.Transaction
	for _, t := range l.db.txs {
		if !t.Succeeded() || t.EventID == nil || t.StudentID == nil {
			continue
		}
		if _, ok := l.db.tokenByTxLocked(t.ID); ok {
			continue
		}
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

// Count returns the number of stored transactions.
func (l *Ledger) Count() int {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	return len(l.db.txs)
}

// Put stores t as-is, assigning an ID when empty. Used to seed fixtures.
func (l *Ledger) Put(t models.Transaction) *models.Transaction {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	l.db.txs[t.ID] = t
	return &t
}

// Tokens fakes tokens.Repository. InsertErr, when set, fails every insert.
type Tokens struct {
	db        *DB
	InsertErr error
}

func (db *DB) tokenByTxLocked(txID uuid.UUID) (models.Token, bool) {
	for _, t := range db.tokens {
		if t.TransactionID == txID {
			return t, true
		}
	}
	return models.Token{}, false
}

func (k *Tokens) Insert(_ context.Context, t *models.Token) (*models.Token, error) {
	k.db.mu.Lock()
	defer k.db.mu.Unlock()
	if k.InsertErr != nil {
		return nil, k.InsertErr
	}
	if existing, ok := k.db.tokenByTxLocked(t.TransactionID); ok {
		return &existing, apperr.ErrTokenAlreadyIssued
	}
	for _, existing := range k.db.tokens {
		if existing.ScanCode == t.ScanCode {
			return nil, fmt.Errorf("duplicate scan code")
		}
	}
	out := *t
	out.ID = uuid.New()
	out.CreatedAt = time.Now().UTC()
	k.db.tokens[out.ID] = out
	return &out, nil
}

func (k *Tokens) GetByID(_ context.Context, id uuid.UUID) (*models.Token, error) {
	k.db.mu.Lock()
	defer k.db.mu.Unlock()
	t, ok := k.db.tokens[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &t, nil
}

func (k *Tokens) GetByTransactionID(_ context.Context, transactionID uuid.UUID) (*models.Token, error) {
	k.db.mu.Lock()
	defer k.db.mu.Unlock()
	t, ok := k.db.tokenByTxLocked(transactionID)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &t, nil
}

func (k *Tokens) GetByEventStudent(_ context.Context, eventID, studentID uuid.UUID) (*models.Token, error) {
	k.db.mu.Lock()
	defer k.db.mu.Unlock()
	for _, t := range k.db.tokens {
		if t.EventID == eventID && t.StudentID == studentID {
			return &t, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (k *Tokens) Redeem(_ context.Context, scanCode string, at time.Time) (*models.Token, error) {
	k.db.mu.Lock()
	defer k.db.mu.Unlock()
	for id, t := range k.db.tokens {
		if t.ScanCode != scanCode {
			continue
		}
		if t.IsUsed {
			return nil, apperr.ErrTokenAlreadyUsed
		}
		t.IsUsed = true
		t.UsedAt = &at
		k.db.tokens[id] = t
		return &t, nil
	}
	return nil, apperr.ErrNotFound
}

func (k *Tokens) CountByEvent(_ context.Context, eventID uuid.UUID) (issued, used int, err error) {
	k.db.mu.Lock()
	defer k.db.mu.Unlock()
	for _, t := range k.db.tokens {
		if t.EventID != eventID {
			continue
		}
		issued++
		if t.IsUsed {
			used++
		}
	}
	return issued, used, nil
}

// Count returns the number of stored tokens.
func (k *Tokens) Count() int {
	k.db.mu.Lock()
	defer k.db.mu.Unlock()
	return len(k.db.tokens)
}

// Students fakes students.Repository with the same natural-key rules as the partial unique indexes.
type Students struct{ db *DB }

func (s *Students) UpsertByEmail(_ context.Context, in *models.Student) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	now := time.Now().UTC()
	for id, cur := range s.db.students {
		if cur.Email == "" || !strings.EqualFold(cur.Email, in.Email) {
			continue
		}
		cur.FullName = in.FullName
		if in.Phone != "" {
			cur.Phone = in.Phone
		}
		if in.DateOfBirth != nil {
			cur.DateOfBirth = in.DateOfBirth
		}
		if in.BatchYear != nil {
			cur.BatchYear = in.BatchYear
		}
		cur.UpdatedAt = now
		s.db.students[id] = cur
		*in = cur
		return nil
	}
	in.ID = uuid.New()
	in.CreatedAt, in.UpdatedAt = now, now
	s.db.students[in.ID] = *in
	return nil
}

func (s *Students) UpsertByPhoneName(_ context.Context, in *models.Student) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	now := time.Now().UTC()
	for id, cur := range s.db.students {
		if cur.Email != "" || cur.Phone != in.Phone || !strings.EqualFold(cur.FullName, in.FullName) {
			continue
		}
		if in.DateOfBirth != nil {
			cur.DateOfBirth = in.DateOfBirth
		}
		if in.BatchYear != nil {
			cur.BatchYear = in.BatchYear
		}
		cur.UpdatedAt = now
		s.db.students[id] = cur
		*in = cur
		return nil
	}
	in.ID = uuid.New()
	in.CreatedAt, in.UpdatedAt = now, now
	s.db.students[in.ID] = *in
	return nil
}

func (s *Students) ClaimEmail(_ context.Context, phone, fullName, email string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, cur := range s.db.students {
		if strings.EqualFold(cur.Email, email) {
			return false, nil
		}
	}
	for id, cur := range s.db.students {
		if cur.Email == "" && cur.Phone == phone && strings.EqualFold(cur.FullName, fullName) {
			cur.Email = email
			cur.UpdatedAt = time.Now().UTC()
			s.db.students[id] = cur
			return true, nil
		}
	}
	return false, nil
}

func (s *Students) GetByID(_ context.Context, id uuid.UUID) (*models.Student, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	st, ok := s.db.students[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &st, nil
}

func (s *Students) SetPhoto(_ context.Context, id uuid.UUID, storageID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	st, ok := s.db.students[id]
	if !ok {
		return apperr.ErrNotFound
	}
	st.PhotoStorageID = storageID
	s.db.students[id] = st
	return nil
}

func (s *Students) Search(_ context.Context, q string, limit int) ([]models.Student, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	q = strings.ToLower(q)
	var list []models.Student
	for _, st := range s.db.students {
		if strings.Contains(strings.ToLower(st.FullName), q) || strings.Contains(st.Email, q) || strings.Contains(st.Phone, q) {
			list = append(list, st)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].FullName < list[j].FullName })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Count returns the number of stored students.
func (s *Students) Count() int {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return len(s.db.students)
}

// Events fakes events.Repository.
type Events struct{ db *DB }

func (e *Events) Create(_ context.Context, ev *models.Event) error {
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	now := time.Now().UTC()
	ev.CreatedAt, ev.UpdatedAt = now, now
	e.db.events[ev.ID] = *ev
	return nil
}

func (e *Events) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	ev, ok := e.db.events[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &ev, nil
}

func (e *Events) List(_ context.Context, activeOnly bool) ([]models.Event, error) {
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	var list []models.Event
	for _, ev := range e.db.events {
		if activeOnly && !ev.IsActive {
			continue
		}
		list = append(list, ev)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StartsAt.Before(list[j].StartsAt) })
	return list, nil
}

func (e *Events) Update(_ context.Context, ev *models.Event) error {
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	if _, ok := e.db.events[ev.ID]; !ok {
		return apperr.ErrNotFound
	}
	ev.UpdatedAt = time.Now().UTC()
	e.db.events[ev.ID] = *ev
	return nil
}

// Seed stores an active event with the given fee and returns it.
func (e *Events) Seed(name string, fee decimal.Decimal) *models.Event {
	ev := &models.Event{
		Name:     name,
		StartsAt: time.Now().Add(30 * 24 * time.Hour).UTC(),
		Fee:      fee,
		IsActive: true,
	}
	_ = e.Create(context.Background(), ev)
	return ev
}

// Users fakes auth.Repository. DuplicateErr is returned when the email is already taken.
type Users struct {
	db           *DB
	DuplicateErr error
}

func (u *Users) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	usr, ok := u.db.users[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &usr, nil
}

func (u *Users) GetByEmail(_ context.Context, email string) (*models.User, error) {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	for _, usr := range u.db.users {
		if strings.EqualFold(usr.Email, email) {
			out := usr
			return &out, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (u *Users) Create(_ context.Context, email, passwordHash, fullName string, role models.Role) (*models.User, error) {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	for _, usr := range u.db.users {
		if strings.EqualFold(usr.Email, email) {
			if u.DuplicateErr != nil {
				return nil, u.DuplicateErr
			}
			return nil, fmt.Errorf("duplicate email %s", email)
		}
	}
	now := time.Now().UTC()
	usr := models.User{
		ID:        uuid.New(),
		Email:     strings.ToLower(email),
		Password:  passwordHash,
		FullName:  fullName,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	u.db.users[usr.ID] = usr
	return &usr, nil
}

func (u *Users) List(_ context.Context) ([]models.UserPublic, error) {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	var list []models.UserPublic
	for _, usr := range u.db.users {
		list = append(list, usr.ToPublic())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Email < list[j].Email })
	return list, nil
}

// Gateway fakes the Razorpay client. Orders are recorded on CreateOrder and payments are
// simulated with Pay. Signatures use the real HMAC scheme with Secret.
type Gateway struct {
	Secret string

	mu          sync.Mutex
	seq         int
	orders      map[string]gateway.Order
	payments    map[string]gateway.Payment
	CreateErr   error
	FetchErr    error
	FetchCalls  int
	CreateCalls int
}

// NewGateway returns a fake gateway signing with secret.
func NewGateway(secret string) *Gateway {
	return &Gateway{
		Secret:   secret,
		orders:   map[string]gateway.Order{},
		payments: map[string]gateway.Payment{},
	}
}

func (g *Gateway) KeyID() string { return "rzp_test_key" }

func (g *Gateway) CreateOrder(_ context.Context, amount decimal.Decimal, currency, receipt string, _ map[string]string) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CreateCalls++
	if g.CreateErr != nil {
		return nil, g.CreateErr
	}
	minor, err := gateway.ToMinorUnits(amount)
	if err != nil {
		return nil, err
	}
	g.seq++
	o := gateway.Order{
		ID:       fmt.Sprintf("order_%06d", g.seq),
		Amount:   minor,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}
	g.orders[o.ID] = o
	return &o, nil
}

func (g *Gateway) FetchPayment(_ context.Context, paymentID string) (*gateway.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.FetchCalls++
	if g.FetchErr != nil {
		return nil, g.FetchErr
	}
	p, ok := g.payments[paymentID]
	if !ok {
		return nil, apperr.Validation("payment %s not found", paymentID)
	}
	return &p, nil
}

func (g *Gateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return gateway.VerifySignature(orderID, paymentID, signature, g.Secret)
}

// Pay simulates the checkout widget: it records a payment with status against orderID for the
// order's full amount and returns the payment id and a valid signature.
func (g *Gateway) Pay(orderID, status, method string) (paymentID, signature string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o := g.orders[orderID]
	g.seq++
	paymentID = fmt.Sprintf("pay_%06d", g.seq)
	raw, _ := json.Marshal(map[string]interface{}{"id": paymentID, "order_id": orderID, "status": status})
	g.payments[paymentID] = gateway.Payment{
		ID:       paymentID,
		OrderID:  orderID,
		Status:   status,
		Method:   method,
		Amount:   o.Amount,
		Currency: o.Currency,
		Raw:      raw,
	}
	return paymentID, gateway.Sign(orderID, paymentID, g.Secret)
}

// SetStatus changes the gateway-side status of a payment, e.g. authorized to captured.
func (g *Gateway) SetStatus(paymentID, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.payments[paymentID]
	p.Status = status
	g.payments[paymentID] = p
}

// Order returns a created order.
func (g *Gateway) Order(orderID string) (gateway.Order, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	return o, ok
}

// Publisher records published feed events.
type Publisher struct {
	mu     sync.Mutex
	Events []string
}

func (p *Publisher) Publish(_ context.Context, kind string, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, kind)
}

// Kinds returns a copy of the published kinds in order.
func (p *Publisher) Kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Events...)
}
