package service

import (
    "context"
    "database/sql"
    "fmt"
    "sort"
    "sync"
    "time"

    "github.com/wordCupProject/worldcup/internal/model"
)

// memStore is an in-memory PaymentStore, ReservationStore and UserStore.
// A transaction holds the store mutex for its whole duration, which
// gives the same mutual exclusion as the row locks taken by MySQL.
type memStore struct {
    mu           sync.Mutex
    reservations map[uint64]model.Reservation
    payments     map[uint64]model.Payment
    users        map[uint64]model.User
    nextID       uint64
    failUpdate   error
    locks        []string
}

func newMemStore() *memStore {
    return &memStore{
        reservations: map[uint64]model.Reservation{},
        payments:     map[uint64]model.Payment{},
        users:        map[uint64]model.User{},
    }
}

func (m *memStore) id() uint64 {
    m.nextID++
    return m.nextID
}

func (m *memStore) addReservation(r model.Reservation) model.Reservation {
    m.mu.Lock()
    defer m.mu.Unlock()
    if r.ID == 0 {
        r.ID = m.id()
    }
    m.reservations[r.ID] = r
    return r
}

func (m *memStore) reservation(id uint64) model.Reservation {
    m.mu.Lock()
    defer m.mu.Unlock()
    return m.reservations[id]
}

// takeLocks returns the row locks taken since the last call.
func (m *memStore) takeLocks() []string {
    m.mu.Lock()
    defer m.mu.Unlock()
    out := m.locks
    m.locks = nil
    return out
}

func (m *memStore) payment(id uint64) model.Payment {
    m.mu.Lock()
    defer m.mu.Unlock()
    return m.payments[id]
}

func (m *memStore) WithTx(ctx context.Context, fn func(tx PaymentTx) error) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    resSnap := make(map[uint64]model.Reservation, len(m.reservations))
    for k, v := range m.reservations {
        resSnap[k] = v
    }
    paySnap := make(map[uint64]model.Payment, len(m.payments))
    for k, v := range m.payments {
        paySnap[k] = v
    }
    if err := fn(&memTx{m: m}); err != nil {
        m.reservations, m.payments = resSnap, paySnap
        return err
    }
    return nil
}

func (m *memStore) PaymentByID(ctx context.Context, id uint64) (model.Payment, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    p, ok := m.payments[id]
    if !ok {
        return model.Payment{}, sql.ErrNoRows
    }
    return p, nil
}

func (m *memStore) LatestPaymentByReservation(ctx context.Context, reservationID uint64) (model.Payment, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    return m.latest(reservationID)
}

func (m *memStore) latest(reservationID uint64) (model.Payment, error) {
    var best model.Payment
    found := false
    for _, p := range m.payments {
        if p.ReservationID == reservationID && p.ID > best.ID {
            best, found = p, true
        }
    }
    if !found {
        return model.Payment{}, sql.ErrNoRows
    }
    return best, nil
}

func (m *memStore) PaymentsByUser(ctx context.Context, userID uint64) ([]model.Payment, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    out := []model.Payment{}
    for _, p := range m.payments {
        if p.UserID == userID {
            out = append(out, p)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
    return out, nil
}

func (m *memStore) InsertReservation(ctx context.Context, r *model.Reservation) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    r.ID = m.id()
    r.CreatedAt = time.Now().UTC()
    m.reservations[r.ID] = *r
    return nil
}

func (m *memStore) ReservationByID(ctx context.Context, id uint64) (model.Reservation, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    r, ok := m.reservations[id]
    if !ok {
        return model.Reservation{}, sql.ErrNoRows
    }
    return r, nil
}

func (m *memStore) ReservationsByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
    all, _ := m.AllReservations(ctx)
    out := []model.Reservation{}
    for _, r := range all {
        if r.UserID == userID {
            out = append(out, r)
        }
    }
    return out, nil
}

func (m *memStore) AllReservations(ctx context.Context) ([]model.Reservation, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    out := []model.Reservation{}
    for _, r := range m.reservations {
        out = append(out, r)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
    return out, nil
}

func (m *memStore) CreateUser(ctx context.Context, u *model.User) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    for _, existing := range m.users {
        if existing.Email == u.Email {
            return ErrEmailExists
        }
    }
    u.ID = m.id()
    u.CreatedAt = time.Now().UTC()
    m.users[u.ID] = *u
    return nil
}

func (m *memStore) UserByEmail(ctx context.Context, email string) (model.User, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    for _, u := range m.users {
        if u.Email == email {
            return u, nil
        }
    }
    return model.User{}, sql.ErrNoRows
}

func (m *memStore) UserByID(ctx context.Context, id uint64) (model.User, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    u, ok := m.users[id]
    if !ok {
        return model.User{}, sql.ErrNoRows
    }
    return u, nil
}

// memTx runs with memStore.mu held.
type memTx struct{ m *memStore }

func (t *memTx) ReservationForUpdate(ctx context.Context, id uint64) (model.Reservation, error) {
    t.m.locks = append(t.m.locks, fmt.Sprintf("reservation:%d", id))
    r, ok := t.m.reservations[id]
    if !ok {
        return model.Reservation{}, sql.ErrNoRows
    }
    return r, nil
}

func (t *memTx) LatestPaymentByReservation(ctx context.Context, reservationID uint64) (model.Payment, error) {
    return t.m.latest(reservationID)
}

func (t *memTx) PaymentByID(ctx context.Context, id uint64) (model.Payment, error) {
    p, ok := t.m.payments[id]
    if !ok {
        return model.Payment{}, sql.ErrNoRows
    }
    return p, nil
}

func (t *memTx) PaymentForUpdate(ctx context.Context, id uint64) (model.Payment, error) {
    t.m.locks = append(t.m.locks, fmt.Sprintf("payment:%d", id))
    p, ok := t.m.payments[id]
    if !ok {
        return model.Payment{}, sql.ErrNoRows
    }
    return p, nil
}

func (t *memTx) InsertPayment(ctx context.Context, p *model.Payment) error {
    p.ID = t.m.id()
    now := time.Now().UTC()
    p.CreatedAt, p.UpdatedAt = now, now
    t.m.payments[p.ID] = *p
    return nil
}

func (t *memTx) UpdatePayment(ctx context.Context, p *model.Payment) error {
    if t.m.failUpdate != nil {
        return t.m.failUpdate
    }
    if _, ok := t.m.payments[p.ID]; !ok {
        return sql.ErrNoRows
    }
    p.UpdatedAt = time.Now().UTC()
    t.m.payments[p.ID] = *p
    return nil
}

func (t *memTx) SetReservationStatus(ctx context.Context, reservationID uint64, status model.PaymentStatus) error {
    r, ok := t.m.reservations[reservationID]
    if !ok {
        return sql.ErrNoRows
    }
    r.PaymentStatus = status
    t.m.reservations[reservationID] = r
    return nil
}
