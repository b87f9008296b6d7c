package router

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/wordCupProject/worldcup/internal/model"
	"github.com/wordCupProject/worldcup/internal/service"
)

// fakeStore keeps users, reservations and payments in memory.  A
// transaction holds the mutex until it returns; there is no rollback.
type fakeStore struct {
	mu           sync.Mutex
	users        map[uint64]model.User
	reservations map[uint64]model.Reservation
	payments     map[uint64]model.Payment
	seq          uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        map[uint64]model.User{},
		reservations: map[uint64]model.Reservation{},
		payments:     map[uint64]model.Payment{},
	}
}

func (f *fakeStore) next() uint64 { f.seq++; return f.seq }

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.users {
		if x.Email == u.Email {
			return service.ErrEmailExists
		}
	}
	u.ID, u.CreatedAt = f.next(), time.Now().UTC()
	f.users[u.ID] = *u
	return nil
}

func (f *fakeStore) UserByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeStore) UserByID(_ context.Context, id uint64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeStore) InsertReservation(_ context.Context, r *model.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ID, r.CreatedAt = f.next(), time.Now().UTC()
	f.reservations[r.ID] = *r
	return nil
}

func (f *fakeStore) ReservationByID(_ context.Context, id uint64) (model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.reservations[id]; ok {
		return r, nil
	}
	return model.Reservation{}, sql.ErrNoRows
}

func (f *fakeStore) ReservationsByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	all, _ := f.AllReservations(ctx)
	out := []model.Reservation{}
	for _, r := range all {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) AllReservations(context.Context) ([]model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Reservation{}
	for _, r := range f.reservations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

func (f *fakeStore) WithTx(_ context.Context, fn func(tx service.PaymentTx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(fakeTx{f})
}

func (f *fakeStore) PaymentByID(_ context.Context, id uint64) (model.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.payments[id]; ok {
		return p, nil
	}
	return model.Payment{}, sql.ErrNoRows
}

func (f *fakeStore) LatestPaymentByReservation(_ context.Context, rid uint64) (model.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest(rid)
}

func (f *fakeStore) latest(rid uint64) (model.Payment, error) {
	var best model.Payment
	for _, p := range f.payments {
		if p.ReservationID == rid && p.ID > best.ID {
			best = p
		}
	}
	if best.ID == 0 {
		return model.Payment{}, sql.ErrNoRows
	}
	return best, nil
}

func (f *fakeStore) PaymentsByUser(_ context.Context, userID uint64) ([]model.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Payment{}
	for _, p := range f.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

type fakeTx struct{ f *fakeStore }

func (t fakeTx) ReservationForUpdate(_ context.Context, id uint64) (model.Reservation, error) {
	if r, ok := t.f.reservations[id]; ok {
		return r, nil
	}
	return model.Reservation{}, sql.ErrNoRows
}

func (t fakeTx) LatestPaymentByReservation(_ context.Context, rid uint64) (model.Payment, error) {
	return t.f.latest(rid)
}

func (t fakeTx) PaymentByID(ctx context.Context, id uint64) (model.Payment, error) {
	return t.PaymentForUpdate(ctx, id)
}

func (t fakeTx) PaymentForUpdate(_ context.Context, id uint64) (model.Payment, error) {
	if p, ok := t.f.payments[id]; ok {
		return p, nil
	}
	return model.Payment{}, sql.ErrNoRows
}

func (t fakeTx) InsertPayment(_ context.Context, p *model.Payment) error {
	p.ID = t.f.next()
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	t.f.payments[p.ID] = *p
	return nil
}

func (t fakeTx) UpdatePayment(_ context.Context, p *model.Payment) error {
	p.UpdatedAt = time.Now().UTC()
	t.f.payments[p.ID] = *p
	return nil
}

func (t fakeTx) SetReservationStatus(_ context.Context, id uint64, status model.PaymentStatus) error {
	r, ok := t.f.reservations[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.PaymentStatus = status
	t.f.reservations[id] = r
	return nil
}
