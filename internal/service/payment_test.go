package service

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/shopspring/decimal"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/mock"
    "github.com/stretchr/testify/require"

    "github.com/wordCupProject/worldcup/internal/gateway"
    "github.com/wordCupProject/worldcup/internal/model"
    "github.com/wordCupProject/worldcup/internal/queue"
)

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type mockGateway struct{ mock.Mock }

func (g *mockGateway) ProcessPayment(ctx context.Context, p model.Payment) gateway.Outcome {
    return g.Called(p.ID).Get(0).(gateway.Outcome)
}

func (g *mockGateway) RefundPayment(ctx context.Context, p model.Payment) gateway.Outcome {
    return g.Called(p.ID).Get(0).(gateway.Outcome)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, ev queue.PaymentEvent) error {
    return m.Called(ev.Type, ev.PaymentID).Error(0)
}

// constSource always draws the same values.
type constSource struct{ f float64 }

func (c constSource) Float64() float64 { return c.f }
func (c constSource) Intn(int) int     { return 0 }

func approved() gateway.Outcome {
    return gateway.Outcome{Success: true, Code: gateway.CodePaymentSuccess, Message: "payment processed", RawResponse: `{"status":"success"}`}
}

func declined() gateway.Outcome {
    return gateway.Outcome{Success: false, Code: "CARD_DECLINED", Message: "card declined by the bank", RawResponse: `{"status":"failed"}`}
}

func validCard() *CardDetails {
    return &CardDetails{HolderName: "Yassine Bounou", Number: "4111 1111 1111 1111", ExpiryDate: "12/27", CVV: "123"}
}

func seedReservation(store *memStore, total string) model.Reservation {
    return store.addReservation(model.Reservation{
        UserID:         7,
        HotelID:        3,
        StartDate:      testNow.AddDate(0, 1, 0),
        EndDate:        testNow.AddDate(0, 1, 2),
        NumberOfRooms:  1,
        NumberOfGuests: 2,
        TotalPrice:     decimal.RequireFromString(total),
        PaymentStatus:  model.StatusPending,
    })
}

func newPayments(store *memStore, gw Gateway, events EventPublisher, policy RetryPolicy) *PaymentService {
    return NewPaymentService(store, gw, events, policy, nil).WithClock(func() time.Time { return testNow })
}

func requireCode(t *testing.T, err error, kind error, code string) {
    t.Helper()
    require.Error(t, err)
    var se *Error
    require.ErrorAs(t, err, &se)
    assert.Equal(t, code, se.Code)
    assert.ErrorIs(t, err, kind)
}

func TestInitiate_CreatesPendingPayment(t *testing.T) {
    store := newMemStore()
    r := seedReservation(store, "2000.00")
    svc := newPayments(store, &mockGateway{}, nil, "")

    p, err := svc.Initiate(context.Background(), InitiateInput{
        ReservationID: r.ID,
        Amount:        decimal.RequireFromString("2000"),
        Method:        model.MethodCreditCard,
        Card:          validCard(),
    })
    require.NoError(t, err)
    assert.Equal(t, model.StatusPending, p.Status)
    assert.Equal(t, r.ID, p.ReservationID)
    assert.Equal(t, r.UserID, p.UserID)
    assert.True(t, strings.HasPrefix(p.TransactionID, "TXN-"))
    require.NotNil(t, p.CardLastFour)
    assert.Equal(t, "1111", *p.CardLastFour)
    require.NotNil(t, p.CardHolderName)
    assert.Equal(t, "Yassine Bounou", *p.CardHolderName)
    assert.Nil(t, p.PaymentDate)
    assert.Nil(t, p.FailureReason)

    stored := store.payment(p.ID)
    assert.Equal(t, p.TransactionID, stored.TransactionID)
}

func TestInitiate_NonCardMethodKeepsNoCardData(t *testing.T) {
    store := newMemStore()
    r := seedReservation(store, "500")
    svc := newPayments(store, &mockGateway{}, nil, "")

    p, err := svc.Initiate(context.Background(), InitiateInput{
        ReservationID: r.ID,
        Amount:        decimal.NewFromInt(500),
        Method:        model.MethodPayPal,
        Card:          validCard(),
    })
    require.NoError(t, err)
    assert.Nil(t, p.CardHolderName)
    assert.Nil(t, p.CardLastFour)
}

func TestInitiate_TransactionIDsAreUnique(t *testing.T) {
    seen := map[string]bool{}
    for i := 0; i < 1000; i++ {
        id := NewTransactionID()
        require.False(t, seen[id])
        seen[id] = true
    }
}

func TestInitiate_Preconditions(t *testing.T) {
    cases := []struct {
        name   string
        mutate func(in *InitiateInput)
        kind   error
        code   string
    }{
        {"unknown reservation", func(in *InitiateInput) { in.ReservationID = 999 }, ErrNotFound, CodeReservationNotFound},
        {"zero amount", func(in *InitiateInput) { in.Amount = decimal.Zero }, ErrValidation, CodeInvalidAmount},
        {"negative amount", func(in *InitiateInput) { in.Amount = decimal.NewFromInt(-1) }, ErrValidation, CodeInvalidAmount},
        {"one cent short", func(in *InitiateInput) { in.Amount = decimal.RequireFromString("999.99") }, ErrValidation, CodeAmountMismatch},
        {"one cent over", func(in *InitiateInput) { in.Amount = decimal.RequireFromString("1000.01") }, ErrValidation, CodeAmountMismatch},
        {"unknown method", func(in *InitiateInput) { in.Method = "BITCOIN" }, ErrValidation, CodeInvalidMethod},
        {"missing card", func(in *InitiateInput) { in.Card = nil }, ErrValidation, CodeCardHolderRequired},
        {"blank holder", func(in *InitiateInput) { in.Card.HolderName = "   " }, ErrValidation, CodeCardHolderRequired},
        {"short card", func(in *InitiateInput) { in.Card.Number = "123" }, ErrValidation, CodeInvalidCardNumber},
        {"letters in card", func(in *InitiateInput) { in.Card.Number = "4111-1111-1111-1111" }, ErrValidation, CodeInvalidCardNumber},
        {"bad expiry month", func(in *InitiateInput) { in.Card.ExpiryDate = "13/25" }, ErrValidation, CodeInvalidExpiryDate},
        {"expired card", func(in *InitiateInput) { in.Card.ExpiryDate = "05/25" }, ErrValidation, CodeCardExpired},
        {"short cvv", func(in *InitiateInput) { in.Card.CVV = "12" }, ErrValidation, CodeInvalidCVV},
        {"long cvv", func(in *InitiateInput) { in.Card.CVV = "12345" }, ErrValidation, CodeInvalidCVV},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            store := newMemStore()
            r := seedReservation(store, "1000.00")
            svc := newPayments(store, &mockGateway{}, nil, "")
            in := InitiateInput{
                ReservationID: r.ID,
                Amount:        decimal.NewFromInt(1000),
                Method:        model.MethodDebitCard,
                Card:          validCard(),
            }
            tc.mutate(&in)

            _, err := svc.Initiate(context.Background(), in)
            requireCode(t, err, tc.kind, tc.code)

            _, err = store.LatestPaymentByReservation(context.Background(), r.ID)
            assert.Error(t, err, "no payment must be created")
        })
    }
}

func TestInitiate_AmountCheckedBeforeMethod(t *testing.T) {
    store := newMemStore()
    r := seedReservation(store, "1000")
    svc := newPayments(store, &mockGateway{}, nil, "")

    _, err := svc.Initiate(context.Background(), InitiateInput{
        ReservationID: r.ID,
        Amount:        decimal.NewFromInt(10),
        Method:        "BITCOIN",
    })
    requireCode(t, err, ErrValidation, CodeAmountMismatch)
}

func TestInitiate_CancelledReservation(t *testing.T) {
    store := newMemStore()
    r := seedReservation(store, "1000")
    r.PaymentStatus = model.StatusCancelled
    store.addReservation(r)
    svc := newPayments(store, &mockGateway{}, nil, "")

    _, err := svc.Initiate(context.Background(), InitiateInput{ReservationID: r.ID, Amount: decimal.NewFromInt(1000), Method: model.MethodCash})
    requireCode(t, err, ErrInvalidState, CodeReservationCancelled)
}

func TestSubmit_SuccessConfirmsPaymentAndReservation(t *testing.T) {
    store := newMemStore()
    r := seedReservation(store, "2000")
    gw := &mockGateway{}
    events := &mockPublisher{}
    svc := newPayments(store, gw, events, "")

    p, err := svc.Initiate(context.Background(), InitiateInput{ReservationID: r.ID, Amount: decimal.NewFromInt(2000), Method: model.MethodCreditCard, Card: validCard()})
    require.NoError(t, err)

    gw.On("ProcessPayment", p.ID).Return(approved()).Once()
    events.On("Publish", queue.EventPaymentConfirmed, p.ID).Return(nil).Once()

    got, err := svc.Submit(context.Background(), p.ID)
    require.NoError(t, err)
    assert.Equal(t, model.StatusConfirmed, got.Status)
    require.NotNil(t, got.PaymentDate)
    assert.Equal(t, testNow, *got.PaymentDate)
    require.NotNil(t, got.GatewayResponse)
    assert.JSONEq(t, `{"status":"success"}`, *got.GatewayResponse)
    assert.Nil(t, got.FailureReason)

    assert.Equal(t, model.StatusConfirmed, store.payment(p.ID).Status)
    assert.Equal(t, model.StatusConfirmed, store.reservation(r.ID).PaymentStatus)
    gw.AssertExpectations(t)
    events.AssertExpectations(t)
}

func TestSubmit_FailureLeavesReservationUntouched(t *testing.T) {
    store := newMemStore()
    r := seedReservation(store, "2000")
    gw := &mockGateway{}
    events := &mockPublisher{}
    svc := newPayments(store, gw, events, "")

    p, err := svc.Initiate(context.Background(), InitiateInput{ReservationID: r.ID, Amount: decimal.NewFromInt(2000), Method: model.MethodBankTransfer})
    require.NoError(t, err)

    gw.On("ProcessPayment", p.ID).Return(declined()).Once()
    events.On("Publish", queue.EventPaymentFailed, p.ID).Return(errors.New("broker down")).Once()

    got, err := svc.Submit(context.Background(), p.ID)
    require.NoError(t, err, "publish failures are not fatal")
    assert.Equal(t, model.StatusFailed, got.Status)
    require.NotNil(t, got.FailureReason)
    assert.Equal(t, "card declined by the bank", *got.FailureReason)
    assert.Nil(t, got.PaymentDate)
    assert.Equal(t, model.StatusPending, store.reservation(r.ID).PaymentStatus)
    events.AssertExpectations(t)
}

func TestSubmit_OnlyPending(t *testing.T) {
    store := newMemStore()
    r := seedReservation(store, "100")
    gw := &mockGateway{}
    svc := newPayments(store, gw, nil, "")

    p, err := svc.Initiate(context.Background(), InitiateInput{ReservationID: r.ID, Amount: decimal.NewFromInt(100), Method: model.MethodCash})
    require.NoError(t, err)
    gw.On("ProcessPayment", p.ID).Return(approved()).Once()
    _, err = svc.Submit(context.Background(), p.ID)
    require.NoError(t, err)

    _, err = svc.Submit(context.Background(), p.ID)
    requireCode(t, err, ErrInvalidState, CodeNotPending)
    gw.AssertNumberOfCalls(t, "ProcessPayment", 1)

    _, err = svc.Submit(context.Background(), 12345)
    requireCode(t, err, ErrNotFound, CodePaymentNotFound)
}

func TestSubmit_InterruptedGatewayCallFailsPayment(t *testing.T) {
    store := newMemStore()
    r := seedReservation(store, "100")
    sim := gateway.NewSimulator(constSource{f: 0.5}, gateway.Latency{Min: time.Minute, Max: time.Minute}, nil)
    svc := newPayments(store, sim, nil, "")

    p, err := svc.Initiate(context.Background(), InitiateInput{ReservationID: r.ID, Amount: decimal.NewFromInt(100), Method: model.MethodCash})
    require.NoError(t, err)

    ctx, cancel := context.WithCancel(context.Background())
    cancel()
    got, err := svc.Submit(ctx, p.ID)
    require.NoError(t, err)
    assert.Equal(t, model.StatusFailed, got.Status)
    assert.Equal(t, model.StatusFailed, store.payment(p.ID).Status)
    assert.Equal(t, model.StatusPending, store.reservation(r.ID).PaymentStatus)
}

func TestSubmit_StorageErrorRollsBack(t *testing.T) {
    store := newMemStore()
    r := seedReservation(store, "100")
    gw := &mockGateway{}
    svc := newPayments(store, gw, nil, "")

    p, err := svc.Initiate(context.Background(), InitiateInput{ReservationID: r.ID, Amount: decimal.NewFromInt(100), Method: model.MethodCash})
    require.NoError(t, err)
    gw.On("ProcessPayment", p.ID).Return(approved())
    store.failUpdate = errors.New("disk full")

    _, err = svc.Submit(context.Background(), p.ID)
    require.Error(t, err)
    assert.Equal(t, model.StatusPending, store.payment(p.ID).Status)
    assert.Equal(t, model.StatusPending, store.reservation(r.ID).PaymentStatus)
}

func TestSubmit_NeverLeavesPending(t *testing.T) {
    for seed := int64(1); seed <= 50; seed++ {
        store := newMemStore()
        r := seedReservation(store, "7000")
        sim := gateway.NewSimulator(gateway.NewRandomSource(seed), gateway.Latency{}, nil)
        svc := newPayments(store, sim, nil, "")

        got, err := svc.MakePayment(context.Background(), InitiateInput{ReservationID: r.ID, Amount: decimal.NewFromInt(7000), Method: model.MethodDebitCard, Card: validCard()})
        require.NoError(t, err)
        require.Contains(t, []model.PaymentStatus{model.StatusConfirmed, model.StatusFailed}, got.Status)

        want := model.StatusPending
        if got.Status == model.StatusConfirmed {
            want = model.StatusConfirmed
        }
        assert.Equal(t, want, store.reservation(r.ID).PaymentStatus)
    }
}

func TestEndToEnd_ConfirmedThenSecondInitiateFails(t *testing.T) {
    store := newMemStore()
    r := seedReservation(store, "2000")
    sim := gateway.NewSimulator(constSource{f: 0.5}, gateway.Latency{}, nil)
    svc := newPayments(store, sim, nil, "")
    in := InitiateInput{ReservationID: r.ID, Amount: decimal.NewFromInt(2000), Method: model.MethodCreditCard, Card: validCard()}

    p1, err := svc.Initiate(context.Background(), in)
    require.NoError(t, err)
    assert.Equal(t, model.StatusPending, p1.Status)

    p1, err = svc.Submit(context.Background(), p1.ID)
    require.NoError(t, err)
    require.Equal(t, model.StatusConfirmed, p1.Status)
    assert.Equal(t, model.StatusConfirmed, store.reservation(r.ID).PaymentStatus)

    _, err = svc.Initiate(context.Background(), in)
    requireCode(t, err, ErrInvalidState, CodeAlreadyPaid)

    got, err := svc.GetByReservation(context.Background(), r.ID)
    require.NoError(t, err)
    assert.Equal(t, p1.ID, got.ID)
}

func TestRetryPolicy(t *testing.T) {
    setup := func(policy RetryPolicy) (*memStore, *PaymentService, model.Reservation, *mockGateway) {
        store := newMemStore()
        r := seedReservation(store, "300")
        gw := &mockGateway{}
        return store, newPayments(store, gw, nil, policy), r, gw
    }
    in := func(r model.Reservation) InitiateInput {
        return InitiateInput{ReservationID: r.ID, Amount: decimal.NewFromInt(300), Method: model.MethodMobilePayment}
    }

    t.Run("pending blocks", func(t *testing.T) {
        _, svc, r, _ := setup(RetryAfterFailure)
        _, err := svc.Initiate(context.Background(), in(r))
        require.NoError(t, err)
        _, err = svc.Initiate(context.Background(), in(r))
        requireCode(t, err, ErrInvalidState, CodePaymentPending)
    })

    t.Run("failed allows retry by default", func(t *testing.T) {
        store, svc, r, gw := setup(RetryAfterFailure)
        p, err := svc.Initiate(context.Background(), in(r))
        require.NoError(t, err)
        gw.On("ProcessPayment", p.ID).Return(declined())
        _, err = svc.Submit(context.Background(), p.ID)
        require.NoError(t, err)

        p2, err := svc.Initiate(context.Background(), in(r))
        require.NoError(t, err)
        assert.NotEqual(t, p.ID, p2.ID)
        assert.NotEqual(t, p.TransactionID, p2.TransactionID)
        latest, err := store.LatestPaymentByReservation(context.Background(), r.ID)
        require.NoError(t, err)
        assert.Equal(t, p2.ID, latest.ID)
    })

    t.Run("cancelled allows retry by default", func(t *testing.T) {
        _, svc, r, _ := setup(RetryAfterFailure)
        p, err := svc.Initiate(context.Background(), in(r))
        require.NoError(t, err)
        _, err = svc.Cancel(context.Background(), p.ID)
        require.NoError(t, err)
        _, err = svc.Initiate(context.Background(), in(r))
        require.NoError(t, err)
    })

    t.Run("strict blocks after failure", func(t *testing.T) {
        _, svc, r, gw := setup(RetryStrict)
        p, err := svc.Initiate(context.Background(), in(r))
        require.NoError(t, err)
        gw.On("ProcessPayment", p.ID).Return(declined())
        _, err = svc.Submit(context.Background(), p.ID)
        require.NoError(t, err)
        _, err = svc.Initiate(context.Background(), in(r))
        requireCode(t, err, ErrInvalidState, CodePaymentExists)
    })

    assert.Equal(t, RetryStrict, ParseRetryPolicy(" STRICT "))
    assert.Equal(t, RetryAfterFailure, ParseRetryPolicy(""))
    assert.Equal(t, RetryAfterFailure, ParseRetryPolicy("whatever"))
}

func TestInitiate_ConcurrentCallsCreateOnePayment(t *testing.T) {
    store := newMemStore()
    r := seedReservation(store, "1500")
    svc := newPayments(store, &mockGateway{}, nil, "")

    const n = 20
    var (
        wg       sync.WaitGroup
        mu       sync.Mutex
        ok       int
        rejected int
    )
    for i := 0; i < n; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            _, err := svc.Initiate(context.Background(), InitiateInput{ReservationID: r.ID, Amount: decimal.NewFromInt(1500), Method: model.MethodCash})
            mu.Lock()
            defer mu.Unlock()
            if err == nil {
                ok++
            } else if errors.Is(err, ErrInvalidState) {
                rejected++
            }
        }()
    }
    wg.Wait()
    assert.Equal(t, 1, ok)
    assert.Equal(t, n-1, rejected)
}

func TestRefund(t *testing.T) {
    confirmed := func(t *testing.T) (*memStore, *mockGateway, *mockPublisher, *PaymentService, model.Payment) {
        store := newMemStore()
        r := seedReservation(store, "800")
        gw := &mockGateway{}
        events := &mockPublisher{}
        svc := newPayments(store, gw, events, "")
        p, err := svc.Initiate(context.Background(), InitiateInput{ReservationID: r.ID, Amount: decimal.NewFromInt(800), Method: model.MethodPayPal})
        require.NoError(t, err)
        gw.On("ProcessPayment", p.ID).Return(approved()).Once()
        events.On("Publish", queue.EventPaymentConfirmed, p.ID).Return(nil).Once()
        p, err = svc.Submit(context.Background(), p.ID)
        require.NoError(t, err)
        return store, gw, events, svc, p
    }

    t.Run("success", func(t *testing.T) {
        store, gw, events, svc, p := confirmed(t)
        gw.On("RefundPayment", p.ID).Return(gateway.Outcome{Success: true, Code: gateway.CodeRefundSuccess, RawResponse: `{"refund_id":"REF-1","status":"completed"}`}).Once()
        events.On("Publish", queue.EventPaymentRefunded, p.ID).Return(nil).Once()

        got, err := svc.Refund(context.Background(), p.ID)
        require.NoError(t, err)
        assert.Equal(t, model.StatusRefunded, got.Status)
        assert.Equal(t, model.StatusRefunded, store.reservation(p.ReservationID).PaymentStatus)
        events.AssertExpectations(t)

        _, err = svc.Refund(context.Background(), p.ID)
        requireCode(t, err, ErrInvalidState, CodeNotConfirmed)

        _, err = svc.Initiate(context.Background(), InitiateInput{ReservationID: p.ReservationID, Amount: decimal.NewFromInt(800), Method: model.MethodPayPal})
        requireCode(t, err, ErrInvalidState, CodeAlreadyPaid)
    })

    t.Run("gateway declines", func(t *testing.T) {
        store, gw, _, svc, p := confirmed(t)
        gw.On("RefundPayment", p.ID).Return(gateway.Outcome{Success: false, Code: gateway.CodeRefundFailed}).Once()

        _, err := svc.Refund(context.Background(), p.ID)
        assert.ErrorIs(t, err, ErrRefundFailed)
        assert.ErrorIs(t, err, ErrGateway)
        assert.Equal(t, model.StatusConfirmed, store.payment(p.ID).Status)
        assert.Equal(t, model.StatusConfirmed, store.reservation(p.ReservationID).PaymentStatus)
    })

    t.Run("pending and failed are rejected", func(t *testing.T) {
        store := newMemStore()
        r := seedReservation(store, "50")
        gw := &mockGateway{}
        svc := newPayments(store, gw, nil, "")
        p, err := svc.Initiate(context.Background(), InitiateInput{ReservationID: r.ID, Amount: decimal.NewFromInt(50), Method: model.MethodCash})
        require.NoError(t, err)

        _, err = svc.Refund(context.Background(), p.ID)
        requireCode(t, err, ErrInvalidState, CodeNotConfirmed)

        gw.On("ProcessPayment", p.ID).Return(declined())
        _, err = svc.Submit(context.Background(), p.ID)
        require.NoError(t, err)
        _, err = svc.Refund(context.Background(), p.ID)
        requireCode(t, err, ErrInvalidState, CodeNotConfirmed)
        gw.AssertNotCalled(t, "RefundPayment", p.ID)
    })
}

func TestCancel(t *testing.T) {
    store := newMemStore()
    r := seedReservation(store, "2000")
    gw := &mockGateway{}
    svc := newPayments(store, gw, nil, "")

    p, err := svc.Initiate(context.Background(), InitiateInput{ReservationID: r.ID, Amount: decimal.NewFromInt(2000), Method: model.MethodCreditCard, Card: validCard()})
    require.NoError(t, err)

    got, err := svc.Cancel(context.Background(), p.ID)
    require.NoError(t, err)
    assert.Equal(t, model.StatusCancelled, got.Status)
    require.NotNil(t, got.FailureReason)
    assert.Equal(t, CancelledByUser, *got.FailureReason)
    assert.Equal(t, model.StatusPending, store.reservation(r.ID).PaymentStatus)

    _, err = svc.Cancel(context.Background(), p.ID)
    requireCode(t, err, ErrInvalidState, CodeNotPending)

    _, err = svc.Submit(context.Background(), p.ID)
    requireCode(t, err, ErrInvalidState, CodeNotPending)
    gw.AssertNotCalled(t, "ProcessPayment", p.ID)
}

func TestLookups(t *testing.T) {
    store := newMemStore()
    r := seedReservation(store, "10")
    svc := newPayments(store, &mockGateway{}, nil, "")

    _, err := svc.GetByReservation(context.Background(), r.ID)
    requireCode(t, err, ErrNotFound, CodePaymentNotFound)
    _, err = svc.GetByID(context.Background(), 404)
    requireCode(t, err, ErrNotFound, CodePaymentNotFound)

    p, err := svc.Initiate(context.Background(), InitiateInput{ReservationID: r.ID, Amount: decimal.NewFromInt(10), Method: model.MethodCash})
    require.NoError(t, err)

    got, err := svc.GetByID(context.Background(), p.ID)
    require.NoError(t, err)
    assert.Equal(t, p.TransactionID, got.TransactionID)

    list, err := svc.ListByUser(context.Background(), r.UserID)
    require.NoError(t, err)
    require.Len(t, list, 1)
    assert.Equal(t, p.ID, list[0].ID)

    list, err = svc.ListByUser(context.Background(), 999)
    require.NoError(t, err)
    assert.Empty(t, list)
}

func TestTransitions_LockReservationBeforePayment(t *testing.T) {
    store := newMemStore()
    gw := &mockGateway{}
    svc := newPayments(store, gw, nil, "")
    initiate := func() model.Payment {
        r := seedReservation(store, "300")
        p, err := svc.Initiate(context.Background(), InitiateInput{ReservationID: r.ID, Amount: decimal.NewFromInt(300), Method: model.MethodCash})
        require.NoError(t, err)
        store.takeLocks()
        return p
    }
    order := func(p model.Payment) []string {
        return []string{fmt.Sprintf("reservation:%d", p.ReservationID), fmt.Sprintf("payment:%d", p.ID)}
    }

    p := initiate()
    gw.On("ProcessPayment", p.ID).Return(approved()).Once()
    _, err := svc.Submit(context.Background(), p.ID)
    require.NoError(t, err)
    assert.Equal(t, order(p), store.takeLocks(), "submit")

    gw.On("RefundPayment", p.ID).Return(gateway.Outcome{Success: true, Code: gateway.CodeRefundSuccess, RawResponse: `{}`}).Once()
    _, err = svc.Refund(context.Background(), p.ID)
    require.NoError(t, err)
    assert.Equal(t, order(p), store.takeLocks(), "refund")

    p = initiate()
    _, err = svc.Cancel(context.Background(), p.ID)
    require.NoError(t, err)
    assert.Equal(t, order(p), store.takeLocks(), "cancel")

    p = initiate()
    _, err = newReservations(store).Cancel(context.Background(), p.ReservationID)
    require.NoError(t, err)
    assert.Equal(t, order(p), store.takeLocks(), "reservation cancel")

    _, err = svc.Submit(context.Background(), 999)
    requireCode(t, err, ErrNotFound, CodePaymentNotFound)
    assert.Empty(t, store.takeLocks())
}

// stalledPublisher blocks until its context is done.
type stalledPublisher struct{ calls int }

func (s *stalledPublisher) Publish(ctx context.Context, ev queue.PaymentEvent) error {
    s.calls++
    <-ctx.Done()
    return ctx.Err()
}

func TestSubmit_StalledBrokerDoesNotHoldResponse(t *testing.T) {
    store := newMemStore()
    r := seedReservation(store, "120")
    gw := &mockGateway{}
    events := &stalledPublisher{}
    svc := newPayments(store, gw, events, "")
    svc.publishTimeout = 50 * time.Millisecond

    p, err := svc.Initiate(context.Background(), InitiateInput{ReservationID: r.ID, Amount: decimal.NewFromInt(120), Method: model.MethodCash})
    require.NoError(t, err)
    gw.On("ProcessPayment", p.ID).Return(approved()).Once()

    start := time.Now()
    got, err := svc.Submit(context.Background(), p.ID)
    require.NoError(t, err)
    assert.Less(t, time.Since(start), time.Second)
    assert.Equal(t, model.StatusConfirmed, got.Status)
    assert.Equal(t, model.StatusConfirmed, store.payment(p.ID).Status)
    assert.Equal(t, 1, events.calls)
}
