package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"market_pulse_backend/models"
)

type fakeChannel struct {
	name  string
	err   error
	block chan struct{}
	panic bool

	mu     sync.Mutex
	events []Event
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Deliver(ctx context.Context, event Event) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
	if f.panic {
		panic("boom")
	}
	return f.err
}

func (f *fakeChannel) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func triggeredAlert(id string, email, inApp bool) models.Alert {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return models.Alert{
		ID:                   id,
		OwnerID:              "owner-1",
		AssetClass:           models.AssetClassCrypto,
		AssetID:              "bitcoin",
		AssetName:            "Bitcoin",
		AssetSymbol:          "BTC",
		Direction:            models.DirectionBelow,
		TargetPrice:          decimal.NewFromInt(50),
		Triggered:            true,
		TriggeredAt:          &at,
		NotificationChannels: models.NotificationChannels{Email: email, InApp: inApp},
	}
}

func TestDispatchOneAttemptPerEnabledChannel(t *testing.T) {
	email := &fakeChannel{name: ChannelEmail}
	inApp := &fakeChannel{name: ChannelInApp}
	d := NewDispatcher(Options{Workers: 2, QueueSize: 4}, zap.NewNop(), email, inApp)
	d.Start(context.Background())

	ctx := context.Background()
	require.NoError(t, d.Dispatch(ctx, triggeredAlert("both", true, true), decimal.RequireFromString("49.99")))
	require.NoError(t, d.Dispatch(ctx, triggeredAlert("email-only", true, false), decimal.NewFromInt(1)))
	require.NoError(t, d.Dispatch(ctx, triggeredAlert("in-app-only", false, true), decimal.NewFromInt(1)))

	require.NoError(t, d.Stop(ctx))

	assert.Equal(t, 2, email.count())
	assert.Equal(t, 2, inApp.count())

	for _, ev := range email.events {
		assert.NotEqual(t, "in-app-only", ev.Alert.ID)
		assert.True(t, ev.At.Equal(*ev.Alert.TriggeredAt))
	}
}

func TestChannelFailureIsIsolated(t *testing.T) {
	email := &fakeChannel{name: ChannelEmail, err: errors.New("smtp down")}
	inApp := &fakeChannel{name: ChannelInApp, panic: true}
	d := NewDispatcher(Options{Workers: 1, QueueSize: 4}, zap.NewNop(), email, inApp)
	d.Start(context.Background())

	ctx := context.Background()
	require.NoError(t, d.Dispatch(ctx, triggeredAlert("a", true, true), decimal.NewFromInt(1)))
	require.NoError(t, d.Dispatch(ctx, triggeredAlert("b", true, true), decimal.NewFromInt(1)))
	require.NoError(t, d.Stop(ctx))

	// both channels were attempted for both alerts despite failures
	assert.Equal(t, 2, email.count())
	assert.Equal(t, 2, inApp.count())
}

func TestDispatchBlocksWhenQueueFull(t *testing.T) {
	release := make(chan struct{})
	inApp := &fakeChannel{name: ChannelInApp, block: release}
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1}, zap.NewNop(), inApp)
	d.Start(context.Background())

	ctx := context.Background()
	require.NoError(t, d.Dispatch(ctx, triggeredAlert("1", false, true), decimal.NewFromInt(1)))

	// worker is blocked on the first event; the second fills the queue
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, d.Dispatch(ctx, triggeredAlert("2", false, true), decimal.NewFromInt(1)))

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := d.Dispatch(short, triggeredAlert("3", false, true), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, d.Stop(ctx))
	assert.Equal(t, 2, inApp.count())
}

func TestDispatchAfterStop(t *testing.T) {
	d := NewDispatcher(Options{}, zap.NewNop())
	d.Start(context.Background())
	require.NoError(t, d.Stop(context.Background()))

	err := d.Dispatch(context.Background(), triggeredAlert("x", true, true), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestStopDeliversEveryAcceptedEvent(t *testing.T) {
	inApp := &fakeChannel{name: ChannelInApp}
	d := NewDispatcher(Options{Workers: 2, QueueSize: 4}, zap.NewNop(), inApp)
	d.Start(context.Background())
	ctx := context.Background()

	var accepted sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 50; i++ {
		accepted.Add(1)
		go func() {
			defer accepted.Done()
			if d.Dispatch(ctx, triggeredAlert("x", false, true), decimal.NewFromInt(1)) == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	require.NoError(t, d.Stop(ctx))
	accepted.Wait()

	assert.Equal(t, ok, inApp.count(), "an accepted event is never dropped")
	assert.Zero(t, d.Pending())
}

func TestMissingChannelIsSkipped(t *testing.T) {
	inApp := &fakeChannel{name: ChannelInApp}
	d := NewDispatcher(Options{Workers: 1}, zap.NewNop(), inApp)
	d.Start(context.Background())

	require.NoError(t, d.Dispatch(context.Background(), triggeredAlert("x", true, true), decimal.NewFromInt(1)))
	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, 1, inApp.count())
}
