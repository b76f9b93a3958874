package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"market_pulse_backend/models"
)

type stubLookup struct{}

func (stubLookup) GetSingle(ctx context.Context, class models.AssetClass, id string) *models.CachedAsset {
	if id != "bitcoin" {
		return nil
	}
	return &models.CachedAsset{ID: "bitcoin", DisplayName: "Bitcoin", Symbol: "BTC"}
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newTestRepo(t))
	ctx := context.Background()

	base := CreateInput{
		OwnerID:     "u1",
		AssetClass:  "crypto",
		AssetID:     "bitcoin",
		Direction:   "above",
		TargetPrice: dec("100"),
	}

	cases := map[string]func(in *CreateInput){
		"missing owner":   func(in *CreateInput) { in.OwnerID = "" },
		"bad class":       func(in *CreateInput) { in.AssetClass = "forex" },
		"missing asset":   func(in *CreateInput) { in.AssetID = "  " },
		"bad direction":   func(in *CreateInput) { in.Direction = "sideways" },
		"zero target":     func(in *CreateInput) { in.TargetPrice = decimal.Zero },
		"negative target": func(in *CreateInput) { in.TargetPrice = dec("-1") },
		"no channel": func(in *CreateInput) {
			in.Channels = &models.NotificationChannels{}
		},
		"header break in symbol": func(in *CreateInput) { in.AssetSymbol = "BTC\r\nBcc: x@y.z" },
		"newline in name":        func(in *CreateInput) { in.AssetName = "Bit\ncoin" },
		"tab in asset":           func(in *CreateInput) { in.AssetID = "bit\tcoin" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			mutate(&in)
			_, err := svc.Create(ctx, in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	list, err := svc.List(ctx, "u1", Filter{})
	require.NoError(t, err)
	assert.Empty(t, list, "rejected input must not be persisted")
}

func TestCreateDefaults(t *testing.T) {
	svc := NewService(newTestRepo(t), stubLookup{}, zap.NewNop())

	alert := mustCreate(t, svc, CreateInput{
		OwnerID:     "u1",
		AssetClass:  "crypto",
		AssetID:     "Bitcoin",
		Direction:   "BELOW",
		TargetPrice: dec("42000.5"),
	})

	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, "bitcoin", alert.AssetID)
	assert.Equal(t, models.DirectionBelow, alert.Direction)
	assert.Equal(t, "Bitcoin", alert.AssetName)
	assert.Equal(t, "BTC", alert.AssetSymbol)
	assert.True(t, alert.IsActive)
	assert.False(t, alert.Triggered)
	assert.Equal(t, models.NotificationChannels{Email: true, InApp: true}, alert.NotificationChannels)

	stored, err := svc.Get(context.Background(), "u1", alert.ID)
	require.NoError(t, err)
	assert.True(t, stored.TargetPrice.Equal(dec("42000.5")))
	assert.False(t, stored.LastObservedPrice.Valid)
}

func TestCreateRejectsDuplicate(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService(repo)
	ctx := context.Background()

	in := CreateInput{OwnerID: "u1", AssetClass: "equity", AssetID: "AAPL", Direction: "above", TargetPrice: dec("200")}
	first := mustCreate(t, svc, in)

	same := in
	same.TargetPrice = dec("200.00")
	_, err := svc.Create(ctx, same)
	assert.ErrorIs(t, err, ErrDuplicate)

	// other owners, directions and targets are independent
	other := in
	other.OwnerID = "u2"
	mustCreate(t, svc, other)
	other = in
	other.Direction = "below"
	mustCreate(t, svc, other)
	other = in
	other.TargetPrice = dec("201")
	mustCreate(t, svc, other)

	// once the original triggers, an equivalent alert may be created again
	won, err := repo.MarkTriggered(ctx, first.ID, dec("205"), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, won)
	mustCreate(t, svc, in)
}

func TestUpdate(t *testing.T) {
	svc := newTestService(newTestRepo(t))
	ctx := context.Background()
	alert := mustCreate(t, svc, CreateInput{OwnerID: "u1", AssetClass: "crypto", AssetID: "eth", Direction: "above", TargetPrice: dec("3000")})

	paused := false
	target := dec("3500")
	updated, err := svc.Update(ctx, "u1", alert.ID, UpdateInput{
		TargetPrice: &target,
		IsActive:    &paused,
		Channels:    &models.NotificationChannels{Email: false, InApp: true},
	})
	require.NoError(t, err)
	assert.True(t, updated.TargetPrice.Equal(target))
	assert.False(t, updated.IsActive)
	assert.False(t, updated.NotificationChannels.Email)
	assert.True(t, updated.NotificationChannels.InApp)

	_, err = svc.Update(ctx, "u2", alert.ID, UpdateInput{IsActive: &paused})
	assert.ErrorIs(t, err, ErrNotFound)

	zero := decimal.Zero
	_, err = svc.Update(ctx, "u1", alert.ID, UpdateInput{TargetPrice: &zero})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Update(ctx, "u1", alert.ID, UpdateInput{Channels: &models.NotificationChannels{}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateResumeRejectsDuplicate(t *testing.T) {
	svc := newTestService(newTestRepo(t))
	ctx := context.Background()
	in := CreateInput{OwnerID: "u1", AssetClass: "crypto", AssetID: "eth", Direction: "above", TargetPrice: dec("3000")}

	first := mustCreate(t, svc, in)
	paused := false
	_, err := svc.Update(ctx, "u1", first.ID, UpdateInput{IsActive: &paused})
	require.NoError(t, err)

	mustCreate(t, svc, in)

	resumed := true
	_, err = svc.Update(ctx, "u1", first.ID, UpdateInput{IsActive: &resumed})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUpdateRejectedOnceTriggered(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService(repo)
	ctx := context.Background()
	alert := mustCreate(t, svc, CreateInput{OwnerID: "u1", AssetClass: "crypto", AssetID: "eth", Direction: "below", TargetPrice: dec("3000")})

	won, err := repo.MarkTriggered(ctx, alert.ID, dec("2999"), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, won)

	active := true
	target := dec("1")
	_, err = svc.Update(ctx, "u1", alert.ID, UpdateInput{TargetPrice: &target, IsActive: &active})
	assert.ErrorIs(t, err, ErrAlreadyTriggered)

	// the repository enforces it as well
	err = repo.UpdateOwned(ctx, "u1", alert.ID, OwnerUpdate{TargetPrice: &target})
	assert.ErrorIs(t, err, ErrAlreadyTriggered)

	stored, err := svc.Get(ctx, "u1", alert.ID)
	require.NoError(t, err)
	assert.True(t, stored.TargetPrice.Equal(dec("3000")))
	assert.True(t, stored.Triggered)
}

func TestListFilters(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService(repo)
	ctx := context.Background()

	btc := mustCreate(t, svc, CreateInput{OwnerID: "u1", AssetClass: "crypto", AssetID: "bitcoin", Direction: "above", TargetPrice: dec("1")})
	mustCreate(t, svc, CreateInput{OwnerID: "u1", AssetClass: "equity", AssetID: "AAPL", Direction: "above", TargetPrice: dec("1")})
	mustCreate(t, svc, CreateInput{OwnerID: "u2", AssetClass: "crypto", AssetID: "bitcoin", Direction: "above", TargetPrice: dec("1")})
	_, err := repo.MarkTriggered(ctx, btc.ID, dec("2"), time.Now().UTC())
	require.NoError(t, err)

	all, err := svc.List(ctx, "u1", Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	yes := true
	triggered, err := svc.List(ctx, "u1", Filter{Triggered: &yes})
	require.NoError(t, err)
	require.Len(t, triggered, 1)
	assert.Equal(t, btc.ID, triggered[0].ID)

	equities, err := svc.List(ctx, "u1", Filter{AssetClass: models.AssetClassEquity})
	require.NoError(t, err)
	require.Len(t, equities, 1)
	assert.Equal(t, "AAPL", equities[0].AssetID)

	byAsset, err := svc.List(ctx, "u2", Filter{AssetID: "bitcoin", Active: &yes})
	require.NoError(t, err)
	assert.Len(t, byAsset, 1)
}

func TestDeleteTriggeredOnlyRemovesTriggered(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService(repo)
	ctx := context.Background()

	var triggeredIDs []string
	for i := 0; i < 3; i++ {
		a := mustCreate(t, svc, CreateInput{OwnerID: "U", AssetClass: "crypto", AssetID: "x", Direction: "above", TargetPrice: decimal.NewFromInt(int64(10 + i))})
		won, err := repo.MarkTriggered(ctx, a.ID, dec("100"), time.Now().UTC())
		require.NoError(t, err)
		require.True(t, won)
		triggeredIDs = append(triggeredIDs, a.ID)
	}
	active := mustCreate(t, svc, CreateInput{OwnerID: "U", AssetClass: "crypto", AssetID: "x", Direction: "above", TargetPrice: dec("500")})
	paused := mustCreate(t, svc, CreateInput{OwnerID: "U", AssetClass: "crypto", AssetID: "x", Direction: "below", TargetPrice: dec("5")})
	off := false
	_, err := svc.Update(ctx, "U", paused.ID, UpdateInput{IsActive: &off})
	require.NoError(t, err)

	other := mustCreate(t, svc, CreateInput{OwnerID: "V", AssetClass: "crypto", AssetID: "x", Direction: "above", TargetPrice: dec("10")})
	_, err = repo.MarkTriggered(ctx, other.ID, dec("100"), time.Now().UTC())
	require.NoError(t, err)

	n, err := svc.DeleteTriggered(ctx, "U")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, id := range triggeredIDs {
		_, err := svc.Get(ctx, "U", id)
		assert.ErrorIs(t, err, ErrNotFound)
	}

	remaining, err := svc.Get(ctx, "U", active.ID)
	require.NoError(t, err)
	assert.True(t, remaining.IsActive)
	assert.False(t, remaining.Triggered)

	remaining, err = svc.Get(ctx, "U", paused.ID)
	require.NoError(t, err)
	assert.False(t, remaining.IsActive)
	assert.False(t, remaining.Triggered)

	_, err = svc.Get(ctx, "V", other.ID)
	assert.NoError(t, err, "other owners are untouched")
}

func TestDelete(t *testing.T) {
	svc := newTestService(newTestRepo(t))
	ctx := context.Background()
	alert := mustCreate(t, svc, CreateInput{OwnerID: "u1", AssetClass: "crypto", AssetID: "x", Direction: "above", TargetPrice: dec("1")})

	assert.ErrorIs(t, svc.Delete(ctx, "u2", alert.ID), ErrNotFound)
	require.NoError(t, svc.Delete(ctx, "u1", alert.ID))
	assert.ErrorIs(t, svc.Delete(ctx, "u1", alert.ID), ErrNotFound)
}
