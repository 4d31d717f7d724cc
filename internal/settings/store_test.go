package settings

import (
	"context"
	"testing"
	"time"

	"options-core/pkg/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.ApplyMigrations(database))
	return database
}

func TestGetDefaultsToAutomatic(t *testing.T) {
	store := NewStore(newTestDB(t), time.Second)

	ts, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeAutomatic, ts.Mode)
}

func TestUpdatePersistsAndBypassesStaleCache(t *testing.T) {
	store := NewStore(newTestDB(t), time.Hour)
	ctx := context.Background()

	// Warm the cache with the default.
	_, err := store.Get(ctx)
	require.NoError(t, err)

	// A write must be visible immediately despite the long TTL.
	require.NoError(t, store.Update(ctx, TradeSettings{
		Mode:        ModeCustom,
		WinPercent:  2.5,
		LossPercent: 1.5,
	}))

	ts, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeCustom, ts.Mode)
	assert.Equal(t, 2.5, ts.WinPercent)
	assert.Equal(t, 1.5, ts.LossPercent)
}

func TestUpdateSurvivesRestart(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, NewStore(database, time.Second).Update(ctx, TradeSettings{Mode: ModeLoss}))

	// A fresh store over the same database sees the persisted value.
	ts, err := NewStore(database, time.Second).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeLoss, ts.Mode)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		in      TradeSettings
		wantErr bool
	}{
		{"disabled", TradeSettings{Mode: ModeDisabled}, false},
		{"automatic", TradeSettings{Mode: ModeAutomatic}, false},
		{"win without percentages", TradeSettings{Mode: ModeWin}, false},
		{"custom in range", TradeSettings{Mode: ModeCustom, WinPercent: 5, LossPercent: 3}, false},
		{"custom win too low", TradeSettings{Mode: ModeCustom, WinPercent: 0.01, LossPercent: 3}, true},
		{"custom win too high", TradeSettings{Mode: ModeCustom, WinPercent: 99.99, LossPercent: 3}, true},
		{"custom loss too low", TradeSettings{Mode: ModeCustom, WinPercent: 5, LossPercent: 0.001}, true},
		{"unknown mode", TradeSettings{Mode: "chaos"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpdateRejectsInvalidWithoutPersisting(t *testing.T) {
	store := NewStore(newTestDB(t), time.Second)
	ctx := context.Background()

	err := store.Update(ctx, TradeSettings{Mode: "chaos"})
	require.Error(t, err)

	ts, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeAutomatic, ts.Mode)
}
