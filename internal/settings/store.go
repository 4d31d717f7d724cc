// Package settings manages the platform-wide trade outcome override.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"options-core/pkg/db"
)

// Mode is the platform-wide trade outcome policy, read at settlement time.
type Mode string

const (
	ModeDisabled  Mode = "disabled"
	ModeAutomatic Mode = "automatic"
	ModeWin       Mode = "win"
	ModeLoss      Mode = "loss"
	ModeCustom    Mode = "custom"
)

// Setting keys in the admin_settings table.
const (
	keyMode        = "global_trade_mode"
	keyWinPercent  = "global_win_percentage"
	keyLossPercent = "global_loss_percentage"
)

// TradeSettings is the admin-controlled outcome configuration. Win/Loss
// percentages drive the synthetic exit price in custom mode.
type TradeSettings struct {
	Mode        Mode    `json:"globalMode"`
	WinPercent  float64 `json:"globalWinPercentage"`
	LossPercent float64 `json:"globalLossPercentage"`
}

// Validate checks mode and custom-mode percentage bounds.
func (t TradeSettings) Validate() error {
	switch t.Mode {
	case ModeDisabled, ModeAutomatic, ModeWin, ModeLoss:
		return nil
	case ModeCustom:
		if t.WinPercent <= 0.01 || t.WinPercent >= 99.99 {
			return fmt.Errorf("win percentage %v out of range (0.01, 99.99)", t.WinPercent)
		}
		if t.LossPercent <= 0.001 || t.LossPercent >= 99.99 {
			return fmt.Errorf("loss percentage %v out of range (0.001, 99.99)", t.LossPercent)
		}
		return nil
	default:
		return fmt.Errorf("unknown trade mode %q", t.Mode)
	}
}

// Store reads and writes trade settings with a short TTL cache so the
// settlement engine does not pay a database read per trade. Writes invalidate
// the cache immediately.
type Store struct {
	database *db.Database
	ttl      time.Duration

	mu        sync.RWMutex
	cached    TradeSettings
	fetchedAt time.Time
}

func NewStore(database *db.Database, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Store{database: database, ttl: ttl}
}

// Get returns the current settings, served from cache while fresh.
func (s *Store) Get(ctx context.Context) (TradeSettings, error) {
	s.mu.RLock()
	if time.Since(s.fetchedAt) < s.ttl {
		cached := s.cached
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	ts, err := s.load(ctx)
	if err != nil {
		return TradeSettings{}, err
	}

	s.mu.Lock()
	s.cached = ts
	s.fetchedAt = time.Now()
	s.mu.Unlock()
	return ts, nil
}

// Invalidate drops the cached value; the next Get hits the database.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.fetchedAt = time.Time{}
	s.mu.Unlock()
}

// Update validates, persists and invalidates in that order.
func (s *Store) Update(ctx context.Context, ts TradeSettings) error {
	if err := ts.Validate(); err != nil {
		return err
	}
	err := s.database.WithTx(ctx, func(tx *sql.Tx) error {
		pairs := map[string]string{
			keyMode:        string(ts.Mode),
			keyWinPercent:  strconv.FormatFloat(ts.WinPercent, 'f', -1, 64),
			keyLossPercent: strconv.FormatFloat(ts.LossPercent, 'f', -1, 64),
		}
		for k, v := range pairs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO admin_settings (key, value) VALUES (?, ?)
				ON CONFLICT(key) DO UPDATE SET
					value = excluded.value,
					updated_at = CURRENT_TIMESTAMP`, k, v); err != nil {
				return fmt.Errorf("write setting %s: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

func (s *Store) load(ctx context.Context) (TradeSettings, error) {
	ts := TradeSettings{Mode: ModeAutomatic}

	get := func(key string) (string, bool, error) {
		var v string
		err := s.database.DB.QueryRowContext(ctx,
			`SELECT value FROM admin_settings WHERE key = ?`, key).Scan(&v)
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		if err != nil {
			return "", false, fmt.Errorf("read setting %s: %w", key, err)
		}
		return v, true, nil
	}

	if v, ok, err := get(keyMode); err != nil {
		return ts, err
	} else if ok {
		ts.Mode = Mode(v)
	}
	if v, ok, err := get(keyWinPercent); err != nil {
		return ts, err
	} else if ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			ts.WinPercent = f
		}
	}
	if v, ok, err := get(keyLossPercent); err != nil {
		return ts, err
	} else if ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			ts.LossPercent = f
		}
	}
	return ts, nil
}
