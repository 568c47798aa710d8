package twitch_widget

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNoCredential = errors.New("no usable stored credential")

// TokenLifecycleManager hands out an access token that is valid for at least
// RefreshThreshold, refreshing and re-storing it when needed.
type TokenLifecycleManager struct {
	store   TokenStore
	gateway RefreshGateway

	// OnWarning receives non-fatal failures, such as a refreshed token that
	// could not be written back. Defaults to logging.
	OnWarning func(error)
}

func NewTokenLifecycleManager(store TokenStore, gateway RefreshGateway) *TokenLifecycleManager {
	return &TokenLifecycleManager{
		store:   store,
		gateway: gateway,
		OnWarning: func(err error) {
			Log.Warnf("%v", err)
		},
	}
}

func (m *TokenLifecycleManager) GetUsableToken(ctx context.Context, path string, now time.Time) (*TokenRecord, error) {
	record, err := m.store.Load(path)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorrupt) {
			return nil, fmt.Errorf("%w: %w", ErrNoCredential, err)
		}
		return nil, err
	}

	remaining, known := RemainingLifetime(record, now)
	if !NeedsRefresh(remaining, known) {
		Log.Debugf("token valid for another %s", remaining.Round(time.Second))
		return record, nil
	}

	if !record.CanRefresh() {
		return nil, ErrCannotRefresh
	}
	if known {
		Log.Infof("token expiring in %s, attempting refresh", remaining.Round(time.Second))
	} else {
		Log.Info("token has no expiration time, attempting refresh")
	}

	refreshed, err := m.gateway.Refresh(ctx, record)
	if err != nil {
		return nil, err
	}

	if err := m.store.Save(path, refreshed); err != nil {
		m.warn(fmt.Errorf("refreshed token not stored: %w", err))
	}
	return refreshed, nil
}

func (m *TokenLifecycleManager) warn(err error) {
	if m.OnWarning != nil {
		m.OnWarning(err)
	}
}
