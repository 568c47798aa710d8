package twitch_widget

import "time"

// RefreshThreshold is the minimum remaining lifetime a token must have to be
// used as-is; anything shorter is refreshed first.
const RefreshThreshold = time.Hour

// RemainingLifetime reports how long the access token stays valid after now.
// The boolean is false when the record carries no expiry.
func RemainingLifetime(record *TokenRecord, now time.Time) (time.Duration, bool) {
	if record.ExpiresAt.IsZero() {
		return 0, false
	}
	remaining := record.ExpiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

func NeedsRefresh(remaining time.Duration, known bool) bool {
	return !known || remaining < RefreshThreshold
}
