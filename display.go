package twitch_widget

import (
	"errors"
	"fmt"
	"time"
)

const (
	ExitOK         = 0
	ExitTransient  = 1
	ExitNeedsAuth  = 2
	ExitConfigFail = 3

	// rotaPeriod is how long each rota line stays on screen.
	rotaPeriod = 5 * time.Second

	needsAuthLine   = "run w/ --auth"
	placeholderLine = "twitch: --"
)

// FormatUptime renders d as HH:MM:SS; hours are not wrapped at 24.
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

func DisplayRota(info StreamInfo, subscribers int, now time.Time) []string {
	var uptime time.Duration
	if info.Live {
		uptime = now.Sub(info.StartedAt)
	}
	return []string{
		fmt.Sprintf("    Viewers: %d     ", info.ViewerCount),
		fmt.Sprintf("  Subscribers: %d  ", subscribers),
		fmt.Sprintf("Stream 🕒: %s", FormatUptime(uptime)),
	}
}

// SelectLine picks the rota entry for now, advancing every five seconds.
func SelectLine(lines []string, now time.Time) string {
	if len(lines) == 0 {
		return placeholderLine
	}
	tick := now.Unix() / int64(rotaPeriod/time.Second)
	if tick < 0 {
		tick = -tick
	}
	return lines[tick%int64(len(lines))]
}

// StatusFor maps a fatal error to the line printed in place of the widget and
// the process exit code. The line is never empty, so the status bar keeps
// its layout.
func StatusFor(err error) (string, int) {
	switch {
	case err == nil:
		return "", ExitOK
	case errors.Is(err, ErrNoCredential),
		errors.Is(err, ErrCannotRefresh),
		errors.Is(err, ErrRefreshDenied),
		errors.Is(err, ErrUnauthorized):
		return needsAuthLine, ExitNeedsAuth
	default:
		return placeholderLine, ExitTransient
	}
}
