package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/barterhub/backend/internal/cache"
	"github.com/barterhub/backend/internal/config"
)

// TooManyAttemptsError marks a brute-force trip, as opposed to the generic
// request rate limit, so the caller can present a longer cool-down.
// Distributed is set when the per-target counter tripped: failures arrived
// from many device/origin pairs aimed at one identity.
type TooManyAttemptsError struct {
	Distributed bool
	RetryAfter  time.Duration
}

func (e *TooManyAttemptsError) Error() string {
	if e.Distributed {
		return "too many attempts for this account"
	}
	return "too many attempts"
}

// LoginAttempt carries the three throttle axes of one credential check.
type LoginAttempt struct {
	LoginOrEmail string
	DeviceID     string
	Origin       string
}

// BruteforcePolicy keeps three independent fixed-window counters per
// attempt: device, network origin, and target identity. Device and origin
// reset on a successful login for that pairing; the target counter never
// does, so credential stuffing across rotating devices still trips it.
type BruteforcePolicy struct {
	counters *cache.Counters

	window    time.Duration
	maxDevice int64
	maxOrigin int64
	maxTarget int64
}

func NewBruteforcePolicy(counters *cache.Counters, cfg config.SecurityConfig) (*BruteforcePolicy, error) {
	window, err := time.ParseDuration(cfg.BruteforceWindow)
	if err != nil {
		return nil, fmt.Errorf("invalid BRUTEFORCE_WINDOW: %w", err)
	}

	maxDevice, err := strconv.ParseInt(cfg.BruteforceMaxDevice, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid BRUTEFORCE_MAX_DEVICE: %w", err)
	}

	maxOrigin, err := strconv.ParseInt(cfg.BruteforceMaxOrigin, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid BRUTEFORCE_MAX_ORIGIN: %w", err)
	}

	maxTarget, err := strconv.ParseInt(cfg.BruteforceMaxTarget, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid BRUTEFORCE_MAX_TARGET: %w", err)
	}

	return &BruteforcePolicy{
		counters:  counters,
		window:    window,
		maxDevice: maxDevice,
		maxOrigin: maxOrigin,
		maxTarget: maxTarget,
	}, nil
}

// AssertCanTry runs before any credential lookup so a throttled caller
// learns nothing about whether the identifier exists.
func (p *BruteforcePolicy) AssertCanTry(ctx context.Context, attempt LoginAttempt) error {
	if attempt.DeviceID != "" {
		if err := p.check(ctx, deviceKey(attempt.DeviceID), p.maxDevice, false); err != nil {
			return err
		}
	}

	if attempt.Origin != "" {
		if err := p.check(ctx, originKey(attempt.Origin), p.maxOrigin, false); err != nil {
			return err
		}
	}

	return p.check(ctx, targetKey(attempt.LoginOrEmail), p.maxTarget, true)
}

func (p *BruteforcePolicy) RegisterFailure(ctx context.Context, attempt LoginAttempt) error {
	if attempt.DeviceID != "" {
		if _, err := p.counters.Incr(ctx, deviceKey(attempt.DeviceID), p.window); err != nil {
			return err
		}
	}

	if attempt.Origin != "" {
		if _, err := p.counters.Incr(ctx, originKey(attempt.Origin), p.window); err != nil {
			return err
		}
	}

	_, err := p.counters.Incr(ctx, targetKey(attempt.LoginOrEmail), p.window)
	return err
}

// Reset clears the device and origin counters after a successful login.
// The target counter is left alone on purpose.
func (p *BruteforcePolicy) Reset(ctx context.Context, attempt LoginAttempt) error {
	keys := make([]string, 0, 2)
	if attempt.DeviceID != "" {
		keys = append(keys, deviceKey(attempt.DeviceID))
	}
	if attempt.Origin != "" {
		keys = append(keys, originKey(attempt.Origin))
	}
	return p.counters.Reset(ctx, keys...)
}

func (p *BruteforcePolicy) check(ctx context.Context, key string, max int64, distributed bool) error {
	count, err := p.counters.Get(ctx, key)
	if err != nil {
		return err
	}
	if count < max {
		return nil
	}

	retry, err := p.counters.Retry(ctx, key)
	if err != nil {
		return err
	}
	return &TooManyAttemptsError{Distributed: distributed, RetryAfter: retry}
}

func deviceKey(deviceID string) string {
	return "bf:dev:" + hashKey(deviceID)
}

func originKey(origin string) string {
	return "bf:ip:" + origin
}

func targetKey(loginOrEmail string) string {
	return "bf:login:" + hashKey(strings.ToLower(loginOrEmail))
}

func hashKey(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
