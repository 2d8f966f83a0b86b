package model

import "time"

// Session is the durable record binding a user to a device. The postgres
// row is the source of truth; the redis mirror (SessionCacheEntry) only
// answers "is this session still good" on the hot path.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash *string
	DeviceID         string
	IP               string
	UserAgent        string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	Active           bool
}

// SessionCacheEntry mirrors the fields the per-request guard needs.
type SessionCacheEntry struct {
	UserID    string `json:"userId"`
	Active    bool   `json:"active"`
	ExpiresAt int64  `json:"expiresAt"`
}
