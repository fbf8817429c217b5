// Package entity defines the entities and errors used in the application.
// It includes the URL struct, which represents a shortened URL, the clicks
// recorded against it, and the results returned by slug resolution.
package entity

import (
	"time"

	"github.com/vadimbarashkov/shortlink/pkg/utm"
)

// URL represents a shortened URL.
type URL struct {
	ID             string     // ID is the unique identifier of the URL in the store.
	OriginalURL    string     // OriginalURL is the target URL with UTM query parameters stripped.
	Slug           string     // Slug is the short token the URL is resolved by.
	ExpirationDate *time.Time // ExpirationDate is nil when the URL never expires.
	UTMParams      utm.Params // UTMParams are appended to OriginalURL on redirect.
	URLStats                  // URLStats contains statistics about the URL.
	CreatedAt      time.Time  // CreatedAt is the timestamp when the URL was created.
	UpdatedAt      time.Time  // UpdatedAt is the timestamp when the URL was last updated.
}

// URLStats contains statistics related to a shortened URL.
type URLStats struct {
	ClickCount         int64 // ClickCount is the number of successful resolutions.
	ExpiredAccessCount int64 // ExpiredAccessCount is the number of resolutions after expiration.
}

// ExpiredAt reports whether the URL is expired at t. A URL is still valid at
// the exact instant of its expiration date.
func (u *URL) ExpiredAt(t time.Time) bool {
	return u.ExpirationDate != nil && t.After(*u.ExpirationDate)
}

// Clone returns a deep copy of u.
func (u *URL) Clone() *URL {
	if u == nil {
		return nil
	}

	c := *u
	if u.ExpirationDate != nil {
		exp := *u.ExpirationDate
		c.ExpirationDate = &exp
	}

	return &c
}
