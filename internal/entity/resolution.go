package entity

import (
	"time"

	"github.com/vadimbarashkov/shortlink/pkg/utm"
)

// ResolutionStatus is the outcome of resolving a slug.
type ResolutionStatus int

const (
	StatusNotFound ResolutionStatus = iota
	StatusFound
	StatusExpired
)

func (s ResolutionStatus) String() string {
	switch s {
	case StatusFound:
		return "FOUND"
	case StatusExpired:
		return "EXPIRED"
	default:
		return "NOT_FOUND"
	}
}

// Resolution is the result of resolving a slug. URL is nil when Status is
// StatusNotFound. For StatusFound the URL carries its UTM parameters in
// OriginalURL.
type Resolution struct {
	Status ResolutionStatus
	URL    *URL
}

// ShortenParams is the input for creating a shortened URL.
type ShortenParams struct {
	OriginalURL    string
	Slug           string
	ExpirationDate *time.Time
	UTMParams      utm.Params
}

// Analytics is the click history of a shortened URL.
type Analytics struct {
	URL       *URL
	Clicks    []Click
	IsExpired bool
}
