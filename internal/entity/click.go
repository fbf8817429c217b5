package entity

import "time"

// Click is a single resolution attempt of a shortened URL, valid or expired.
type Click struct {
	ID        string
	URLID     string
	Referrer  string
	UserAgent string
	CreatedAt time.Time
}
