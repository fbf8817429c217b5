package http

import (
	"encoding/json"
	"io"
	"time"

	"github.com/samber/lo"
	"github.com/vadimbarashkov/shortlink/internal/cache"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/pkg/utm"
)

const statusError = "error"

// decodeJSON decodes a single JSON value from r, rejecting fields that v does not declare.
func decodeJSON(r io.Reader, v any) error {
	defer io.Copy(io.Discard, r)

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	return dec.Decode(v)
}

// utmParamsRequest lists the accepted UTM keys; any other key is rejected on decoding.
type utmParamsRequest struct {
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Term     string `json:"term,omitempty"`
	Content  string `json:"content,omitempty"`
}

// shortenRequest represents the structure for a request to shorten a URL.
type shortenRequest struct {
	OriginalURL    string            `json:"original_url"`
	Slug           string            `json:"slug,omitempty"`
	ExpirationDate *time.Time        `json:"expiration_date,omitempty"`
	UTMParams      *utmParamsRequest `json:"utm_params,omitempty"`
}

func (req *shortenRequest) toParams() entity.ShortenParams {
	params := entity.ShortenParams{
		OriginalURL:    req.OriginalURL,
		Slug:           req.Slug,
		ExpirationDate: req.ExpirationDate,
	}

	if req.UTMParams != nil {
		params.UTMParams = utm.Params(*req.UTMParams)
	}

	return params
}

// urlResponse represents a shortened URL.
type urlResponse struct {
	ID                 string            `json:"id"`
	OriginalURL        string            `json:"original_url"`
	ShortURL           string            `json:"short_url"`
	Slug               string            `json:"slug"`
	ExpirationDate     *time.Time        `json:"expiration_date"`
	UTMParams          map[string]string `json:"utm_params,omitempty"`
	ClickCount         int64             `json:"click_count"`
	ExpiredAccessCount int64             `json:"expired_access_count"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func toURLResponse(url *entity.URL, baseURL string) urlResponse {
	resp := urlResponse{
		ID:                 url.ID,
		OriginalURL:        url.OriginalURL,
		ShortURL:           baseURL + "/" + url.Slug,
		Slug:               url.Slug,
		ExpirationDate:     url.ExpirationDate,
		ClickCount:         url.ClickCount,
		ExpiredAccessCount: url.ExpiredAccessCount,
		CreatedAt:          url.CreatedAt,
		UpdatedAt:          url.UpdatedAt,
	}

	if !url.UTMParams.IsZero() {
		resp.UTMParams = url.UTMParams.Map()
	}

	return resp
}

// clickResponse represents one logged resolution of a short URL.
type clickResponse struct {
	ID        string    `json:"id"`
	Referrer  *string   `json:"referrer"`
	UserAgent *string   `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}

// analyticsResponse represents the click history of a short URL.
type analyticsResponse struct {
	URL       urlResponse     `json:"url"`
	Clicks    []clickResponse `json:"clicks"`
	IsExpired bool            `json:"is_expired"`
}

func toAnalyticsResponse(a *entity.Analytics, baseURL string) analyticsResponse {
	return analyticsResponse{
		URL: toURLResponse(a.URL, baseURL),
		Clicks: lo.Map(a.Clicks, func(c entity.Click, _ int) clickResponse {
			return clickResponse{
				ID:        c.ID,
				Referrer:  lo.EmptyableToPtr(c.Referrer),
				UserAgent: lo.EmptyableToPtr(c.UserAgent),
				CreatedAt: c.CreatedAt,
			}
		}),
		IsExpired: a.IsExpired,
	}
}

type cacheStatsResponse struct {
	Size       int    `json:"size"`
	MaxEntries int    `json:"max_entries"`
	DefaultTTL string `json:"default_ttl"`
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Evictions  uint64 `json:"evictions"`
}

func toCacheStatsResponse(s cache.Stats) cacheStatsResponse {
	return cacheStatsResponse{
		Size:       s.Size,
		MaxEntries: s.MaxEntries,
		DefaultTTL: s.DefaultTTL.String(),
		Hits:       s.Hits,
		Misses:     s.Misses,
		Evictions:  s.Evictions,
	}
}

// validationError represents an individual validation error.
type validationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// errorResponse represents a structured error response.
type errorResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Errors  []validationError `json:"errors,omitempty"`
}

// Predefined error responses for common scenarios.
var (
	emptyRequestBodyResponse = errorResponse{
		Status:  statusError,
		Message: "empty request body",
	}

	invalidRequestBodyResponse = errorResponse{
		Status:  statusError,
		Message: "invalid request body",
	}

	invalidSlugResponse = errorResponse{
		Status:  statusError,
		Message: "invalid slug",
	}

	slugExistsResponse = errorResponse{
		Status:  statusError,
		Message: "slug already in use",
	}

	urlNotFoundResponse = errorResponse{
		Status:  statusError,
		Message: "url not found",
	}

	serverErrorResponse = errorResponse{
		Status:  statusError,
		Message: "server error occurred",
	}
)

// validationErrorResponse constructs an errorResponse for rejected input fields.
func validationErrorResponse(errs entity.ValidationErrors) errorResponse {
	return errorResponse{
		Status:  statusError,
		Message: "validation error",
		Errors: lo.Map(errs, func(e *entity.ValidationError, _ int) validationError {
			return validationError{Field: e.Field, Message: e.Message}
		}),
	}
}
