package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/shortlink/internal/cache"
	"github.com/vadimbarashkov/shortlink/internal/entity"
)

func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "pong")
}

type urlUseCase interface {
	ShortenURL(ctx context.Context, params entity.ShortenParams) (*entity.URL, error)
	Resolve(ctx context.Context, slug, referrer, userAgent string) entity.Resolution
	GetAnalytics(ctx context.Context, slug string) (*entity.Analytics, error)
}

type cacheStatser interface {
	Stats() cache.Stats
}

type urlHandler struct {
	useCase     urlUseCase
	validate    *validator.Validate
	baseURL     string
	frontendURL string
	slugRule    string
}

func newURLHandler(useCase urlUseCase, validate *validator.Validate, cfg Config) *urlHandler {
	return &urlHandler{
		useCase:     useCase,
		validate:    validate,
		baseURL:     cfg.BaseURL,
		frontendURL: cfg.FrontendURL,
		slugRule:    fmt.Sprintf("required,alphanum,len=%d", cfg.SlugLength),
	}
}

func (h *urlHandler) shortenURL(w http.ResponseWriter, r *http.Request) {
	var req shortenRequest

	if err := decodeJSON(r.Body, &req); err != nil {
		if errors.Is(err, io.EOF) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, emptyRequestBodyResponse)
			return
		}

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, invalidRequestBodyResponse)
		return
	}

	url, err := h.useCase.ShortenURL(r.Context(), req.toParams())
	if err != nil {
		var validationErrs entity.ValidationErrors

		switch {
		case errors.As(err, &validationErrs):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, validationErrorResponse(validationErrs))
		case errors.Is(err, entity.ErrSlugExists):
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, slugExistsResponse)
		default:
			httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, serverErrorResponse)
		}

		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toURLResponse(url, h.baseURL))
}

func (h *urlHandler) getAnalytics(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	analytics, err := h.useCase.GetAnalytics(r.Context(), slug)
	if err != nil {
		if errors.Is(err, entity.ErrURLNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, urlNotFoundResponse)
			return
		}

		httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, serverErrorResponse)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toAnalyticsResponse(analytics, h.baseURL))
}

// redirect sends the visitor to the URL behind the slug. Expired and unknown
// slugs are sent to the matching frontend pages.
func (h *urlHandler) redirect(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	if err := h.validate.Var(slug, h.slugRule); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, invalidSlugResponse)
		return
	}

	res := h.useCase.Resolve(r.Context(), slug, r.Referer(), r.UserAgent())

	httplog.LogEntrySetField(r.Context(), "resolution", slog.StringValue(res.Status.String()))

	switch res.Status {
	case entity.StatusFound:
		http.Redirect(w, r, res.URL.OriginalURL, http.StatusFound)
	case entity.StatusExpired:
		http.Redirect(w, r, h.frontendURL+"/expired?slug="+url.QueryEscape(slug), http.StatusFound)
	default:
		http.Redirect(w, r, h.frontendURL+"/404", http.StatusFound)
	}
}

type cacheHandler struct {
	cache cacheStatser
}

func (h *cacheHandler) getStats(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, toCacheStatsResponse(h.cache.Stats()))
}
