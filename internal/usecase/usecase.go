package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/pkg/utm"
	"github.com/vadimbarashkov/shortlink/pkg/worker"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	slugAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	defaultSlugLength   = 8
	defaultMaxAttempts  = 10
	defaultStoreTimeout = 2 * time.Second
)

type urlRepository interface {
	Save(ctx context.Context, url *entity.URL) (*entity.URL, error)
	FindBySlug(ctx context.Context, slug string) (*entity.URL, error)
	ExistsBySlug(ctx context.Context, slug string) (bool, error)
	IncrementClickCount(ctx context.Context, id string) error
	IncrementExpiredAccessCount(ctx context.Context, slug string) error
	SaveClick(ctx context.Context, click *entity.Click) error
	ListClicks(ctx context.Context, urlID string) ([]entity.Click, error)
}

type slugCache interface {
	Get(slug string) (*entity.URL, bool)
	Put(slug string, url *entity.URL)
	Invalidate(slug string)
}

type dispatcher interface {
	Submit(name string, task worker.Task) bool
}

type Option func(*URLUseCase)

func WithSlugLength(n int) Option {
	return func(uc *URLUseCase) {
		if n > 0 {
			uc.slugLength = n
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(uc *URLUseCase) {
		if n > 0 {
			uc.maxAttempts = n
		}
	}
}

// WithStoreTimeout bounds every store read made while resolving a slug.
func WithStoreTimeout(d time.Duration) Option {
	return func(uc *URLUseCase) {
		uc.storeTimeout = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(uc *URLUseCase) {
		uc.now = now
	}
}

func WithSlugGenerator(generate func(length int) (string, error)) Option {
	return func(uc *URLUseCase) {
		uc.generateSlug = generate
	}
}

type URLUseCase struct {
	urlRepo    urlRepository
	cache      slugCache
	dispatcher dispatcher
	logger     *slog.Logger
	validate   *validator.Validate

	slugLength   int
	maxAttempts  int
	storeTimeout time.Duration
	now          func() time.Time
	generateSlug func(length int) (string, error)
}

func NewURLUseCase(
	urlRepo urlRepository,
	cache slugCache,
	dispatcher dispatcher,
	logger *slog.Logger,
	opts ...Option,
) *URLUseCase {
	uc := &URLUseCase{
		urlRepo:      urlRepo,
		cache:        cache,
		dispatcher:   dispatcher,
		logger:       logger,
		slugLength:   defaultSlugLength,
		maxAttempts:  defaultMaxAttempts,
		storeTimeout: defaultStoreTimeout,
		now:          time.Now,
		generateSlug: func(length int) (string, error) {
			return gonanoid.Generate(slugAlphabet, length)
		},
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.validate = newValidator(uc.slugLength)

	return uc
}

// ShortenURL validates params and stores a new shortened URL. UTM parameters
// found in the original URL are moved to the record, explicit params win per key.
// Without a custom slug a random one is generated until a free one is found.
func (uc *URLUseCase) ShortenURL(ctx context.Context, params entity.ShortenParams) (*entity.URL, error) {
	const op = "usecase.URLUseCase.ShortenURL"

	if err := uc.validateShortenParams(params); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	originalURL, extracted, err := utm.Extract(params.OriginalURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to extract utm params: %w", op, err)
	}

	url := entity.URL{
		OriginalURL:    originalURL,
		ExpirationDate: params.ExpirationDate,
		UTMParams:      extracted.Merge(params.UTMParams),
	}

	if params.Slug != "" {
		url.Slug = params.Slug

		saved, err := uc.save(ctx, &url)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return saved, nil
	}

	for i := 0; i < uc.maxAttempts; i++ {
		slug, err := uc.generateSlug(uc.slugLength)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate slug: %w", op, err)
		}

		candidate := url
		candidate.Slug = slug

		saved, err := uc.save(ctx, &candidate)
		if err != nil {
			if errors.Is(err, entity.ErrSlugExists) {
				continue
			}

			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return saved, nil
	}

	return nil, fmt.Errorf("%s: %w", op, entity.ErrSlugGenerationExhausted)
}

// save inserts url unless its slug is taken. The unique constraint of the
// store decides between concurrent inserts of the same slug.
func (uc *URLUseCase) save(ctx context.Context, url *entity.URL) (*entity.URL, error) {
	exists, err := uc.urlRepo.ExistsBySlug(ctx, url.Slug)
	if err != nil {
		return nil, fmt.Errorf("failed to check slug: %w", err)
	}

	if exists {
		return nil, entity.ErrSlugExists
	}

	saved, err := uc.urlRepo.Save(ctx, url)
	if err != nil {
		if errors.Is(err, entity.ErrSlugExists) {
			return nil, entity.ErrSlugExists
		}

		return nil, fmt.Errorf("failed to save url: %w", err)
	}

	return saved, nil
}

// Resolve turns slug into a live URL. It never fails: store errors resolve to
// entity.StatusNotFound and are logged. Click accounting is handed to the
// dispatcher and does not delay the result.
func (uc *URLUseCase) Resolve(ctx context.Context, slug, referrer, userAgent string) entity.Resolution {
	const op = "usecase.URLUseCase.Resolve"

	url, ok := uc.cache.Get(slug)
	if !ok {
		var err error

		url, err = uc.findBySlug(ctx, slug)
		if err != nil {
			if !errors.Is(err, entity.ErrURLNotFound) {
				uc.logger.Error("failed to look up slug", slog.Group(op,
					slog.String("slug", slug),
					slog.Any("err", err),
				))
			}

			return entity.Resolution{Status: entity.StatusNotFound}
		}
	}

	now := uc.now()

	click := &entity.Click{
		URLID:     url.ID,
		Referrer:  referrer,
		UserAgent: userAgent,
		CreatedAt: now,
	}

	if url.ExpiredAt(now) {
		uc.cache.Invalidate(slug)

		uc.dispatcher.Submit("increment_expired_access_count", func(ctx context.Context) error {
			return uc.urlRepo.IncrementExpiredAccessCount(ctx, slug)
		})
		uc.dispatcher.Submit("save_click", func(ctx context.Context) error {
			return uc.urlRepo.SaveClick(ctx, click)
		})

		return entity.Resolution{Status: entity.StatusExpired, URL: url}
	}

	id := url.ID
	uc.dispatcher.Submit("increment_click_count", func(ctx context.Context) error {
		return uc.urlRepo.IncrementClickCount(ctx, id)
	})
	uc.dispatcher.Submit("save_click", func(ctx context.Context) error {
		return uc.urlRepo.SaveClick(ctx, click)
	})

	uc.cache.Put(slug, url)

	found := url.Clone()
	found.OriginalURL = utm.Apply(found.OriginalURL, found.UTMParams)

	return entity.Resolution{Status: entity.StatusFound, URL: found}
}

func (uc *URLUseCase) findBySlug(ctx context.Context, slug string) (*entity.URL, error) {
	if uc.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.storeTimeout)
		defer cancel()
	}

	return uc.urlRepo.FindBySlug(ctx, slug)
}

// GetAnalytics returns the stored URL with its clicks, newest first. It always
// reads from the store.
func (uc *URLUseCase) GetAnalytics(ctx context.Context, slug string) (*entity.Analytics, error) {
	const op = "usecase.URLUseCase.GetAnalytics"

	url, err := uc.urlRepo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get url: %w", op, err)
	}

	clicks, err := uc.urlRepo.ListClicks(ctx, url.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list clicks: %w", op, err)
	}

	return &entity.Analytics{
		URL:       url,
		Clicks:    clicks,
		IsExpired: url.ExpiredAt(uc.now()),
	}, nil
}
