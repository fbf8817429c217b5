package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"modernc.org/sqlite"

	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	sqlite3 "modernc.org/sqlite/lib"
)

// Timestamps are stored as fixed-width UTC text so that they sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func isUniqueViolationError(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

type urlRow struct {
	ID                 string  `db:"id"`
	OriginalURL        string  `db:"original_url"`
	Slug               string  `db:"slug"`
	ExpirationDate     *string `db:"expiration_date"`
	UTMParams          *string `db:"utm_params"`
	ClickCount         int64   `db:"click_count"`
	ExpiredAccessCount int64   `db:"expired_access_count"`
	CreatedAt          string  `db:"created_at"`
	UpdatedAt          string  `db:"updated_at"`
}

func (r *urlRow) toEntity() (*entity.URL, error) {
	url := &entity.URL{
		ID:          r.ID,
		OriginalURL: r.OriginalURL,
		Slug:        r.Slug,
		URLStats: entity.URLStats{
			ClickCount:         r.ClickCount,
			ExpiredAccessCount: r.ExpiredAccessCount,
		},
	}

	var err error

	if r.ExpirationDate != nil {
		exp, err := parseTime(*r.ExpirationDate)
		if err != nil {
			return nil, fmt.Errorf("failed to parse expiration_date: %w", err)
		}
		url.ExpirationDate = &exp
	}

	if r.UTMParams != nil {
		if err := url.UTMParams.Scan(*r.UTMParams); err != nil {
			return nil, fmt.Errorf("failed to parse utm_params: %w", err)
		}
	}

	if url.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	if url.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return url, nil
}

type clickRow struct {
	ID        string  `db:"id"`
	URLID     string  `db:"url_id"`
	Referrer  *string `db:"referrer"`
	UserAgent *string `db:"user_agent"`
	CreatedAt string  `db:"created_at"`
}

func (r *clickRow) toEntity() (entity.Click, error) {
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return entity.Click{}, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return entity.Click{
		ID:        r.ID,
		URLID:     r.URLID,
		Referrer:  lo.FromPtr(r.Referrer),
		UserAgent: lo.FromPtr(r.UserAgent),
		CreatedAt: createdAt,
	}, nil
}

type URLRepository struct {
	db  *goqu.Database
	now func() time.Time
}

func NewURLRepository(db *sql.DB) *URLRepository {
	return &URLRepository{
		db:  goqu.New("sqlite3", db),
		now: time.Now,
	}
}

func (r *URLRepository) Save(ctx context.Context, url *entity.URL) (*entity.URL, error) {
	const op = "adapter.repository.sqlite.URLRepository.Save"

	now := r.now().UTC()

	saved := url.Clone()
	saved.ID = uuid.NewString()
	saved.URLStats = entity.URLStats{}
	saved.CreatedAt = now
	saved.UpdatedAt = now

	utmParams, err := saved.UTMParams.Value()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to encode utm params: %w", op, err)
	}

	var expirationDate *string
	if saved.ExpirationDate != nil {
		expirationDate = lo.ToPtr(formatTime(*saved.ExpirationDate))
	}

	_, err = r.db.Insert("urls").
		Prepared(true).
		Rows(goqu.Record{
			"id":              saved.ID,
			"original_url":    saved.OriginalURL,
			"slug":            saved.Slug,
			"expiration_date": expirationDate,
			"utm_params":      utmParams,
			"created_at":      formatTime(now),
			"updated_at":      formatTime(now),
		}).
		Executor().
		ExecContext(ctx)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrSlugExists)
		}

		return nil, fmt.Errorf("%s: failed to insert into urls table: %w", op, err)
	}

	return saved, nil
}

func (r *URLRepository) FindBySlug(ctx context.Context, slug string) (*entity.URL, error) {
	const op = "adapter.repository.sqlite.URLRepository.FindBySlug"

	var row urlRow

	found, err := r.db.From("urls").
		Prepared(true).
		Where(goqu.Ex{"slug": slug}).
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get row from urls table: %w", op, err)
	}

	if !found {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	url, err := row.toEntity()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return url, nil
}

func (r *URLRepository) ExistsBySlug(ctx context.Context, slug string) (bool, error) {
	const op = "adapter.repository.sqlite.URLRepository.ExistsBySlug"

	n, err := r.db.From("urls").
		Prepared(true).
		Where(goqu.Ex{"slug": slug}).
		CountContext(ctx)
	if err != nil {
		return false, fmt.Errorf("%s: failed to check urls table: %w", op, err)
	}

	return n > 0, nil
}

func (r *URLRepository) IncrementClickCount(ctx context.Context, id string) error {
	const op = "adapter.repository.sqlite.URLRepository.IncrementClickCount"

	return r.increment(ctx, op, "click_count", goqu.Ex{"id": id})
}

func (r *URLRepository) IncrementExpiredAccessCount(ctx context.Context, slug string) error {
	const op = "adapter.repository.sqlite.URLRepository.IncrementExpiredAccessCount"

	return r.increment(ctx, op, "expired_access_count", goqu.Ex{"slug": slug})
}

func (r *URLRepository) increment(ctx context.Context, op, column string, where goqu.Ex) error {
	res, err := r.db.Update("urls").
		Prepared(true).
		Set(goqu.Record{
			column:       goqu.L("? + 1", goqu.C(column)),
			"updated_at": formatTime(r.now()),
		}).
		Where(where).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("%s: failed to update urls table: %w", op, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get number of affected rows: %w", op, err)
	}

	if rowsAffected != 1 {
		return fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	return nil
}

func (r *URLRepository) SaveClick(ctx context.Context, click *entity.Click) error {
	const op = "adapter.repository.sqlite.URLRepository.SaveClick"

	_, err := r.db.Insert("clicks").
		Prepared(true).
		Rows(goqu.Record{
			"id":         uuid.NewString(),
			"url_id":     click.URLID,
			"referrer":   lo.EmptyableToPtr(click.Referrer),
			"user_agent": lo.EmptyableToPtr(click.UserAgent),
			"created_at": formatTime(click.CreatedAt),
		}).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("%s: failed to insert into clicks table: %w", op, err)
	}

	return nil
}

func (r *URLRepository) ListClicks(ctx context.Context, urlID string) ([]entity.Click, error) {
	const op = "adapter.repository.sqlite.URLRepository.ListClicks"

	var rows []clickRow

	err := r.db.From("clicks").
		Prepared(true).
		Where(goqu.Ex{"url_id": urlID}).
		Order(goqu.C("created_at").Desc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to select from clicks table: %w", op, err)
	}

	clicks := make([]entity.Click, 0, len(rows))
	for _, row := range rows {
		click, err := row.toEntity()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		clicks = append(clicks, click)
	}

	return clicks, nil
}
