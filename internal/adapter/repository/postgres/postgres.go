package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/pkg/utm"
)

const uniqueViolationErrCode = "23505"

const urlColumns = `id, original_url, slug, expiration_date, utm_params, click_count, expired_access_count, created_at, updated_at`

func isUniqueViolationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == uniqueViolationErrCode
}

type urlDB struct {
	ID                 string     `db:"id"`
	OriginalURL        string     `db:"original_url"`
	Slug               string     `db:"slug"`
	ExpirationDate     *time.Time `db:"expiration_date"`
	UTMParams          utm.Params `db:"utm_params"`
	ClickCount         int64      `db:"click_count"`
	ExpiredAccessCount int64      `db:"expired_access_count"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

func (u *urlDB) toEntity() *entity.URL {
	return &entity.URL{
		ID:             u.ID,
		OriginalURL:    u.OriginalURL,
		Slug:           u.Slug,
		ExpirationDate: u.ExpirationDate,
		UTMParams:      u.UTMParams,
		URLStats: entity.URLStats{
			ClickCount:         u.ClickCount,
			ExpiredAccessCount: u.ExpiredAccessCount,
		},
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type clickDB struct {
	ID        string    `db:"id"`
	URLID     string    `db:"url_id"`
	Referrer  *string   `db:"referrer"`
	UserAgent *string   `db:"user_agent"`
	CreatedAt time.Time `db:"created_at"`
}

func (c *clickDB) toEntity() entity.Click {
	return entity.Click{
		ID:        c.ID,
		URLID:     c.URLID,
		Referrer:  lo.FromPtr(c.Referrer),
		UserAgent: lo.FromPtr(c.UserAgent),
		CreatedAt: c.CreatedAt,
	}
}

type URLRepository struct {
	db *sqlx.DB
}

func NewURLRepository(db *sqlx.DB) *URLRepository {
	return &URLRepository{db: db}
}

func (r *URLRepository) Save(ctx context.Context, url *entity.URL) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.Save"
	const query = `INSERT INTO urls(id, original_url, slug, expiration_date, utm_params)
		VALUES ($1, $2, $3, $4, $5) RETURNING ` + urlColumns

	var row urlDB

	err := r.db.GetContext(ctx, &row, query,
		uuid.NewString(), url.OriginalURL, url.Slug, url.ExpirationDate, url.UTMParams)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrSlugExists)
		}

		return nil, fmt.Errorf("%s: failed to insert into urls table: %w", op, err)
	}

	return row.toEntity(), nil
}

func (r *URLRepository) FindBySlug(ctx context.Context, slug string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.FindBySlug"
	const query = `SELECT ` + urlColumns + ` FROM urls WHERE slug = $1`

	var row urlDB

	if err := r.db.GetContext(ctx, &row, query, slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get row from urls table: %w", op, err)
	}

	return row.toEntity(), nil
}

func (r *URLRepository) ExistsBySlug(ctx context.Context, slug string) (bool, error) {
	const op = "adapter.repository.postgres.URLRepository.ExistsBySlug"
	const query = `SELECT EXISTS(SELECT 1 FROM urls WHERE slug = $1)`

	var exists bool

	if err := r.db.GetContext(ctx, &exists, query, slug); err != nil {
		return false, fmt.Errorf("%s: failed to check urls table: %w", op, err)
	}

	return exists, nil
}

func (r *URLRepository) IncrementClickCount(ctx context.Context, id string) error {
	const op = "adapter.repository.postgres.URLRepository.IncrementClickCount"
	const query = `UPDATE urls SET click_count = click_count + 1 WHERE id = $1`

	return r.execOne(ctx, op, query, id)
}

func (r *URLRepository) IncrementExpiredAccessCount(ctx context.Context, slug string) error {
	const op = "adapter.repository.postgres.URLRepository.IncrementExpiredAccessCount"
	const query = `UPDATE urls SET expired_access_count = expired_access_count + 1 WHERE slug = $1`

	return r.execOne(ctx, op, query, slug)
}

func (r *URLRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
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
	const op = "adapter.repository.postgres.URLRepository.SaveClick"
	const query = `INSERT INTO clicks(id, url_id, referrer, user_agent, created_at) VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query,
		uuid.NewString(),
		click.URLID,
		lo.EmptyableToPtr(click.Referrer),
		lo.EmptyableToPtr(click.UserAgent),
		click.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: failed to insert into clicks table: %w", op, err)
	}

	return nil
}

func (r *URLRepository) ListClicks(ctx context.Context, urlID string) ([]entity.Click, error) {
	const op = "adapter.repository.postgres.URLRepository.ListClicks"
	const query = `SELECT id, url_id, referrer, user_agent, created_at FROM clicks
		WHERE url_id = $1 ORDER BY created_at DESC`

	var rows []clickDB

	if err := r.db.SelectContext(ctx, &rows, query, urlID); err != nil {
		return nil, fmt.Errorf("%s: failed to select from clicks table: %w", op, err)
	}

	return lo.Map(rows, func(c clickDB, _ int) entity.Click {
		return c.toEntity()
	}), nil
}
