package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/pkg/sqlite"
	"github.com/vadimbarashkov/shortlink/pkg/utm"
)

type URLRepositoryTestSuite struct {
	suite.Suite
	repo *URLRepository
}

func (suite *URLRepositoryTestSuite) SetupSubTest() {
	path := filepath.Join(suite.T().TempDir(), "shortlink.db")

	db, err := sqlite.New(context.Background(), path)
	if err != nil {
		suite.T().Fatalf("Failed to open database: %v", err)
	}
	suite.T().Cleanup(func() {
		db.Close()
	})

	suite.repo = NewURLRepository(db)
}

func (suite *URLRepositoryTestSuite) save(slug string, exp *time.Time) *entity.URL {
	url, err := suite.repo.Save(context.Background(), &entity.URL{
		OriginalURL:    "https://example.com/" + slug,
		Slug:           slug,
		ExpirationDate: exp,
	})
	suite.Require().NoError(err)

	return url
}

func (suite *URLRepositoryTestSuite) TestSave() {
	suite.Run("success", func() {
		exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

		url, err := suite.repo.Save(context.Background(), &entity.URL{
			OriginalURL:    "https://example.com",
			Slug:           "abcd1234",
			ExpirationDate: &exp,
			UTMParams:      utm.Params{Source: "tw", Campaign: "launch"},
		})

		suite.NoError(err)
		suite.NotEmpty(url.ID)
		suite.False(url.CreatedAt.IsZero())

		got, err := suite.repo.FindBySlug(context.Background(), "abcd1234")
		suite.Require().NoError(err)
		suite.Equal(url.ID, got.ID)
		suite.Equal("https://example.com", got.OriginalURL)
		suite.True(exp.Equal(*got.ExpirationDate))
		suite.Equal(utm.Params{Source: "tw", Campaign: "launch"}, got.UTMParams)
		suite.True(url.CreatedAt.Equal(got.CreatedAt))
	})

	suite.Run("slug exists", func() {
		suite.save("abcd1234", nil)

		url, err := suite.repo.Save(context.Background(), &entity.URL{
			OriginalURL: "https://other.com",
			Slug:        "abcd1234",
		})

		suite.ErrorIs(err, entity.ErrSlugExists)
		suite.Nil(url)
	})

	suite.Run("concurrent inserts of one slug", func() {
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
		)

		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()

				_, err := suite.repo.Save(context.Background(), &entity.URL{
					OriginalURL: fmt.Sprintf("https://example.com/%d", i),
					Slug:        "race1234",
				})
				if err == nil {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		suite.Equal(1, winners)
	})
}

func (suite *URLRepositoryTestSuite) TestFindBySlug() {
	suite.Run("url not found", func() {
		url, err := suite.repo.FindBySlug(context.Background(), "missing1")

		suite.ErrorIs(err, entity.ErrURLNotFound)
		suite.Nil(url)
	})

	suite.Run("no expiration", func() {
		suite.save("abcd1234", nil)

		url, err := suite.repo.FindBySlug(context.Background(), "abcd1234")

		suite.NoError(err)
		suite.Nil(url.ExpirationDate)
		suite.True(url.UTMParams.IsZero())
	})
}

func (suite *URLRepositoryTestSuite) TestExistsBySlug() {
	suite.Run("success", func() {
		suite.save("abcd1234", nil)

		exists, err := suite.repo.ExistsBySlug(context.Background(), "abcd1234")
		suite.NoError(err)
		suite.True(exists)

		exists, err = suite.repo.ExistsBySlug(context.Background(), "missing1")
		suite.NoError(err)
		suite.False(exists)
	})
}

func (suite *URLRepositoryTestSuite) TestIncrement() {
	suite.Run("url not found", func() {
		suite.ErrorIs(suite.repo.IncrementClickCount(context.Background(), "missing"), entity.ErrURLNotFound)
		suite.ErrorIs(suite.repo.IncrementExpiredAccessCount(context.Background(), "missing1"), entity.ErrURLNotFound)
	})

	suite.Run("concurrent increments", func() {
		url := suite.save("abcd1234", nil)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				suite.NoError(suite.repo.IncrementClickCount(context.Background(), url.ID))
			}()
			go func() {
				defer wg.Done()
				suite.NoError(suite.repo.IncrementExpiredAccessCount(context.Background(), "abcd1234"))
			}()
		}
		wg.Wait()

		got, err := suite.repo.FindBySlug(context.Background(), "abcd1234")
		suite.Require().NoError(err)
		suite.Equal(int64(20), got.ClickCount)
		suite.Equal(int64(20), got.ExpiredAccessCount)
	})
}

func (suite *URLRepositoryTestSuite) TestClicks() {
	suite.Run("no clicks", func() {
		url := suite.save("abcd1234", nil)

		clicks, err := suite.repo.ListClicks(context.Background(), url.ID)

		suite.NoError(err)
		suite.Empty(clicks)
	})

	suite.Run("newest first", func() {
		url := suite.save("abcd1234", nil)
		now := time.Now()

		suite.Require().NoError(suite.repo.SaveClick(context.Background(), &entity.Click{
			URLID:     url.ID,
			Referrer:  "https://ref.com",
			CreatedAt: now.Add(-time.Minute),
		}))
		suite.Require().NoError(suite.repo.SaveClick(context.Background(), &entity.Click{
			URLID:     url.ID,
			UserAgent: "curl/8",
			CreatedAt: now,
		}))

		clicks, err := suite.repo.ListClicks(context.Background(), url.ID)

		suite.NoError(err)
		suite.Require().Len(clicks, 2)
		suite.Equal("curl/8", clicks[0].UserAgent)
		suite.Empty(clicks[0].Referrer)
		suite.Equal("https://ref.com", clicks[1].Referrer)
		suite.True(now.Equal(clicks[0].CreatedAt))
	})

	suite.Run("unknown url", func() {
		err := suite.repo.SaveClick(context.Background(), &entity.Click{URLID: "missing", CreatedAt: time.Now()})

		suite.Error(err)
	})
}

func TestURLRepository(t *testing.T) {
	suite.Run(t, new(URLRepositoryTestSuite))
}
