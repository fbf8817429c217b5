package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/go-chi/httplog/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadimbarashkov/shortlink/internal/config"
	"github.com/vadimbarashkov/shortlink/pkg/sqlite"

	sqliterepo "github.com/vadimbarashkov/shortlink/internal/adapter/repository/sqlite"
)

func setupServer(t *testing.T) (*components, *httptest.Server, *httpexpect.Expect) {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.BaseURL = "https://sho.rt"
	cfg.FrontendURL = "https://app.sho.rt"
	cfg.Storage.Driver = config.DriverSQLite

	db, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "shortlink.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	logger := httplog.NewLogger("shortlink", httplog.Options{Writer: io.Discard})

	c, err := build(cfg, logger, sqliterepo.NewURLRepository(db))
	require.NoError(t, err)
	t.Cleanup(func() {
		c.pool.Shutdown(context.Background())
	})

	server := httptest.NewServer(c.router)
	t.Cleanup(server.Close)

	e := httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  server.URL,
		Reporter: httpexpect.NewAssertReporter(t),
		Client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	})

	return c, server, e
}

func TestShortenResolveExpire(t *testing.T) {
	_, _, e := setupServer(t)

	exp := time.Now().Add(1500 * time.Millisecond)

	created := e.POST("/api/v1/shorten").
		WithJSON(map[string]any{
			"original_url":    "https://example.com/page?utm_source=tw&id=1",
			"slug":            "e2eslug1",
			"expiration_date": exp.Format(time.RFC3339Nano),
		}).
		Expect().
		Status(http.StatusCreated).
		JSON().Object()

	created.HasValue("slug", "e2eslug1")
	created.HasValue("short_url", "https://sho.rt/e2eslug1")
	created.HasValue("original_url", "https://example.com/page?id=1")
	created.Value("utm_params").Object().HasValue("source", "tw")

	for i := 0; i < 2; i++ {
		e.GET("/e2eslug1").
			WithHeader("Referer", "https://ref.com").
			Expect().
			Status(http.StatusFound).
			Header("Location").IsEqual("https://example.com/page?id=1&utm_source=tw")
	}

	assert.Eventually(t, func() bool {
		a := e.GET("/api/v1/analytics/e2eslug1").Expect().Status(http.StatusOK).JSON().Object().Raw()
		url := a["url"].(map[string]any)
		return url["click_count"] == float64(2) && len(a["clicks"].([]any)) == 2
	}, time.Second, 20*time.Millisecond)

	time.Sleep(time.Until(exp) + 50*time.Millisecond)

	e.GET("/e2eslug1").
		Expect().
		Status(http.StatusFound).
		Header("Location").IsEqual("https://app.sho.rt/expired?slug=e2eslug1")

	assert.Eventually(t, func() bool {
		a := e.GET("/api/v1/analytics/e2eslug1").Expect().Status(http.StatusOK).JSON().Object().Raw()
		url := a["url"].(map[string]any)
		return url["click_count"] == float64(2) &&
			url["expired_access_count"] == float64(1) &&
			len(a["clicks"].([]any)) == 3 &&
			a["is_expired"] == true
	}, time.Second, 20*time.Millisecond)
}

func TestGeneratedSlugWithoutExpiration(t *testing.T) {
	c, _, e := setupServer(t)

	e.POST("/api/v1/shorten").
		WithJSON(map[string]any{
			"original_url": "https://example.com",
			"utm_params":   map[string]string{"campaign": "launch"},
		}).
		Expect().
		Status(http.StatusCreated).
		JSON().Object().
		Value("slug").String().Length().IsEqual(8)

	created := e.POST("/api/v1/shorten").
		WithJSON(map[string]any{"original_url": "https://example.com/other"}).
		Expect().
		Status(http.StatusCreated).
		JSON().Object()

	s := created.Value("slug").String().Raw()
	created.NotContainsKey("utm_params")
	created.HasValue("expiration_date", nil)

	e.GET("/" + s).
		Expect().
		Status(http.StatusFound).
		Header("Location").IsEqual("https://example.com/other")

	e.GET("/" + s).
		Expect().
		Status(http.StatusFound)

	stats := c.cache.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(1), stats.Hits)

	e.GET("/api/v1/cache/stats").
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("size", 1)
}

func TestUnknownSlug(t *testing.T) {
	_, _, e := setupServer(t)

	e.GET("/missing1").
		Expect().
		Status(http.StatusFound).
		Header("Location").IsEqual("https://app.sho.rt/404")

	e.GET("/api/v1/analytics/missing1").
		Expect().
		Status(http.StatusNotFound)
}

func TestValidation(t *testing.T) {
	_, _, e := setupServer(t)

	resp := e.POST("/api/v1/shorten").
		WithJSON(map[string]any{
			"original_url":    "example.com",
			"slug":            "bad-slug",
			"expiration_date": time.Now().Add(-time.Hour).Format(time.RFC3339),
			"utm_params":      map[string]string{"source": "has space"},
		}).
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object()

	resp.Value("errors").Array().Length().IsEqual(4)
}

func TestConcurrentCustomSlug(t *testing.T) {
	_, server, e := setupServer(t)

	const n = 10

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			body := []byte(`{"original_url":"https://example.com","slug":"race1234"}`)
			resp, err := http.Post(server.URL+"/api/v1/shorten", "application/json", bytes.NewReader(body))
			if !assert.NoError(t, err) {
				return
			}
			resp.Body.Close()

			mu.Lock()
			statuses[resp.StatusCode]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, statuses[http.StatusCreated])
	assert.Equal(t, n-1, statuses[http.StatusConflict])

	e.GET("/race1234").
		Expect().
		Status(http.StatusFound).
		Header("Location").IsEqual("https://example.com")
}

func TestNewLogger(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Log.Level = "debug"
	assert.Equal(t, "DEBUG", NewLogger(cfg).Options.LogLevel.String())

	cfg.Log.Level = "nonsense"
	assert.Equal(t, "INFO", NewLogger(cfg).Options.LogLevel.String())
}
