package usecase

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/pkg/worker"
)

type mockURLRepository struct {
	mock.Mock
}

func newMockURLRepository(t mock.TestingT) *mockURLRepository {
	m := &mockURLRepository{}
	m.Mock.Test(t)
	return m
}

func (m *mockURLRepository) Save(ctx context.Context, url *entity.URL) (*entity.URL, error) {
	args := m.Called(ctx, url)
	if v := args.Get(0); v != nil {
		return v.(*entity.URL), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockURLRepository) FindBySlug(ctx context.Context, slug string) (*entity.URL, error) {
	args := m.Called(ctx, slug)
	if v := args.Get(0); v != nil {
		return v.(*entity.URL), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockURLRepository) ExistsBySlug(ctx context.Context, slug string) (bool, error) {
	args := m.Called(ctx, slug)
	return args.Bool(0), args.Error(1)
}

func (m *mockURLRepository) IncrementClickCount(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockURLRepository) IncrementExpiredAccessCount(ctx context.Context, slug string) error {
	return m.Called(ctx, slug).Error(0)
}

func (m *mockURLRepository) SaveClick(ctx context.Context, click *entity.Click) error {
	return m.Called(ctx, click).Error(0)
}

func (m *mockURLRepository) ListClicks(ctx context.Context, urlID string) ([]entity.Click, error) {
	args := m.Called(ctx, urlID)
	if v := args.Get(0); v != nil {
		return v.([]entity.Click), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSlugCache struct {
	mock.Mock
}

func newMockSlugCache(t mock.TestingT) *mockSlugCache {
	m := &mockSlugCache{}
	m.Mock.Test(t)
	return m
}

func (m *mockSlugCache) Get(slug string) (*entity.URL, bool) {
	args := m.Called(slug)
	if v := args.Get(0); v != nil {
		return v.(*entity.URL), args.Bool(1)
	}
	return nil, args.Bool(1)
}

func (m *mockSlugCache) Put(slug string, url *entity.URL) {
	m.Called(slug, url)
}

func (m *mockSlugCache) Invalidate(slug string) {
	m.Called(slug)
}

// syncDispatcher runs tasks inline and records their names.
type syncDispatcher struct {
	mu    sync.Mutex
	names []string
	errs  []error
}

func (d *syncDispatcher) Submit(name string, task worker.Task) bool {
	err := task(context.Background())

	d.mu.Lock()
	defer d.mu.Unlock()
	d.names = append(d.names, name)
	if err != nil {
		d.errs = append(d.errs, err)
	}

	return true
}

func (d *syncDispatcher) Names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.names...)
}
