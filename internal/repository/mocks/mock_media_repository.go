package mocks

import (
	"context"

	"photofeed/internal/model"
	"photofeed/internal/repository"

	"github.com/stretchr/testify/mock"
)

type MockMediaRepository struct {
	mock.Mock
}

func (m *MockMediaRepository) Create(ctx context.Context, item *model.MediaItem) (*model.MediaItem, error) {
	args := m.Called(ctx, item)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MediaItem), args.Error(1)
}

func (m *MockMediaRepository) List(ctx context.Context, scope model.Scope, pq repository.PageQuery) (*repository.PageResult[model.MediaItem], error) {
	args := m.Called(ctx, scope, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.MediaItem]), args.Error(1)
}

func (m *MockMediaRepository) StorageKeys(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) Upsert(ctx context.Context, p *model.Profile) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}
