package mocks

import (
	"context"
	"io"

	"photofeed/internal/model"
	"photofeed/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockMediaService struct {
	mock.Mock
}

func (m *MockMediaService) Publish(ctx context.Context, r io.Reader, in service.PublishInput) (*model.MediaItem, error) {
	args := m.Called(ctx, r, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MediaItem), args.Error(1)
}

func (m *MockMediaService) List(ctx context.Context, scope model.Scope, limit, offset int) (*service.FeedPage, error) {
	args := m.Called(ctx, scope, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.FeedPage), args.Error(1)
}
