package storemock

import (
	"context"
	"encoding/json"

	"github.com/heatpilot/heatpilot/pkg/store"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

var _ store.Store = (*MockStore)(nil)

func (m *MockStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	args := m.Called(ctx, key)
	if len(args) > 0 {
		raw, _ := args.Get(0).(json.RawMessage)
		return raw, args.Bool(1), args.Error(2)
	}
	return nil, false, nil
}

func (m *MockStore) Set(ctx context.Context, key string, value any) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	if len(args) > 0 {
		keys, _ := args.Get(0).([]string)
		return keys, args.Error(1)
	}
	return nil, nil
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
