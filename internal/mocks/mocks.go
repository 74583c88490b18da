// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/scalpel-inspector/internal/config"
	"github.com/xkilldash9x/scalpel-inspector/internal/methodhandler"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Inspector() config.InspectorConfig {
	args := m.Called()
	return args.Get(0).(config.InspectorConfig)
}

func (m *MockConfig) SetBrowserHeadless(b bool) { m.Called(b) }

func (m *MockConfig) SetBrowserRemoteURL(u string) { m.Called(u) }

// -- Driver Mock --

// MockDriver mocks methodhandler.Driver.
type MockDriver struct {
	mock.Mock
}

var _ methodhandler.Driver = (*MockDriver)(nil)

func NewMockDriver() *MockDriver {
	return &MockDriver{}
}

func (m *MockDriver) ElementOrNull(ctx context.Context, strategy, selector string) (methodhandler.Element, error) {
	args := m.Called(ctx, strategy, selector)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(methodhandler.Element), args.Error(1)
}

func (m *MockDriver) Elements(ctx context.Context, strategy, selector string) ([]methodhandler.Element, error) {
	args := m.Called(ctx, strategy, selector)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]methodhandler.Element), args.Error(1)
}

func (m *MockDriver) Source(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) TakeScreenshot(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) Invoke(ctx context.Context, method string, a []any) (any, error) {
	args := m.Called(ctx, method, a)
	return args.Get(0), args.Error(1)
}

// -- Element Mock --

// MockElement mocks methodhandler.Element. The id is fixed at construction.
type MockElement struct {
	mock.Mock
	id string
}

var _ methodhandler.Element = (*MockElement)(nil)

func NewMockElement(id string) *MockElement {
	return &MockElement{id: id}
}

func (m *MockElement) ID() string { return m.id }

func (m *MockElement) Invoke(ctx context.Context, method string, a []any) (any, error) {
	args := m.Called(ctx, method, a)
	return args.Get(0), args.Error(1)
}

// Elements converts mock elements to the interface slice the Driver returns.
func Elements(els ...*MockElement) []methodhandler.Element {
	out := make([]methodhandler.Element, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out
}
