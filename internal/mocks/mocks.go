// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/waypoint/api/schemas"
)

// -- Browser Driver Mock --

// MockBrowserDriver mocks the schemas.BrowserDriver interface.
type MockBrowserDriver struct {
	mock.Mock
}

func (m *MockBrowserDriver) Navigate(ctx context.Context, url string, wait schemas.WaitStrategy) error {
	return m.Called(ctx, url, wait).Error(0)
}

func (m *MockBrowserDriver) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// EvaluateScript accepts either json.RawMessage, []byte or string as the canned result.
func (m *MockBrowserDriver) EvaluateScript(ctx context.Context, script string, args ...interface{}) (json.RawMessage, error) {
	callArgs := m.Called(ctx, script, args)
	var raw json.RawMessage
	switch v := callArgs.Get(0).(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	case string:
		raw = json.RawMessage(v)
	}
	return raw, callArgs.Error(1)
}

func (m *MockBrowserDriver) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return m.Called(ctx, selector, timeout).Error(0)
}

func (m *MockBrowserDriver) ClickByText(ctx context.Context, text string, timeout time.Duration) error {
	return m.Called(ctx, text, timeout).Error(0)
}

func (m *MockBrowserDriver) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	return m.Called(ctx, selector, value, timeout).Error(0)
}

func (m *MockBrowserDriver) WaitForLoad(ctx context.Context, timeout time.Duration) error {
	return m.Called(ctx, timeout).Error(0)
}

func (m *MockBrowserDriver) WaitIdle(ctx context.Context, timeout time.Duration) error {
	return m.Called(ctx, timeout).Error(0)
}

func (m *MockBrowserDriver) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// Generate provides a mock function for LLM calls.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	return m.Called().Error(0)
}

// -- Search Provider Mock --

// MockSearchProvider mocks the schemas.SearchProvider interface.
type MockSearchProvider struct {
	mock.Mock
}

func (m *MockSearchProvider) Search(ctx context.Context, query string, limit int) ([]string, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// -- Classifier Mock --

// MockClassifier mocks the schemas.Classifier interface. Tests fill the output
// through Run, e.g.
//
//	c.On("Classify", mock.Anything, mock.Anything, mock.Anything).Run(func(a mock.Arguments) {
//		*a.Get(2).(*schemas.URLSelection) = schemas.URLSelection{URL: "https://example.com"}
//	}).Return(nil)
type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(ctx context.Context, req schemas.ClassificationRequest, out interface{}) error {
	return m.Called(ctx, req, out).Error(0)
}
