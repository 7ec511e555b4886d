package notify

import (
	"context"
	"log/slog"
)

// MockProvider logs notifications instead of delivering them. Used for
// local development.
type MockProvider struct {
	logger *slog.Logger
}

// NewMockProvider creates a mock notification provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{
		logger: logger,
	}
}

// Send logs the notification instead of sending it.
func (m *MockProvider) Send(_ context.Context, title, body string) error {
	m.logger.Info("MOCK NOTIFICATION",
		"title", title,
		"body_length", len(body))
	return nil
}
