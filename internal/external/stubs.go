package external

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// StubEmailProvider implements EmailProvider by logging calls and returning a
// fake message ID. Used when no mail API key is configured (local and test
// environments) so the full pipeline runs without real credentials.
type StubEmailProvider struct {
	logger *slog.Logger
	sent   atomic.Int64
}

// NewStubEmailProvider creates a new StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEmailProvider{logger: logger}
}

func (s *StubEmailProvider) Send(ctx context.Context, input SendInput) (string, error) {
	n := s.sent.Add(1)
	s.logger.InfoContext(ctx, "stub: email send suppressed",
		"to", input.To,
		"subject", input.Subject,
		"reference_id", input.ReferenceID,
	)
	return fmt.Sprintf("stub-msg-%d", n), nil
}

// SentCount reports how many sends the stub has absorbed.
func (s *StubEmailProvider) SentCount() int64 {
	return s.sent.Load()
}

var _ EmailProvider = (*StubEmailProvider)(nil)
