package notify

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/yakoovad/flowboard/pkg/logger"
	"go.uber.org/zap"
)

var ErrNoRecipient = errors.New("recipient is required")

// LogMailer writes outbound mail to the request logger instead of sending
// it. The reset link carries a live token, so it is logged at debug level.
type LogMailer struct {
	from string
}

func NewLogMailer(from string) *LogMailer {
	return &LogMailer{from: from}
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, to, resetLink string) error {
	if strings.TrimSpace(to) == "" {
		return ErrNoRecipient
	}

	l := logger.FromContext(ctx).With(zap.String("from", m.from), zap.String("to", to))
	l.Info("password reset mail queued")
	l.Debug("password reset link", zap.String("link", resetLink))

	return nil
}
