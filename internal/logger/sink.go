package logger

import (
	"context"
	"fmt"

	"github.com/kal997/graph-notification-relay/internal/models"
)

// AuditSink records every dispatched notification through a Logger
type AuditSink struct {
	logger Logger
}

func NewAuditSink(l Logger) *AuditSink {
	return &AuditSink{logger: l}
}

func (s *AuditSink) Name() string {
	return "audit-log"
}

func (s *AuditSink) Handle(ctx context.Context, n models.ChangeNotification) error {
	return s.logger.Log(ctx, FormatNotification(n))
}

// FormatNotification renders n as a single audit line. clientState is never written.
func FormatNotification(n models.ChangeNotification) string {
	return fmt.Sprintf("notification receipt=%s subscription=%s change=%s resource=%s tenant=%s",
		n.ReceiptID, n.SubscriptionID, n.ChangeType, n.Resource, n.TenantID)
}
