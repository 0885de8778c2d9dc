package messaging

import (
	"context"

	"github.com/storefront/backend/internal/application/notification"
	"go.uber.org/zap"
)

// LogDispatcher writes notifications to the application log. It is used when
// no broker is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

var _ notification.Dispatcher = (*LogDispatcher)(nil)

// NewLogDispatcher creates a new log dispatcher
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{logger: logger.Named("notification")}
}

// Dispatch logs msg at info level
func (d *LogDispatcher) Dispatch(_ context.Context, msg notification.Message) error {
	d.logger.Info("Notification",
		zap.String("message_id", msg.ID.String()),
		zap.String("kind", msg.Kind),
		zap.String("store_id", msg.StoreID.String()),
		zap.String("order_id", msg.OrderID),
		zap.String("order_number", msg.OrderNumber),
		zap.Int64("amount", msg.Amount),
		zap.String("currency", msg.Currency),
		zap.String("subject", msg.Subject))
	return nil
}
