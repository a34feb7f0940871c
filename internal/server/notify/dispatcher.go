// Package notify defines the push-notification collaborator boundary. The
// core only requests notifications; the transport that reaches devices lives
// outside this process.
package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/avolkov/postdrop/internal/logging"
)

// Dispatcher receives fire-and-forget notification requests. Implementations
// must be safe for concurrent use and must not block on network calls longer
// than they are willing to let an upload or a sweep wait; delivery is
// at-least-once on the transport's side.
type Dispatcher interface {
	// MessageWaiting asks the addressee's devices to fetch a waiting message.
	// Sent on upload and re-sent when the message enters or nears the
	// deletion list.
	MessageWaiting(ctx context.Context, addressee uuid.UUID, messageID uuid.UUID)

	// MessageDeleted informs the addressee that an undelivered message was
	// deleted after the retention window ran out.
	MessageDeleted(ctx context.Context, addressee uuid.UUID, messageID uuid.UUID)
}

// LogDispatcher is the default Dispatcher: it records every request in the
// structured log. Useful on its own for development and as the fallback when
// no push transport is configured.
type LogDispatcher struct {
	logger logging.Logger
}

func NewLogDispatcher(logger logging.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.With("module", "notify")}
}

func (d *LogDispatcher) MessageWaiting(ctx context.Context, addressee uuid.UUID, messageID uuid.UUID) {
	d.logger.Info(ctx, "message waiting", "addressee", addressee, "message_id", messageID)
}

func (d *LogDispatcher) MessageDeleted(ctx context.Context, addressee uuid.UUID, messageID uuid.UUID) {
	d.logger.Info(ctx, "message deleted", "addressee", addressee, "message_id", messageID)
}
