package event

import (
	"context"
	"encoding/json"

	"github.com/opencode-ai/wagate/internal/logging"
)

// RunAuditLog consumes the watermill mirror and writes one structured log
// line per lifecycle event until ctx is done.
func (b *Bus) RunAuditLog(ctx context.Context) error {
	messages, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return err
	}

	for msg := range messages {
		var e Event
		if err := json.Unmarshal(msg.Payload, &e); err != nil {
			logging.Warn().Err(err).Str("uuid", msg.UUID).Msg("unreadable audit event")
			msg.Ack()
			continue
		}
		if e.Type != StatusMessage {
			logging.Info().
				Str("eventType", string(e.Type)).
				Str("sessionID", e.SessionID).
				Msg("lifecycle event")
		}
		msg.Ack()
	}
	return nil
}
