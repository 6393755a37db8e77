package transport

import (
	"context"
	"log/slog"
)

// maxSegmentRunes bounds one delivered message. Chat platforms reject
// longer payloads, so answers are split before sending.
const maxSegmentRunes = 4096

// Transport delivers a composed response to a user.
type Transport interface {
	Deliver(ctx context.Context, userID, text string) error
}

// LogTransport writes deliveries to the log. It stands in when no webhook
// is configured; responses stay queryable through the batch records.
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport creates a LogTransport using the default logger.
func NewLogTransport() *LogTransport {
	return &LogTransport{logger: slog.Default()}
}

// Deliver logs the response instead of sending it anywhere.
func (t *LogTransport) Deliver(_ context.Context, userID, text string) error {
	t.logger.Info("response ready", "user_id", userID, "length", len(text))
	return nil
}

// splitSegments cuts text into pieces of at most maxSegmentRunes runes,
// preferring to break after a newline so a segment does not end
// mid-paragraph.
func splitSegments(text string) []string {
	runes := []rune(text)
	if len(runes) <= maxSegmentRunes {
		return []string{text}
	}

	var segments []string
	for len(runes) > 0 {
		if len(runes) <= maxSegmentRunes {
			segments = append(segments, string(runes))
			break
		}
		cut := maxSegmentRunes
		for i := cut - 1; i >= maxSegmentRunes/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		segments = append(segments, string(runes[:cut]))
		runes = runes[cut:]
	}
	return segments
}
