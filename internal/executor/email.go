package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"actionflow/internal/action"
)

// Email simulates message delivery. Real SMTP integration is deliberately
// out of scope; the executor still enforces the metadata contract and
// produces a delivery identifier the way a real sender would.
type Email struct {
	log *slog.Logger

	// From is the envelope sender reported in outcomes.
	From string
}

func NewEmail(log *slog.Logger) *Email {
	return &Email{log: log, From: "noreply@actionflow.local"}
}

func (e *Email) Execute(ctx context.Context, it action.Item) (Outcome, error) {
	to := it.MetaStrings(action.MetaEmailTo)
	if len(to) == 0 {
		return Failure("email recipients are required"), nil
	}
	subject := strings.TrimSpace(it.MetaString(action.MetaEmailSubject))
	if subject == "" {
		return Failure("email subject is required"), nil
	}

	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	msgID := "msg-" + uuid.NewString()
	e.log.Info("email sent",
		slog.String("item_id", it.ID),
		slog.String("message_id", msgID),
		slog.String("subject", subject),
		slog.Int("recipients", len(to)))

	return Success(map[string]any{
		"messageId":  msgID,
		"from":       e.From,
		"recipients": to,
		"subject":    subject,
		"sentAt":     time.Now().Format(time.RFC3339),
		"previewUrl": fmt.Sprintf("https://mail.actionflow.local/preview/%s", msgID),
	}), nil
}
