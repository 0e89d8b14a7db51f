package notify

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	"actionflow/internal/action"
)

// TelegramSink delivers notifications to a Telegram chat. Send-only: the
// bot never polls for updates.
type TelegramSink struct {
	bot    *tele.Bot
	chatID int64
}

type TelegramConfig struct {
	Token  string
	ChatID int64
}

func NewTelegramSink(cfg TelegramConfig) (*TelegramSink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is not set")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return &TelegramSink{bot: b, chatID: cfg.ChatID}, nil
}

func (t *TelegramSink) Name() string { return "telegram" }

func (t *TelegramSink) Send(ctx context.Context, n Notification) error {
	var sb strings.Builder
	sb.WriteString(priorityPrefix(n.Priority))
	sb.WriteString(n.Title)
	if n.Body != "" {
		sb.WriteString("\n")
		sb.WriteString(n.Body)
	}

	chat := &tele.Chat{ID: t.chatID}
	_, err := t.bot.Send(chat, sb.String(), &tele.SendOptions{DisableWebPagePreview: true})
	return err
}

func priorityPrefix(p action.Priority) string {
	switch p {
	case action.PriorityUrgent:
		return "🚨 "
	case action.PriorityHigh:
		return "⚠️ "
	default:
		return "ℹ️ "
	}
}
