package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Telegram rejects messages longer than this.
const maxMessageLength = 4096

const sendTimeout = 5 * time.Second

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Alerter posts operator alerts to a Telegram chat.
type Alerter struct {
	api      sender
	chatID   int64
	throttle *Throttle
	log      *zap.Logger
}

// NewAlerter connects to the Bot API. With an empty token it returns a nil alerter
// and no error; callers treat that as alerts disabled.
func NewAlerter(token string, chatID int64, throttle *Throttle, log *zap.Logger) (*Alerter, error) {
	if token == "" || chatID == 0 {
		return nil, nil
	}
	client := &http.Client{Timeout: sendTimeout}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newAlerter(api, chatID, throttle, log), nil
}

func newAlerter(api sender, chatID int64, throttle *Throttle, log *zap.Logger) *Alerter {
	return &Alerter{api: api, chatID: chatID, throttle: throttle, log: log.Named("alerter")}
}

// Alert sends message unless another alert with the same key went out within the
// throttle window.
func (a *Alerter) Alert(ctx context.Context, key, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.throttle != nil && !a.throttle.Allow(key) {
		a.log.Debug("alert throttled", zap.String("key", key))
		return nil
	}

	msg := tgbotapi.NewMessage(a.chatID, truncate(message, maxMessageLength))
	msg.DisableWebPagePreview = true
	if _, err := a.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram alert: %w", err)
	}
	return nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
