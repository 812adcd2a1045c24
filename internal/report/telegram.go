// Package report posts run summaries to an operator chat.
package report

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"content_review/internal/runner"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends pass reports to a single chat.
type Telegram struct {
	api    telegramAPI
	chatID int64
	log    zerolog.Logger
}

// NewTelegram creates a Telegram reporter for the given bot token and chat.
func NewTelegram(token string, chatID int64, log zerolog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newTelegram(api, chatID, log), nil
}

func newTelegram(api telegramAPI, chatID int64, log zerolog.Logger) *Telegram {
	return &Telegram{
		api:    api,
		chatID: chatID,
		log:    log.With().Str("component", "report").Logger(),
	}
}

// Send posts the formatted report.
func (t *Telegram) Send(ctx context.Context, rep runner.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, rep.Format())
	msg.DisableWebPagePreview = true
	msg.DisableNotification = !rep.Failed()
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send report to chat %d: %w", t.chatID, err)
	}
	t.log.Debug().Int64("chat_id", t.chatID).Msg("report sent")
	return nil
}

// SendError posts a short notice about a pass that could not run.
func (t *Telegram) SendError(ctx context.Context, passErr error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, "Content review pass failed: "+passErr.Error())
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send error report to chat %d: %w", t.chatID, err)
	}
	return nil
}
