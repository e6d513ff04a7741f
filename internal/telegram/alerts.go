package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/tokenpad/presale-core/internal/config"
	"github.com/tokenpad/presale-core/internal/domain"
)

// Alerter posts operator alerts to the admin Telegram chat. All methods are
// best-effort: a delivery problem is logged, never propagated.
type Alerter struct {
	bot *bot.Bot
	cfg *config.Config
}

func NewAlerter(b *bot.Bot, cfg *config.Config) *Alerter {
	return &Alerter{bot: b, cfg: cfg}
}

func (a *Alerter) AlertJobFailed(job *domain.NotificationJob) {
	msg := fmt.Sprintf("📪 *Delivery failed permanently*\n\n*Job:* `%s`\n*Template:* %s\n*Recipient:* %s\n*Attempts:* %d\n*Last error:* `%s`",
		job.ID, job.TemplateID, job.Recipient, job.Attempts, job.LastError)
	a.send(a.cfg.AlertTopicFailed, msg)
}

func (a *Alerter) AlertPanic(workerID string, v any) {
	msg := fmt.Sprintf("🔥 *Worker panic*\n\n*Worker:* `%s`\n*Panic:* `%v`\n*Time:* %s",
		workerID, v, time.Now().Format("2006-01-02 15:04:05"))
	a.send(a.cfg.AlertTopicPanic, msg)
}

func (a *Alerter) send(topicID int, message string) {
	if a.cfg.AlertChatID == 0 {
		return
	}

	if len([]rune(message)) > config.MaxAlertLen {
		message = string([]rune(message)[:config.MaxAlertLen-20]) + "\n\n... (truncated)"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := a.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          a.cfg.AlertChatID,
		Text:            message,
		ParseMode:       "Markdown",
		MessageThreadID: topicID,
	})
	if err != nil {
		slog.Error("failed to send telegram alert", "error", err)
	}
}
