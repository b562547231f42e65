package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-affiliate-bot/internal/domain"
	"tg-affiliate-bot/internal/infra/metrics"
)

// AdminBroadcaster рассылает служебные уведомления всем администраторам.
type AdminBroadcaster struct {
	bot    *tgbotapi.BotAPI
	admins domain.AdminRepo
	log    zerolog.Logger
}

var _ domain.AdminNotifier = (*AdminBroadcaster)(nil)

// NewAdminBroadcaster создаёт нотификатор.
func NewAdminBroadcaster(bot *tgbotapi.BotAPI, admins domain.AdminRepo, log zerolog.Logger) *AdminBroadcaster {
	return &AdminBroadcaster{bot: bot, admins: admins, log: log}
}

// NotifyAdmins отправляет текст каждому администратору. Ошибка отдельной
// доставки не прерывает рассылку.
func (b *AdminBroadcaster) NotifyAdmins(ctx context.Context, text string) error {
	admins, err := b.admins.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("список администраторов: %w", err)
	}
	var lastErr error
	for _, admin := range admins {
		for _, part := range SplitText(text, messageLimit) {
			msg := tgbotapi.NewMessage(admin.UserID, part)
			start := time.Now()
			_, err := b.bot.Send(msg)
			metrics.ObserveNetworkRequest("telegram_bot", "notify_admin", strconv.FormatInt(admin.UserID, 10), start, err)
			if err != nil {
				metrics.BotSendErrors.Inc()
				b.log.Error().Err(err).Int64("admin_id", admin.UserID).Msg("не удалось доставить уведомление")
				lastErr = err
				break
			}
		}
	}
	return lastErr
}
