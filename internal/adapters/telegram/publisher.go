package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-affiliate-bot/internal/domain"
	"tg-affiliate-bot/internal/infra/metrics"
)

// Publisher отправляет собранные посты в каналы через Bot API.
type Publisher struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

var _ domain.Publisher = (*Publisher)(nil)

// NewPublisher создаёт паблишер.
func NewPublisher(bot *tgbotapi.BotAPI, log zerolog.Logger) *Publisher {
	return &Publisher{bot: bot, log: log}
}

// Publish доставляет пост в канал. Длинный текст при фото уходит
// отдельными сообщениями после подписи.
func (p *Publisher) Publish(ctx context.Context, channelID string, payload domain.PostPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	chatID, username, err := resolveChannel(channelID)
	if err != nil {
		return err
	}

	markup := buyButtonMarkup(payload)

	if payload.ImageURL != "" {
		parts := SplitText(payload.Text, captionLimit)
		caption := ""
		if len(parts) > 0 {
			caption = parts[0]
		}
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(payload.ImageURL))
		photo.ChannelUsername = username
		photo.Caption = caption
		photo.ParseMode = tgbotapi.ModeHTML
		if markup != nil {
			photo.ReplyMarkup = *markup
		}
		if err := p.send(photo, channelID); err != nil {
			return err
		}
		for _, part := range parts[1:] {
			msg := tgbotapi.NewMessage(chatID, part)
			msg.ChannelUsername = username
			msg.ParseMode = tgbotapi.ModeHTML
			if err := p.send(msg, channelID); err != nil {
				return err
			}
		}
		return nil
	}

	parts := SplitText(payload.Text, messageLimit)
	for idx, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ChannelUsername = username
		msg.ParseMode = tgbotapi.ModeHTML
		if idx == len(parts)-1 && markup != nil {
			msg.ReplyMarkup = *markup
		}
		if err := p.send(msg, channelID); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) send(msg tgbotapi.Chattable, channelID string) error {
	start := time.Now()
	_, err := p.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram", "send", channelID, start, err)
	if err != nil {
		metrics.BotSendErrors.Inc()
		return fmt.Errorf("%w: %v", domain.ErrDelivery, err)
	}
	return nil
}

func buyButtonMarkup(payload domain.PostPayload) *tgbotapi.InlineKeyboardMarkup {
	if payload.ButtonURL == "" {
		return nil
	}
	text := payload.ButtonText
	if text == "" {
		text = "🛒 Amazon"
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(text, payload.ButtonURL)),
	)
	return &markup
}

// resolveChannel принимает числовой chat ID либо @username канала.
func resolveChannel(channelID string) (int64, string, error) {
	trimmed := strings.TrimSpace(channelID)
	if trimmed == "" {
		return 0, "", fmt.Errorf("%w: пустой идентификатор канала", domain.ErrDelivery)
	}
	if strings.HasPrefix(trimmed, "@") {
		return 0, trimmed, nil
	}
	if strings.HasPrefix(trimmed, "https://t.me/") {
		return 0, "@" + strings.TrimPrefix(trimmed, "https://t.me/"), nil
	}
	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: некорректный идентификатор канала %q", domain.ErrDelivery, channelID)
	}
	return id, "", nil
}

// EscapeHTML экранирует текст для ParseMode HTML.
func EscapeHTML(text string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return replacer.Replace(text)
}
