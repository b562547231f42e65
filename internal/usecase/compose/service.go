package compose

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"tg-affiliate-bot/internal/adapters/telegram"
	"tg-affiliate-bot/internal/domain"
)

// Texts отдаёт человекочитаемые строки по ключу перевода.
type Texts interface {
	Get(key string, params map[string]string) string
}

const defaultPrompt = "Sei un copywriter per un canale di offerte Amazon. Scrivi un breve testo accattivante per il prodotto, senza inventare caratteristiche."

// Service собирает пост из товара и сгенерированного описания.
// Генерация не обязана удаваться: шаблонный фолбэк гарантирует,
// что публикация возможна вообще без вызовов ИИ.
type Service struct {
	products  domain.ProductRepo
	settings  domain.SettingsRepo
	generator domain.Generator
	texts     Texts
	log       zerolog.Logger
}

// NewService создаёт сервис компоновки.
func NewService(products domain.ProductRepo, settings domain.SettingsRepo, generator domain.Generator, texts Texts, log zerolog.Logger) *Service {
	return &Service{products: products, settings: settings, generator: generator, texts: texts, log: log}
}

// Compose строит пост для товара. Сохранённое описание переиспользуется,
// если цена не менялась; force принудительно перегенерирует текст.
func (s *Service) Compose(ctx context.Context, product domain.Product, force bool) (domain.PostPayload, error) {
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return domain.PostPayload{}, fmt.Errorf("получение настроек: %w", err)
	}

	payload := domain.PostPayload{
		ImageURL:   product.ImageURL,
		ButtonText: settings.ButtonText,
		ButtonURL:  product.AffiliateURL,
	}

	description := strings.TrimSpace(product.Description)
	if description != "" && !force {
		payload.Text = s.renderPost(product, description)
		payload.FromAI = true
		return payload, nil
	}

	if s.generator != nil && settings.AIPromptEnabled {
		prompt := settings.AIPrompt
		if prompt == "" {
			prompt = defaultPrompt
		}
		generated, genErr := s.generator.Generate(ctx, prompt, s.buildTemplate(product))
		if genErr == nil {
			if saveErr := s.products.SaveDescription(ctx, product.ID, generated); saveErr != nil {
				s.log.Warn().Err(saveErr).Int64("product", product.ID).Msg("compose: не удалось сохранить описание")
			}
			payload.Text = s.renderPost(product, generated)
			payload.FromAI = true
			return payload, nil
		}
		s.log.Warn().Err(genErr).Int64("product", product.ID).Msg("compose: генерация не удалась, используем шаблон")
	}

	payload.Text = s.buildTemplate(product)
	payload.FromAI = false
	return payload, nil
}

// renderPost объединяет описание с ценовым блоком и ссылкой.
func (s *Service) renderPost(product domain.Product, description string) string {
	var b strings.Builder
	b.WriteString(telegram.EscapeHTML(description))
	b.WriteString("\n\n")
	b.WriteString(s.priceBlock(product))
	b.WriteString("\n")
	b.WriteString(product.AffiliateURL)
	return b.String()
}

// buildTemplate — детерминированный шаблон: заголовок, цена, ссылка.
func (s *Service) buildTemplate(product domain.Product) string {
	title := product.Title
	if title == "" {
		title = s.texts.Get("prodotto_amazon", nil)
	}
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(telegram.EscapeHTML(title))
	b.WriteString("</b>\n\n")
	b.WriteString(s.priceBlock(product))
	b.WriteString("\n")
	b.WriteString(product.AffiliateURL)
	return b.String()
}

func (s *Service) priceBlock(product domain.Product) string {
	if !product.HasPrice() {
		return s.texts.Get("prezzo_non_disponibile", nil)
	}
	return s.texts.Get("prezzo", map[string]string{
		"price":    formatPrice(*product.Price),
		"currency": currencySymbol(product.Currency),
	})
}

func formatPrice(value float64) string {
	formatted := fmt.Sprintf("%.2f", value)
	return strings.ReplaceAll(formatted, ".", ",")
}

func currencySymbol(currency string) string {
	switch currency {
	case "EUR", "":
		return "€"
	case "USD":
		return "$"
	case "GBP":
		return "£"
	default:
		return currency
	}
}
