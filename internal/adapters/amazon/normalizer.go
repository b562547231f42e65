package amazon

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"tg-affiliate-bot/internal/domain"
)

var (
	hostRegex = regexp.MustCompile(`(?i)^(?:www\.)?amazon\.[a-z]{2,3}(?:\.[a-z]{2})?$`)
	asinRegex = regexp.MustCompile(`(?i)/(?:dp|gp/product|gp/aw/d)/([a-z0-9]{6,10})(?:[/?]|$)`)
)

// ExtractASIN достаёт ASIN из ссылки на товар.
func ExtractASIN(rawURL string) (string, error) {
	parsed, err := parseProductURL(rawURL)
	if err != nil {
		return "", err
	}
	matches := asinRegex.FindStringSubmatch(parsed.Path)
	if len(matches) < 2 {
		return "", fmt.Errorf("%w: не найден ASIN в %q", domain.ErrInvalidURL, rawURL)
	}
	return strings.ToUpper(matches[1]), nil
}

// Normalize приводит ссылку к канонической партнёрской форме:
// scheme://host/dp/ASIN?tag=<tag>. Любые существующие query-параметры,
// включая чужие партнёрские теги, отбрасываются. Функция чистая и
// идемпотентная: повторная нормализация возвращает тот же результат.
func Normalize(rawURL, affiliateTag string) (string, error) {
	parsed, err := parseProductURL(rawURL)
	if err != nil {
		return "", err
	}
	matches := asinRegex.FindStringSubmatch(parsed.Path)
	if len(matches) < 2 {
		return "", fmt.Errorf("%w: не найден ASIN в %q", domain.ErrInvalidURL, rawURL)
	}
	asin := strings.ToUpper(matches[1])

	canonical := url.URL{
		Scheme: parsed.Scheme,
		Host:   strings.ToLower(parsed.Host),
		Path:   "/dp/" + asin,
	}
	if affiliateTag != "" {
		query := url.Values{}
		query.Set("tag", affiliateTag)
		canonical.RawQuery = query.Encode()
	}
	return canonical.String(), nil
}

func parseProductURL(rawURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: пустая ссылка", domain.ErrInvalidURL)
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: схема %q", domain.ErrInvalidURL, parsed.Scheme)
	}
	if !hostRegex.MatchString(parsed.Hostname()) {
		return nil, fmt.Errorf("%w: хост %q не принадлежит Amazon", domain.ErrInvalidURL, parsed.Hostname())
	}
	return parsed, nil
}
