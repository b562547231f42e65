package amazon

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"tg-affiliate-bot/internal/domain"
	"tg-affiliate-bot/internal/infra/metrics"
)

var (
	priceRegex    = regexp.MustCompile(`(\d+(?:[.,]\d{1,2})?)\s*(€|\$|£)`)
	discountRegex = regexp.MustCompile(`-(\d+)%`)
)

var currencyBySymbol = map[string]string{
	"€": "EUR",
	"$": "USD",
	"£": "GBP",
}

// Scraper реализует domain.PriceFetcher разбором страницы товара.
type Scraper struct {
	http      *http.Client
	userAgent string
}

var _ domain.PriceFetcher = (*Scraper)(nil)

// NewScraper создаёт скрейпер с ограниченным таймаутом запроса.
func NewScraper(timeout time.Duration) *Scraper {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Scraper{
		http:      &http.Client{Timeout: timeout},
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	}
}

// FetchPrice загружает страницу товара и извлекает цену, заголовок,
// изображение и скидку. Сетевые ошибки транзиентны: вызывающая
// сторона ретраит их с бэкоффом.
func (s *Scraper) FetchPrice(ctx context.Context, rawURL string) (domain.PriceSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("%w: build request: %v", domain.ErrUpstreamFetch, err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept-Language", "it-IT,it;q=0.9,en;q=0.8")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := s.http.Do(req)
	metrics.ObserveNetworkRequest("amazon", "product_page", req.URL.Hostname(), start, err)
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("%w: %v", domain.ErrUpstreamFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return domain.PriceSnapshot{}, fmt.Errorf("%w: status %d", domain.ErrUpstreamFetch, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("%w: parse page: %v", domain.ErrUpstreamFetch, err)
	}
	return parseProductPage(doc)
}

func parseProductPage(doc *goquery.Document) (domain.PriceSnapshot, error) {
	snapshot := domain.PriceSnapshot{}

	if content, ok := doc.Find(`meta[name="title"]`).Attr("content"); ok {
		snapshot.Title = cleanTitle(content)
	}
	if snapshot.Title == "" {
		snapshot.Title = cleanTitle(doc.Find("span#productTitle").First().Text())
	}

	if img := doc.Find("img#landingImage").First(); img.Length() > 0 {
		if src, ok := img.Attr("src"); ok && src != "" {
			snapshot.ImageURL = src
		} else if hires, ok := img.Attr("data-old-hires"); ok {
			snapshot.ImageURL = hires
		}
	}

	priceText := doc.Find(`span[class*="priceToPay"]`).First().Text()
	price, currency, ok := parsePrice(priceText)
	if !ok {
		return snapshot, fmt.Errorf("%w: цена не найдена на странице", domain.ErrUpstreamFetch)
	}
	snapshot.Price = price
	snapshot.Currency = currency

	// Скидка валидна только при наличии обеих цен, как на самой странице.
	discountText := doc.Find(`span[class*="savingsPercentage"]`).First().Text()
	if matches := discountRegex.FindStringSubmatch(discountText); len(matches) == 2 {
		percentage, _ := strconv.Atoi(matches[1])
		basisText := doc.Find(`span[class*="basisPrice"]`).First().Text()
		if original, _, okBasis := parsePrice(basisText); okBasis {
			snapshot.Discount = &domain.DiscountInfo{
				Percentage:      percentage,
				OriginalPrice:   original,
				DiscountedPrice: price,
			}
		}
	}

	return snapshot, nil
}

func parsePrice(text string) (float64, string, bool) {
	matches := priceRegex.FindStringSubmatch(text)
	if len(matches) < 3 {
		return 0, "", false
	}
	normalized := strings.ReplaceAll(matches[1], ",", ".")
	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, "", false
	}
	return value, currencyBySymbol[matches[2]], true
}

var titleSuffixRegex = regexp.MustCompile(`(?i)\s*[-:]\s*Amazon\.[a-z]{2,3}.*$`)

func cleanTitle(raw string) string {
	return strings.TrimSpace(titleSuffixRegex.ReplaceAllString(strings.TrimSpace(raw), ""))
}
