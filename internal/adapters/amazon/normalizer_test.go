package amazon

import (
	"errors"
	"strings"
	"testing"

	"tg-affiliate-bot/internal/domain"
)

func TestNormalize(t *testing.T) {
	got, err := Normalize("https://amazon.com/dp/B000123", "mytag-20")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got != "https://amazon.com/dp/B000123?tag=mytag-20" {
		t.Fatalf("неверная каноническая ссылка: %q", got)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	urls := []string{
		"https://www.amazon.it/Qualche-Prodotto/dp/B0ABCDEF12?ref=sr_1_1",
		"https://amazon.com/dp/B000123",
		"amazon.de/gp/product/B012345678",
	}
	for _, raw := range urls {
		first, err := Normalize(raw, "mytag-20")
		if err != nil {
			t.Fatalf("нормализация %q: %v", raw, err)
		}
		second, err := Normalize(first, "mytag-20")
		if err != nil {
			t.Fatalf("повторная нормализация %q: %v", first, err)
		}
		if first != second {
			t.Fatalf("нормализация не идемпотентна: %q != %q", first, second)
		}
	}
}

func TestNormalizeReplacesForeignTag(t *testing.T) {
	got, err := Normalize("https://www.amazon.it/dp/B0ABCDEF12?tag=othertag-21&psc=1", "mytag-20")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if strings.Count(got, "mytag-20") != 1 {
		t.Fatalf("ожидали ровно одно вхождение своего тега: %q", got)
	}
	if strings.Contains(got, "othertag-21") {
		t.Fatalf("чужой тег должен быть удалён: %q", got)
	}
}

func TestNormalizeInvalid(t *testing.T) {
	cases := []string{
		"",
		"https://example.com/dp/B000123",
		"https://amazon.com/stores/page/abc",
		"https://amzn.to/3xYzAbC",
	}
	for _, raw := range cases {
		if _, err := Normalize(raw, "mytag-20"); !errors.Is(err, domain.ErrInvalidURL) {
			t.Fatalf("ожидали ErrInvalidURL для %q, получили %v", raw, err)
		}
	}
}

func TestExtractASIN(t *testing.T) {
	asin, err := ExtractASIN("https://www.amazon.it/Nome-Prodotto/dp/b0abcdef12/ref=xyz")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if asin != "B0ABCDEF12" {
		t.Fatalf("ожидали B0ABCDEF12, получили %s", asin)
	}
}
