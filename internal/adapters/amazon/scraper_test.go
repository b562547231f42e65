package amazon

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

const productPage = `
<html><head><meta name="title" content="Cuffie Wireless XYZ - Amazon.it"></head>
<body>
<span id="productTitle">Cuffie Wireless XYZ</span>
<img id="landingImage" src="https://images.example/1.jpg">
<span class="a-price priceToPay"><span>39,99 €</span></span>
<span class="savingsPercentage a-color-price">-20%</span>
<span class="basisPrice a-text-price">Prezzo consigliato: 49,99 €</span>
</body></html>`

const noDiscountPage = `
<html><body>
<span id="productTitle">Tastiera ABC</span>
<span class="a-price priceToPay"><span>24,50 €</span></span>
</body></html>`

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("разбор HTML: %v", err)
	}
	return doc
}

func TestParseProductPage(t *testing.T) {
	snapshot, err := parseProductPage(docFromHTML(t, productPage))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if snapshot.Title != "Cuffie Wireless XYZ" {
		t.Fatalf("ожидали очищенный заголовок, получили %q", snapshot.Title)
	}
	if snapshot.Price != 39.99 || snapshot.Currency != "EUR" {
		t.Fatalf("неверная цена: %v %s", snapshot.Price, snapshot.Currency)
	}
	if snapshot.Discount == nil {
		t.Fatalf("ожидали скидку")
	}
	if snapshot.Discount.Percentage != 20 || snapshot.Discount.OriginalPrice != 49.99 {
		t.Fatalf("неверная скидка: %+v", snapshot.Discount)
	}
}

func TestParseProductPageWithoutDiscount(t *testing.T) {
	snapshot, err := parseProductPage(docFromHTML(t, noDiscountPage))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if snapshot.Discount != nil {
		t.Fatalf("скидки быть не должно: %+v", snapshot.Discount)
	}
	if snapshot.Price != 24.50 {
		t.Fatalf("неверная цена: %v", snapshot.Price)
	}
}

func TestParseProductPageWithoutPrice(t *testing.T) {
	doc := docFromHTML(t, `<html><body><span id="productTitle">Solo titolo</span></body></html>`)
	if _, err := parseProductPage(doc); err == nil {
		t.Fatalf("ожидали ошибку при отсутствии цены")
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		text     string
		value    float64
		currency string
		ok       bool
	}{
		{text: "139,90 €", value: 139.90, currency: "EUR", ok: true},
		{text: "Prezzo consigliato: 145,90€", value: 145.90, currency: "EUR", ok: true},
		{text: "19.99 $", value: 19.99, currency: "USD", ok: true},
		{text: "niente prezzo", ok: false},
	}
	for _, tt := range tests {
		value, currency, ok := parsePrice(tt.text)
		if ok != tt.ok {
			t.Fatalf("parsePrice(%q): ok = %v, want %v", tt.text, ok, tt.ok)
		}
		if !ok {
			continue
		}
		if value != tt.value || currency != tt.currency {
			t.Fatalf("parsePrice(%q) = %v %s, want %v %s", tt.text, value, currency, tt.value, tt.currency)
		}
	}
}
