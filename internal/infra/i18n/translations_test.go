package i18n

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTranslations(t *testing.T, dir, language, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, language+".json"), []byte(content), 0o644); err != nil {
		t.Fatalf("запись файла переводов: %v", err)
	}
}

func TestGetWithParams(t *testing.T) {
	dir := t.TempDir()
	writeTranslations(t, dir, "Italian", `{"benvenuto": "Ciao, {name}!"}`)

	tr, err := NewTranslator(dir, "Italian")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	got := tr.Get("benvenuto", map[string]string{"name": "Marco"})
	if got != "Ciao, Marco!" {
		t.Fatalf("ожидали подстановку параметра, получили %q", got)
	}
}

func TestGetMissingKeyFallsBackToKey(t *testing.T) {
	dir := t.TempDir()
	writeTranslations(t, dir, "Italian", `{}`)

	tr, err := NewTranslator(dir, "Italian")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got := tr.Get("chiave_mancante", nil); got != "chiave_mancante" {
		t.Fatalf("ожидали сам ключ, получили %q", got)
	}
}

func TestSetLanguage(t *testing.T) {
	dir := t.TempDir()
	writeTranslations(t, dir, "Italian", `{"ok": "va bene"}`)
	writeTranslations(t, dir, "English", `{"ok": "all right"}`)

	tr, err := NewTranslator(dir, "Italian")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := tr.SetLanguage("English"); err != nil {
		t.Fatalf("смена языка: %v", err)
	}
	if got := tr.Get("ok", nil); got != "all right" {
		t.Fatalf("ожидали английскую строку, получили %q", got)
	}
	if err := tr.SetLanguage("German"); err == nil {
		t.Fatalf("ожидали ошибку для недоступного языка")
	}
}
