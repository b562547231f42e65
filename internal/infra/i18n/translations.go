package i18n

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Translator отдаёт переведённые строки по ключу. Потерянный ключ
// возвращается как есть — перевод никогда не блокирует конвейер.
type Translator struct {
	dir string

	mu       sync.RWMutex
	language string
	strings  map[string]string
}

// NewTranslator загружает переводы для стартового языка.
func NewTranslator(dir, language string) (*Translator, error) {
	t := &Translator{dir: dir, language: language, strings: map[string]string{}}
	if err := t.load(language); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Translator) load(language string) error {
	path := filepath.Join(t.dir, language+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("чтение файла переводов %s: %w", path, err)
	}
	loaded := map[string]string{}
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return fmt.Errorf("разбор файла переводов %s: %w", path, err)
	}
	t.mu.Lock()
	t.language = language
	t.strings = loaded
	t.mu.Unlock()
	return nil
}

// Get возвращает строку по ключу, подставляя параметры вида {name}.
func (t *Translator) Get(key string, params map[string]string) string {
	t.mu.RLock()
	text, ok := t.strings[key]
	t.mu.RUnlock()
	if !ok {
		text = key
	}
	for name, value := range params {
		text = strings.ReplaceAll(text, "{"+name+"}", value)
	}
	return text
}

// Language возвращает текущий язык.
func (t *Translator) Language() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.language
}

// SetLanguage переключает язык, перечитывая файл переводов.
func (t *Translator) SetLanguage(language string) error {
	available, err := t.Available()
	if err != nil {
		return err
	}
	found := false
	for _, lang := range available {
		if lang == language {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("язык %q недоступен", language)
	}
	return t.load(language)
}

// Available перечисляет языки по JSON-файлам в каталоге переводов.
func (t *Translator) Available() ([]string, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return nil, fmt.Errorf("чтение каталога переводов: %w", err)
	}
	var languages []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || name == "config.json" {
			continue
		}
		languages = append(languages, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(languages)
	return languages, nil
}
