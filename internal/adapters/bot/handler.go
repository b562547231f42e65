package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-affiliate-bot/internal/adapters/telegram"
	"tg-affiliate-bot/internal/domain"
	"tg-affiliate-bot/internal/infra/i18n"
	"tg-affiliate-bot/internal/infra/metrics"
	"tg-affiliate-bot/internal/usecase/approval"
	"tg-affiliate-bot/internal/usecase/catalog"
)

// Handler обслуживает вебхук административного бота.
type Handler struct {
	bot        *tgbotapi.BotAPI
	log        zerolog.Logger
	catalogUC  *catalog.Service
	approvalUC *approval.Service
	products   domain.ProductRepo
	records    domain.PublishRecordRepo
	admins     domain.AdminRepo
	settings   domain.SettingsRepo
	jobs       domain.PublishQueue
	texts      *i18n.Translator
	godAdminID int64

	mu         sync.Mutex
	pendingAdd map[int64]int64  // admin → категория, в которую ждём ссылку
	pendingCfg map[int64]string // admin → поле настроек, значение которого ждём
}

// NewHandler создаёт обработчик.
func NewHandler(
	bot *tgbotapi.BotAPI,
	log zerolog.Logger,
	catalogUC *catalog.Service,
	approvalUC *approval.Service,
	products domain.ProductRepo,
	records domain.PublishRecordRepo,
	admins domain.AdminRepo,
	settings domain.SettingsRepo,
	jobs domain.PublishQueue,
	texts *i18n.Translator,
	godAdminID int64,
) *Handler {
	return &Handler{
		bot:        bot,
		log:        log,
		catalogUC:  catalogUC,
		approvalUC: approvalUC,
		products:   products,
		records:    records,
		admins:     admins,
		settings:   settings,
		jobs:       jobs,
		texts:      texts,
		godAdminID: godAdminID,
		pendingAdd: make(map[int64]int64),
		pendingCfg: make(map[int64]string),
	}
}

// HandleUpdate обрабатывает входящий апдейт. Не-администраторы
// игнорируются молча.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil && upd.Message.From != nil {
		admin, err := h.resolveAdmin(ctx, upd.Message.From)
		if err != nil {
			h.log.Debug().Int64("user_id", upd.Message.From.ID).Msg("сообщение не от администратора")
			return
		}
		h.handleMessage(ctx, admin, upd.Message)
		return
	}
	if upd.CallbackQuery != nil && upd.CallbackQuery.From != nil {
		admin, err := h.resolveAdmin(ctx, upd.CallbackQuery.From)
		if err != nil {
			h.answerCallback(upd.CallbackQuery.ID, h.texts.Get("not_admin", nil))
			return
		}
		h.handleCallback(ctx, admin, upd.CallbackQuery)
	}
}

// resolveAdmin возвращает администратора. Бог-админ из окружения
// создаётся при первом обращении.
func (h *Handler) resolveAdmin(ctx context.Context, from *tgbotapi.User) (domain.Admin, error) {
	admin, err := h.admins.GetAdmin(ctx, from.ID)
	if err == nil {
		return admin, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Admin{}, err
	}
	if from.ID != h.godAdminID {
		return domain.Admin{}, domain.ErrForbidden
	}
	return h.admins.UpsertAdmin(ctx, domain.Admin{
		UserID:    from.ID,
		Username:  from.UserName,
		FirstName: from.FirstName,
		Role:      domain.AdminRoleGod,
	})
}

func (h *Handler) handleMessage(ctx context.Context, admin domain.Admin, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		if h.tryPendingInput(ctx, admin, msg.Chat.ID, text) {
			return
		}
	}
	switch {
	case strings.HasPrefix(text, "/start"):
		h.reply(msg.Chat.ID, h.texts.Get("start_welcome", map[string]string{"name": admin.FirstName}), h.mainKeyboard())
	case strings.HasPrefix(text, "/help"):
		h.reply(msg.Chat.ID, h.texts.Get("help", nil), h.mainKeyboard())
	case strings.HasPrefix(text, "/add"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/add"))
		h.handleAdd(ctx, admin, msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/products"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/products"))
		h.handleProducts(ctx, msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/categories"):
		h.handleCategories(ctx, msg.Chat.ID)
	case strings.HasPrefix(text, "/category_add"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/category_add"))
		h.handleCategoryAdd(ctx, admin, msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/category_channels"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/category_channels"))
		h.handleCategoryChannels(ctx, admin, msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/category_del"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/category_del"))
		h.handleCategoryDelete(ctx, admin, msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/admins"):
		h.handleAdminList(ctx, admin, msg.Chat.ID)
	case strings.HasPrefix(text, "/admin_add"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/admin_add"))
		h.handleAdminAdd(ctx, admin, msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/admin_del"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/admin_del"))
		h.handleAdminRemove(ctx, admin, msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/config"):
		h.handleConfig(ctx, admin, msg.Chat.ID)
	case strings.HasPrefix(text, "/language"):
		h.handleLanguage(msg.Chat.ID)
	case strings.HasPrefix(text, "/republish"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/republish"))
		h.handleForceRepublish(ctx, admin, msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/cancel"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/cancel"))
		h.handleCancel(ctx, admin, msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/failed"):
		h.handleFailed(ctx, msg.Chat.ID)
	default:
		h.reply(msg.Chat.ID, h.texts.Get("unknown_command", nil), nil)
	}
}

// tryPendingInput обрабатывает текст, который бот ждал после нажатия
// кнопки: ссылку на товар либо значение настройки.
func (h *Handler) tryPendingInput(ctx context.Context, admin domain.Admin, chatID int64, text string) bool {
	h.mu.Lock()
	categoryID, waitingAdd := h.pendingAdd[admin.UserID]
	field, waitingCfg := h.pendingCfg[admin.UserID]
	if waitingAdd {
		delete(h.pendingAdd, admin.UserID)
	}
	if waitingCfg {
		delete(h.pendingCfg, admin.UserID)
	}
	h.mu.Unlock()

	if waitingAdd {
		h.addProduct(ctx, admin, chatID, text, categoryID)
		return true
	}
	if waitingCfg {
		h.applyConfigValue(ctx, admin, chatID, field, text)
		return true
	}
	return false
}

func (h *Handler) handleAdd(ctx context.Context, admin domain.Admin, chatID int64, payload string) {
	if !admin.Can(domain.CapManageCatalog) {
		h.reply(chatID, h.texts.Get("not_allowed", nil), nil)
		return
	}
	if payload == "" {
		h.promptCategoryForAdd(ctx, chatID)
		return
	}
	parts := strings.Fields(payload)
	rawURL := parts[0]
	var categoryID int64
	if len(parts) > 1 {
		categoryID, _ = strconv.ParseInt(parts[1], 10, 64)
	}
	if categoryID == 0 {
		categories, err := h.catalogUC.ListCategories(ctx)
		if err != nil || len(categories) == 0 {
			h.reply(chatID, h.texts.Get("no_categories", nil), nil)
			return
		}
		categoryID = categories[0].ID
	}
	h.addProduct(ctx, admin, chatID, rawURL, categoryID)
}

func (h *Handler) promptCategoryForAdd(ctx context.Context, chatID int64) {
	categories, err := h.catalogUC.ListCategories(ctx)
	if err != nil {
		h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
		return
	}
	if len(categories) == 0 {
		h.reply(chatID, h.texts.Get("no_categories", nil), nil)
		return
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(categories))
	for _, category := range categories {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(category.Name, fmt.Sprintf("add_to:%d", category.ID)),
		))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	h.reply(chatID, h.texts.Get("choose_category", nil), &markup)
}

func (h *Handler) addProduct(ctx context.Context, admin domain.Admin, chatID int64, rawURL string, categoryID int64) {
	product, err := h.catalogUC.AddProduct(ctx, rawURL, categoryID, admin.UserID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidURL):
			h.reply(chatID, h.texts.Get("invalid_url", nil), nil)
		case errors.Is(err, catalog.ErrDuplicateProduct):
			h.reply(chatID, h.texts.Get("duplicate_product", nil), nil)
		case errors.Is(err, domain.ErrNotFound):
			h.reply(chatID, h.texts.Get("category_not_found", nil), nil)
		default:
			h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
		}
		return
	}

	state, err := h.approvalUC.Submit(ctx, product.ID)
	if err != nil {
		h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
		return
	}
	switch state {
	case domain.StateApproved:
		h.enqueuePublish(ctx, chatID, product.ID, domain.PublishCauseApproval, false, admin.UserID)
		h.reply(chatID, h.texts.Get("product_auto_approved", map[string]string{"asin": product.ASIN}), nil)
	case domain.StatePendingReview:
		h.sendReviewCard(ctx, product)
		h.reply(chatID, h.texts.Get("product_pending_review", map[string]string{"asin": product.ASIN}), nil)
	default:
		h.reply(chatID, h.texts.Get("product_added", map[string]string{"asin": product.ASIN}), nil)
	}
}

// sendReviewCard отправляет карточку товара в канал согласования с
// кнопками одобрения. При непривязанном канале карточка уходит
// бог-админу в личку.
func (h *Handler) sendReviewCard(ctx context.Context, product domain.Product) {
	settings, err := h.settings.GetSettings(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось получить настройки для карточки согласования")
		return
	}

	var lines []string
	lines = append(lines, telegram.EscapeHTML(product.Title))
	if product.HasPrice() {
		lines = append(lines, fmt.Sprintf("%.2f %s", *product.Price, product.Currency))
	}
	lines = append(lines, product.AffiliateURL)
	text := strings.Join(lines, "\n\n")

	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(h.texts.Get("btn_approve", nil), fmt.Sprintf("approve:%d", product.ID)),
			tgbotapi.NewInlineKeyboardButtonData(h.texts.Get("btn_reject", nil), fmt.Sprintf("reject:%d", product.ID)),
		),
	)

	chatID := h.godAdminID
	var username string
	if settings.ReviewChannelID != "" {
		if strings.HasPrefix(settings.ReviewChannelID, "@") {
			username = settings.ReviewChannelID
			chatID = 0
		} else if id, err := strconv.ParseInt(settings.ReviewChannelID, 10, 64); err == nil {
			chatID = id
		}
	}

	if product.ImageURL != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(product.ImageURL))
		photo.ChannelUsername = username
		photo.Caption = text
		photo.ParseMode = tgbotapi.ModeHTML
		photo.ReplyMarkup = markup
		h.send(photo, chatID)
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ChannelUsername = username
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	h.send(msg, chatID)
}

func (h *Handler) handleProducts(ctx context.Context, chatID int64, payload string) {
	var categoryID int64
	if payload != "" {
		categoryID, _ = strconv.ParseInt(payload, 10, 64)
	}
	var (
		products []domain.Product
		err      error
	)
	if categoryID > 0 {
		products, err = h.catalogUC.ListProducts(ctx, categoryID)
	} else {
		products, err = h.products.ListTracked(ctx)
	}
	if err != nil {
		h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
		return
	}
	if len(products) == 0 {
		h.reply(chatID, h.texts.Get("no_products", nil), nil)
		return
	}
	var b strings.Builder
	for _, product := range products {
		price := "—"
		if product.HasPrice() {
			price = fmt.Sprintf("%.2f %s", *product.Price, product.Currency)
		}
		b.WriteString(fmt.Sprintf("#%d %s — %s [%s]\n", product.ID, product.ASIN, price, product.State))
	}
	h.reply(chatID, b.String(), nil)
}

func (h *Handler) handleCategories(ctx context.Context, chatID int64) {
	categories, err := h.catalogUC.ListCategories(ctx)
	if err != nil {
		h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
		return
	}
	if len(categories) == 0 {
		h.reply(chatID, h.texts.Get("no_categories", nil), nil)
		return
	}
	var b strings.Builder
	for _, category := range categories {
		channels := strings.Join(category.Channels, ", ")
		if channels == "" {
			channels = h.texts.Get("no_channels", nil)
		}
		b.WriteString(fmt.Sprintf("#%d %s → %s\n", category.ID, category.Name, channels))
	}
	h.reply(chatID, b.String(), nil)
}

func (h *Handler) handleCategoryAdd(ctx context.Context, admin domain.Admin, chatID int64, payload string) {
	if !admin.Can(domain.CapManageCatalog) {
		h.reply(chatID, h.texts.Get("not_allowed", nil), nil)
		return
	}
	parts := strings.Fields(payload)
	if len(parts) == 0 {
		h.reply(chatID, h.texts.Get("category_add_usage", nil), nil)
		return
	}
	name := parts[0]
	channels := parts[1:]
	category, err := h.catalogUC.CreateCategory(ctx, name, channels, admin.UserID)
	if err != nil {
		h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
		return
	}
	h.reply(chatID, h.texts.Get("category_created", map[string]string{"name": category.Name}), nil)
}

func (h *Handler) handleCategoryChannels(ctx context.Context, admin domain.Admin, chatID int64, payload string) {
	if !admin.Can(domain.CapManageCatalog) {
		h.reply(chatID, h.texts.Get("not_allowed", nil), nil)
		return
	}
	parts := strings.Fields(payload)
	if len(parts) < 1 {
		h.reply(chatID, h.texts.Get("category_channels_usage", nil), nil)
		return
	}
	categoryID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || categoryID == 0 {
		h.reply(chatID, h.texts.Get("category_channels_usage", nil), nil)
		return
	}
	if err := h.catalogUC.SetCategoryChannels(ctx, categoryID, parts[1:]); err != nil {
		h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
		return
	}
	h.reply(chatID, h.texts.Get("category_channels_updated", nil), nil)
}

func (h *Handler) handleCategoryDelete(ctx context.Context, admin domain.Admin, chatID int64, payload string) {
	if !admin.Can(domain.CapManageCatalog) {
		h.reply(chatID, h.texts.Get("not_allowed", nil), nil)
		return
	}
	parts := strings.Fields(payload)
	if len(parts) == 0 {
		h.reply(chatID, h.texts.Get("category_del_usage", nil), nil)
		return
	}
	categoryID, _ := strconv.ParseInt(parts[0], 10, 64)
	var reassignTo int64
	if len(parts) > 1 {
		reassignTo, _ = strconv.ParseInt(parts[1], 10, 64)
	}
	err := h.catalogUC.DeleteCategory(ctx, categoryID, reassignTo)
	if err != nil {
		if errors.Is(err, domain.ErrCategoryInUse) {
			h.reply(chatID, h.texts.Get("category_in_use", nil), nil)
			return
		}
		h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
		return
	}
	h.reply(chatID, h.texts.Get("category_deleted", nil), nil)
}

func (h *Handler) handleAdminList(ctx context.Context, admin domain.Admin, chatID int64) {
	if !admin.Can(domain.CapManageAdmins) {
		h.reply(chatID, h.texts.Get("not_allowed", nil), nil)
		return
	}
	admins, err := h.admins.ListAdmins(ctx)
	if err != nil {
		h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
		return
	}
	var b strings.Builder
	for _, a := range admins {
		name := a.Username
		if name == "" {
			name = a.FirstName
		}
		b.WriteString(fmt.Sprintf("%d %s (%s)\n", a.UserID, name, a.Role))
	}
	h.reply(chatID, b.String(), nil)
}

func (h *Handler) handleAdminAdd(ctx context.Context, admin domain.Admin, chatID int64, payload string) {
	if !admin.Can(domain.CapManageAdmins) {
		h.reply(chatID, h.texts.Get("not_allowed", nil), nil)
		return
	}
	userID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || userID == 0 {
		h.reply(chatID, h.texts.Get("admin_add_usage", nil), nil)
		return
	}
	if _, err := h.admins.UpsertAdmin(ctx, domain.Admin{UserID: userID, Role: domain.AdminRoleStandard, AddedBy: admin.UserID}); err != nil {
		h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
		return
	}
	h.reply(chatID, h.texts.Get("admin_added", map[string]string{"id": payload}), nil)
}

func (h *Handler) handleAdminRemove(ctx context.Context, admin domain.Admin, chatID int64, payload string) {
	if !admin.Can(domain.CapManageAdmins) {
		h.reply(chatID, h.texts.Get("not_allowed", nil), nil)
		return
	}
	userID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || userID == 0 {
		h.reply(chatID, h.texts.Get("admin_del_usage", nil), nil)
		return
	}
	if userID == h.godAdminID {
		h.reply(chatID, h.texts.Get("cannot_remove_god", nil), nil)
		return
	}
	if err := h.admins.RemoveAdmin(ctx, userID); err != nil {
		h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
		return
	}
	h.reply(chatID, h.texts.Get("admin_removed", map[string]string{"id": payload}), nil)
}

func (h *Handler) handleConfig(ctx context.Context, admin domain.Admin, chatID int64) {
	if !admin.Can(domain.CapConfigure) {
		h.reply(chatID, h.texts.Get("not_allowed", nil), nil)
		return
	}
	settings, err := h.settings.GetSettings(ctx)
	if err != nil {
		h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
		return
	}
	lines := []string{
		h.texts.Get("config_header", nil),
		fmt.Sprintf("affiliate_tag: %s", settings.AffiliateTag),
		fmt.Sprintf("approval_mode: %s", settings.ApprovalMode),
		fmt.Sprintf("review_channel: %s", settings.ReviewChannelID),
		fmt.Sprintf("ai_prompt_enabled: %t", settings.AIPromptEnabled),
		fmt.Sprintf("button_text: %s", settings.ButtonText),
		fmt.Sprintf("check_interval: %s", settings.CheckInterval),
		fmt.Sprintf("product_delay: %s", settings.ProductDelay),
		fmt.Sprintf("monitor_enabled: %t", settings.MonitorEnabled),
		fmt.Sprintf("language: %s", settings.Language),
		fmt.Sprintf("reopen_on_drop: %t", settings.ReopenOnDrop),
		fmt.Sprintf("min_drop_percent: %d", settings.MinDropPercent),
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(h.texts.Get("btn_cfg_tag", nil), "cfg:affiliate_tag"),
			tgbotapi.NewInlineKeyboardButtonData(h.texts.Get("btn_cfg_prompt", nil), "cfg:ai_prompt"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(h.texts.Get("btn_cfg_button", nil), "cfg:button_text"),
			tgbotapi.NewInlineKeyboardButtonData(h.texts.Get("btn_cfg_review", nil), "cfg:review_channel"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(h.texts.Get("btn_cfg_interval", nil), "cfg:check_interval"),
			tgbotapi.NewInlineKeyboardButtonData(h.texts.Get("btn_cfg_delay", nil), "cfg:product_delay"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(h.texts.Get("btn_cfg_auto", nil), "cfg_toggle:approval_mode"),
			tgbotapi.NewInlineKeyboardButtonData(h.texts.Get("btn_cfg_monitor", nil), "cfg_toggle:monitor_enabled"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(h.texts.Get("btn_cfg_ai", nil), "cfg_toggle:ai_prompt_enabled"),
			tgbotapi.NewInlineKeyboardButtonData(h.texts.Get("btn_cfg_reopen", nil), "cfg_toggle:reopen_on_drop"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(h.texts.Get("btn_cfg_drop", nil), "cfg:min_drop_percent"),
		),
	)
	h.reply(chatID, strings.Join(lines, "\n"), &markup)
}

// applyConfigValue сохраняет введённое админом значение настройки.
func (h *Handler) applyConfigValue(ctx context.Context, admin domain.Admin, chatID int64, field, value string) {
	settings, err := h.settings.GetSettings(ctx)
	if err != nil {
		h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
		return
	}
	switch field {
	case "affiliate_tag":
		settings.AffiliateTag = value
	case "ai_prompt":
		settings.AIPrompt = value
	case "button_text":
		settings.ButtonText = value
	case "review_channel":
		settings.ReviewChannelID = value
	case "check_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			h.reply(chatID, h.texts.Get("invalid_duration", nil), nil)
			return
		}
		settings.CheckInterval = d
	case "product_delay":
		d, err := time.ParseDuration(value)
		if err != nil {
			h.reply(chatID, h.texts.Get("invalid_duration", nil), nil)
			return
		}
		settings.ProductDelay = d
	case "min_drop_percent":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			h.reply(chatID, h.texts.Get("invalid_number", nil), nil)
			return
		}
		settings.MinDropPercent = n
	default:
		h.reply(chatID, h.texts.Get("unknown_setting", nil), nil)
		return
	}
	settings.UpdatedBy = admin.UserID
	if err := h.settings.UpdateSettings(ctx, settings); err != nil {
		h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
		return
	}
	h.reply(chatID, h.texts.Get("config_saved", nil), nil)
	if field == "affiliate_tag" {
		updated, err := h.catalogUC.RenormalizeAll(ctx)
		if err != nil {
			h.log.Error().Err(err).Msg("пересчёт партнёрских ссылок не завершён")
			h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
			return
		}
		h.reply(chatID, h.texts.Get("tag_links_updated", map[string]string{"count": strconv.Itoa(updated)}), nil)
	}
}

func (h *Handler) toggleConfig(ctx context.Context, admin domain.Admin, chatID int64, field string) {
	settings, err := h.settings.GetSettings(ctx)
	if err != nil {
		h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
		return
	}
	switch field {
	case "approval_mode":
		if settings.ApprovalMode == domain.ApprovalAuto {
			settings.ApprovalMode = domain.ApprovalManual
		} else {
			settings.ApprovalMode = domain.ApprovalAuto
		}
	case "monitor_enabled":
		settings.MonitorEnabled = !settings.MonitorEnabled
	case "ai_prompt_enabled":
		settings.AIPromptEnabled = !settings.AIPromptEnabled
	case "reopen_on_drop":
		settings.ReopenOnDrop = !settings.ReopenOnDrop
	default:
		h.reply(chatID, h.texts.Get("unknown_setting", nil), nil)
		return
	}
	settings.UpdatedBy = admin.UserID
	if err := h.settings.UpdateSettings(ctx, settings); err != nil {
		h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
		return
	}
	h.handleConfig(ctx, admin, chatID)
}

func (h *Handler) handleLanguage(chatID int64) {
	languages, err := h.texts.Available()
	if err != nil || len(languages) == 0 {
		h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": "translations"}), nil)
		return
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(languages))
	for _, language := range languages {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(language, "lang:"+language),
		))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	h.reply(chatID, h.texts.Get("choose_language", nil), &markup)
}

func (h *Handler) handleForceRepublish(ctx context.Context, admin domain.Admin, chatID int64, payload string) {
	if !admin.Can(domain.CapForceRepublish) {
		h.reply(chatID, h.texts.Get("not_allowed", nil), nil)
		return
	}
	productID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || productID == 0 {
		h.reply(chatID, h.texts.Get("republish_usage", nil), nil)
		return
	}
	h.enqueuePublish(ctx, chatID, productID, domain.PublishCauseManual, true, admin.UserID)
	h.reply(chatID, h.texts.Get("republish_queued", nil), nil)
}

// handleCancel отзывает одобрение до публикации. Уже опубликованный
// товар отозвать нельзя — админ получает текущее состояние.
func (h *Handler) handleCancel(ctx context.Context, admin domain.Admin, chatID int64, payload string) {
	productID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || productID == 0 {
		h.reply(chatID, h.texts.Get("cancel_usage", nil), nil)
		return
	}
	decision, err := h.approvalUC.Cancel(ctx, admin, productID)
	if err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			h.reply(chatID, h.texts.Get("not_allowed", nil), nil)
			return
		}
		h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
		return
	}
	if !decision.Applied {
		h.reply(chatID, h.texts.Get("decision_already_made", map[string]string{"state": string(decision.State)}), nil)
		return
	}
	h.reply(chatID, h.texts.Get("cancel_done", nil), nil)
}

// failedLookback — окно, за которое /failed показывает неудачные публикации.
const failedLookback = 7 * 24 * time.Hour

func (h *Handler) handleFailed(ctx context.Context, chatID int64) {
	records, err := h.records.ListFailed(ctx, time.Now().UTC().Add(-failedLookback))
	if err != nil {
		h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
		return
	}
	if len(records) == 0 {
		h.reply(chatID, h.texts.Get("no_failed", nil), nil)
		return
	}
	h.reply(chatID, formatFailedRecords(h.texts.Get("failed_header", nil), records), nil)
}

func formatFailedRecords(header string, records []domain.PublishRecord) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	for _, record := range records {
		b.WriteString(fmt.Sprintf("#%d → %s [%d]: %s\n",
			record.ProductID, record.ChannelID, record.Attempt, record.LastError))
	}
	return b.String()
}

func (h *Handler) handleCallback(ctx context.Context, admin domain.Admin, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := int64(0)
	if cb.Message != nil {
		chatID = cb.Message.Chat.ID
	}
	switch {
	case data == "menu_add":
		h.promptCategoryForAdd(ctx, chatID)
	case data == "menu_products":
		h.handleProducts(ctx, chatID, "")
	case data == "menu_categories":
		h.handleCategories(ctx, chatID)
	case data == "menu_config":
		h.handleConfig(ctx, admin, chatID)
	case data == "menu_language":
		h.handleLanguage(chatID)
	case strings.HasPrefix(data, "add_to:"):
		categoryID := parseID(data)
		h.mu.Lock()
		h.pendingAdd[admin.UserID] = categoryID
		h.mu.Unlock()
		h.reply(chatID, h.texts.Get("send_product_url", nil), nil)
	case strings.HasPrefix(data, "approve:"):
		h.handleApprove(ctx, admin, cb, parseID(data))
		return
	case strings.HasPrefix(data, "reject:"):
		h.handleReject(ctx, admin, cb, parseID(data))
		return
	case strings.HasPrefix(data, "cfg:"):
		field := strings.TrimPrefix(data, "cfg:")
		if !admin.Can(domain.CapConfigure) {
			h.answerCallback(cb.ID, h.texts.Get("not_allowed", nil))
			return
		}
		h.mu.Lock()
		h.pendingCfg[admin.UserID] = field
		h.mu.Unlock()
		h.reply(chatID, h.texts.Get("send_config_value", map[string]string{"field": field}), nil)
	case strings.HasPrefix(data, "cfg_toggle:"):
		if !admin.Can(domain.CapConfigure) {
			h.answerCallback(cb.ID, h.texts.Get("not_allowed", nil))
			return
		}
		h.toggleConfig(ctx, admin, chatID, strings.TrimPrefix(data, "cfg_toggle:"))
	case strings.HasPrefix(data, "lang:"):
		language := strings.TrimPrefix(data, "lang:")
		if err := h.texts.SetLanguage(language); err != nil {
			h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
			break
		}
		if settings, err := h.settings.GetSettings(ctx); err == nil {
			settings.Language = language
			settings.UpdatedBy = admin.UserID
			if err := h.settings.UpdateSettings(ctx, settings); err != nil {
				h.log.Error().Err(err).Msg("не удалось сохранить язык")
			}
		}
		h.reply(chatID, h.texts.Get("language_set", map[string]string{"language": language}), nil)
	}
	h.answerCallback(cb.ID, "")
}

// handleApprove разрешает гонку одновременных решений: из двух кликов
// применяется ровно один, второй получает вежливый no-op.
func (h *Handler) handleApprove(ctx context.Context, admin domain.Admin, cb *tgbotapi.CallbackQuery, productID int64) {
	decision, err := h.approvalUC.Approve(ctx, admin, productID)
	if err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			h.answerCallback(cb.ID, h.texts.Get("not_allowed", nil))
			return
		}
		h.answerCallback(cb.ID, h.texts.Get("error_short", nil))
		h.log.Error().Err(err).Int64("product_id", productID).Msg("ошибка одобрения")
		return
	}
	if !decision.Applied {
		h.answerCallback(cb.ID, h.texts.Get("decision_already_made", map[string]string{"state": string(decision.State)}))
		return
	}
	h.enqueuePublish(ctx, 0, productID, domain.PublishCauseApproval, false, admin.UserID)
	h.answerCallback(cb.ID, h.texts.Get("approved", nil))
	h.markReviewCard(cb, h.texts.Get("approved", nil))
}

func (h *Handler) handleReject(ctx context.Context, admin domain.Admin, cb *tgbotapi.CallbackQuery, productID int64) {
	decision, err := h.approvalUC.Reject(ctx, admin, productID)
	if err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			h.answerCallback(cb.ID, h.texts.Get("not_allowed", nil))
			return
		}
		h.answerCallback(cb.ID, h.texts.Get("error_short", nil))
		h.log.Error().Err(err).Int64("product_id", productID).Msg("ошибка отклонения")
		return
	}
	if !decision.Applied {
		h.answerCallback(cb.ID, h.texts.Get("decision_already_made", map[string]string{"state": string(decision.State)}))
		return
	}
	h.answerCallback(cb.ID, h.texts.Get("rejected", nil))
	h.markReviewCard(cb, h.texts.Get("rejected", nil))
}

// markReviewCard убирает кнопки с карточки согласования и дописывает
// итог решения.
func (h *Handler) markReviewCard(cb *tgbotapi.CallbackQuery, verdict string) {
	if cb.Message == nil {
		return
	}
	empty := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(verdict, "noop"),
	))
	edit := tgbotapi.NewEditMessageReplyMarkup(cb.Message.Chat.ID, cb.Message.MessageID, empty)
	start := time.Now()
	_, err := h.bot.Request(edit)
	metrics.ObserveNetworkRequest("telegram_bot", "edit_markup", strconv.FormatInt(cb.Message.Chat.ID, 10), start, err)
	if err != nil {
		h.log.Debug().Err(err).Msg("не удалось обновить карточку согласования")
	}
}

func (h *Handler) enqueuePublish(ctx context.Context, chatID, productID int64, cause domain.PublishCause, force bool, requestedBy int64) {
	job := domain.PublishJob{
		ID:          uuid.NewString(),
		ProductID:   productID,
		Cause:       cause,
		Force:       force,
		RequestedBy: requestedBy,
		RequestedAt: time.Now().UTC(),
	}
	if err := h.jobs.Enqueue(ctx, job); err != nil {
		h.log.Error().Err(err).Int64("product_id", productID).Msg("не удалось поставить задачу публикации")
		if chatID != 0 {
			h.reply(chatID, h.texts.Get("error_generic", map[string]string{"error": err.Error()}), nil)
		}
	}
}

func parseID(data string) int64 {
	parts := strings.Split(data, ":")
	if len(parts) != 2 {
		return 0
	}
	id, _ := strconv.ParseInt(parts[1], 10, 64)
	return id
}

func (h *Handler) answerCallback(callbackID, text string) {
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(callbackID, text))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", "callback", start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	for i, part := range telegram.SplitText(text, 0) {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

func (h *Handler) send(msg tgbotapi.Chattable, chatID int64) {
	start := time.Now()
	_, err := h.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram_bot", "send_review_card", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		metrics.BotSendErrors.Inc()
		h.log.Error().Err(err).Msg("не удалось отправить карточку согласования")
	}
}

func (h *Handler) mainKeyboard() *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(h.texts.Get("btn_add_product", nil), "menu_add"),
			tgbotapi.NewInlineKeyboardButtonData(h.texts.Get("btn_products", nil), "menu_products"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(h.texts.Get("btn_categories", nil), "menu_categories"),
			tgbotapi.NewInlineKeyboardButtonData(h.texts.Get("btn_config", nil), "menu_config"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(h.texts.Get("btn_language", nil), "menu_language"),
		),
	)
	return &markup
}
