package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"KirveHubBot/internal/repository"
	"KirveHubBot/internal/service"
	"KirveHubBot/pkg/apperrors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Виды диалогов
const (
	dialogLottery   = "lottery"
	dialogProduct   = "product"
	dialogBroadcast = "broadcast"
)

// Поля данных диалогов
const (
	fieldGroup       = "group"
	fieldCost        = "cost"
	fieldWinners     = "winners"
	fieldDescription = "description"

	fieldProductID = "product_id"
	fieldName      = "name"
	fieldPrice     = "price"
	fieldStock     = "stock"
	fieldCompany   = "company"
	fieldLink      = "link"

	fieldText = "text"
)

const cancelWord = "iptal"

// dialogStep один вопрос диалога; parse нормализует ответ или возвращает ошибку ввода
type dialogStep struct {
	key    string
	prompt string
	parse  func(value string) (string, error)
}

type dialog struct {
	capability service.Capability
	steps      []dialogStep
	finish     func(ctx context.Context, req *request, data map[string]string) error
}

func (d *Dispatcher) dialogFlows() map[string]dialog {
	return map[string]dialog{
		dialogLottery: {
			capability: service.CapManageEvents,
			steps: []dialogStep{
				{key: fieldGroup, prompt: "🎯 Çekiliş hangi grupta yapılacak? Grup ID'sini gönder.", parse: parseIDField},
				{key: fieldCost, prompt: "💰 Katılım ücreti kaç KP? (ücretsiz için 0)", parse: parseCostField},
				{key: fieldWinners, prompt: "🏆 Kaç kazanan olacak?", parse: parsePositiveField},
				{key: fieldDescription, prompt: "📝 Çekiliş açıklamasını gönder. İlk satır başlık olur.", parse: parseTextField},
			},
			finish: d.finishLottery,
		},
		dialogProduct: {
			capability: service.CapManageMarket,
			steps: []dialogStep{
				{key: fieldName, prompt: "🏷 Ürün adı?", parse: parseTextField},
				{key: fieldPrice, prompt: "💵 Fiyatı kaç KP?", parse: parsePriceField},
				{key: fieldStock, prompt: "📦 Stok adedi?", parse: parseStockField},
				{key: fieldCompany, prompt: "🏢 Firma adı? (yoksa -)", parse: parseOptionalField},
				{key: fieldLink, prompt: "🔗 Firma linki? (yoksa -)", parse: parseOptionalField},
				{key: fieldDescription, prompt: "📝 Ürün açıklaması? (yoksa -)", parse: parseOptionalField},
			},
			finish: d.finishProduct,
		},
		dialogBroadcast: {
			capability: service.CapBroadcast,
			steps: []dialogStep{
				{key: fieldText, prompt: "📢 Duyuru metnini gönder.", parse: parseTextField},
			},
			finish: d.confirmBroadcast,
		},
	}
}

// startDialog начинает диалог; шаги с уже известными значениями пропускаются
func (d *Dispatcher) startDialog(ctx context.Context, req *request, kind string, data map[string]string) error {
	state := &repository.InputState{Kind: kind, Data: data}
	return d.advanceDialog(ctx, req, d.dialogs[kind], state)
}

// continueDialog принимает ответ пользователя на текущий шаг
func (d *Dispatcher) continueDialog(ctx context.Context, req *request, state *repository.InputState, text string) error {
	flow, ok := d.dialogs[state.Kind]
	if !ok {
		return d.states.Clear(ctx, req.user.UserID)
	}

	text = strings.TrimSpace(text)
	// турецкие правила регистра: "İptal" сводится к "iptal"
	if cases.Lower(language.Turkish).String(text) == cancelWord {
		if err := d.states.Clear(ctx, req.user.UserID); err != nil {
			return err
		}
		d.reply(ctx, req, "🚫 İşlem iptal edildi.")
		return nil
	}
	if !service.Allowed(req.user.RankID, flow.capability) {
		if err := d.states.Clear(ctx, req.user.UserID); err != nil {
			req.logger.Warn("Failed to reset dialog state", zap.Error(err))
		}
		d.reply(ctx, req, userMessage(apperrors.ErrInsufficientPermission, ""))
		return nil
	}
	if state.Step >= len(flow.steps) {
		d.reply(ctx, req, "👆 Yukarıdaki butonlarla onayla ya da \"iptal\" yaz.")
		return nil
	}

	step := flow.steps[state.Step]
	value, err := step.parse(text)
	if err != nil {
		d.reply(ctx, req, userMessage(err, "")+"\n\n"+step.prompt)
		return nil
	}
	if state.Data == nil {
		state.Data = map[string]string{}
	}
	state.Data[step.key] = value
	state.Step++
	return d.advanceDialog(ctx, req, flow, state)
}

func (d *Dispatcher) advanceDialog(ctx context.Context, req *request, flow dialog, state *repository.InputState) error {
	for state.Step < len(flow.steps) {
		if _, done := state.Data[flow.steps[state.Step].key]; !done {
			break
		}
		state.Step++
	}

	if state.Step < len(flow.steps) {
		if err := d.states.Set(ctx, req.user.UserID, state); err != nil {
			return err
		}
		d.reply(ctx, req, flow.steps[state.Step].prompt+"\n\nVazgeçmek için \"iptal\" yaz.")
		return nil
	}

	if err := d.states.Clear(ctx, req.user.UserID); err != nil {
		return err
	}
	return flow.finish(ctx, req, state.Data)
}

func (d *Dispatcher) finishProduct(ctx context.Context, req *request, data map[string]string) error {
	price, err := service.ParseAmount(data[fieldPrice])
	if err != nil {
		return err
	}
	stock, err := strconv.Atoi(data[fieldStock])
	if err != nil {
		return apperrors.InvalidInput("invalid stock %q", data[fieldStock])
	}
	in := service.ProductInput{
		Name:        data[fieldName],
		CompanyName: data[fieldCompany],
		CompanyLink: data[fieldLink],
		Price:       price,
		Stock:       stock,
		Description: data[fieldDescription],
	}

	if raw, ok := data[fieldProductID]; ok {
		productID, err := parseRecordID(raw)
		if err != nil {
			return err
		}
		product, err := d.svc.Market.UpdateProduct(ctx, req.user.UserID, productID, in)
		if err != nil {
			return err
		}
		d.reply(ctx, req, fmt.Sprintf("✅ Ürün #%d güncellendi: %s", product.ID, product.Name))
		return nil
	}

	product, err := d.svc.Market.CreateProduct(ctx, req.user.UserID, in)
	if err != nil {
		return err
	}
	d.reply(ctx, req, fmt.Sprintf("✅ Ürün #%d eklendi: %s, %s KP, %d adet", product.ID, product.Name, service.FormatPoints(product.Price), product.Stock))
	return nil
}

// confirmBroadcast показывает превью и ждет подтверждения кнопкой
func (d *Dispatcher) confirmBroadcast(ctx context.Context, req *request, data map[string]string) error {
	state := &repository.InputState{Kind: dialogBroadcast, Step: 1, Data: data}
	if err := d.states.Set(ctx, req.user.UserID, state); err != nil {
		return err
	}
	recipients, err := d.svc.Broadcast.Recipients(ctx)
	if err != nil {
		return err
	}
	d.replyWithButtons(ctx, req, fmt.Sprintf("📢 Duyuru önizleme (%d alıcı):\n\n%s", len(recipients), data[fieldText]), [][]service.Button{{
		{Text: "✅ Gönder", Data: callbackBroadcastSend},
		{Text: "❌ Vazgeç", Data: callbackBroadcastCancel},
	}})
	return nil
}

func parseIDField(value string) (string, error) {
	id, err := parseUserID(value)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

// parseCost сумма, допускающая ноль: бесплатная лотерея
func parseCost(value string) (decimal.Decimal, error) {
	cost, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(value), ",", "."))
	if err != nil || cost.IsNegative() || !cost.Round(2).Equal(cost) {
		return decimal.Zero, apperrors.InvalidInput("invalid amount %q", value)
	}
	return cost, nil
}

func parseCostField(value string) (string, error) {
	cost, err := parseCost(value)
	if err != nil {
		return "", err
	}
	return cost.StringFixed(2), nil
}

func parsePriceField(value string) (string, error) {
	price, err := service.ParseAmount(value)
	if err != nil {
		return "", err
	}
	return price.StringFixed(2), nil
}

func parsePositiveField(value string) (string, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return "", apperrors.InvalidInput("expected a positive number, got %q", value)
	}
	return strconv.Itoa(n), nil
}

func parseStockField(value string) (string, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return "", apperrors.InvalidInput("expected a non-negative number, got %q", value)
	}
	return strconv.Itoa(n), nil
}

func parseTextField(value string) (string, error) {
	if value == "" {
		return "", apperrors.InvalidInput("text is empty")
	}
	return value, nil
}

func parseOptionalField(value string) (string, error) {
	if value == "-" {
		return "", nil
	}
	return value, nil
}
