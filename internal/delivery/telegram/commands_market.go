package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/service"
	"KirveHubBot/pkg/apperrors"
)

const pendingOrdersSize = 20

func (d *Dispatcher) cmdMarket(ctx context.Context, req *request) error {
	if len(req.args) == 0 {
		if service.Allowed(req.user.RankID, service.CapManageMarket) {
			return d.showCatalogueAdmin(ctx, req)
		}
		return d.showCatalogue(ctx, req)
	}

	if !service.Allowed(req.user.RankID, service.CapManageMarket) {
		return apperrors.Forbidden("market management requires %s", service.CapManageMarket)
	}
	switch strings.ToLower(req.args[0]) {
	case "ekle":
		return d.startDialog(ctx, req, dialogProduct, map[string]string{})
	case "duzenle", "düzenle":
		if err := requireArgs(req, 2); err != nil {
			return err
		}
		productID, err := parseRecordID(req.args[1])
		if err != nil {
			return err
		}
		return d.startDialog(ctx, req, dialogProduct, map[string]string{fieldProductID: strconv.FormatUint(uint64(productID), 10)})
	case "stok":
		if err := requireArgs(req, 3); err != nil {
			return err
		}
		productID, err := parseRecordID(req.args[1])
		if err != nil {
			return err
		}
		delta, err := strconv.Atoi(strings.TrimPrefix(req.args[2], "+"))
		if err != nil {
			return apperrors.InvalidInput("invalid stock delta %q", req.args[2])
		}
		product, err := d.svc.Market.AdjustStock(ctx, req.user.UserID, productID, delta)
		if err != nil {
			return err
		}
		d.reply(ctx, req, fmt.Sprintf("📦 %s stoğu: %d", product.Name, product.Stock))
		return nil
	}
	return apperrors.InvalidInput("unknown market action %q", req.args[0])
}

func (d *Dispatcher) showCatalogue(ctx context.Context, req *request) error {
	products, err := d.svc.Market.ListProducts(ctx, true)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		d.reply(ctx, req, "🛒 Markette şu anda ürün yok.")
		return nil
	}

	var (
		b       strings.Builder
		buttons [][]service.Button
	)
	fmt.Fprintf(&b, "🛒 KirveHub Market\n💰 Bakiyen: %s KP\n", service.FormatPoints(req.user.Points))
	for _, p := range products {
		fmt.Fprintf(&b, "\n#%d %s\n💵 %s KP · 📦 %d adet", p.ID, p.Name, service.FormatPoints(p.Price), p.Stock)
		if p.CompanyName != "" {
			fmt.Fprintf(&b, " · 🏢 %s", p.CompanyName)
		}
		if p.Description != "" {
			fmt.Fprintf(&b, "\n%s", service.Truncate(p.Description, 120))
		}
		if p.Stock > 0 {
			buttons = append(buttons, []service.Button{{
				Text: fmt.Sprintf("🛍 %s (%s KP)", service.Truncate(p.Name, 24), service.FormatPoints(p.Price)),
				Data: fmt.Sprintf("%s%d", service.CallbackBuy, p.ID),
			}})
		}
	}
	d.replyWithButtons(ctx, req, b.String(), buttons)
	return nil
}

func (d *Dispatcher) showCatalogueAdmin(ctx context.Context, req *request) error {
	products, err := d.svc.Market.ListProducts(ctx, false)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		d.reply(ctx, req, "🛒 Katalog boş. Ürün eklemek için: /market ekle")
		return nil
	}

	rows := make([][]string, 0, len(products))
	buttons := make([][]service.Button, 0, len(products))
	for _, p := range products {
		state := "açık"
		toggle := "⏸ Kapat"
		if !p.IsActive {
			state = "kapalı"
			toggle = "▶️ Aç"
		}
		rows = append(rows, []string{fmt.Sprintf("#%d", p.ID), service.Truncate(p.Name, 20), service.FormatPoints(p.Price), strconv.Itoa(p.Stock), state})
		buttons = append(buttons, []service.Button{
			{Text: fmt.Sprintf("%s #%d", toggle, p.ID), Data: fmt.Sprintf("%s%d", service.CallbackToggle, p.ID)},
			{Text: fmt.Sprintf("🗑 Sil #%d", p.ID), Data: fmt.Sprintf("%s%d", service.CallbackDelete, p.ID)},
		})
	}

	text := preformatted("🛒 Market kataloğu", service.Table([]string{"ID", "Ürün", "KP", "Stok", "Durum"}, rows)) +
		"\n\n/market ekle · /market duzenle &lt;id&gt; · /market stok &lt;id&gt; &lt;±adet&gt;"
	d.replyHTML(ctx, req, text, buttons)
	return nil
}

func (d *Dispatcher) cmdPendingOrders(ctx context.Context, req *request) error {
	orders, err := d.svc.Market.ListOrders(ctx, models.OrderPending, pendingOrdersSize)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		d.reply(ctx, req, "📭 Bekleyen sipariş yok.")
		return nil
	}
	for i := range orders {
		d.replyWithButtons(ctx, req, orderText(&orders[i]), service.OrderButtons(&orders[i]))
	}
	return nil
}

func orderText(o *models.MarketOrder) string {
	text := fmt.Sprintf("%s Sipariş %s\n\nKullanıcı: %d\nÜrün: %s x%d\nTutar: %s KP\nTarih: %s",
		orderStatusIcon(o.Status), o.OrderNumber, o.UserID, productName(o.Product), o.Quantity,
		service.FormatPoints(o.TotalPrice), o.CreatedAt.Format("02.01.2006 15:04"))
	if o.AdminNotes != "" {
		text += "\n📝 " + o.AdminNotes
	}
	return text
}
