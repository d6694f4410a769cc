package telegram

import (
	"context"
	"html"
	"strconv"
	"strings"

	"KirveHubBot/internal/service"
	"KirveHubBot/pkg/apperrors"
)

func (d *Dispatcher) commandRoutes() map[string]route {
	routes := map[string]route{
		"start":        {summary: "Botu başlat", handle: d.cmdStart},
		"kirvekayit":   {summary: "KirveHub'a kayıt ol", handle: d.cmdRegister},
		"kayitsil":     {registered: true, summary: "Kaydını sil (bakiyen korunur)", handle: d.cmdUnregister},
		"menu":         {summary: "Profilin ve bakiyen", handle: d.cmdMenu},
		"siralama":     {summary: "En çok KP toplayanlar", handle: d.cmdLeaderboard},
		"gecmis":       {registered: true, summary: "Son bakiye hareketlerin", handle: d.cmdHistory},
		"market":       {summary: "Market ürünleri", usage: "/market [ekle | duzenle <id> | stok <id> <±adet>]", handle: d.cmdMarket},
		"siparislerim": {registered: true, summary: "Siparişlerin", handle: d.cmdMyOrders},
		"etkinlikler":  {summary: "Aktif çekilişler", handle: d.cmdEvents},

		"adminpanel": {capability: service.CapAdminPanel, summary: "Yönetim paneli", handle: d.cmdAdminPanel},
		"adminlist":  {capability: service.CapAdminPanel, summary: "Yetkili listesi", handle: d.cmdAdminList},
		"grupbilgi":  {capability: service.CapAdminPanel, usage: "/grupbilgi (grupta) veya /grupbilgi <grup_id>", summary: "Grup bilgisi", handle: d.cmdGroupInfo},
		"duyuru":     {capability: service.CapBroadcast, usage: "/duyuru [metin]", summary: "Kayıtlı kullanıcılara duyuru", handle: d.cmdBroadcast},

		"kirvegrup":  {capability: service.CapRegisterGroup, usage: "/kirvegrup (grupta) veya /kirvegrup <grup_id>", summary: "Grubu kaydet", handle: d.cmdRegisterGroup},
		"grupsil":    {capability: service.CapRegisterGroup, usage: "/grupsil (grupta) veya /grupsil <grup_id>", summary: "Grup kaydını kaldır", handle: d.cmdUnregisterGroup},
		"grupcarpan": {capability: service.CapRegisterGroup, usage: "/grupcarpan <çarpan> [grup_id]", summary: "Grup KP çarpanı", handle: d.cmdGroupMultiplier},

		"cekilisyap":    {capability: service.CapManageEvents, usage: "/cekilisyap [grup_id]", summary: "Çekiliş oluştur", handle: d.cmdCreateLottery},
		"cekilisbitir":  {capability: service.CapManageEvents, usage: "/cekilisbitir <id>", summary: "Çekilişi sonuçlandır", handle: d.cmdEndLottery},
		"etkinlikiptal": {capability: service.CapManageEvents, usage: "/etkinlikiptal <id>", summary: "Çekilişi iptal et", handle: d.cmdCancelLottery},
		"bonusbaslat":   {capability: service.CapManageEvents, usage: "/bonusbaslat <çarpan> <dakika> [başlık]", summary: "Bonus etkinliği başlat", handle: d.cmdStartBonus},
		"bonusbitir":    {capability: service.CapManageEvents, summary: "Bonus etkinliğini bitir", handle: d.cmdEndBonus},

		"surpriz":   {capability: service.CapManageBalances, usage: "/surpriz [miktar [sebep]]", summary: "Son 10 dakikada aktif olanlara KP", handle: d.cmdSurprise},
		"bakiyee":   {capability: service.CapManageBalances, usage: "/bakiyee <miktar> [sebep] (mesaja yanıt olarak)", summary: "Yanıtlanan kişiye KP ekle", handle: d.cmdCreditByReply},
		"bakiyec":   {capability: service.CapManageBalances, usage: "/bakiyec <miktar> [sebep] (mesaja yanıt olarak)", summary: "Yanıtlanan kişiden KP düş", handle: d.cmdDebitByReply},
		"bakiyeeid": {capability: service.CapManageBalances, usage: "/bakiyeeid <user_id> <miktar> [sebep]", summary: "ID ile KP ekle", handle: d.cmdCreditByID},
		"bakiyecid": {capability: service.CapManageBalances, usage: "/bakiyecid <user_id> <miktar> [sebep]", summary: "ID ile KP düş", handle: d.cmdDebitByID},

		"siparisler": {capability: service.CapManageMarket, summary: "Bekleyen siparişler", handle: d.cmdPendingOrders},

		"adminyap":   {capability: service.CapManageRanks, usage: "/adminyap @kullanici <1-4> (veya mesaja yanıt olarak)", summary: "Yetki ver", handle: d.cmdPromote},
		"adminçıkar": {capability: service.CapManageRanks, usage: "/adminçıkar @kullanici (veya mesaja yanıt olarak)", summary: "Yetkiyi al", handle: d.cmdDemote},

		"zamanli":     {capability: service.CapScheduledMessages, summary: "Zamanlı mesaj profilleri", handle: d.cmdProfiles},
		"zamanliekle": {capability: service.CapScheduledMessages, usage: "/zamanliekle <grup_id> <saniye> <metin> [link=...] [foto=...]", summary: "Zamanlı mesaj ekle", handle: d.cmdAddProfile},

		"komutolustur": {capability: service.CapRoot, usage: "/komutolustur !komut <yanıt> [| buton metni | buton linki]", summary: "Özel komut oluştur", handle: d.cmdCreateCustomCommand},
		"komutlar":     {capability: service.CapRoot, summary: "Özel komutlar", handle: d.cmdListCustomCommands},
		"komutsil":     {capability: service.CapDeleteCommands, usage: "/komutsil <id>", summary: "Özel komutu sil", handle: d.cmdDeleteCustomCommand},
		"ayarlar":      {capability: service.CapRoot, usage: "/ayarlar [anahtar değer]", summary: "Sistem ayarları", handle: d.cmdSettings},
		"hesapsil":     {capability: service.CapRoot, usage: "/hesapsil <user_id>", summary: "Hesabı tamamen sil", handle: d.cmdDeleteAccount},
	}

	// ASCII-вариант для клавиатур без турецкой раскладки
	alias := routes["adminçıkar"]
	alias.summary = ""
	routes["admincikar"] = alias
	return routes
}

func parseUserID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.InvalidInput("invalid id %q", value)
	}
	return id, nil
}

func parseRecordID(value string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(value), "#"), 10, 32)
	if err != nil || id == 0 {
		return 0, apperrors.InvalidInput("invalid id %q", value)
	}
	return uint(id), nil
}

func requireArgs(req *request, n int) error {
	if len(req.args) < n {
		return apperrors.InvalidInput("missing arguments")
	}
	return nil
}

// targetGroup группа команды: текущий чат для групповой команды или id из аргумента
func targetGroup(req *request, argIndex int) (int64, error) {
	if req.fromGroup {
		return req.chatID, nil
	}
	if len(req.args) <= argIndex {
		return 0, apperrors.InvalidInput("group id is required outside of a group")
	}
	return parseUserID(req.args[argIndex])
}

// preformatted оборачивает таблицу в <pre> для моноширинного вывода
func preformatted(title, table string) string {
	return html.EscapeString(title) + "\n<pre>" + html.EscapeString(table) + "</pre>"
}

func (d *Dispatcher) replyHTML(ctx context.Context, req *request, text string, buttons [][]service.Button) {
	d.send(ctx, req.logger, service.OutboundMessage{ChatID: req.user.UserID, Text: text, Buttons: buttons, ParseMode: "HTML"})
}
