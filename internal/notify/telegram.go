package notify

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gift_sniper/internal/config"
	"gift_sniper/internal/logbus"
)

// SettingsLookup resolves a tenant's notification settings. Implemented by
// the sqlite store; declared here so the notifier does not import it.
type SettingsLookup interface {
	TenantChatID(ctx context.Context, tenant string) (int64, error)
	TenantEmail(ctx context.Context, tenant string) (string, error)
}

// TelegramNotifier pushes through a bot: operator messages go to the
// configured operator chat, tenant messages to the chat id stored in the
// tenant's settings.
type TelegramNotifier struct {
	bot      *tgbotapi.BotAPI
	operator int64
	lookup   SettingsLookup
	bus      *logbus.Bus
}

func NewTelegramNotifier(cfg config.TelegramNotifyConfig, lookup SettingsLookup, bus *logbus.Bus) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	return &TelegramNotifier{
		bot:      bot,
		operator: cfg.OperatorChatID,
		lookup:   lookup,
		bus:      bus,
	}, nil
}

func (n *TelegramNotifier) NotifyTenant(ctx context.Context, tenant, title, body string) {
	chatID, err := n.lookup.TenantChatID(ctx, tenant)
	if err != nil || chatID == 0 {
		return
	}
	n.send(tenant, chatID, title+"\n"+body)
}

func (n *TelegramNotifier) NotifyOperator(_ context.Context, tenant, message string) {
	if n.operator == 0 {
		return
	}
	n.send(tenant, n.operator, "["+tenant+"] "+message)
}

func (n *TelegramNotifier) send(tenant string, chatID int64, text string) {
	if _, err := n.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		if n.bus != nil {
			n.bus.Log(tenant, "warn", "telegram notification failed", map[string]any{
				"chatId": chatID,
				"error":  err.Error(),
			})
		}
	}
}
