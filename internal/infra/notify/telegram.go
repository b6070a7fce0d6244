package notify

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/gastro-stock/internal/domain/ledger"
)

// Notifier шлёт складские оповещения в админ-чат Telegram.
// Только исходящие сообщения: никакого интерактива.
type Notifier struct {
	api       *tgbotapi.BotAPI
	adminChat int64
	log       *slog.Logger
}

func New(token string, adminChat int64, log *slog.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Notifier{api: api, adminChat: adminChat, log: log}, nil
}

func (n *Notifier) send(text string) {
	if n == nil || n.adminChat == 0 {
		return
	}
	if _, err := n.api.Send(tgbotapi.NewMessage(n.adminChat, text)); err != nil {
		n.log.Error("telegram send failed", "err", err)
	}
}

// LowStock — остаток товара упал ниже порога (или ушёл в ноль).
func (n *Notifier) LowStock(productName string, balance float64, unit string) {
	if n == nil {
		return
	}
	var text string
	if balance <= 0 {
		text = fmt.Sprintf("⚠️ Товар:\n— %s\nзакончился.", productName)
	} else {
		text = fmt.Sprintf("⚠️ Товар:\n— %s — %.1f %s заканчивается…", productName, balance, unit)
	}
	n.send(text)
}

// ExpirySweep — сводка по партиям, помеченным просроченными.
func (n *Notifier) ExpirySweep(swept []ledger.ExpiredLot) {
	if n == nil || len(swept) == 0 {
		return
	}
	text := fmt.Sprintf("⏳ Просрочено партий: %d\n", len(swept))
	for _, e := range swept {
		text += fmt.Sprintf("— партия %s (товар %d), снято с остатка %.1f\n", e.BatchNumber, e.ProductID, e.Qty)
	}
	n.send(text)
}
