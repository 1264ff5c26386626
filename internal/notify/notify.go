// Package notify posts sync status messages to each group's Telegram
// chat after a report run.
package notify

import (
	"fmt"
	"time"

	"reportsync/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the slice of the bot API used here; tests provide a fake.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Notifier struct {
	bot    Sender
	logger zerolog.Logger
	// Pause between group messages so a burst of groups does not
	// trip Telegram flood limits.
	sendDelay time.Duration
}

func New(token string, logger *zerolog.Logger) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return NewWithSender(bot, logger), nil
}

func NewWithSender(bot Sender, logger *zerolog.Logger) *Notifier {
	return &Notifier{
		bot:       bot,
		logger:    logger.With().Str("component", "notify").Logger(),
		sendDelay: time.Second,
	}
}

// ReportUpdated tells each chat that its sheet has fresh data.
// Returns how many chats were reached.
func (n *Notifier) ReportUpdated(kind string, chatIDs []int64, at time.Time) int {
	label := "日报"
	if kind == models.RunKindHourly {
		label = "时报"
	}
	text := fmt.Sprintf("📊 %s已更新表格\n⏰ 更新时间：%s\n📋 数据已写入Google表格",
		label, at.Format(models.DateTimeLayout))

	sent := 0
	for i, chatID := range chatIDs {
		if i > 0 {
			time.Sleep(n.sendDelay)
		}
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Error().Int64("chat_id", chatID).Err(err).Msg("send notification failed")
			continue
		}
		sent++
	}

	n.logger.Info().Str("kind", kind).Int("sent", sent).Int("total", len(chatIDs)).Msg("notifications sent")
	return sent
}

// SyncFailed warns a chat that its group's write did not go through.
func (n *Notifier) SyncFailed(chatID int64, kind, groupName string, cause error) {
	text := fmt.Sprintf("⚠️ %s 的 %s 数据写入失败\n原因：%v", groupName, kind, cause)
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error().Int64("chat_id", chatID).Err(err).Msg("send failure notification failed")
	}
}
