package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/common"
	tele "gopkg.in/telebot.v3"
)

// TelegramNotifier sends Markdown messages to one chat. When the bot token or
// chat id is missing it degrades to a warning no-op so deployments without
// Telegram still run.
type TelegramNotifier struct {
	bot    *tele.Bot
	chatID int64
	logger arbor.ILogger
}

func NewTelegramNotifier(config *common.TelegramConfig, logger arbor.ILogger) (*TelegramNotifier, error) {
	n := &TelegramNotifier{chatID: config.ChatID, logger: logger}
	if config.BotToken == "" || config.ChatID == 0 {
		logger.Warn().Msg("Telegram not configured, notifications will be dropped")
		return n, nil
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:   config.BotToken,
		Client:  &http.Client{Timeout: 5 * time.Second},
		Offline: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	n.bot = bot
	return n, nil
}

func (n *TelegramNotifier) Send(_ context.Context, msg string) error {
	if n.bot == nil {
		n.logger.Warn().Str("notification", msg).Msg("Telegram unconfigured, dropping notification")
		return nil
	}
	if _, err := n.bot.Send(tele.ChatID(n.chatID), msg, tele.ModeMarkdown); err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	return nil
}
