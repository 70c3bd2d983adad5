package infrastructure

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// TelegramNotifier sends operator and owner notifications through the
// orchestrator's own bot account. Sends are fire-and-forget and rate limited
// to stay under the global Telegram send ceiling.
type TelegramNotifier struct {
	bot     *tgbotapi.BotAPI
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewTelegramNotifier connects the notification bot. A send budget of 25/s
// leaves headroom below Telegram's 30 msg/s global limit.
func NewTelegramNotifier(token string, logger zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramNotifier{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(25), 5),
		logger:  logger.With().Str("component", "notifier").Logger(),
	}, nil
}

// Notify delivers message to the user asynchronously. Failures are logged and
// dropped.
func (n *TelegramNotifier) Notify(ownerTelegramID int64, message string) {
	go func() {
		if err := n.limiter.Wait(context.Background()); err != nil {
			return
		}
		msg := tgbotapi.NewMessage(ownerTelegramID, message)
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Warn().Err(err).Int64("chat", ownerTelegramID).Msg("notification dropped")
		}
	}()
}

// LogNotifier is used when no notification token is configured. It records
// what would have been sent.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(ownerTelegramID int64, message string) {
	n.Logger.Info().Int64("chat", ownerTelegramID).Str("message", message).Msg("notification (no transport)")
}
