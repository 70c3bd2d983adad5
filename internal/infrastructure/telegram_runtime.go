package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"botfleet/internal/interfaces"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// botConfig is the slice of the opaque config blob the runtime understands.
// Template-specific behavior beyond this lives with the template definition.
type botConfig struct {
	Greeting string `json:"greeting"`
	Fallback string `json:"fallback"`
}

// TelegramInstance is one running hosted bot: a polling loop over the bot
// API plus usage counters.
type TelegramInstance struct {
	bot      *tgbotapi.BotAPI
	stopChan chan struct{}
	doneChan chan struct{}
	cfg      botConfig
	logger   zerolog.Logger

	mu        sync.Mutex
	stats     interfaces.RuntimeStats
	seenUsers map[int64]bool
	running   bool
}

// TelegramRuntime spawns hosted bot instances that poll the Telegram bot API
// with the owner's token. It implements the Runtime collaborator.
type TelegramRuntime struct {
	logger zerolog.Logger
}

// NewTelegramRuntime creates the runtime.
func NewTelegramRuntime(logger zerolog.Logger) *TelegramRuntime {
	return &TelegramRuntime{logger: logger.With().Str("component", "tg-runtime").Logger()}
}

// Start validates the token, spawns the polling loop and returns the handle.
func (r *TelegramRuntime) Start(ctx context.Context, token string, config []byte) (interfaces.Process, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	var cfg botConfig
	if len(config) > 0 {
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, fmt.Errorf("bad bot config: %w", err)
		}
	}
	if cfg.Greeting == "" {
		cfg.Greeting = "Welcome! 👋"
	}

	inst := &TelegramInstance{
		bot:       bot,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
		cfg:       cfg,
		logger:    r.logger.With().Str("bot", bot.Self.UserName).Logger(),
		seenUsers: make(map[int64]bool),
		running:   true,
	}
	go inst.poll()
	return inst, nil
}

// Ref identifies the instance by its Telegram username.
func (t *TelegramInstance) Ref() string {
	return "tg:" + t.bot.Self.UserName
}

// poll runs the update loop until stopped.
func (t *TelegramInstance) poll() {
	defer close(t.doneChan)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)

	t.logger.Info().Msg("polling started")
	for {
		select {
		case <-t.stopChan:
			t.bot.StopReceivingUpdates()
			t.mu.Lock()
			t.running = false
			t.mu.Unlock()
			t.logger.Info().Msg("polling stopped")
			return
		case update := <-updates:
			t.handleUpdate(update)
		}
	}
}

func (t *TelegramInstance) handleUpdate(update tgbotapi.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	t.mu.Lock()
	t.stats.MessagesReceived++
	if !t.seenUsers[chatID] {
		t.seenUsers[chatID] = true
		t.stats.NewUsers++
	}
	t.stats.ActiveUsers = len(t.seenUsers)
	t.mu.Unlock()

	var reply string
	if update.Message.IsCommand() && update.Message.Command() == "start" {
		reply = t.cfg.Greeting
	} else if t.cfg.Fallback != "" {
		reply = t.cfg.Fallback
	} else {
		return
	}

	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, reply)); err != nil {
		t.mu.Lock()
		t.stats.Errors++
		t.mu.Unlock()
		return
	}
	t.mu.Lock()
	t.stats.MessagesSent++
	t.mu.Unlock()
}

// Probe checks the instance is alive and the API answers.
func (t *TelegramInstance) Probe(ctx context.Context) error {
	t.mu.Lock()
	running := t.running
	t.mu.Unlock()
	if !running {
		return fmt.Errorf("polling loop exited")
	}
	result := make(chan error, 1)
	go func() {
		_, err := t.bot.GetMe()
		result <- err
	}()
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns and resets the counters accumulated since the last call.
// ActiveUsers reports distinct chats seen over the instance lifetime.
func (t *TelegramInstance) Stats() interfaces.RuntimeStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.stats
	t.stats = interfaces.RuntimeStats{ActiveUsers: len(t.seenUsers)}
	return out
}

// Stop signals the polling loop and waits for it, bounded by ctx.
func (t *TelegramInstance) Stop(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		select {
		case <-t.stopChan:
		default:
			close(t.stopChan)
		}
	}
	t.mu.Unlock()

	select {
	case <-t.doneChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
