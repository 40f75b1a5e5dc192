package telegramBot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"eventsCatalog/internal/config"
	"eventsCatalog/internal/metrics"
	"eventsCatalog/internal/models/domain"
	"eventsCatalog/internal/utils/logger/sl"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

// api is the subset of *tgbotapi.BotAPI the bot uses.
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Curator applies operator decisions to catalog records.
type Curator interface {
	MarkImported(ctx context.Context, url string, userID string, notes string) (domain.CatalogEvent, error)
	Archive(ctx context.Context, url string, userID string) (domain.CatalogEvent, error)
}

// Runner starts ingestion on demand.
type Runner interface {
	RunAll(ctx context.Context) (domain.RunSummary, error)
	RunSource(ctx context.Context, name string) (domain.RunSummary, error)
	Sources() []string
	LastSummary() (domain.RunSummary, bool)
}

type Repository interface {
	FindByKey(ctx context.Context, url string) (domain.CatalogEvent, error)
	FindByID(ctx context.Context, id uuid.UUID) (domain.CatalogEvent, error)
}

// Bot is the operator console: manual runs, curation and run notifications.
type Bot struct {
	log        *slog.Logger
	cfg        config.BotConfig
	tgbot      api
	curator    Curator
	runner     Runner
	repository Repository
	metrics    *metrics.Metrics

	shutdownChannel chan struct{}
	shutdownOnce    sync.Once
	wg              sync.WaitGroup
}

func New(
	log *slog.Logger,
	cfg config.BotConfig,
	curator Curator,
	runner Runner,
	repository Repository,
	m *metrics.Metrics,
) (*Bot, error) {
	op := "telegramBot.New()"

	tgbot, err := tgbotapi.NewBotAPI(cfg.TgbotApiToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.With(slog.String("op", op)).Info("authorized on telegram", slog.String("account", tgbot.Self.UserName))

	return newWithAPI(log, cfg, tgbot, curator, runner, repository, m), nil
}

func newWithAPI(log *slog.Logger, cfg config.BotConfig, tgbot api, curator Curator, runner Runner, repository Repository, m *metrics.Metrics) *Bot {
	return &Bot{
		log:             log,
		cfg:             cfg,
		tgbot:           tgbot,
		curator:         curator,
		runner:          runner,
		repository:      repository,
		metrics:         m,
		shutdownChannel: make(chan struct{}),
	}
}

// Start polls updates until Shutdown. updateTimeout is the long-poll timeout in seconds.
func (bot *Bot) Start(updateTimeout int) {
	op := "bot.Start()"
	log := bot.log.With(slog.String("op", op))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeout
	updates := bot.tgbot.GetUpdatesChan(u)

	log.Info("telegram bot started")

	for {
		select {
		case <-bot.shutdownChannel:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			bot.handleUpdate(update)
		}
	}
}

func (bot *Bot) handleUpdate(update tgbotapi.Update) {
	op := "bot.handleUpdate()"
	log := bot.log.With(slog.String("op", op))

	switch {
	case update.CallbackQuery != nil:
		bot.handleCallbackQuery(&update)
	case update.Message != nil && update.Message.IsCommand():
		if err := bot.commandHandler(context.Background(), &update, bot.sendReplyMessage); err != nil {
			log.Error("command failed", sl.Err(err), slog.String("command", update.Message.Command()))
		}
	}
}

// NotifyRun posts a run summary to every configured notification chat.
func (bot *Bot) NotifyRun(summary domain.RunSummary) {
	op := "bot.NotifyRun()"
	log := bot.log.With(
		slog.String("op", op),
		slog.String("runID", summary.RunID.String()),
	)

	text := formatSummary(summary)
	for _, chatID := range bot.cfg.NotifyChatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := bot.tgbot.Send(msg); err != nil {
			log.Error("failed to send run summary", slog.Int64("chatID", chatID), sl.Err(err))
		}
	}
}

func (bot *Bot) isAdmin(msg *tgbotapi.Message) (bool, error) {
	if msg == nil || msg.From == nil {
		return false, fmt.Errorf("message has no sender")
	}
	return bot.isAdminName(msg.From.UserName), nil
}

func (bot *Bot) isAdminName(userName string) bool {
	for _, admin := range bot.cfg.Admins {
		if strings.EqualFold(strings.TrimPrefix(admin, "@"), userName) {
			return true
		}
	}
	return false
}

func (bot *Bot) sendReplyMessage(inputMsg *tgbotapi.Message, replyText string) error {
	msg := tgbotapi.NewMessage(inputMsg.Chat.ID, replyText)
	msg.ReplyToMessageID = inputMsg.MessageID
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := bot.tgbot.Send(msg); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

// Shutdown stops polling and waits for in-flight manual runs.
func (bot *Bot) Shutdown(ctx context.Context) error {
	bot.shutdownOnce.Do(func() {
		bot.tgbot.StopReceivingUpdates()
		close(bot.shutdownChannel)
	})

	done := make(chan struct{})
	go func() {
		bot.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("force exit telegram bot: %w", ctx.Err())
	}
}
