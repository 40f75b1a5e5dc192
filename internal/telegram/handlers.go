package telegramBot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"eventsCatalog/internal/models/domain"
	"eventsCatalog/internal/orchestrator"
	"eventsCatalog/internal/utils/logger/sl"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

const curationTimeout = 10 * time.Second

const helpText = `<b>Events catalog</b>
/run [source] - ingest all sources or one
/status - last run summary
/find &lt;url&gt; - show a catalog record
/import &lt;url&gt; [notes] - mark as imported
/archive &lt;url&gt; - archive by hand`

var errUsage = errors.New("wrong command arguments")

type sendFunction func(inputMsg *tgbotapi.Message, replyText string) error

func (bot *Bot) commandHandler(ctx context.Context, update *tgbotapi.Update, sendFunc sendFunction) error {
	op := "bot.commandHandler"
	msg := update.Message
	log := bot.log.With(
		slog.String("op", op),
		slog.String("command", msg.Command()),
	)

	switch msg.Command() {
	case "start":
		return sendFunc(msg, fmt.Sprintf("Hi, %s! Send /help for the command list.", userName(msg)))
	case "help":
		return sendFunc(msg, helpText)
	}

	isAdmin, err := bot.isAdmin(msg)
	log.Debug("admin command",
		slog.String("user name", userName(msg)),
		slog.String("message", msg.Text),
		slog.String("is admin", strconv.FormatBool(isAdmin)),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !isAdmin {
		return sendFunc(msg, "⛔ This command is for catalog operators only")
	}

	switch msg.Command() {
	case "run":
		return bot.runCommand(msg, strings.TrimSpace(msg.CommandArguments()), sendFunc)

	case "status":
		summary, ok := bot.runner.LastSummary()
		if !ok {
			return sendFunc(msg, "No run has finished yet")
		}
		return sendFunc(msg, formatSummary(summary))

	case "find":
		url, _, err := parseCurationArgs(msg.CommandArguments())
		if err != nil {
			return sendFunc(msg, "Usage: /find &lt;url&gt;")
		}
		ctx, cancel := context.WithTimeout(ctx, curationTimeout)
		defer cancel()
		event, err := bot.repository.FindByKey(ctx, url)
		if err != nil {
			return sendFunc(msg, curationErrorText(err))
		}
		return bot.sendEvent(msg.Chat.ID, event)

	case "import":
		url, notes, err := parseCurationArgs(msg.CommandArguments())
		if err != nil {
			return sendFunc(msg, "Usage: /import &lt;url&gt; [notes]")
		}
		ctx, cancel := context.WithTimeout(ctx, curationTimeout)
		defer cancel()
		event, err := bot.curator.MarkImported(ctx, url, userName(msg), notes)
		if err != nil {
			log.Error("import failed", sl.Err(err), slog.String("key", url))
			return sendFunc(msg, curationErrorText(err))
		}
		bot.metrics.Curation("import")
		return sendFunc(msg, "✅ Imported: "+html.EscapeString(event.Title))

	case "archive":
		url, _, err := parseCurationArgs(msg.CommandArguments())
		if err != nil {
			return sendFunc(msg, "Usage: /archive &lt;url&gt;")
		}
		ctx, cancel := context.WithTimeout(ctx, curationTimeout)
		defer cancel()
		event, err := bot.curator.Archive(ctx, url, userName(msg))
		if err != nil {
			log.Error("archive failed", sl.Err(err), slog.String("key", url))
			return sendFunc(msg, curationErrorText(err))
		}
		bot.metrics.Curation("archive")
		return sendFunc(msg, "🗄 Archived: "+html.EscapeString(event.Title))

	default:
		return sendFunc(msg, "I don't know this command")
	}
}

// runCommand replies at once and posts the summary when the run finishes.
func (bot *Bot) runCommand(msg *tgbotapi.Message, source string, sendFunc sendFunction) error {
	op := "bot.runCommand"
	log := bot.log.With(slog.String("op", op), slog.String("source", source))

	if source != "" && !contains(bot.runner.Sources(), source) {
		return sendFunc(msg, fmt.Sprintf("Unknown source %q. Known: %s",
			html.EscapeString(source), html.EscapeString(strings.Join(bot.runner.Sources(), ", "))))
	}

	if err := sendFunc(msg, "⏳ Run started"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	bot.wg.Add(1)
	go func() {
		defer bot.wg.Done()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-bot.shutdownChannel:
				cancel()
			case <-ctx.Done():
			}
		}()

		var (
			summary domain.RunSummary
			err     error
		)
		if source == "" {
			summary, err = bot.runner.RunAll(ctx)
		} else {
			summary, err = bot.runner.RunSource(ctx, source)
		}

		reply := formatSummary(summary)
		switch {
		case errors.Is(err, orchestrator.ErrSourceBusy):
			reply = "⚠️ A run for this source is already in progress"
		case err != nil:
			reply = "❌ Run failed: " + html.EscapeString(err.Error())
		}
		if err := sendFunc(msg, reply); err != nil {
			log.Error("failed to reply with run summary", sl.Err(err))
		}
	}()
	return nil
}

func (bot *Bot) handleCallbackQuery(update *tgbotapi.Update) {
	op := "bot.handleCallbackQuery"
	log := bot.log.With(slog.String("op", op))

	callback := update.CallbackQuery
	if callback == nil {
		log.Error("callback query is nil")
		return
	}

	// Hide the button spinner.
	if _, err := bot.tgbot.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		log.Error("failed to send callback response", sl.Err(err))
	}

	if callback.From == nil || !bot.isAdminName(callback.From.UserName) {
		bot.sendCallbackResponse(callback, "⛔ Operators only")
		return
	}

	action, id, err := parseCallbackData(callback.Data)
	if err != nil {
		log.Warn("unknown callback", slog.String("data", callback.Data))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), curationTimeout)
	defer cancel()

	event, err := bot.repository.FindByID(ctx, id)
	if err != nil {
		log.Error("failed to load event", sl.Err(err), slog.String("eventID", id.String()))
		bot.sendCallbackResponse(callback, curationErrorText(err))
		return
	}

	switch action {
	case "import":
		_, err = bot.curator.MarkImported(ctx, event.SourceEventURL, callback.From.UserName, "")
	case "archive":
		_, err = bot.curator.Archive(ctx, event.SourceEventURL, callback.From.UserName)
	}
	if err != nil {
		log.Error("curation failed", sl.Err(err), slog.String("action", action))
		bot.sendCallbackResponse(callback, curationErrorText(err))
		return
	}

	bot.metrics.Curation(action)
	log.Info("event curated", slog.String("action", action), slog.String("key", event.SourceEventURL))
	bot.sendCallbackResponse(callback, "✅ Done: "+action)
	bot.removeCurationKeyboard(callback)
}

// sendEvent posts a record card with curation buttons.
func (bot *Bot) sendEvent(chatID int64, event domain.CatalogEvent) error {
	msg := tgbotapi.NewMessage(chatID, formatEventMessage(event))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if !event.IsCurated() {
		msg.ReplyMarkup = createCurationKeyboard(event.ID)
	}
	if _, err := bot.tgbot.Send(msg); err != nil {
		return fmt.Errorf("bot.sendEvent(): %w", err)
	}
	return nil
}

func (bot *Bot) sendCallbackResponse(callback *tgbotapi.CallbackQuery, text string) {
	callbackConfig := tgbotapi.NewCallback(callback.ID, text)
	callbackConfig.ShowAlert = true
	_, _ = bot.tgbot.Request(callbackConfig)
}

func (bot *Bot) removeCurationKeyboard(callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil {
		return
	}
	editMsg := tgbotapi.NewEditMessageReplyMarkup(
		callback.Message.Chat.ID,
		callback.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}},
	)
	_, _ = bot.tgbot.Send(editMsg)
}

func createCurationKeyboard(id uuid.UUID) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Import", "import_"+id.String()),
			tgbotapi.NewInlineKeyboardButtonData("🗄 Archive", "archive_"+id.String()),
		),
	)
}

// parseCurationArgs splits "<url> [notes...]".
func parseCurationArgs(args string) (string, string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", "", errUsage
	}
	url := fields[0]
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", "", errUsage
	}
	return url, strings.Join(fields[1:], " "), nil
}

func parseCallbackData(data string) (string, uuid.UUID, error) {
	action, raw, ok := strings.Cut(data, "_")
	if !ok || (action != "import" && action != "archive") {
		return "", uuid.Nil, errUsage
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", uuid.Nil, err
	}
	return action, id, nil
}

func curationErrorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "🔍 No such event in the catalog"
	case errors.Is(err, domain.ErrStatusChanged):
		return "⚠️ The event changed meanwhile, try again"
	default:
		return "❌ Something went wrong"
	}
}

func formatEventMessage(event domain.CatalogEvent) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "<b>%s</b>\n", html.EscapeString(event.Title))
	fmt.Fprintf(&sb, "Status: <code>%s</code> · %s\n\n", event.Status, html.EscapeString(event.SourceName))

	if event.ShortSummary != "" {
		fmt.Fprintf(&sb, "%s\n\n", html.EscapeString(event.ShortSummary))
	}
	if !event.Start.IsZero() {
		fmt.Fprintf(&sb, "📅 %s\n", event.Start.Format("02 Jan 2006 15:04 MST"))
	}
	if event.Venue.Name != "" {
		fmt.Fprintf(&sb, "📍 %s", html.EscapeString(event.Venue.Name))
		if event.Venue.Address != "" {
			fmt.Fprintf(&sb, ", %s", html.EscapeString(event.Venue.Address))
		}
		sb.WriteString("\n")
	}
	if len(event.Categories) > 0 {
		fmt.Fprintf(&sb, "🏷 %s\n", html.EscapeString(strings.Join(event.Categories, ", ")))
	}
	if event.ImportedMeta != nil {
		fmt.Fprintf(&sb, "Imported by %s\n", html.EscapeString(event.ImportedMeta.ImportedBy))
	}
	if event.ArchivedMeta != nil {
		fmt.Fprintf(&sb, "Archived by %s\n", html.EscapeString(event.ArchivedMeta.ArchivedBy))
	}
	fmt.Fprintf(&sb, "\n🔗 <a href=\"%s\">Source</a>\n", html.EscapeString(event.SourceEventURL))

	return sb.String()
}

func formatSummary(summary domain.RunSummary) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "<b>Run %s</b>\n", shortID(summary.RunID))
	for _, r := range summary.PerSource {
		mark := "✅"
		if !r.OK() {
			mark = "❌"
		}
		fmt.Fprintf(&sb, "%s <b>%s</b>: fetched %d, +%d new, %d updated, %d back, %d retired",
			mark, html.EscapeString(r.Name), r.Fetched, r.Created, r.Updated, r.Reactivated, r.Retired)
		if r.Failed > 0 {
			fmt.Fprintf(&sb, ", %d failed", r.Failed)
		}
		sb.WriteString("\n")
		if r.Error != "" {
			fmt.Fprintf(&sb, "   <i>%s</i>\n", html.EscapeString(r.Error))
		}
		if r.RetirementSkipped {
			sb.WriteString("   retirement skipped\n")
		}
	}
	t := summary.Totals()
	fmt.Fprintf(&sb, "Total: %d fetched, %d new in %s", t.Fetched, t.Created, t.Duration.Round(time.Second))
	return sb.String()
}

func shortID(id uuid.UUID) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func userName(msg *tgbotapi.Message) string {
	if msg.From == nil {
		return ""
	}
	return msg.From.UserName
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
