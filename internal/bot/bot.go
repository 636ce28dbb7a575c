// Package bot implements the Telegram front-end: command routing, URL
// validation, admission control and handoff to the delivery workers.
package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/emanuelef/yt-dl-bot-go/internal/domain"
	"github.com/emanuelef/yt-dl-bot-go/internal/queue"
	"github.com/emanuelef/yt-dl-bot-go/internal/session"
)

const welcomeText = `👋 Welcome to YouTube Downloader Bot!

Send me a YouTube link to download audio or video!

Commands:
/audio <url> - Download audio
/video <url> - Download video
/stop - Cancel download`

// youtubeURLPattern matches the YouTube link shapes users paste.
var youtubeURLPattern = regexp.MustCompile(`(https?://)?(www\.)?(youtube\.com|youtu\.?be)/.+`)

// Hosts accepted after URL parsing.
var allowedHosts = []string{
	"youtube.com", "www.youtube.com", "m.youtube.com", "music.youtube.com",
	"youtu.be", "youtube-nocookie.com",
}

// suspiciousChars blocks shell metacharacters before the URL reaches
// the yt-dlp command line.
var suspiciousChars = regexp.MustCompile("[;&|$`\\\\]")

// Bot drives the long-polling update loop.
type Bot struct {
	api        *tgbotapi.BotAPI
	sessions   *session.Store
	dispatcher *queue.Dispatcher
	limiter    *RateLimiter
	allowed    map[int64]struct{}
}

// New creates a Bot. allowedUserIDs may be empty to admit everyone.
func New(api *tgbotapi.BotAPI, sessions *session.Store, dispatcher *queue.Dispatcher, limiter *RateLimiter, allowedUserIDs []int64) *Bot {
	allowed := make(map[int64]struct{}, len(allowedUserIDs))
	for _, id := range allowedUserIDs {
		allowed[id] = struct{}{}
	}
	return &Bot{
		api:        api,
		sessions:   sessions,
		dispatcher: dispatcher,
		limiter:    limiter,
		allowed:    allowed,
	}
}

// Run consumes updates until Stop is called. Session-map mutations and
// enqueueing are synchronous; the blocking fetch work happens on the
// dispatcher's workers, so the loop stays responsive to /stop.
func (b *Bot) Run() {
	slog.Info("Bot started", "username", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(b.drainBacklog())
	u.Timeout = 60

	for update := range b.api.GetUpdatesChan(u) {
		if update.Message == nil || update.Message.From == nil {
			continue
		}
		b.handleMessage(update.Message)
	}

	slog.Info("Bot update loop stopped")
}

// Stop closes the updates channel, unblocking Run.
func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
}

// drainBacklog discards updates queued while the process was down and
// returns the offset to poll from. A download request sent to a dead
// bot must not fire on restart. Offset -1 asks Telegram for only the
// newest pending update; polling past it confirms the whole backlog.
func (b *Bot) drainBacklog() int {
	pending := tgbotapi.NewUpdate(-1)
	updates, err := b.api.GetUpdates(pending)
	if err != nil {
		slog.Warn("Failed to drain pending updates", "error", err)
		return 0
	}

	offset := nextOffset(updates)
	if offset > 0 {
		slog.Info("Dropped pending updates", "resume_offset", offset)
	}
	return offset
}

// nextOffset returns the offset just past the newest drained update, or
// 0 when nothing was pending.
func nextOffset(updates []tgbotapi.Update) int {
	last := -1
	for _, u := range updates {
		if u.UpdateID > last {
			last = u.UpdateID
		}
	}
	if last < 0 {
		return 0
	}
	return last + 1
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	userID := msg.From.ID

	if len(b.allowed) > 0 {
		if _, ok := b.allowed[userID]; !ok {
			slog.Warn("Rejected message from unauthorized user", "user_id", userID)
			b.reply(msg.Chat.ID, "Sorry, you are not allowed to use this bot.")
			return
		}
	}

	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}

	if msg.Text != "" {
		b.handleText(msg)
	}
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	userID := msg.From.ID

	switch msg.Command() {
	case "start", "help":
		b.reply(msg.Chat.ID, welcomeText)

	case "audio":
		arg := strings.TrimSpace(msg.CommandArguments())
		if arg == "" {
			b.reply(msg.Chat.ID, "Usage: /audio <YouTube URL>")
			return
		}
		b.request(msg.Chat.ID, userID, arg, domain.MediaAudio)

	case "video":
		arg := strings.TrimSpace(msg.CommandArguments())
		if arg == "" {
			b.reply(msg.Chat.ID, "Usage: /video <YouTube URL>")
			return
		}
		b.request(msg.Chat.ID, userID, arg, domain.MediaVideo)

	case "stop":
		if b.sessions.Cancel(userID) {
			slog.Info("Cancellation requested", "user_id", userID)
			b.reply(msg.Chat.ID, "⏹️ Download stopped")
		} else {
			b.reply(msg.Chat.ID, "No active download to stop")
		}

	default:
		b.reply(msg.Chat.ID, "Unknown command. Send /help for usage.")
	}
}

// handleText treats a bare YouTube link as an audio request, matching
// the most common use.
func (b *Bot) handleText(msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)

	if !youtubeURLPattern.MatchString(text) {
		b.reply(msg.Chat.ID, "Please send a valid YouTube link.")
		return
	}

	b.request(msg.Chat.ID, msg.From.ID, text, domain.MediaAudio)
}

// request validates and enqueues one download. Contention with an
// in-flight download is reported by the pipeline itself when the
// request is picked up.
func (b *Bot) request(chatID, userID int64, rawURL string, kind domain.MediaKind) {
	if err := ValidateURL(rawURL); err != nil {
		b.reply(chatID, fmt.Sprintf("❌ %s", err.Error()))
		return
	}

	if b.limiter != nil && !b.limiter.Allow(userID) {
		slog.Warn("Rate limit exceeded", "user_id", userID)
		b.reply(chatID, "🐢 Too many requests, please slow down.")
		return
	}

	err := b.dispatcher.Enqueue(queue.Request{UserID: userID, URL: rawURL, Kind: kind})
	switch {
	case errors.Is(err, queue.ErrQueueFull):
		b.reply(chatID, "😵 The bot is busy right now, please try again in a minute.")
	case err != nil:
		slog.Error("Enqueue failed", "user_id", userID, "error", err)
		b.reply(chatID, "❌ Something went wrong, please try again.")
	}
}

// reply sends a loop-level notice. Best-effort: delivery-critical sends
// go through the pipeline's retry helper instead.
func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		slog.Warn("Failed to send reply", "chat_id", chatID, "error", err)
	}
}

// ValidateURL checks that the link is a well-formed YouTube URL safe to
// hand to the fetcher.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("URL is required")
	}

	if suspiciousChars.MatchString(rawURL) {
		return errors.New("URL contains invalid characters")
	}

	if !youtubeURLPattern.MatchString(rawURL) {
		return errors.New("please send a valid YouTube link")
	}

	candidate := rawURL
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return errors.New("invalid URL format")
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("URL must use http or https")
	}

	host := strings.ToLower(parsed.Hostname())
	for _, allowed := range allowedHosts {
		if host == allowed {
			return nil
		}
	}

	return errors.New("only YouTube links are supported")
}
