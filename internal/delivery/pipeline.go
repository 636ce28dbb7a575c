// Package delivery orchestrates fetch, size validation, transmission
// and cleanup for a single download request.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emanuelef/yt-dl-bot-go/internal/domain"
	"github.com/emanuelef/yt-dl-bot-go/internal/session"
)

// Fetcher is the external media-extraction collaborator. Both calls may
// block for the duration of retrieval and transcoding; cancellation via
// ctx is best-effort.
type Fetcher interface {
	FetchAudio(ctx context.Context, url string) (*domain.DownloadResult, error)
	FetchVideo(ctx context.Context, url string) (*domain.DownloadResult, error)
}

// Messenger is the chat transport boundary. IsTransient classifies send
// errors into retryable (timeout, network) versus permanent kinds.
type Messenger interface {
	SendText(userID int64, text string) error
	SendAudio(userID int64, filePath, caption string) error
	SendVideo(userID int64, filePath, caption string) error
	IsTransient(err error) bool
}

// History records terminal delivery outcomes. Implementations must not
// influence the delivery itself; recording failures are only logged.
type History interface {
	Record(ctx context.Context, d *domain.Delivery) error
}

// Uploader serves oversize artifacts via an external link instead of a
// chat attachment. Optional; when absent oversize files are dropped.
type Uploader interface {
	Upload(ctx context.Context, filePath string) (publicURL string, err error)
}

// Config holds the fixed delivery limits.
type Config struct {
	MaxFileSize    int64         // attachment ceiling in bytes
	SendRetries    int           // transmission attempts
	SendRetryDelay time.Duration // fixed backoff between attempts
}

// DefaultConfig matches the Telegram attachment limit for bots.
func DefaultConfig() Config {
	return Config{
		MaxFileSize:    50 * 1024 * 1024,
		SendRetries:    3,
		SendRetryDelay: 2 * time.Second,
	}
}

// Pipeline runs download requests end to end.
type Pipeline struct {
	sessions  *session.Store
	fetcher   Fetcher
	messenger Messenger
	history   History  // may be nil
	uploader  Uploader // may be nil
	cfg       Config
}

// New creates a Pipeline. history and uploader may be nil. A zero
// Config falls back to the defaults.
func New(sessions *session.Store, fetcher Fetcher, messenger Messenger, history History, uploader Uploader, cfg Config) *Pipeline {
	if cfg.MaxFileSize <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.SendRetries < 1 {
		cfg.SendRetries = 1
	}
	return &Pipeline{
		sessions:  sessions,
		fetcher:   fetcher,
		messenger: messenger,
		history:   history,
		uploader:  uploader,
		cfg:       cfg,
	}
}

// Deliver fetches the media behind url and transmits it to the user.
// All failures are translated into user notices; none propagate. The
// session slot and the local artifact are released on every exit path.
func (p *Pipeline) Deliver(userID int64, url string, kind domain.MediaKind) {
	ctx, err := p.sessions.Start(userID)
	if err != nil {
		if errors.Is(err, session.ErrActiveDownload) {
			p.notify(userID, "⏳ You already have a download in progress. Send /stop to cancel it.")
			return
		}
		slog.Error("Session start failed", "user_id", userID, "error", err)
		return
	}

	rec := domain.NewDelivery(uuid.NewString(), userID, url, kind)
	var artifact string

	defer func() {
		if artifact != "" {
			if _, statErr := os.Stat(artifact); statErr == nil {
				if rmErr := os.Remove(artifact); rmErr != nil {
					slog.Warn("Failed to remove artifact", "path", artifact, "error", rmErr)
				}
			}
		}
		p.sessions.Finish(userID)
		p.record(rec)
	}()

	switch kind {
	case domain.MediaVideo:
		p.notify(userID, "⏳ Downloading video...")
	default:
		p.notify(userID, "⏳ Downloading audio...")
	}

	slog.Info("Delivery started",
		"delivery_id", rec.ID,
		"user_id", userID,
		"kind", kind,
		"url", url,
	)

	var res *domain.DownloadResult
	if kind == domain.MediaVideo {
		res, err = p.fetcher.FetchVideo(ctx, url)
	} else {
		res, err = p.fetcher.FetchAudio(ctx, url)
	}

	if err != nil {
		if isCancelled(ctx, err) {
			slog.Info("Delivery cancelled", "delivery_id", rec.ID, "user_id", userID)
			p.notify(userID, "⏹️ Download cancelled")
			rec.Finish(domain.DeliveryCancelled)
			return
		}
		slog.Error("Fetch failed", "delivery_id", rec.ID, "user_id", userID, "error", err)
		p.notify(userID, "❌ Download failed")
		rec.FinishWithError(domain.DeliveryFetchFailed, err)
		return
	}

	artifact = res.FilePath
	rec.Title = res.Title

	info, err := os.Stat(artifact)
	if err != nil {
		slog.Error("Artifact missing after fetch", "delivery_id", rec.ID, "path", artifact, "error", err)
		p.notify(userID, "❌ Failed to download: file not found")
		rec.FinishWithError(domain.DeliveryFileMissing, err)
		return
	}
	rec.SizeBytes = info.Size()

	if info.Size() > p.cfg.MaxFileSize {
		p.handleOversize(ctx, userID, rec, artifact, info.Size())
		return
	}

	caption := captionFor(kind, res.Title)
	var send SendFunc
	if kind == domain.MediaVideo {
		send = func() error { return p.messenger.SendVideo(userID, artifact, caption) }
	} else {
		send = func() error { return p.messenger.SendAudio(userID, artifact, caption) }
	}

	if TransmitWithRetry(send, p.messenger.IsTransient, p.cfg.SendRetries, p.cfg.SendRetryDelay) != Sent {
		p.notify(userID, "❌ Network issue while sending, please retry")
		rec.Finish(domain.DeliveryTransmitFailed)
		return
	}

	p.notify(userID, fmt.Sprintf("✅ Done in %.1fs", res.Elapsed.Seconds()))
	rec.Finish(domain.DeliverySent)

	slog.Info("Delivery completed",
		"delivery_id", rec.ID,
		"user_id", userID,
		"title", res.Title,
		"size_bytes", info.Size(),
		"elapsed", res.Elapsed,
	)
}

// handleOversize applies the attachment ceiling. Without an uploader
// the artifact is dropped and the user notified; with one the file is
// served via a link instead.
func (p *Pipeline) handleOversize(ctx context.Context, userID int64, rec *domain.Delivery, artifact string, size int64) {
	sizeMB := float64(size) / (1024 * 1024)
	maxMB := p.cfg.MaxFileSize / (1024 * 1024)

	if p.uploader == nil {
		slog.Info("Artifact exceeds attachment limit",
			"delivery_id", rec.ID,
			"size_mb", fmt.Sprintf("%.1f", sizeMB),
			"max_mb", maxMB,
		)
		p.notify(userID, fmt.Sprintf("❌ File too large (%.1fMB). Max %dMB.", sizeMB, maxMB))
		rec.Finish(domain.DeliveryTooLarge)
		return
	}

	publicURL, err := p.uploader.Upload(ctx, artifact)
	if err != nil {
		slog.Error("Oversize upload failed", "delivery_id", rec.ID, "error", err)
		p.notify(userID, fmt.Sprintf("❌ File too large (%.1fMB). Max %dMB.", sizeMB, maxMB))
		rec.FinishWithError(domain.DeliveryTooLarge, err)
		return
	}

	p.notify(userID, fmt.Sprintf("📦 File too large for chat (%.1fMB), download it here:\n%s", sizeMB, publicURL))
	rec.Finish(domain.DeliveryUploaded)
}

// notify sends a status text through the same retry discipline as
// attachments. Failures are logged, never surfaced.
func (p *Pipeline) notify(userID int64, text string) {
	TransmitWithRetry(func() error {
		return p.messenger.SendText(userID, text)
	}, p.messenger.IsTransient, p.cfg.SendRetries, p.cfg.SendRetryDelay)
}

// record persists the delivery outcome, if a history store is wired.
func (p *Pipeline) record(rec *domain.Delivery) {
	if p.history == nil || rec.Status == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.history.Record(ctx, rec); err != nil {
		slog.Warn("Failed to record delivery", "delivery_id", rec.ID, "error", err)
	}
}

// isCancelled distinguishes a user-requested stop from other fetch
// failures. The fetcher may surface cancellation either through the
// context or in its error message.
func isCancelled(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "cancel")
}

func captionFor(kind domain.MediaKind, title string) string {
	if kind == domain.MediaVideo {
		return "🎥 " + title
	}
	return "🎧 " + title
}
