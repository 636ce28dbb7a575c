// Package fetcher wraps yt-dlp as the media-extraction collaborator.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/emanuelef/yt-dl-bot-go/internal/domain"
	"github.com/emanuelef/yt-dl-bot-go/internal/infra/cache"
)

// Config holds fetcher options.
type Config struct {
	DownloadDir string
	YtDlpPath   string
	FFmpegPath  string // optional
	MaxFileSize int64  // passed to yt-dlp as a pre-download guard
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() *Config {
	return &Config{
		DownloadDir: "./downloads",
		YtDlpPath:   "yt-dlp",
		MaxFileSize: 50 * 1024 * 1024,
	}
}

// YtDlp downloads media by shelling out to yt-dlp. Cancellation is
// observed through the command context: killing the process is the
// fetcher's checkpoint.
type YtDlp struct {
	cfg      *Config
	metadata *cache.MetadataCache // may be nil
}

// New creates a YtDlp fetcher. metadata may be nil to disable caching.
func New(cfg *Config, metadata *cache.MetadataCache) (*YtDlp, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := os.MkdirAll(cfg.DownloadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	return &YtDlp{cfg: cfg, metadata: metadata}, nil
}

// FetchAudio extracts the audio track behind url as mp3.
func (y *YtDlp) FetchAudio(ctx context.Context, url string) (*domain.DownloadResult, error) {
	return y.fetch(ctx, url, domain.MediaAudio)
}

// FetchVideo downloads the video behind url as mp4.
func (y *YtDlp) FetchVideo(ctx context.Context, url string) (*domain.DownloadResult, error) {
	return y.fetch(ctx, url, domain.MediaVideo)
}

func (y *YtDlp) fetch(ctx context.Context, url string, kind domain.MediaKind) (*domain.DownloadResult, error) {
	start := time.Now()

	title := y.title(ctx, url)

	timestamp := time.Now().UnixNano()
	outputTemplate := filepath.Join(y.cfg.DownloadDir, fmt.Sprintf("%d_%%(id)s.%%(ext)s", timestamp))
	args := y.buildArgs(kind, url, outputTemplate)

	cmd := exec.CommandContext(ctx, y.cfg.YtDlpPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		// The process may have left a partial file behind.
		removeByPattern(y.cfg.DownloadDir, timestamp)
		return nil, classifyError(ctx, string(output), err)
	}

	filePath := extractFilePath(string(output), y.cfg.DownloadDir, timestamp)
	if filePath == "" {
		return nil, errors.New("could not determine downloaded file path")
	}

	if _, err := os.Stat(filePath); err != nil {
		return nil, fmt.Errorf("downloaded file not found: %w", err)
	}

	elapsed := time.Since(start)
	slog.Debug("Fetch completed",
		"url", url,
		"kind", kind,
		"path", filePath,
		"elapsed", elapsed,
	)

	return &domain.DownloadResult{
		FilePath: filePath,
		Title:    title,
		Elapsed:  elapsed,
	}, nil
}

// Probe retrieves video metadata without downloading, consulting the
// cache first.
func (y *YtDlp) Probe(ctx context.Context, url string) (*domain.VideoInfo, error) {
	if y.metadata != nil {
		if info, found := y.metadata.Get(url); found {
			return info, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	args := []string{
		"--no-download",
		"--print-json",
		"--no-playlist",
		"--no-warnings",
		url,
	}

	cmd := exec.CommandContext(ctx, y.cfg.YtDlpPath, args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to get video info: %w", err)
	}

	var info domain.VideoInfo
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, fmt.Errorf("failed to parse video info: %w", err)
	}

	if y.metadata != nil {
		y.metadata.Set(url, &info)
	}
	return &info, nil
}

// title resolves a caption label for the media. Probe failures are not
// fatal for the download itself.
func (y *YtDlp) title(ctx context.Context, url string) string {
	info, err := y.Probe(ctx, url)
	if err != nil || info.Title == "" {
		slog.Debug("Metadata probe failed, using fallback title", "url", url, "error", err)
		return "YouTube media"
	}
	return info.Title
}

// buildArgs constructs the yt-dlp arguments for the requested kind.
func (y *YtDlp) buildArgs(kind domain.MediaKind, url, outputTemplate string) []string {
	args := []string{
		"--no-playlist",
		"--max-filesize", fmt.Sprintf("%d", y.cfg.MaxFileSize),
		"-o", outputTemplate,
		"--no-cache-dir",
		"--socket-timeout", "30",
		"--retries", "3",
		"--print", "after_move:filepath",
	}

	if kind == domain.MediaAudio {
		args = append(args, "-x", "--audio-format", "mp3")
	} else {
		args = append(args, "-f", "best[height<=720][ext=mp4]/best[ext=mp4]/best")
	}

	if y.cfg.FFmpegPath != "" {
		args = append([]string{"--ffmpeg-location", y.cfg.FFmpegPath}, args...)
	}

	return append(args, url)
}

// classifyError maps yt-dlp failures onto the error kinds the pipeline
// understands. Cancellation must stay distinguishable from failures.
func classifyError(ctx context.Context, output string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("download cancelled: %w", context.Canceled)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.New("download timed out")
	}

	switch {
	case strings.Contains(output, "Video unavailable"):
		return errors.New("video is unavailable or private")
	case strings.Contains(output, "File is larger than max-filesize"),
		strings.Contains(output, "exceeds max-filesize"):
		return errors.New("video exceeds maximum file size limit")
	case strings.Contains(output, "is not a valid URL"):
		return errors.New("invalid video URL")
	}

	return fmt.Errorf("yt-dlp error: %s", truncate(output, 200))
}

// extractFilePath finds the downloaded file path from yt-dlp output.
func extractFilePath(output, downloadDir string, timestamp int64) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")

	// Try the printed filepath (from --print after_move:filepath).
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" && !strings.HasPrefix(line, "[") && strings.Contains(line, string(filepath.Separator)) {
			if _, err := os.Stat(line); err == nil {
				return line
			}
		}
	}

	// Fallback: find by pattern.
	pattern := filepath.Join(downloadDir, fmt.Sprintf("%d_*", timestamp))
	matches, _ := filepath.Glob(pattern)
	if len(matches) > 0 {
		return matches[0]
	}

	return ""
}

// removeByPattern deletes any partial artifacts left for the request.
func removeByPattern(downloadDir string, timestamp int64) {
	pattern := filepath.Join(downloadDir, fmt.Sprintf("%d_*", timestamp))
	matches, _ := filepath.Glob(pattern)
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			slog.Warn("Failed to remove partial file", "path", m, "error", err)
		}
	}
}

// truncate shortens a string for error messages.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// CheckBinary verifies that yt-dlp is installed and accessible.
func (y *YtDlp) CheckBinary() error {
	cmd := exec.Command(y.cfg.YtDlpPath, "--version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("yt-dlp not found or not executable: %w", err)
	}
	return nil
}
