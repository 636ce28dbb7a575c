package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emanuelef/yt-dl-bot-go/internal/domain"
	"github.com/emanuelef/yt-dl-bot-go/internal/session"
)

// fakeFetcher writes an artifact of the configured size, or fails.
type fakeFetcher struct {
	dir       string
	size      int
	err       error
	noFile    bool // return a path that does not exist
	calls     int
	sawCancel bool
}

func (f *fakeFetcher) fetch(ctx context.Context, url string) (*domain.DownloadResult, error) {
	f.calls++
	if ctx.Err() != nil {
		f.sawCancel = true
	}
	if f.err != nil {
		return nil, f.err
	}
	path := filepath.Join(f.dir, fmt.Sprintf("artifact_%d", f.calls))
	if !f.noFile {
		if err := os.WriteFile(path, make([]byte, f.size), 0644); err != nil {
			return nil, err
		}
	}
	return &domain.DownloadResult{
		FilePath: path,
		Title:    "Test Title",
		Elapsed:  1500 * time.Millisecond,
	}, nil
}

func (f *fakeFetcher) FetchAudio(ctx context.Context, url string) (*domain.DownloadResult, error) {
	return f.fetch(ctx, url)
}

func (f *fakeFetcher) FetchVideo(ctx context.Context, url string) (*domain.DownloadResult, error) {
	return f.fetch(ctx, url)
}

// fakeMessenger records everything sent to the user.
type fakeMessenger struct {
	mu      sync.Mutex
	texts   []string
	audio   []string
	video   []string
	sendErr error
}

func (m *fakeMessenger) SendText(userID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

func (m *fakeMessenger) SendAudio(userID int64, filePath, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.audio = append(m.audio, filePath)
	return nil
}

func (m *fakeMessenger) SendVideo(userID int64, filePath, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.video = append(m.video, filePath)
	return nil
}

func (m *fakeMessenger) IsTransient(err error) bool {
	return strings.Contains(err.Error(), "timeout")
}

func (m *fakeMessenger) hasText(substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, text := range m.texts {
		if strings.Contains(text, substr) {
			return true
		}
	}
	return false
}

type fakeHistory struct {
	mu      sync.Mutex
	records []*domain.Delivery
}

func (h *fakeHistory) Record(ctx context.Context, d *domain.Delivery) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, d)
	return nil
}

func (h *fakeHistory) last(t *testing.T) *domain.Delivery {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.records) == 0 {
		t.Fatal("Expected a recorded delivery")
	}
	return h.records[len(h.records)-1]
}

func testConfig() Config {
	return Config{
		MaxFileSize:    1024 * 1024,
		SendRetries:    3,
		SendRetryDelay: time.Millisecond,
	}
}

func newTestPipeline(t *testing.T, fetcher *fakeFetcher) (*Pipeline, *session.Store, *fakeMessenger, *fakeHistory) {
	t.Helper()
	store := session.NewStore()
	messenger := &fakeMessenger{}
	history := &fakeHistory{}
	p := New(store, fetcher, messenger, history, nil, testConfig())
	return p, store, messenger, history
}

func TestNewFillsZeroConfigWithDefaults(t *testing.T) {
	p := New(session.NewStore(), &fakeFetcher{}, &fakeMessenger{}, nil, nil, Config{})

	want := DefaultConfig()
	if p.cfg.MaxFileSize != want.MaxFileSize {
		t.Errorf("Expected default max file size %d, got %d", want.MaxFileSize, p.cfg.MaxFileSize)
	}
	if p.cfg.SendRetries != want.SendRetries {
		t.Errorf("Expected default retries %d, got %d", want.SendRetries, p.cfg.SendRetries)
	}
	if p.cfg.SendRetryDelay != want.SendRetryDelay {
		t.Errorf("Expected default retry delay %v, got %v", want.SendRetryDelay, p.cfg.SendRetryDelay)
	}
}

func TestDeliverSuccess(t *testing.T) {
	fetcher := &fakeFetcher{dir: t.TempDir(), size: 100}
	p, store, messenger, history := newTestPipeline(t, fetcher)

	p.Deliver(1, "https://youtu.be/abc", domain.MediaAudio)

	if len(messenger.audio) != 1 {
		t.Fatalf("Expected 1 audio send, got %d", len(messenger.audio))
	}
	if !messenger.hasText("✅ Done in 1.5s") {
		t.Errorf("Expected success notice with elapsed time, got %v", messenger.texts)
	}
	if _, err := os.Stat(messenger.audio[0]); !os.IsNotExist(err) {
		t.Error("Expected artifact to be deleted after delivery")
	}
	if store.IsActive(1) {
		t.Error("Expected session slot to be released")
	}
	if got := history.last(t).Status; got != domain.DeliverySent {
		t.Errorf("Expected status sent, got %s", got)
	}
}

func TestDeliverVideoUsesVideoSend(t *testing.T) {
	fetcher := &fakeFetcher{dir: t.TempDir(), size: 100}
	p, _, messenger, _ := newTestPipeline(t, fetcher)

	p.Deliver(1, "https://youtu.be/abc", domain.MediaVideo)

	if len(messenger.video) != 1 {
		t.Errorf("Expected 1 video send, got %d", len(messenger.video))
	}
	if len(messenger.audio) != 0 {
		t.Errorf("Expected no audio send, got %d", len(messenger.audio))
	}
}

func TestDeliverRejectsConcurrentRequest(t *testing.T) {
	fetcher := &fakeFetcher{dir: t.TempDir(), size: 100}
	p, store, messenger, _ := newTestPipeline(t, fetcher)

	if _, err := store.Start(1); err != nil {
		t.Fatalf("Expected manual Start to succeed, got %v", err)
	}

	p.Deliver(1, "https://youtu.be/abc", domain.MediaAudio)

	if fetcher.calls != 0 {
		t.Errorf("Expected fetcher not to be called, got %d calls", fetcher.calls)
	}
	if !messenger.hasText("already have a download") {
		t.Errorf("Expected contention notice, got %v", messenger.texts)
	}
	// The pre-existing session must survive the rejected request.
	if !store.IsActive(1) {
		t.Error("Expected original session to remain active")
	}
}

func TestDeliverTooLarge(t *testing.T) {
	fetcher := &fakeFetcher{dir: t.TempDir(), size: 2 * 1024 * 1024}
	p, store, messenger, history := newTestPipeline(t, fetcher)

	p.Deliver(1, "https://youtu.be/abc", domain.MediaAudio)

	if len(messenger.audio)+len(messenger.video) != 0 {
		t.Error("Expected no transmission for oversize artifact")
	}
	if !messenger.hasText("File too large (2.0MB)") {
		t.Errorf("Expected too-large notice, got %v", messenger.texts)
	}
	entries, _ := os.ReadDir(fetcher.dir)
	if len(entries) != 0 {
		t.Errorf("Expected artifact to be deleted, found %d files", len(entries))
	}
	if store.IsActive(1) {
		t.Error("Expected session slot to be released")
	}
	if got := history.last(t).Status; got != domain.DeliveryTooLarge {
		t.Errorf("Expected status too_large, got %s", got)
	}
}

func TestDeliverFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{dir: t.TempDir(), err: errors.New("extraction error: no formats")}
	p, store, messenger, history := newTestPipeline(t, fetcher)

	p.Deliver(1, "https://youtu.be/abc", domain.MediaAudio)

	if !messenger.hasText("❌ Download failed") {
		t.Errorf("Expected generic failure notice, got %v", messenger.texts)
	}
	if store.IsActive(1) {
		t.Error("Expected session slot to be released")
	}
	if got := history.last(t).Status; got != domain.DeliveryFetchFailed {
		t.Errorf("Expected status fetch_failed, got %s", got)
	}
}

func TestDeliverReportsCancellation(t *testing.T) {
	fetcher := &fakeFetcher{dir: t.TempDir(), err: fmt.Errorf("download cancelled: %w", context.Canceled)}
	p, _, messenger, history := newTestPipeline(t, fetcher)

	p.Deliver(1, "https://youtu.be/abc", domain.MediaAudio)

	if !messenger.hasText("⏹️ Download cancelled") {
		t.Errorf("Expected cancellation notice, got %v", messenger.texts)
	}
	if messenger.hasText("❌ Download failed") {
		t.Error("Cancellation must not be reported as a generic failure")
	}
	if got := history.last(t).Status; got != domain.DeliveryCancelled {
		t.Errorf("Expected status cancelled, got %s", got)
	}
}

func TestDeliverCancelledByMessage(t *testing.T) {
	fetcher := &fakeFetcher{dir: t.TempDir(), err: errors.New("fetch cancelled by user")}
	p, _, messenger, _ := newTestPipeline(t, fetcher)

	p.Deliver(1, "https://youtu.be/abc", domain.MediaAudio)

	if !messenger.hasText("⏹️ Download cancelled") {
		t.Errorf("Expected cancellation notice for cancel-flavored error, got %v", messenger.texts)
	}
}

func TestDeliverArtifactMissing(t *testing.T) {
	fetcher := &fakeFetcher{dir: t.TempDir(), noFile: true}
	p, store, messenger, history := newTestPipeline(t, fetcher)

	p.Deliver(1, "https://youtu.be/abc", domain.MediaAudio)

	if !messenger.hasText("file not found") {
		t.Errorf("Expected file-not-found notice, got %v", messenger.texts)
	}
	if store.IsActive(1) {
		t.Error("Expected session slot to be released")
	}
	if got := history.last(t).Status; got != domain.DeliveryFileMissing {
		t.Errorf("Expected status file_missing, got %s", got)
	}
}

func TestDeliverTransmitFailure(t *testing.T) {
	fetcher := &fakeFetcher{dir: t.TempDir(), size: 100}
	p, store, messenger, history := newTestPipeline(t, fetcher)
	messenger.sendErr = errors.New("telegram: bad request")

	p.Deliver(1, "https://youtu.be/abc", domain.MediaAudio)

	if !messenger.hasText("Network issue") {
		t.Errorf("Expected network-issue notice, got %v", messenger.texts)
	}
	entries, _ := os.ReadDir(fetcher.dir)
	if len(entries) != 0 {
		t.Errorf("Expected artifact to be deleted, found %d files", len(entries))
	}
	if store.IsActive(1) {
		t.Error("Expected session slot to be released")
	}
	if got := history.last(t).Status; got != domain.DeliveryTransmitFailed {
		t.Errorf("Expected status transmit_failed, got %s", got)
	}
}

type fakeUploader struct {
	url string
	err error
}

func (u *fakeUploader) Upload(ctx context.Context, filePath string) (string, error) {
	return u.url, u.err
}

func TestDeliverOversizeUploadsWhenConfigured(t *testing.T) {
	fetcher := &fakeFetcher{dir: t.TempDir(), size: 2 * 1024 * 1024}
	store := session.NewStore()
	messenger := &fakeMessenger{}
	history := &fakeHistory{}
	uploader := &fakeUploader{url: "https://files.example.com/abc.mp3"}
	p := New(store, fetcher, messenger, history, uploader, testConfig())

	p.Deliver(1, "https://youtu.be/abc", domain.MediaAudio)

	if !messenger.hasText("https://files.example.com/abc.mp3") {
		t.Errorf("Expected link notice, got %v", messenger.texts)
	}
	if len(messenger.audio) != 0 {
		t.Error("Expected no attachment transmission for oversize artifact")
	}
	entries, _ := os.ReadDir(fetcher.dir)
	if len(entries) != 0 {
		t.Error("Expected local artifact to be deleted after upload")
	}
	if got := history.last(t).Status; got != domain.DeliveryUploaded {
		t.Errorf("Expected status uploaded, got %s", got)
	}
}

func TestDeliverReleasesSlotForNextRequest(t *testing.T) {
	fetcher := &fakeFetcher{dir: t.TempDir(), size: 100}
	p, store, _, _ := newTestPipeline(t, fetcher)

	p.Deliver(1, "https://youtu.be/abc", domain.MediaAudio)
	p.Deliver(1, "https://youtu.be/def", domain.MediaAudio)

	if fetcher.calls != 2 {
		t.Errorf("Expected both sequential requests to run, got %d fetches", fetcher.calls)
	}
	if store.IsActive(1) {
		t.Error("Expected no active session after both runs")
	}
}
