// Package domain contains the core business entities and types.
package domain

import (
	"time"
)

// MediaKind selects what the fetcher extracts from a link.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// DownloadResult is the output of a successful fetch.
type DownloadResult struct {
	FilePath string
	Title    string
	Elapsed  time.Duration
}

// DeliveryStatus represents the terminal state of a delivery attempt.
type DeliveryStatus string

const (
	DeliverySent           DeliveryStatus = "sent"
	DeliveryUploaded       DeliveryStatus = "uploaded" // oversize fallback: file served via storage link
	DeliveryCancelled      DeliveryStatus = "cancelled"
	DeliveryFetchFailed    DeliveryStatus = "fetch_failed"
	DeliveryFileMissing    DeliveryStatus = "file_missing"
	DeliveryTooLarge       DeliveryStatus = "too_large"
	DeliveryTransmitFailed DeliveryStatus = "transmit_failed"
)

// Delivery records one delivery attempt for the history store.
type Delivery struct {
	ID          string
	UserID      int64
	URL         string
	Kind        MediaKind
	Title       string
	Status      DeliveryStatus
	SizeBytes   int64
	Error       string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// NewDelivery creates a new Delivery for the given request.
func NewDelivery(id string, userID int64, url string, kind MediaKind) *Delivery {
	return &Delivery{
		ID:        id,
		UserID:    userID,
		URL:       url,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
}

// Finish marks the delivery with its terminal status.
func (d *Delivery) Finish(status DeliveryStatus) {
	d.Status = status
	now := time.Now().UTC()
	d.CompletedAt = &now
}

// FinishWithError marks the delivery failed with the underlying cause.
func (d *Delivery) FinishWithError(status DeliveryStatus, err error) {
	if err != nil {
		d.Error = err.Error()
	}
	d.Finish(status)
}

// VideoInfo contains metadata about a video, probed before download.
type VideoInfo struct {
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"` // in seconds
	Thumbnail  string  `json:"thumbnail,omitempty"`
	Filesize   int64   `json:"filesize,omitempty"`
	Extractor  string  `json:"extractor,omitempty"`
	WebpageURL string  `json:"webpage_url,omitempty"`
}

// StatsResponse is the JSON payload for the stats endpoint.
type StatsResponse struct {
	ActiveSessions int            `json:"active_sessions"`
	QueueSize      int            `json:"queue_size"`
	Workers        int            `json:"workers"`
	Totals         map[string]int `json:"totals,omitempty"`
}

// HealthResponse is the JSON payload for the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}
