package bot

import (
	"errors"
	"net"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender implements the delivery pipeline's chat transport boundary on
// top of the Telegram Bot API. For private chats the chat ID equals the
// user ID, so deliveries address users directly.
type Sender struct {
	api *tgbotapi.BotAPI
}

// NewSender creates a Sender.
func NewSender(api *tgbotapi.BotAPI) *Sender {
	return &Sender{api: api}
}

// SendText sends a plain status message.
func (s *Sender) SendText(userID int64, text string) error {
	_, err := s.api.Send(tgbotapi.NewMessage(userID, text))
	return err
}

// SendAudio sends a local audio file as an attachment.
func (s *Sender) SendAudio(userID int64, filePath, caption string) error {
	audio := tgbotapi.NewAudio(userID, tgbotapi.FilePath(filePath))
	audio.Caption = caption
	_, err := s.api.Send(audio)
	return err
}

// SendVideo sends a local video file as an attachment.
func (s *Sender) SendVideo(userID int64, filePath, caption string) error {
	video := tgbotapi.NewVideo(userID, tgbotapi.FilePath(filePath))
	video.Caption = caption
	_, err := s.api.Send(video)
	return err
}

// transientMarkers are error-message fragments that indicate a network
// condition worth retrying.
var transientMarkers = []string{
	"timeout",
	"timed out",
	"network is unreachable",
	"connection reset",
	"connection refused",
	"no such host",
	"temporarily unavailable",
	"bad gateway",
	"gateway timeout",
	"too many requests",
}

// IsTransient classifies a send error as retryable. Telegram flood
// control (429) and server-side errors are transient; anything else
// (bad request, blocked bot, oversized payload) is permanent.
func (s *Sender) IsTransient(err error) bool {
	return IsTransient(err)
}

// IsTransient is the package-level classifier, shared with tests.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return tgErr.Code == 429 || tgErr.Code >= 500
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
