// Package telegram wraps the bot API behind the small send surface the
// publisher needs: a photo-with-caption path and a text-only path.
package telegram

import (
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the publish-channel contract. SendPhoto may fail while
// SendText still succeeds; the publisher treats that as a normal path.
type Sender interface {
	SendText(chatID int64, text string) (int, error)
	SendPhoto(chatID int64, caption string, imageData []byte) (int, error)
}

type sender struct {
	api    *tgbotapi.BotAPI
	logger *zerolog.Logger
}

func NewSender(token string, logger *zerolog.Logger) (Sender, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init bot api: %w", err)
	}

	logger.Info().Str("bot", api.Self.UserName).Msg("Telegram bot authorized")

	return &sender{api: api, logger: logger}, nil
}

func (s *sender) SendText(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	sent, err := s.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send message to %d: %w", chatID, err)
	}

	return sent.MessageID, nil
}

func (s *sender) SendPhoto(chatID int64, caption string, imageData []byte) (int, error) {
	mimeType := http.DetectContentType(imageData)

	fileName := imageFileName(mimeType)
	if fileName == "" {
		return 0, fmt.Errorf("unsupported image format %s", mimeType)
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  fileName,
		Bytes: imageData,
	})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML

	sent, err := s.api.Send(photo)
	if err != nil {
		return 0, fmt.Errorf("send photo to %d: %w", chatID, err)
	}

	return sent.MessageID, nil
}

func imageFileName(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return "cover.jpg"
	case "image/png":
		return "cover.png"
	case "image/webp":
		return "cover.webp"
	default:
		return ""
	}
}
