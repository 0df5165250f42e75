// Package delivery turns a composed post into Telegram API calls and
// normalises the channel targets operators type in.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/linearity/postbot/core/logger"
	"github.com/linearity/postbot/internal/catalog"

	tele "gopkg.in/telebot.v4"
)

// Target is a normalized posting destination usable as a telebot recipient:
// either a numeric chat id or an @handle.
type Target string

// Recipient implements tele.Recipient.
func (t Target) Recipient() string { return string(t) }

// NormalizeTarget converts raw channel identifiers to a Target.
// Accepted inputs: numeric chat ids, t.me links, @handles and bare handles.
func NormalizeTarget(raw string) Target {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if _, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return Target(trimmed)
	}
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/"} {
		if strings.HasPrefix(trimmed, prefix) {
			handle := strings.TrimPrefix(trimmed, prefix)
			handle = strings.SplitN(handle, "/", 2)[0]
			return Target("@" + strings.TrimPrefix(handle, "@"))
		}
	}
	if strings.HasPrefix(trimmed, "@") {
		return Target(trimmed)
	}
	return Target("@" + trimmed)
}

// Sender is the outbound surface flows depend on.
type Sender interface {
	SendText(ctx context.Context, to Target, body string, markup *tele.ReplyMarkup) error
	SendPhoto(ctx context.Context, to Target, fileID, caption string, markup *tele.ReplyMarkup) error
	SendMediaGroup(ctx context.Context, to Target, fileIDs []string) error
}

// BotSender delivers posts through a live telebot instance.
type BotSender struct {
	Bot *tele.Bot
}

// SendText sends a plain text message with optional inline buttons.
func (s *BotSender) SendText(ctx context.Context, to Target, body string, markup *tele.ReplyMarkup) error {
	_, err := s.Bot.Send(to, body, sendOptions(markup))
	logOutcome(ctx, "sendMessage", to, err)
	return err
}

// SendPhoto sends a single photo with caption and optional inline buttons.
func (s *BotSender) SendPhoto(ctx context.Context, to Target, fileID, caption string, markup *tele.ReplyMarkup) error {
	photo := &tele.Photo{File: tele.File{FileID: fileID}, Caption: caption}
	_, err := s.Bot.Send(to, photo, sendOptions(markup))
	logOutcome(ctx, "sendPhoto", to, err)
	return err
}

// SendMediaGroup sends the photos as one album.
func (s *BotSender) SendMediaGroup(ctx context.Context, to Target, fileIDs []string) error {
	album := make(tele.Album, 0, len(fileIDs))
	for _, id := range fileIDs {
		album = append(album, &tele.Photo{File: tele.File{FileID: id}})
	}
	_, err := s.Bot.SendAlbum(to, album)
	logOutcome(ctx, "sendMediaGroup", to, err)
	return err
}

func sendOptions(markup *tele.ReplyMarkup) *tele.SendOptions {
	return &tele.SendOptions{ReplyMarkup: markup}
}

func logOutcome(ctx context.Context, endpoint string, to Target, err error) {
	attrs := []slog.Attr{
		slog.String("endpoint", endpoint),
		slog.String("target", string(to)),
		slog.String("status", logger.Status(err)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
		logger.Error(ctx, "delivery", "post.send", attrs...)
		return
	}
	logger.Info(ctx, "delivery", "post.send", attrs...)
}

// IsChatNotFound recognises the Telegram "chat not found" failure so flows
// can show a targeted hint about bot membership and permissions.
func IsChatNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, tele.ErrChatNotFound) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "chat not found")
}

// ButtonsMarkup builds a single-column inline keyboard of URL buttons.
// Nil is returned for an empty set so callers can pass it straight through.
func ButtonsMarkup(buttons []catalog.Button) *tele.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}
	markup := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, markup.Row(markup.URL(b.Text, b.URL)))
	}
	markup.Inline(rows...)
	return markup
}
