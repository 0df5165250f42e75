package router

import (
	"time"

	tg "github.com/linearity/postbot/core/telegram"
	"github.com/linearity/postbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Conversations is the minimal interface of the dialog engine the router
// needs: feed the update to an active session, reporting whether one consumed it.
type Conversations interface {
	Resume(c tele.Context) bool
}

// TextOptions controls fallback behaviour for text/photo/document updates.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownPhoto    tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

// TextRoutes builds handlers for text, photo and document routing.
// Active dialog sessions take priority over command dispatch.
func TextRoutes(conv Conversations, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if conv != nil && conv.Resume(c) {
			logHandlerSummary(c, "dialog", start, "resume", "ok", nil)
			return nil
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, "", "", func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, "", "", func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
		return nil
	}

	photoHandler := func(c tele.Context) error {
		start := time.Now()
		if conv != nil && conv.Resume(c) {
			logHandlerSummary(c, "dialog_photo", start, "resume", "ok", nil)
			return nil
		}
		if opts.UnknownPhoto != nil {
			return handleWithSummary(c, "unexpected_photo", start, "", "", func() error {
				return opts.UnknownPhoto(c)
			})
		}
		logHandlerSummary(c, "unexpected_photo", start, "skip", "ok", nil)
		return nil
	}

	docHandler := func(c tele.Context) error {
		start := time.Now()
		if conv != nil && conv.Resume(c) {
			logHandlerSummary(c, "dialog_document", start, "resume", "ok", nil)
			return nil
		}
		if opts.UnknownDocument != nil {
			return handleWithSummary(c, "unexpected_document", start, "", "", func() error {
				return opts.UnknownDocument(c)
			})
		}
		logHandlerSummary(c, "unexpected_document", start, "skip", "ok", nil)
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		},
		{
			Endpoint: tele.OnPhoto,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(photoHandler)),
		},
		{
			Endpoint: tele.OnDocument,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(docHandler)),
		},
	}
}
