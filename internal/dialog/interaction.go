// Package dialog runs multi-step admin conversations. Each active wizard
// owns a goroutine that consumes incoming updates from a per-conversation
// inbox, so flow code reads as straight-line prompt/wait sequences.
package dialog

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Interaction is a single update consumed by a running flow.
type Interaction interface {
	// Sender returns the Telegram user id that produced the update.
	Sender() int64
}

// TextInput carries a plain text message.
type TextInput struct {
	From int64
	Text string
}

func (t TextInput) Sender() int64 { return t.From }

// PhotoInput carries a photo message, keeping the best-resolution file id.
type PhotoInput struct {
	From   int64
	FileID string
}

func (p PhotoInput) Sender() int64 { return p.From }

// CallbackInput carries an inline button press. Flows acknowledge presses
// themselves so they can attach a toast message to the answer.
type CallbackInput struct {
	From    int64
	Key     string
	Payload string
	Raw     string

	ack func(text string)
}

// NewCallbackInput builds a callback interaction with an acknowledge hook.
func NewCallbackInput(from int64, key, payload, raw string, ack func(text string)) CallbackInput {
	return CallbackInput{From: from, Key: key, Payload: payload, Raw: raw, ack: ack}
}

func (c CallbackInput) Sender() int64 { return c.From }

// Acknowledge answers the callback query, optionally showing a toast.
func (c CallbackInput) Acknowledge(text string) {
	if c.ack != nil {
		c.ack(text)
	}
}

// Navigation tokens shared by every wizard step.
const (
	NavKey   = "nav"
	NavBack  = "back"
	NavAbort = "abort"
)

// Verdict classifies an interaction against the shared navigation controls.
type Verdict int

const (
	// VerdictNone means the interaction is regular step input.
	VerdictNone Verdict = iota
	// VerdictBack means the user asked to return to the previous step.
	VerdictBack
	// VerdictAbort means the user asked to abandon the wizard.
	VerdictAbort
)

// Classify recognises the navigation controls in both their callback and
// typed-text encodings.
func Classify(in Interaction) Verdict {
	switch v := in.(type) {
	case CallbackInput:
		if v.Key == NavKey {
			switch strings.TrimSpace(v.Payload) {
			case NavBack:
				return VerdictBack
			case NavAbort:
				return VerdictAbort
			}
		}
	case TextInput:
		switch strings.TrimSpace(v.Text) {
		case NavKey + ":" + NavBack:
			return VerdictBack
		case NavKey + ":" + NavAbort:
			return VerdictAbort
		}
	}
	return VerdictNone
}

// Navigation button labels.
const (
	BackLabel  = "↩️ Torna indietro"
	AbortLabel = "❌ Termina"
)

// NavRow returns the back/abort button row appended to every wizard keyboard.
func NavRow(markup *tele.ReplyMarkup) tele.Row {
	return markup.Row(
		markup.Data(BackLabel, NavKey, NavBack),
		markup.Data(AbortLabel, NavKey, NavAbort),
	)
}

// AbortRow returns a keyboard row with only the abort control, for steps
// that have no previous step to return to.
func AbortRow(markup *tele.ReplyMarkup) tele.Row {
	return markup.Row(markup.Data(AbortLabel, NavKey, NavAbort))
}
