// Package flows implements the admin wizards: post composition and button
// preset curation. Flows run on the dialog engine and talk to the operator
// through a Prompter so tests can observe every outgoing message.
package flows

import (
	"github.com/linearity/postbot/core/telegram/keyboard"
	"github.com/linearity/postbot/internal/dialog"

	tele "gopkg.in/telebot.v4"
)

// Prompter sends wizard prompts back to the conversation.
type Prompter interface {
	Prompt(text string, markup *tele.ReplyMarkup) error
}

type contextPrompter struct {
	c tele.Context
}

// NewContextPrompter binds a Prompter to the handler's telebot context.
func NewContextPrompter(c tele.Context) Prompter {
	return contextPrompter{c: c}
}

func (p contextPrompter) Prompt(text string, markup *tele.ReplyMarkup) error {
	if markup != nil {
		return p.c.Send(text, markup)
	}
	return p.c.Send(text)
}

// Shared operator-facing strings.
const (
	foreignPressNotice = "Questo pulsante non è per te"
	choiceReceived     = "Scelta ricevuta"
	abortedNotice      = "Operazione annullata."
	busyNotice         = "C'è già una procedura in corso in questa chat."
)

// listMarkup builds a one-button-per-row inline keyboard with the shared
// back/abort navigation row appended.
func listMarkup(buttons []keyboard.InlineBtn) *tele.ReplyMarkup {
	markup := keyboard.InlineButtons(buttons)
	markup.InlineKeyboard = append(markup.InlineKeyboard,
		keyboard.ToInlineKeyboard([][]tele.Btn{dialog.NavRow(markup)})...)
	return markup
}

// abortMarkup returns the lone-abort keyboard for steps that have no
// previous step to return to.
func abortMarkup() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(dialog.AbortRow(markup))
	return markup
}

// nextFromOwner waits for the next interaction from the flow owner.
// Button presses from other users get a toast and are discarded; any other
// foreign input is ignored. ok is false when the engine shuts down.
func nextFromOwner(run *dialog.Run, owner int64) (dialog.Interaction, bool) {
	for {
		in, ok := run.Wait()
		if !ok {
			return nil, false
		}
		if in.Sender() != owner {
			if cb, isCb := in.(dialog.CallbackInput); isCb {
				cb.Acknowledge(foreignPressNotice)
			}
			continue
		}
		return in, true
	}
}
