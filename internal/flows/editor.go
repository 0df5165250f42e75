package flows

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/linearity/postbot/core/telegram/keyboard"
	"github.com/linearity/postbot/internal/catalog"
	"github.com/linearity/postbot/internal/dialog"

	tele "gopkg.in/telebot.v4"
)

type flowResult int

const (
	// flowFinished means the sub-flow completed or backed out and the caller
	// may carry on.
	flowFinished flowResult = iota
	// flowDone means the user chose to finish: the editor unwinds and
	// reports completion to whichever flow invoked it.
	flowDone
	// flowAborted means the user terminated the whole wizard.
	flowAborted
)

const editorFlowName = "preset"

// PresetEditor runs the preset curation wizard, both standalone via the
// /preset command and nested inside the post composer.
type PresetEditor struct {
	Engine *dialog.Engine
	Store  *catalog.Store
}

// Handle starts the standalone editor wizard for the /preset command.
func (e *PresetEditor) Handle(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	prompt := NewContextPrompter(c)
	conv := conversationOf(c)
	err := e.Engine.Start(conv, sender.ID, editorFlowName, func(run *dialog.Run) {
		e.manage(run, prompt, sender.ID)
	})
	if err != nil {
		return prompt.Prompt(busyNotice, nil)
	}
	return nil
}

// manage shows the preset list and dispatches per-preset actions until the
// user backs out (flowFinished) or terminates (flowAborted).
func (e *PresetEditor) manage(run *dialog.Run, prompt Prompter, owner int64) flowResult {
	for {
		presets := e.Store.Presets()
		catalog.SortPresets(presets)

		buttons := make([]keyboard.InlineBtn, 0, len(presets)+1)
		for _, p := range presets {
			buttons = append(buttons, keyboard.InlineBtn{Text: p.Title, Unique: "preset", Data: strconv.Itoa(p.ID)})
		}
		buttons = append(buttons, keyboard.InlineBtn{Text: "➕ Nuovo preset", Unique: "preset", Data: "new"})

		if err := prompt.Prompt("Scegli un preset da modificare o crea uno nuovo:", listMarkup(buttons)); err != nil {
			return flowAborted
		}

		in, ok := nextFromOwner(run, owner)
		if !ok {
			return flowAborted
		}
		switch dialog.Classify(in) {
		case dialog.VerdictBack:
			ackIfCallback(in, "Torna indietro")
			return flowFinished
		case dialog.VerdictAbort:
			ackIfCallback(in, "Terminato")
			return flowAborted
		}
		cb, isCb := in.(dialog.CallbackInput)
		if !isCb || cb.Key != "preset" {
			continue
		}
		cb.Acknowledge(choiceReceived)

		if cb.Payload == "new" {
			switch e.create(run, prompt, owner) {
			case flowAborted:
				return flowAborted
			case flowDone:
				return flowFinished
			}
			continue
		}

		id, err := strconv.Atoi(cb.Payload)
		if err != nil {
			continue
		}
		preset, found := e.Store.FindPreset(id)
		if !found {
			_ = prompt.Prompt("Preset non trovato.", nil)
			continue
		}
		switch e.edit(run, prompt, owner, preset) {
		case flowAborted:
			return flowAborted
		case flowDone:
			return flowFinished
		}
	}
}

func (e *PresetEditor) edit(run *dialog.Run, prompt Prompter, owner int64, preset catalog.Preset) flowResult {
	markup := listMarkup([]keyboard.InlineBtn{
		{Text: "Modifica nome", Unique: "action", Data: "rename"},
		{Text: "Aggiungi pulsante", Unique: "action", Data: "addbtn"},
		{Text: "Rimuovi pulsante", Unique: "action", Data: "rembtn"},
		{Text: "Elimina preset", Unique: "action", Data: "delete"},
	})
	if err := prompt.Prompt("Preset: "+preset.Title, markup); err != nil {
		return flowAborted
	}

	for {
		in, ok := nextFromOwner(run, owner)
		if !ok {
			return flowAborted
		}
		switch dialog.Classify(in) {
		case dialog.VerdictBack:
			ackIfCallback(in, "Torna indietro")
			return flowFinished
		case dialog.VerdictAbort:
			ackIfCallback(in, "Terminato")
			return flowAborted
		}
		cb, isCb := in.(dialog.CallbackInput)
		if !isCb || cb.Key != "action" {
			continue
		}
		cb.Acknowledge(choiceReceived)

		switch cb.Payload {
		case "rename":
			return e.rename(run, prompt, owner, preset)
		case "addbtn":
			return e.addButton(run, prompt, owner, preset)
		case "rembtn":
			return e.removeButton(run, prompt, owner, preset)
		case "delete":
			return e.deletePreset(run, prompt, owner, preset)
		}
	}
}

func (e *PresetEditor) rename(run *dialog.Run, prompt Prompter, owner int64, preset catalog.Preset) flowResult {
	_ = prompt.Prompt("Inserisci il nuovo nome del preset:", nil)
	name, verdict, ok := waitText(run, owner)
	if !ok || verdict == dialog.VerdictAbort {
		return flowAborted
	}
	if verdict == dialog.VerdictBack {
		return flowFinished
	}
	preset.Title = name
	if _, err := e.Store.UpsertPreset(preset); err != nil {
		_ = prompt.Prompt("Errore nel salvataggio del preset.", nil)
		return flowFinished
	}
	_ = prompt.Prompt("Nome aggiornato", nil)
	return e.afterAction(run, prompt, owner)
}

func (e *PresetEditor) addButton(run *dialog.Run, prompt Prompter, owner int64, preset catalog.Preset) flowResult {
	_ = prompt.Prompt("Inserisci testo pulsante:", nil)
	text, verdict, ok := waitText(run, owner)
	if !ok || verdict == dialog.VerdictAbort {
		return flowAborted
	}
	if verdict == dialog.VerdictBack {
		return flowFinished
	}
	_ = prompt.Prompt("Inserisci URL per il pulsante:", nil)
	url, verdict, ok := waitText(run, owner)
	if !ok || verdict == dialog.VerdictAbort {
		return flowAborted
	}
	if verdict == dialog.VerdictBack {
		return flowFinished
	}
	for _, b := range preset.Buttons {
		if b.Text == text && b.URL == url {
			_ = prompt.Prompt("Pulsante già presente nel preset", nil)
			return flowFinished
		}
	}
	preset.Buttons = append(preset.Buttons, catalog.Button{Text: text, URL: url})
	if _, err := e.Store.UpsertPreset(preset); err != nil {
		_ = prompt.Prompt("Errore nel salvataggio del preset.", nil)
		return flowFinished
	}
	_ = prompt.Prompt("Pulsante aggiunto", nil)
	return e.afterAction(run, prompt, owner)
}

func (e *PresetEditor) removeButton(run *dialog.Run, prompt Prompter, owner int64, preset catalog.Preset) flowResult {
	if len(preset.Buttons) == 0 {
		_ = prompt.Prompt("Nessun pulsante da rimuovere", nil)
		return flowFinished
	}
	buttons := make([]keyboard.InlineBtn, 0, len(preset.Buttons))
	for i, b := range preset.Buttons {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   fmt.Sprintf("%d. %s", i+1, b.Text),
			Unique: "rem",
			Data:   strconv.Itoa(i),
		})
	}
	_ = prompt.Prompt("Scegli pulsante da rimuovere", listMarkup(buttons))

	for {
		in, ok := nextFromOwner(run, owner)
		if !ok {
			return flowAborted
		}
		switch dialog.Classify(in) {
		case dialog.VerdictBack:
			ackIfCallback(in, "Torna indietro")
			return flowFinished
		case dialog.VerdictAbort:
			ackIfCallback(in, "Terminato")
			return flowAborted
		}
		cb, isCb := in.(dialog.CallbackInput)
		if !isCb || cb.Key != "rem" {
			continue
		}
		cb.Acknowledge(choiceReceived)
		idx, err := strconv.Atoi(cb.Payload)
		if err != nil || idx < 0 || idx >= len(preset.Buttons) {
			// A stale index from an outdated keyboard is ignored.
			return flowFinished
		}
		preset.Buttons = append(preset.Buttons[:idx], preset.Buttons[idx+1:]...)
		if _, err := e.Store.UpsertPreset(preset); err != nil {
			_ = prompt.Prompt("Errore nel salvataggio del preset.", nil)
			return flowFinished
		}
		_ = prompt.Prompt("Pulsante rimosso", nil)
		return e.afterAction(run, prompt, owner)
	}
}

func (e *PresetEditor) deletePreset(run *dialog.Run, prompt Prompter, owner int64, preset catalog.Preset) flowResult {
	_ = prompt.Prompt("Confermi eliminazione preset? (si/no)", abortMarkup())
	answer, verdict, ok := waitText(run, owner)
	if !ok || verdict == dialog.VerdictAbort {
		return flowAborted
	}
	if verdict == dialog.VerdictBack {
		return flowFinished
	}
	if answer := strings.ToLower(answer); answer == "si" || answer == "s" {
		if _, err := e.Store.DeletePreset(preset.ID); err != nil {
			_ = prompt.Prompt("Errore nel salvataggio del preset.", nil)
			return flowFinished
		}
		_ = prompt.Prompt("Preset eliminato", nil)
		return e.afterAction(run, prompt, owner)
	}
	_ = prompt.Prompt(abortedNotice, nil)
	return flowFinished
}

// create walks the new-preset dialog: title, button count, then a text/URL
// pair per button. The collection write deduplicates.
func (e *PresetEditor) create(run *dialog.Run, prompt Prompter, owner int64) flowResult {
	_ = prompt.Prompt("🆕 Creazione nuovo preset — inserisci il titolo:", nil)
	title, verdict, ok := waitText(run, owner)
	if !ok || verdict == dialog.VerdictAbort {
		return flowAborted
	}
	if verdict == dialog.VerdictBack {
		return flowFinished
	}

	_ = prompt.Prompt("Quanti pulsanti vuoi aggiungere? (numero)", nil)
	countText, verdict, ok := waitText(run, owner)
	if !ok || verdict == dialog.VerdictAbort {
		return flowAborted
	}
	if verdict == dialog.VerdictBack {
		return flowFinished
	}
	count, err := strconv.Atoi(countText)
	if err != nil || count < 0 {
		count = 0
	}

	buttons := make([]catalog.Button, 0, count)
	for i := 0; i < count; i++ {
		_ = prompt.Prompt(fmt.Sprintf("Testo pulsante #%d", i+1), nil)
		text, verdict, ok := waitText(run, owner)
		if !ok || verdict == dialog.VerdictAbort {
			return flowAborted
		}
		if verdict == dialog.VerdictBack {
			return flowFinished
		}
		_ = prompt.Prompt("URL pulsante", nil)
		url, verdict, ok := waitText(run, owner)
		if !ok || verdict == dialog.VerdictAbort {
			return flowAborted
		}
		if verdict == dialog.VerdictBack {
			return flowFinished
		}
		buttons = append(buttons, catalog.Button{Text: text, URL: url})
	}

	presets := e.Store.Presets()
	presets = append(presets, catalog.Preset{
		ID:      catalog.NextPresetID(presets),
		Title:   title,
		Buttons: buttons,
	})
	if err := e.Store.WritePresets(presets); err != nil {
		_ = prompt.Prompt("Errore nel salvataggio del preset.", nil)
		return flowFinished
	}
	_ = prompt.Prompt("Preset creato", nil)
	return e.afterAction(run, prompt, owner)
}

// afterAction asks whether to keep editing or close the editor after every
// completed action. "Fine" unwinds the whole editor; "Modifica ancora"
// returns to the preset list.
func (e *PresetEditor) afterAction(run *dialog.Run, prompt Prompter, owner int64) flowResult {
	markup := keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "🔁 Modifica ancora", Unique: "next", Data: "more"},
		{Text: "✅ Fine", Unique: "next", Data: "done"},
	})
	markup.InlineKeyboard = append(markup.InlineKeyboard,
		keyboard.ToInlineKeyboard([][]tele.Btn{dialog.AbortRow(markup)})...)
	if err := prompt.Prompt("Cosa vuoi fare adesso?", markup); err != nil {
		return flowAborted
	}

	for {
		in, ok := nextFromOwner(run, owner)
		if !ok {
			return flowAborted
		}
		switch dialog.Classify(in) {
		case dialog.VerdictBack:
			ackIfCallback(in, "Torna indietro")
			return flowFinished
		case dialog.VerdictAbort:
			ackIfCallback(in, "Terminato")
			return flowAborted
		}
		cb, isCb := in.(dialog.CallbackInput)
		if !isCb || cb.Key != "next" {
			continue
		}
		cb.Acknowledge(choiceReceived)
		switch cb.Payload {
		case "more":
			return flowFinished
		case "done":
			return flowDone
		}
	}
}

// waitText blocks until the owner sends a text message or a navigation
// control. Button presses other than navigation are acknowledged and
// discarded.
func waitText(run *dialog.Run, owner int64) (string, dialog.Verdict, bool) {
	for {
		in, ok := nextFromOwner(run, owner)
		if !ok {
			return "", dialog.VerdictNone, false
		}
		switch dialog.Classify(in) {
		case dialog.VerdictBack:
			ackIfCallback(in, "Torna indietro")
			return "", dialog.VerdictBack, true
		case dialog.VerdictAbort:
			ackIfCallback(in, "Terminato")
			return "", dialog.VerdictAbort, true
		}
		if t, isText := in.(dialog.TextInput); isText {
			return strings.TrimSpace(t.Text), dialog.VerdictNone, true
		}
		if cb, isCb := in.(dialog.CallbackInput); isCb {
			cb.Acknowledge("")
		}
	}
}

func ackIfCallback(in dialog.Interaction, text string) {
	if cb, ok := in.(dialog.CallbackInput); ok {
		cb.Acknowledge(text)
	}
}

func conversationOf(c tele.Context) int64 {
	if chat := c.Chat(); chat != nil {
		return chat.ID
	}
	if sender := c.Sender(); sender != nil {
		return sender.ID
	}
	return 0
}
