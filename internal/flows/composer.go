package flows

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/linearity/postbot/core/telegram/keyboard"
	"github.com/linearity/postbot/internal/catalog"
	"github.com/linearity/postbot/internal/delivery"
	"github.com/linearity/postbot/internal/dialog"

	tele "gopkg.in/telebot.v4"
)

const (
	composerFlowName = "createpost"
	maxImages        = 5

	presetPromptText = "Prima di creare un post, scegli il preset di comandi desiderato oppure, " +
		"se ne hai la necessità usa il tasto \"Modifica\" per poter modificare i preset a disposizione"
)

// Composer runs the channel post wizard: pick a channel, pick a button
// preset, capture text and up to five photos, confirm and deliver.
type Composer struct {
	Engine *dialog.Engine
	Store  *catalog.Store
	Sender delivery.Sender
	Editor *PresetEditor
}

// Handle starts the wizard for the /createpost command.
func (f *Composer) Handle(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	prompt := NewContextPrompter(c)
	conv := conversationOf(c)
	err := f.Engine.Start(conv, sender.ID, composerFlowName, func(run *dialog.Run) {
		f.run(run, prompt)
	})
	if err != nil {
		return prompt.Prompt(busyNotice, nil)
	}
	return nil
}

func (f *Composer) run(run *dialog.Run, prompt Prompter) {
	owner := run.Owner()

	channel, ok := f.selectChannel(run, prompt, owner)
	if !ok {
		return
	}

	chosen, ok := f.selectPreset(run, prompt, owner)
	if !ok {
		return
	}

	_ = prompt.Prompt("Inserisci il testo del post:", abortMarkup())
	body, verdict, okText := waitText(run, owner)
	if !okText || verdict != dialog.VerdictNone {
		return
	}

	images, ok := f.collectImages(run, prompt, owner)
	if !ok {
		return
	}

	if !f.confirm(run, prompt, owner, body, chosen) {
		return
	}

	f.deliver(prompt, channel, chosen, body, images)
}

func (f *Composer) selectChannel(run *dialog.Run, prompt Prompter, owner int64) (catalog.Channel, bool) {
	channels := f.Store.Channels()
	if len(channels) == 0 {
		_ = prompt.Prompt("Nessun canale configurato.", nil)
		return catalog.Channel{}, false
	}

	for {
		buttons := make([]keyboard.InlineBtn, 0, len(channels))
		for _, ch := range channels {
			buttons = append(buttons, keyboard.InlineBtn{Text: ch.Name, Unique: "channel", Data: ch.ID.String()})
		}
		if err := prompt.Prompt("In quale canale vuoi inviare il post?", listMarkup(buttons)); err != nil {
			return catalog.Channel{}, false
		}

		for {
			in, ok := nextFromOwner(run, owner)
			if !ok {
				return catalog.Channel{}, false
			}
			switch dialog.Classify(in) {
			case dialog.VerdictBack:
				// First step: nothing to go back to, re-show the menu.
				ackIfCallback(in, "Torna indietro")
			case dialog.VerdictAbort:
				ackIfCallback(in, "Terminato")
				return catalog.Channel{}, false
			default:
				cb, isCb := in.(dialog.CallbackInput)
				if !isCb || cb.Key != "channel" {
					continue
				}
				for _, ch := range channels {
					if ch.ID.String() == cb.Payload {
						cb.Acknowledge("Canale selezionato: " + ch.Name)
						return ch, true
					}
				}
				cb.Acknowledge("")
				continue
			}
			break
		}
	}
}

// selectPreset returns the chosen preset, nil for a free-form post. The
// nested editor re-enters the menu with a fresh preset list when it finishes.
func (f *Composer) selectPreset(run *dialog.Run, prompt Prompter, owner int64) (*catalog.Preset, bool) {
	for {
		presets := f.Store.Presets()
		catalog.SortPresets(presets)

		buttons := make([]keyboard.InlineBtn, 0, len(presets)+2)
		for _, p := range presets {
			buttons = append(buttons, keyboard.InlineBtn{Text: p.Title, Unique: "preset", Data: strconv.Itoa(p.ID)})
		}
		buttons = append(buttons,
			keyboard.InlineBtn{Text: "Libero", Unique: "preset", Data: "free"},
			keyboard.InlineBtn{Text: "MODIFICA PRESET", Unique: "preset", Data: "modify"},
		)
		if err := prompt.Prompt(presetPromptText, listMarkup(buttons)); err != nil {
			return nil, false
		}

	waitChoice:
		for {
			in, ok := nextFromOwner(run, owner)
			if !ok {
				return nil, false
			}
			switch dialog.Classify(in) {
			case dialog.VerdictBack:
				ackIfCallback(in, "Torna indietro")
				break waitChoice
			case dialog.VerdictAbort:
				ackIfCallback(in, "Terminato")
				return nil, false
			}
			var payload string
			switch v := in.(type) {
			case dialog.CallbackInput:
				if v.Key != "preset" {
					continue
				}
				v.Acknowledge(choiceReceived)
				payload = v.Payload
			case dialog.TextInput:
				// Typing "libero" or a preset id works as a selection
				// fallback.
				text := strings.TrimSpace(v.Text)
				if strings.EqualFold(text, "libero") {
					payload = "free"
				} else if _, err := strconv.Atoi(text); err == nil {
					payload = text
				} else {
					continue
				}
			default:
				continue
			}

			switch payload {
			case "free":
				_ = prompt.Prompt("Hai scelto: Libero", nil)
				return nil, true
			case "modify":
				if res := f.Editor.manage(run, prompt, owner); res == flowAborted {
					return nil, false
				}
				_ = prompt.Prompt("Modifiche terminate. Torno alla chat principale.", nil)
				break waitChoice
			default:
				id, err := strconv.Atoi(payload)
				if err != nil {
					return nil, true
				}
				preset, found := f.Store.FindPreset(id)
				if !found {
					return nil, true
				}
				var summary strings.Builder
				fmt.Fprintf(&summary, "Hai scelto preset: %s\n", preset.Title)
				if len(preset.Buttons) > 0 {
					summary.WriteString("Bottoni:\n")
					for _, b := range preset.Buttons {
						fmt.Fprintf(&summary, "- %s: %s\n", b.Text, b.URL)
					}
				}
				_ = prompt.Prompt(summary.String(), nil)
				return &preset, true
			}
		}
	}
}

func (f *Composer) collectImages(run *dialog.Run, prompt Prompter, owner int64) ([]string, bool) {
	_ = prompt.Prompt(`Invia fino a 5 immagini (una per messaggio). Quando hai finito scrivi "fine".`, nil)
	var images []string
	for len(images) < maxImages {
		in, ok := nextFromOwner(run, owner)
		if !ok {
			return nil, false
		}
		switch dialog.Classify(in) {
		case dialog.VerdictBack, dialog.VerdictAbort:
			ackIfCallback(in, "Terminato")
			return nil, false
		}
		switch v := in.(type) {
		case dialog.PhotoInput:
			images = append(images, v.FileID)
			_ = prompt.Prompt(fmt.Sprintf("Ricevuta immagine (%d)", len(images)), nil)
		case dialog.TextInput:
			if strings.EqualFold(strings.TrimSpace(v.Text), "fine") {
				return images, true
			}
			_ = prompt.Prompt(`Per favore invia una foto oppure scrivi "fine" per continuare.`, nil)
		case dialog.CallbackInput:
			v.Acknowledge("")
		}
	}
	return images, true
}

func (f *Composer) confirm(run *dialog.Run, prompt Prompter, owner int64, body string, chosen *catalog.Preset) bool {
	var preview strings.Builder
	fmt.Fprintf(&preview, "Anteprima:\n%s\n", body)
	if chosen != nil && len(chosen.Buttons) > 0 {
		preview.WriteString("Pulsanti:\n")
		for _, b := range chosen.Buttons {
			fmt.Fprintf(&preview, "- %s: %s\n", b.Text, b.URL)
		}
	}
	_ = prompt.Prompt(preview.String()+"\nConfermi invio? (si/no)", abortMarkup())

	answer, verdict, ok := waitText(run, owner)
	if !ok || verdict != dialog.VerdictNone {
		return false
	}
	if answer := strings.ToLower(answer); answer != "si" && answer != "s" {
		_ = prompt.Prompt(abortedNotice, nil)
		return false
	}
	return true
}

func (f *Composer) deliver(prompt Prompter, channel catalog.Channel, chosen *catalog.Preset, body string, images []string) {
	ctx := context.Background()
	target := delivery.NormalizeTarget(channel.ID.String())
	var buttons []catalog.Button
	if chosen != nil {
		buttons = chosen.Buttons
	}
	markup := delivery.ButtonsMarkup(buttons)

	var err error
	switch len(images) {
	case 0:
		err = f.Sender.SendText(ctx, target, body, markup)
	case 1:
		err = f.Sender.SendPhoto(ctx, target, images[0], body, markup)
	default:
		err = f.Sender.SendPhoto(ctx, target, images[0], body, markup)
		if err == nil {
			err = f.Sender.SendMediaGroup(ctx, target, images[1:])
		}
	}
	if err != nil {
		if delivery.IsChatNotFound(err) {
			_ = prompt.Prompt("Errore nell'invio: chat non trovata. Controlla il valore del canale configurato (ID/link).", nil)
			return
		}
		_ = prompt.Prompt("Errore nell'invio: "+err.Error(), nil)
		return
	}
	_ = prompt.Prompt("Post inviato con successo", nil)
}
