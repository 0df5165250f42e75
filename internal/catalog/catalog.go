// Package catalog persists the channel list and button presets that admin
// wizards and the HTTP surface both edit. Collections are stored as whole
// JSON files so external tooling can read and rewrite them directly.
package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Button is a single labelled URL attached to a post.
type Button struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Preset is a reusable named set of buttons.
type Preset struct {
	ID      int      `json:"id"`
	Title   string   `json:"title"`
	Buttons []Button `json:"buttons"`
}

// ChannelID carries a channel identifier that may be a numeric chat id or a
// public @handle. JSON readers accept both number and string encodings;
// integer-like values are written back as numbers.
type ChannelID string

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (c *ChannelID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		*c = ""
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ChannelID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("channel id must be a number or string: %w", err)
	}
	*c = ChannelID(n.String())
	return nil
}

// MarshalJSON writes integer-like identifiers as JSON numbers.
func (c ChannelID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(c), 10, 64); err == nil {
		return []byte(c), nil
	}
	return json.Marshal(string(c))
}

func (c ChannelID) String() string { return string(c) }

// Channel is a known posting destination.
type Channel struct {
	ID   ChannelID `json:"id"`
	Name string    `json:"name"`
}

func buttonKey(b Button) string {
	return b.Text + "\x00" + b.URL
}

func presetKey(p Preset) string {
	buttons, _ := json.Marshal(p.Buttons)
	return p.Title + "\x00" + string(buttons)
}

// DedupButtons removes duplicate (text, url) pairs keeping first occurrence.
func DedupButtons(buttons []Button) []Button {
	seen := make(map[string]struct{}, len(buttons))
	out := make([]Button, 0, len(buttons))
	for _, b := range buttons {
		key := buttonKey(b)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, b)
	}
	return out
}

// DedupPresets removes duplicate buttons inside every preset and then drops
// presets whose title and button set duplicate an earlier entry.
func DedupPresets(presets []Preset) []Preset {
	seen := make(map[string]struct{}, len(presets))
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		p.Buttons = DedupButtons(p.Buttons)
		key := presetKey(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

// NextPresetID returns max(id)+1, or 1 for an empty collection.
func NextPresetID(presets []Preset) int {
	next := 1
	for _, p := range presets {
		if p.ID >= next {
			next = p.ID + 1
		}
	}
	return next
}

// SortPresets orders presets by id for stable rendering.
func SortPresets(presets []Preset) {
	sort.Slice(presets, func(i, j int) bool { return presets[i].ID < presets[j].ID })
}
