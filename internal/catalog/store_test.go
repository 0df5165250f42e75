package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestStoreEmptyOnMissingFiles(t *testing.T) {
	s := newTestStore(t)
	assert.Empty(t, s.Channels())
	assert.Empty(t, s.Presets())
}

func TestStoreEmptyOnCorruptFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "presets.json"), []byte("{not json"), 0o644))
	assert.Empty(t, s.Presets())
}

func TestWritePresetsDedups(t *testing.T) {
	s := newTestStore(t)
	in := []Preset{
		{ID: 1, Title: "Links", Buttons: []Button{
			{Text: "Sito", URL: "https://example.com"},
			{Text: "Sito", URL: "https://example.com"},
			{Text: "Canale", URL: "https://t.me/example"},
		}},
		{ID: 2, Title: "Links", Buttons: []Button{
			{Text: "Sito", URL: "https://example.com"},
			{Text: "Canale", URL: "https://t.me/example"},
		}},
		{ID: 3, Title: "Other", Buttons: []Button{
			{Text: "Sito", URL: "https://example.com"},
		}},
	}
	require.NoError(t, s.WritePresets(in))

	got := s.Presets()
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].ID)
	assert.Len(t, got[0].Buttons, 2)
	assert.Equal(t, "Other", got[1].Title)

	// A second write of the same data must not shrink further.
	require.NoError(t, s.WritePresets(got))
	assert.Equal(t, got, s.Presets())
}

func TestNextPresetID(t *testing.T) {
	assert.Equal(t, 1, NextPresetID(nil))
	assert.Equal(t, 1, NextPresetID([]Preset{}))
	assert.Equal(t, 8, NextPresetID([]Preset{{ID: 3}, {ID: 7}, {ID: 2}}))
}

func TestUpsertPresetAssignsID(t *testing.T) {
	s := newTestStore(t)
	first, err := s.UpsertPreset(Preset{Title: "A", Buttons: []Button{{Text: "x", URL: "https://x"}}})
	require.NoError(t, err)
	assert.Equal(t, 1, first.ID)

	second, err := s.UpsertPreset(Preset{Title: "B", Buttons: []Button{{Text: "y", URL: "https://y"}}})
	require.NoError(t, err)
	assert.Equal(t, 2, second.ID)

	// Replacing by id keeps the collection size.
	first.Title = "A2"
	_, err = s.UpsertPreset(first)
	require.NoError(t, err)
	got := s.Presets()
	require.Len(t, got, 2)

	found, ok := s.FindPreset(1)
	require.True(t, ok)
	assert.Equal(t, "A2", found.Title)
}

func TestDeletePreset(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertPreset(Preset{Title: "A"})
	require.NoError(t, err)

	ok, err := s.DeletePreset(1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DeletePreset(99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChannelIDJSON(t *testing.T) {
	var ch Channel
	require.NoError(t, json.Unmarshal([]byte(`{"id":-1001234,"name":"News"}`), &ch))
	assert.Equal(t, ChannelID("-1001234"), ch.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"@news","name":"News"}`), &ch))
	assert.Equal(t, ChannelID("@news"), ch.ID)

	numeric, err := json.Marshal(Channel{ID: "-1001234", Name: "News"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":-1001234,"name":"News"}`, string(numeric))

	handle, err := json.Marshal(Channel{ID: "@news", Name: "News"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"@news","name":"News"}`, string(handle))
}

func TestPersistedShapeUsesEnvelope(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteChannels([]Channel{{ID: "-100555", Name: "News"}}))
	require.NoError(t, s.WritePresets([]Preset{{ID: 1, Title: "Links"}}))

	raw, err := os.ReadFile(filepath.Join(s.Dir(), "channels.json"))
	require.NoError(t, err)
	var chDoc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &chDoc))
	assert.Contains(t, chDoc, "channels")

	raw, err = os.ReadFile(filepath.Join(s.Dir(), "presets.json"))
	require.NoError(t, err)
	var prDoc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &prDoc))
	assert.Contains(t, prDoc, "presets")
}

func TestChannelsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	in := []Channel{{ID: "-100555", Name: "Primo"}, {ID: "@secondo", Name: "Secondo"}}
	require.NoError(t, s.WriteChannels(in))
	assert.Equal(t, in, s.Channels())
}
