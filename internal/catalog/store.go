package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/linearity/postbot/core/logger"
)

const (
	channelsFile = "channels.json"
	presetsFile  = "presets.json"
)

// Store reads and writes the channel and preset collections under a data
// directory. Writes replace the whole file atomically; the last writer wins
// when the bot and the HTTP surface race, which matches the single-operator
// deployment this serves.
type Store struct {
	dir string
}

// NewStore binds a store to the given data directory, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("catalog: empty data dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("catalog: create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the bound data directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) channelsPath() string { return filepath.Join(s.dir, channelsFile) }
func (s *Store) presetsPath() string  { return filepath.Join(s.dir, presetsFile) }

// The files wrap their collections in a single-key envelope so they stay
// interchangeable with the admin tooling that edits them.
type channelsDoc struct {
	Channels []Channel `json:"channels"`
}

type presetsDoc struct {
	Presets []Preset `json:"presets"`
}

// Channels returns the known channel list. A missing or corrupt file yields
// an empty list so wizards keep working and the operator sees an empty menu.
func (s *Store) Channels() []Channel {
	var doc channelsDoc
	if err := readJSONFile(s.channelsPath(), &doc); err != nil {
		logReadDegraded(s.channelsPath(), err)
		return []Channel{}
	}
	if doc.Channels == nil {
		return []Channel{}
	}
	return doc.Channels
}

// Presets returns the preset collection, empty on a missing or corrupt file.
func (s *Store) Presets() []Preset {
	var doc presetsDoc
	if err := readJSONFile(s.presetsPath(), &doc); err != nil {
		logReadDegraded(s.presetsPath(), err)
		return []Preset{}
	}
	if doc.Presets == nil {
		return []Preset{}
	}
	return doc.Presets
}

// WriteChannels replaces the channel collection.
func (s *Store) WriteChannels(channels []Channel) error {
	if channels == nil {
		channels = []Channel{}
	}
	return writeJSONFile(s.channelsPath(), channelsDoc{Channels: channels})
}

// WritePresets deduplicates and replaces the preset collection.
func (s *Store) WritePresets(presets []Preset) error {
	return writeJSONFile(s.presetsPath(), presetsDoc{Presets: DedupPresets(presets)})
}

// FindPreset looks a preset up by id.
func (s *Store) FindPreset(id int) (Preset, bool) {
	for _, p := range s.Presets() {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}

// UpsertPreset inserts the preset, assigning the next free id when the
// incoming id is zero or replacing an existing preset otherwise.
func (s *Store) UpsertPreset(p Preset) (Preset, error) {
	presets := s.Presets()
	if p.ID == 0 {
		p.ID = NextPresetID(presets)
		presets = append(presets, p)
	} else {
		replaced := false
		for i := range presets {
			if presets[i].ID == p.ID {
				presets[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			presets = append(presets, p)
		}
	}
	if err := s.WritePresets(presets); err != nil {
		return Preset{}, err
	}
	return p, nil
}

// DeletePreset removes a preset by id, reporting whether it existed.
func (s *Store) DeletePreset(id int) (bool, error) {
	presets := s.Presets()
	kept := presets[:0]
	found := false
	for _, p := range presets {
		if p.ID == id {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return false, nil
	}
	return true, s.WritePresets(kept)
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("catalog: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("catalog: write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("catalog: close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("catalog: replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func logReadDegraded(path string, err error) {
	if os.IsNotExist(err) {
		return
	}
	logger.Warn(logger.Background(), "catalog", "read.degraded",
		slog.String("path", path),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
}
