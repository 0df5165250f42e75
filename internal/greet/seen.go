package greet

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/linearity/postbot/core/logger"
	"github.com/linearity/postbot/internal/catalog"
)

const (
	seenFile        = "seen-start.json"
	startConfigFile = "start-config.json"
)

// SeenSet remembers which users already ran /start, backed by a small JSON
// file in the data directory. Unreadable files degrade to an empty set.
type SeenSet struct {
	mu   sync.Mutex
	path string
	ids  map[int64]struct{}
}

// LoadSeen reads the seen set from dir, starting empty when the file is
// missing or corrupt.
func LoadSeen(dir string) *SeenSet {
	s := &SeenSet{
		path: filepath.Join(dir, seenFile),
		ids:  make(map[int64]struct{}),
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return s
	}
	var payload struct {
		Seen []int64 `json:"seen"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Warn(logger.Background(), "greet", "seen.read_degraded",
			slog.String("path", s.path),
			slog.String("err", err.Error()),
		)
		return s
	}
	for _, id := range payload.Seen {
		s.ids[id] = struct{}{}
	}
	return s
}

// Has reports whether the user already ran /start.
func (s *SeenSet) Has(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[userID]
	return ok
}

// Mark records the user and persists the whole set.
func (s *SeenSet) Mark(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[userID]; ok {
		return nil
	}
	s.ids[userID] = struct{}{}

	ids := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	data, err := json.MarshalIndent(struct {
		Seen []int64 `json:"seen"`
	}{Seen: ids}, "", "  ")
	if err != nil {
		return fmt.Errorf("greet: marshal seen set: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".seen-*.json")
	if err != nil {
		return fmt.Errorf("greet: write seen set: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("greet: write seen set: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("greet: write seen set: %w", err)
	}
	if err := os.Rename(name, s.path); err != nil {
		os.Remove(name)
		return fmt.Errorf("greet: write seen set: %w", err)
	}
	return nil
}

// StartConfig is the operator-curated welcome shown by /start.
type StartConfig struct {
	Message string           `json:"message"`
	Buttons []catalog.Button `json:"buttons"`
}

// ReadStartConfig loads the welcome config from dir. The second return is
// false when no usable config exists.
func ReadStartConfig(dir string) (StartConfig, bool) {
	raw, err := os.ReadFile(filepath.Join(dir, startConfigFile))
	if err != nil {
		return StartConfig{}, false
	}
	var cfg StartConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		logger.Warn(logger.Background(), "greet", "start_config.read_degraded",
			slog.String("err", err.Error()),
		)
		return StartConfig{}, false
	}
	if strings.TrimSpace(cfg.Message) == "" && len(cfg.Buttons) == 0 {
		return StartConfig{}, false
	}
	return cfg, true
}
