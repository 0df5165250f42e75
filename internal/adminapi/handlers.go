package adminapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/linearity/postbot/internal/catalog"
	"github.com/linearity/postbot/internal/delivery"
)

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if s.cfg.Token == "" || req.Token != s.cfg.Token {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}
	session, err := s.issueSession()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "token": session})
}

func (s *Server) handleListChannels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"channels": s.store.Channels()})
}

func (s *Server) handleAddChannel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Link string `json:"link"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Link == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	channels := s.store.Channels()
	id := catalog.ChannelID(strings.TrimSpace(req.Link))
	for _, ch := range channels {
		if ch.Name == req.Name || ch.ID == id {
			writeError(w, http.StatusConflict, "exists")
			return
		}
	}
	channel := catalog.Channel{ID: id, Name: req.Name}
	channels = append(channels, channel)
	if err := s.store.WriteChannels(channels); err != nil {
		writeError(w, http.StatusInternalServerError, "write_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "channel": channel})
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID catalog.ChannelID `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "missing_id")
		return
	}
	channels := s.store.Channels()
	kept := channels[:0]
	for _, ch := range channels {
		if ch.ID != req.ID {
			kept = append(kept, ch)
		}
	}
	if err := s.store.WriteChannels(kept); err != nil {
		writeError(w, http.StatusInternalServerError, "write_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListPresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"presets": s.store.Presets()})
}

func (s *Server) handleCreatePreset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title   string           `json:"title"`
		Buttons []catalog.Button `json:"buttons"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "missing_title")
		return
	}
	if len(req.Buttons) == 0 {
		writeError(w, http.StatusBadRequest, "missing_buttons")
		return
	}
	valid := req.Buttons[:0]
	for _, b := range req.Buttons {
		if strings.TrimSpace(b.Text) != "" {
			valid = append(valid, b)
		}
	}
	if len(valid) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_buttons")
		return
	}
	preset, err := s.store.UpsertPreset(catalog.Preset{Title: strings.TrimSpace(req.Title), Buttons: valid})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "write_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "preset": preset})
}

func presetID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	return id, err == nil
}

func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	id, ok := presetID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	preset, found := s.store.FindPreset(id)
	if !found {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"preset": preset})
}

func (s *Server) handleUpdatePreset(w http.ResponseWriter, r *http.Request) {
	id, ok := presetID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	if _, found := s.store.FindPreset(id); !found {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	var preset catalog.Preset
	if err := json.NewDecoder(r.Body).Decode(&preset); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	preset.ID = id
	updated, err := s.store.UpsertPreset(preset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "write_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "preset": updated})
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	id, ok := presetID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	found, err := s.store.DeletePreset(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "write_failed")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text      string            `json:"text"`
		ChannelID catalog.ChannelID `json:"channelId"`
		Buttons   []catalog.Button  `json:"buttons"`
		PresetID  int               `json:"presetId"`
		Images    []string          `json:"images"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "missing_text")
		return
	}

	raw := req.ChannelID.String()
	if raw == "" {
		raw = s.defaultTarget
	}
	target := delivery.NormalizeTarget(raw)
	if target == "" {
		writeError(w, http.StatusBadRequest, "missing_channel")
		return
	}

	buttons := req.Buttons
	if len(buttons) == 0 && req.PresetID != 0 {
		if preset, found := s.store.FindPreset(req.PresetID); found {
			buttons = preset.Buttons
		}
	}
	markup := delivery.ButtonsMarkup(buttons)

	ctx := r.Context()
	var err error
	switch len(req.Images) {
	case 0:
		err = s.sender.SendText(ctx, target, req.Text, markup)
	case 1:
		err = s.sender.SendPhoto(ctx, target, req.Images[0], req.Text, markup)
	default:
		err = s.sender.SendPhoto(ctx, target, req.Images[0], req.Text, markup)
		if err == nil {
			err = s.sender.SendMediaGroup(ctx, target, req.Images[1:])
		}
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"ok": false, "error": "send_failed", "details": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "media_count": len(req.Images)})
}
