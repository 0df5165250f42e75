package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

type structuredHandler struct {
	cfg   handlerConfig
	attrs []slog.Attr
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

// Enabled reports whether the handler allows processing the provided level.
func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.cfg.level != nil {
		min = h.cfg.level.Level()
	}
	return level >= min
}

// Handle formats the slog.Record and writes it using the configured writer.
func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return fmt.Errorf("logger: writer not initialized")
	}

	fields := make(map[string]any, r.NumAttrs()+len(h.attrs)+8)
	fields["ts"] = r.Time.Format(timeFormatMillis)
	fields["level"] = normalizeLevel(r.Level.String())

	for _, attr := range h.attrs {
		collectAttr(fields, attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		collectAttr(fields, attr)
		return true
	})

	if _, ok := fields["event"]; !ok && r.Message != "" {
		fields["event"] = r.Message
	}
	addContextFields(ctx, fields, h.cfg.format)
	pruneEmpty(fields)

	var (
		line []byte
		err  error
	)
	if h.cfg.format == formatJSON {
		line, err = formatJSONLine(fields, h.cfg.keyOrder)
		if err != nil {
			return err
		}
	} else {
		line = formatKVLine(fields, h.cfg.keyOrder)
	}
	return h.cfg.writer.Write(append(line, '\n'))
}

// WithAttrs returns a handler carrying the additional attributes.
func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

// WithGroup is accepted but groups are flattened into plain keys.
func (h *structuredHandler) WithGroup(string) slog.Handler {
	return h
}

func collectAttr(fields map[string]any, attr slog.Attr) {
	if attr.Key == "" {
		return
	}
	val := attr.Value.Resolve()
	switch val.Kind() {
	case slog.KindGroup:
		for _, nested := range val.Group() {
			nested.Key = attr.Key + "." + nested.Key
			collectAttr(fields, nested)
		}
	case slog.KindDuration:
		if attr.Key == "duration" || strings.HasSuffix(attr.Key, "_duration") {
			fields[strings.TrimSuffix(attr.Key, "duration")+"duration_ms"] = val.Duration().Milliseconds()
			return
		}
		fields[attr.Key] = val.Duration().Milliseconds()
	case slog.KindTime:
		fields[attr.Key] = val.Time().Format(timeFormatMillis)
	default:
		fields[attr.Key] = val.Any()
	}
}

func addContextFields(ctx context.Context, fields map[string]any, format logFormat) {
	if ctx == nil {
		return
	}
	if rid := RIDFrom(ctx); rid != "" {
		if _, ok := fields["rid"]; !ok {
			fields["rid"] = CompactRID(rid)
			if format == formatJSON && CompactRID(rid) != rid {
				fields["rid_full"] = rid
			}
		}
	}
	if id := UpdateIDFrom(ctx); id != 0 {
		if _, ok := fields["update_id"]; !ok {
			fields["update_id"] = id
		}
	}
	if id := UserIDFrom(ctx); id != 0 {
		if _, ok := fields["user_id"]; !ok {
			fields["user_id"] = id
		}
	}
	if id := ChatIDFrom(ctx); id != 0 {
		if _, ok := fields["chat_id"]; !ok {
			fields["chat_id"] = id
		}
	}
	if handler := HandlerFrom(ctx); handler != "" {
		if _, ok := fields["handler"]; !ok {
			fields["handler"] = handler
		}
	}
}

func pruneEmpty(fields map[string]any) {
	for key, val := range fields {
		if s, ok := val.(string); ok && s == "" {
			delete(fields, key)
		}
	}
}

func orderedKeys(fields map[string]any, order []string) []string {
	keys := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, key := range order {
		if _, ok := fields[key]; ok {
			keys = append(keys, key)
			seen[key] = struct{}{}
		}
	}
	rest := make([]string, 0, len(fields))
	for key := range fields {
		if _, ok := seen[key]; !ok {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func formatJSONLine(fields map[string]any, order []string) ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, key := range orderedKeys(fields, order) {
		if i > 0 {
			b.WriteByte(',')
		}
		keyJSON, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(fields[key])
		if err != nil {
			return nil, err
		}
		b.Write(keyJSON)
		b.WriteByte(':')
		b.Write(valJSON)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

func formatKVLine(fields map[string]any, order []string) []byte {
	var b strings.Builder
	for i, key := range orderedKeys(fields, order) {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(formatValueKV(fields[key]))
	}
	return []byte(b.String())
}

func formatValueKV(val any) string {
	var s string
	switch v := val.(type) {
	case string:
		s = v
	case time.Duration:
		s = strconv.FormatInt(v.Milliseconds(), 10)
	case error:
		s = v.Error()
	default:
		s = fmt.Sprintf("%v", v)
	}
	if strings.ContainsAny(s, " \t\"=") {
		return strconv.Quote(s)
	}
	return s
}
