package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler renders human-oriented lines: a header naming the record,
// stage and file, then an indented list of the fields worth reading. Info
// lines drop fields whose value has not changed since the last line about
// the same subject.
type consoleHandler struct {
	out       *consoleOutput
	level     *slog.LevelVar
	preset    []kv
	prefix    string
	addSource bool
	color     bool
}

// consoleOutput is shared by every handler derived through WithAttrs and
// WithGroup.
type consoleOutput struct {
	mu   sync.Mutex
	w    io.Writer
	last map[string]map[string]string
}

type kv struct {
	key   string
	value slog.Value
}

type logSubject struct {
	component string
	recordID  string
	stage     string
	file      string
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource, color bool) slog.Handler {
	return &consoleHandler{
		out:       &consoleOutput{w: w, last: map[string]map[string]string{}},
		level:     lvl,
		addSource: addSource,
		color:     color,
	}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	set := attrSet{kvs: append([]kv(nil), h.preset...)}
	for _, attr := range attrs {
		set.add(h.prefix, attr)
	}
	derived := *h
	derived.preset = set.kvs
	return &derived
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	derived := *h
	derived.prefix = joinKey(h.prefix, name)
	return &derived
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if !h.Enabled(context.Background(), record.Level) {
		return nil
	}
	set := attrSet{kvs: make([]kv, 0, len(h.preset)+record.NumAttrs())}
	for _, item := range h.preset {
		set.put(item.key, item.value)
	}
	record.Attrs(func(attr slog.Attr) bool {
		set.add(h.prefix, attr)
		return true
	})
	subject, visible := splitSubject(set.kvs)

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}

	var buf bytes.Buffer
	h.header(&buf, ts, record.Level, subject, message, record.Source())
	buf.WriteByte('\n')

	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	if record.Level < slog.LevelInfo {
		for _, item := range set.kvs {
			buf.WriteString("    " + item.key + ": " + formatValue(item.value) + "\n")
		}
	} else {
		fields, hidden := selectInfoFields(visible, infoAttrLimit, false)
		fields = h.out.changed(infoSummaryKey(subject), fields, record.Level > slog.LevelInfo)
		for _, field := range fields {
			buf.WriteString("    - " + field.label + ": " + field.value + "\n")
		}
		if hidden == 1 {
			buf.WriteString("    + 1 more field hidden\n")
		} else if hidden > 1 {
			buf.WriteString("    + " + strconv.Itoa(hidden) + " more fields hidden\n")
		}
	}
	_, err := h.out.w.Write(buf.Bytes())
	return err
}

// splitSubject pulls the header fields out of kvs. The component only
// appears in the header; record, stage and file stay listed as fields too.
func splitSubject(kvs []kv) (logSubject, []kv) {
	var subject logSubject
	rest := make([]kv, 0, len(kvs))
	for _, item := range kvs {
		switch item.key {
		case FieldComponent:
			subject.component = attrString(item.value)
			continue
		case FieldRecordID:
			subject.recordID = attrString(item.value)
		case FieldStage:
			subject.stage = attrString(item.value)
		case FieldFile:
			subject.file = attrString(item.value)
		}
		rest = append(rest, item)
	}
	return subject, rest
}

func (h *consoleHandler) header(buf *bytes.Buffer, ts time.Time, level slog.Level, subject logSubject, message string, src *slog.Source) {
	label := levelLabel(level)
	if h.color {
		label = colorize(level, label)
	}
	buf.WriteString(formatTimestamp(ts) + " " + label)
	if subject.component != "" {
		buf.WriteString(" [" + subject.component + "]")
	}
	if text := composeSubject(subject); text != "" {
		buf.WriteString(" " + text)
	}
	buf.WriteString(" – " + message)
	if h.addSource && src != nil {
		buf.WriteString(" [" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line) + "]")
	}
}

// composeSubject renders "Record 1a2b3c4d (cleaning) · talk.wav" style
// subjects. Record IDs are shortened to their first eight characters.
func composeSubject(subject logSubject) string {
	recordID := strings.TrimSpace(subject.recordID)
	stage := strings.TrimSpace(subject.stage)
	file := strings.TrimSpace(subject.file)
	if len(recordID) > 8 {
		recordID = recordID[:8]
	}
	parts := make([]string, 0, 2)
	switch {
	case recordID != "" && stage != "":
		parts = append(parts, "Record "+recordID+" ("+stage+")")
	case recordID != "":
		parts = append(parts, "Record "+recordID)
	case stage != "":
		parts = append(parts, stage)
	}
	if file != "" {
		parts = append(parts, file)
	}
	return strings.Join(parts, " · ")
}

// changed drops info fields already printed with the same value for key.
// Warnings and errors always print in full but still refresh the memory.
func (o *consoleOutput) changed(key string, fields []infoField, always bool) []infoField {
	if key == "" {
		return fields
	}
	seen := o.last[key]
	if seen == nil {
		seen = map[string]string{}
		o.last[key] = seen
	}
	out := make([]infoField, 0, len(fields))
	for _, field := range fields {
		if prev, ok := seen[field.label]; always || !ok || prev != field.value {
			out = append(out, field)
		}
		seen[field.label] = field.value
	}
	return out
}

// attrSet is an insertion-ordered list of flattened attributes where a
// repeated key overwrites the earlier value in place.
type attrSet struct {
	kvs   []kv
	index map[string]int
}

func (s *attrSet) put(key string, value slog.Value) {
	if key == "" {
		return
	}
	if s.index == nil {
		s.index = make(map[string]int, len(s.kvs)+8)
		for i, item := range s.kvs {
			s.index[item.key] = i
		}
	}
	if i, ok := s.index[key]; ok {
		s.kvs[i].value = value
		return
	}
	s.index[key] = len(s.kvs)
	s.kvs = append(s.kvs, kv{key: key, value: value})
}

// add flattens attr under prefix, joining group names with dots.
func (s *attrSet) add(prefix string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		inner := prefix
		if attr.Key != "" {
			inner = joinKey(prefix, attr.Key)
		}
		for _, member := range value.Group() {
			s.add(inner, member)
		}
		return
	}
	key := joinKey(prefix, attr.Key)
	if attr.Key == "" {
		key = prefix
	}
	s.put(key, value)
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func colorize(level slog.Level, label string) string {
	code := "90"
	switch {
	case level >= slog.LevelError:
		code = "31"
	case level >= slog.LevelWarn:
		code = "33"
	case level >= slog.LevelInfo:
		code = "36"
	}
	return "\x1b[" + code + "m" + label + "\x1b[0m"
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
