package logger

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// Slog returns a slog.Logger that writes through zl. The engine and its
// plugins log with slog; the CLI hands them this so every line lands in
// the same sink.
func Slog(zl zerolog.Logger) *slog.Logger {
	return slog.New(&zerologHandler{zl: zl})
}

type zerologHandler struct {
	zl     zerolog.Logger
	attrs  []slog.Attr // keys already carry their group prefix
	groups []string
}

func (h *zerologHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.zl.GetLevel() <= zerologLevel(level) && zerolog.GlobalLevel() <= zerologLevel(level)
}

func (h *zerologHandler) Handle(_ context.Context, r slog.Record) error {
	evt := h.zl.WithLevel(zerologLevel(r.Level))
	if evt == nil {
		return nil
	}
	for _, a := range h.attrs {
		addAttr(evt, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(evt, h.prefix(), a)
		return true
	})
	evt.Msg(r.Message)
	return nil
}

func (h *zerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append([]slog.Attr{}, h.attrs...)
	prefix := h.prefix()
	for _, a := range attrs {
		a.Key = prefix + a.Key
		cp.attrs = append(cp.attrs, a)
	}
	return &cp
}

func (h *zerologHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	cp := *h
	cp.groups = append(append([]string{}, h.groups...), name)
	return &cp
}

func (h *zerologHandler) prefix() string {
	p := ""
	for _, g := range h.groups {
		p += g + "."
	}
	return p
}

func addAttr(evt *zerolog.Event, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	key := prefix + a.Key
	switch v.Kind() {
	case slog.KindGroup:
		for _, ga := range v.Group() {
			addAttr(evt, key+".", ga)
		}
	case slog.KindString:
		evt.Str(key, v.String())
	case slog.KindInt64:
		evt.Int64(key, v.Int64())
	case slog.KindUint64:
		evt.Uint64(key, v.Uint64())
	case slog.KindFloat64:
		evt.Float64(key, v.Float64())
	case slog.KindBool:
		evt.Bool(key, v.Bool())
	case slog.KindDuration:
		evt.Dur(key, v.Duration())
	case slog.KindTime:
		evt.Time(key, v.Time())
	default:
		if err, ok := v.Any().(error); ok {
			evt.AnErr(key, err)
			return
		}
		evt.Interface(key, v.Any())
	}
}

func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l >= slog.LevelError:
		return zerolog.ErrorLevel
	case l >= slog.LevelWarn:
		return zerolog.WarnLevel
	case l >= slog.LevelInfo:
		return zerolog.InfoLevel
	}
	return zerolog.DebugLevel
}
