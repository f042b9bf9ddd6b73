package logger

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

type palette struct {
	time      string
	component string
	message   string
	id        string
	number    string
	symbol    string
	warn      string
	warnBg    string
	err       string
	errBg     string
}

// Everforest Dark (natural forest greens)
var everforest = palette{
	time:      "\x1b[38;5;107m",
	component: "\x1b[38;5;208m",
	message:   "\x1b[38;5;223m",
	id:        "\x1b[38;5;109m",
	number:    "\x1b[38;5;108m",
	symbol:    "\x1b[38;5;108m",
	warn:      "\x1b[38;5;179m",
	warnBg:    "\x1b[48;5;58m",
	err:       "\x1b[38;5;167m",
	errBg:     "\x1b[48;5;52m",
}

// Gruvbox Dark (warm, muted)
var gruvbox = palette{
	time:      "\x1b[38;5;108m",
	component: "\x1b[38;5;214m",
	message:   "\x1b[38;5;223m",
	id:        "\x1b[38;5;109m",
	number:    "\x1b[38;5;175m",
	symbol:    "\x1b[38;5;142m",
	warn:      "\x1b[38;5;214m",
	warnBg:    "\x1b[48;5;58m",
	err:       "\x1b[38;5;167m",
	errBg:     "\x1b[48;5;88m",
}

var current = everforest

// SetTheme configures the color scheme for console output (everforest, gruvbox)
func SetTheme(theme string) {
	switch theme {
	case "everforest":
		current = everforest
	case "gruvbox":
		current = gruvbox
	}
}

// idFields and numberFields are rendered inline after the message; everything
// else is appended as key=value so no field is ever dropped.
var (
	idFields     = map[string]bool{FieldTaskID: true, FieldJobID: true, FieldInstanceID: true}
	numberFields = map[string]string{FieldSlots: " slots", FieldDurationMS: "ms", FieldElapsedMS: "ms elapsed"}
)

// minimalEncoder is a compact console encoder.
// Format: "13:04:35  ꩜  p.scheduler  Task admitted  3f2a.. 256 slots"
type minimalEncoder struct {
	zapcore.Encoder
	fields []zapcore.Field
}

func newMinimalEncoder() *minimalEncoder {
	return &minimalEncoder{Encoder: zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	clone := &minimalEncoder{Encoder: enc.Encoder.Clone()}
	clone.fields = append(clone.fields, enc.fields...)
	return clone
}

// AddString captures With() context so it can be rendered by EncodeEntry
func (enc *minimalEncoder) AddString(key, value string) {
	enc.fields = append(enc.fields, zap.String(key, value))
}

// AddInt64 captures integer With() context
func (enc *minimalEncoder) AddInt64(key string, value int64) {
	enc.fields = append(enc.fields, zap.Int64(key, value))
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	final := buffer.NewPool().Get()

	final.AppendString(current.time)
	final.AppendString(ent.Time.Format("15:04:05"))
	final.AppendString(colorReset)

	if lvl := levelString(ent.Level); lvl != "" {
		final.AppendString("  ")
		final.AppendString(lvl)
	}

	all := append(append([]zapcore.Field{}, enc.fields...), fields...)

	for _, f := range all {
		if f.Key == FieldSymbol {
			final.AppendString("  ")
			final.AppendString(current.symbol + f.String + colorReset)
		}
	}

	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(current.component + abbreviateName(ent.LoggerName) + colorReset)
	}

	final.AppendString("  ")
	final.AppendString(current.message + ent.Message + colorReset)

	if rendered := renderFields(all); rendered != "" {
		final.AppendString("  ")
		final.AppendString(rendered)
	}

	final.AppendString("\n")
	return final, nil
}

func levelString(level zapcore.Level) string {
	switch level {
	case zapcore.InfoLevel:
		return ""
	case zapcore.DebugLevel:
		return "DEBUG"
	case zapcore.WarnLevel:
		return colorBold + current.warnBg + current.warn + "WARN" + colorReset
	default:
		return colorBold + current.errBg + current.err + level.CapitalString() + colorReset
	}
}

// abbreviateName shortens component names: pulse.scheduler -> p.scheduler
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 && parts[0] != "" {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}

func fieldValue(field zapcore.Field) string {
	switch field.Type {
	case zapcore.StringType:
		return field.String
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return fmt.Sprintf("%d", field.Integer)
	case zapcore.BoolType:
		return fmt.Sprintf("%t", field.Integer == 1)
	case zapcore.DurationType:
		return time.Duration(field.Integer).String()
	case zapcore.ErrorType:
		if err, ok := field.Interface.(error); ok {
			return err.Error()
		}
	}
	if field.Interface != nil {
		return fmt.Sprintf("%v", field.Interface)
	}
	return ""
}

func renderFields(fields []zapcore.Field) string {
	var out []string
	for _, f := range fields {
		if f.Key == FieldSymbol {
			continue
		}
		val := fieldValue(f)
		if val == "" {
			continue
		}
		switch {
		case idFields[f.Key]:
			out = append(out, current.id+shortID(val)+colorReset)
		case numberFields[f.Key] != "":
			out = append(out, current.number+val+colorReset+numberFields[f.Key])
		default:
			out = append(out, f.Key+"="+val)
		}
	}
	return strings.Join(out, " ")
}

// shortID trims UUIDs to their first segment for console readability
func shortID(id string) string {
	if len(id) > 8 && strings.Count(id, "-") == 4 {
		return id[:8]
	}
	return id
}
