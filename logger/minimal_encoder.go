package logger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// Everforest-ish palette, kept small on purpose: logs should be calm.
const (
	colorReset  = "\x1b[0m"
	colorBold   = "\x1b[1m"
	colorTime   = "\x1b[38;5;107m"
	colorName   = "\x1b[38;5;208m"
	colorSymbol = "\x1b[38;5;108m"
	colorKey    = "\x1b[38;5;65m"
	colorWarn   = "\x1b[38;5;179m\x1b[48;5;58m"
	colorError  = "\x1b[38;5;167m\x1b[48;5;52m"
)

var bufferPool = buffer.NewPool()

// minimalEncoder implements a compact console encoder.
// Format: "13:04:35  ꩜ pulse.schedule  Job finished  job_id=backup exit_code=0"
type minimalEncoder struct {
	zapcore.Encoder // base encoder carries fields added via With
	context         []zapcore.Field
	color           bool
}

func newMinimalEncoder() *minimalEncoder {
	return &minimalEncoder{
		Encoder: zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		color:   true,
	}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	ctx := make([]zapcore.Field, len(enc.context))
	copy(ctx, enc.context)
	return &minimalEncoder{
		Encoder: enc.Encoder.Clone(),
		context: ctx,
		color:   enc.color,
	}
}

// AddString and friends are routed through With(); we keep our own copy of
// those fields so they can be rendered as key=value instead of JSON.
func (enc *minimalEncoder) AddString(key, value string) {
	enc.context = append(enc.context, zap.String(key, value))
}

func (enc *minimalEncoder) AddInt64(key string, value int64) {
	enc.context = append(enc.context, zap.Int64(key, value))
}

func (enc *minimalEncoder) AddBool(key string, value bool) {
	enc.context = append(enc.context, zap.Bool(key, value))
}

func (enc *minimalEncoder) AddFloat64(key string, value float64) {
	enc.context = append(enc.context, zap.Float64(key, value))
}

func (enc *minimalEncoder) AddDuration(key string, value time.Duration) {
	enc.context = append(enc.context, zap.Duration(key, value))
}

func (enc *minimalEncoder) AddTime(key string, value time.Time) {
	enc.context = append(enc.context, zap.Time(key, value))
}

func (enc *minimalEncoder) AddReflected(key string, value interface{}) error {
	enc.context = append(enc.context, zap.Any(key, value))
	return nil
}

func (enc *minimalEncoder) paint(color, s string) string {
	if !enc.color || s == "" {
		return s
	}
	return color + s + colorReset
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	final := bufferPool.Get()

	all := make([]zapcore.Field, 0, len(enc.context)+len(fields))
	all = append(all, enc.context...)
	all = append(all, fields...)

	values := zapcore.NewMapObjectEncoder()
	for _, f := range all {
		f.AddTo(values)
	}

	final.AppendString(enc.paint(colorTime, ent.Time.Format("15:04:05")))

	if ent.Level != zapcore.InfoLevel {
		final.AppendString("  ")
		final.AppendString(enc.levelString(ent.Level))
	}

	if symbol, ok := values.Fields[FieldSymbol].(string); ok {
		final.AppendString("  ")
		final.AppendString(enc.paint(colorSymbol, symbol))
		delete(values.Fields, FieldSymbol)
	}

	if ent.LoggerName != "" {
		final.AppendString(" ")
		final.AppendString(enc.paint(colorName, ent.LoggerName))
	}

	final.AppendString("  ")
	final.AppendString(ent.Message)

	if kv := enc.formatFields(values.Fields); kv != "" {
		final.AppendString("  ")
		final.AppendString(kv)
	}

	final.AppendString("\n")
	return final, nil
}

func (enc *minimalEncoder) levelString(level zapcore.Level) string {
	switch level {
	case zapcore.WarnLevel:
		return enc.paint(colorBold+colorWarn, "WARN")
	case zapcore.DebugLevel:
		return "DEBUG"
	default:
		return enc.paint(colorBold+colorError, level.CapitalString())
	}
}

// formatFields renders fields as key=value, job_id first, the rest sorted.
func (enc *minimalEncoder) formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != FieldJobID {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := fields[FieldJobID]; ok {
		keys = append([]string{FieldJobID}, keys...)
	}

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fmt.Sprintf("%v", fields[k])
		if strings.ContainsAny(v, " \t\n") {
			v = fmt.Sprintf("%q", v)
		}
		parts = append(parts, enc.paint(colorKey, k+"=")+v)
	}
	return strings.Join(parts, " ")
}
