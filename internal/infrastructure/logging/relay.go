package logging

import (
	"time"

	"go.uber.org/zap/zapcore"
)

// Publisher accepts log entries for fan-out
type Publisher interface {
	Publish(stream, name string, payload any) error
}

// Entry is one log line as seen by stream subscribers
type Entry struct {
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Logger  string         `json:"logger,omitempty"`
	Caller  string         `json:"caller,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
	Time    time.Time      `json:"time"`
}

// RelayCore is a zapcore.Core that publishes entries on a stream, named by
// their level so subscribers can filter without decoding
type RelayCore struct {
	zapcore.LevelEnabler
	pub    Publisher
	stream string
	fields []zapcore.Field
}

// NewRelayCore creates a core publishing entries at or above enab
func NewRelayCore(pub Publisher, stream string, enab zapcore.LevelEnabler) *RelayCore {
	return &RelayCore{LevelEnabler: enab, pub: pub, stream: stream}
}

// With implements zapcore.Core
func (c *RelayCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

// Check implements zapcore.Core
func (c *RelayCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write implements zapcore.Core
func (c *RelayCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	entry := Entry{
		Level:   ent.Level.String(),
		Message: ent.Message,
		Logger:  ent.LoggerName,
		Time:    ent.Time.UTC(),
	}
	if ent.Caller.Defined {
		entry.Caller = ent.Caller.TrimmedPath()
	}
	if len(enc.Fields) > 0 {
		entry.Fields = enc.Fields
	}
	// Best effort: publish errors never reach zap's error output
	_ = c.pub.Publish(c.stream, entry.Level, entry)
	return nil
}

// Sync implements zapcore.Core
func (c *RelayCore) Sync() error {
	return nil
}

// AtLeast reports whether an entry published under name meets min.
// Unknown names are let through.
func AtLeast(name string, min zapcore.Level) bool {
	lvl, err := ParseLevel(name)
	if err != nil {
		return true
	}
	return lvl >= min
}
