package logger

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Scope is an immutable logging scope. It carries the chain of named call
// scopes, an optional correlation id and base details that are merged into
// every message. Scopes are threaded through context.Context so concurrent
// jobs never share scope state.
type Scope struct {
	path          []string
	correlationID string
	base          map[string]interface{}
}

type scopeKey struct{}

// rootScope is returned by FromContext when no scope was attached.
var rootScope = &Scope{path: []string{"ferry"}}

// NewScope creates a root scope with the given name.
func NewScope(name string) *Scope {
	return &Scope{path: []string{name}}
}

// Child returns a new scope nested under s.
func (s *Scope) Child(name string) *Scope {
	path := make([]string, len(s.path), len(s.path)+1)
	copy(path, s.path)
	return &Scope{
		path:          append(path, name),
		correlationID: s.correlationID,
		base:          s.base,
	}
}

// WithCorrelationID returns a copy of s tagged with the given correlation id.
func (s *Scope) WithCorrelationID(id string) *Scope {
	return &Scope{path: s.path, correlationID: id, base: s.base}
}

// WithDetails returns a copy of s whose messages always include details.
func (s *Scope) WithDetails(details map[string]interface{}) *Scope {
	merged := make(map[string]interface{}, len(s.base)+len(details))
	for k, v := range s.base {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &Scope{path: s.path, correlationID: s.correlationID, base: merged}
}

// CorrelationID returns the correlation id, or "" when none was set.
func (s *Scope) CorrelationID() string {
	return s.correlationID
}

// Name returns the full scope path, outermost first.
func (s *Scope) Name() string {
	return strings.Join(s.path, " > ")
}

// Debug writes a DEBUG message.
func (s *Scope) Debug(message, tag string, details map[string]interface{}) {
	s.write(LevelDebug, message, tag, details)
}

// Info writes an INFO message.
func (s *Scope) Info(message, tag string, details map[string]interface{}) {
	s.write(LevelInfo, message, tag, details)
}

// Warn writes a WARN message.
func (s *Scope) Warn(message, tag string, details map[string]interface{}) {
	s.write(LevelWarn, message, tag, details)
}

// Error writes an ERROR message.
func (s *Scope) Error(message, tag string, details map[string]interface{}) {
	s.write(LevelError, message, tag, details)
}

// Critical writes a CRITICAL message. It does not exit.
func (s *Scope) Critical(message, tag string, details map[string]interface{}) {
	s.write(LevelCritical, message, tag, details)
}

func (s *Scope) write(level LogLevel, message, tag string, details map[string]interface{}) {
	if !Enabled(level) {
		return
	}
	output(level, "%s", s.Format(message, tag, details))
}

// Format renders a message the way the scope writes it, without the level prefix.
func (s *Scope) Format(message, tag string, details map[string]interface{}) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(s.Name())
	b.WriteString("]")
	if s.correlationID != "" {
		b.WriteString(" [cid=")
		b.WriteString(s.correlationID)
		b.WriteString("]")
	}
	if tag != "" {
		b.WriteString(" [")
		b.WriteString(tag)
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(message)
	if rendered := renderDetails(s.base, details); rendered != "" {
		b.WriteString(" ")
		b.WriteString(rendered)
	}
	return b.String()
}

// renderDetails renders base and details as sorted key=value pairs; details win on conflict.
func renderDetails(base, details map[string]interface{}) string {
	if len(base) == 0 && len(details) == 0 {
		return ""
	}
	merged := make(map[string]interface{}, len(base)+len(details))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, merged[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// NewContext returns a copy of ctx carrying scope.
func NewContext(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// FromContext returns the scope attached to ctx, or the root "ferry" scope.
func FromContext(ctx context.Context) *Scope {
	if ctx != nil {
		if s, ok := ctx.Value(scopeKey{}).(*Scope); ok && s != nil {
			return s
		}
	}
	return rootScope
}

// WithScope opens a child scope of the scope found in ctx and returns both the
// derived context and the new scope. Leaving the scope is simply dropping the
// derived context.
func WithScope(ctx context.Context, name string) (context.Context, *Scope) {
	child := FromContext(ctx).Child(name)
	return NewContext(ctx, child), child
}
