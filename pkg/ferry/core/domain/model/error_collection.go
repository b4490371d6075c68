package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
)

// ErrorCollection is an ordered, sequentially keyed collection of error
// messages. Keys are error01, error02, ... in the order the errors were
// discovered, with no gaps regardless of which sub-operation added them.
// The zero value is ready to use.
type ErrorCollection struct {
	messages []string
}

// NewErrorCollection returns an empty collection.
func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{}
}

// ErrorKey returns the key of the n-th entry (1-based).
func ErrorKey(n int) string {
	return fmt.Sprintf("error%02d", n)
}

// Add appends message and returns the key assigned to it.
func (c *ErrorCollection) Add(message string) string {
	c.messages = append(c.messages, message)
	return ErrorKey(len(c.messages))
}

// Addf appends a formatted message and returns its key.
func (c *ErrorCollection) Addf(format string, a ...interface{}) string {
	return c.Add(fmt.Sprintf(format, a...))
}

// Append renumbers and appends every entry of other after the entries of c.
func (c *ErrorCollection) Append(other *ErrorCollection) {
	if other == nil {
		return
	}
	c.messages = append(c.messages, other.messages...)
}

// Len returns the number of entries. A nil collection is empty.
func (c *ErrorCollection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.messages)
}

// HasErrors reports whether the collection holds at least one entry.
func (c *ErrorCollection) HasErrors() bool {
	return c.Len() > 0
}

// Keys returns the keys in order.
func (c *ErrorCollection) Keys() []string {
	keys := make([]string, c.Len())
	for i := range keys {
		keys[i] = ErrorKey(i + 1)
	}
	return keys
}

// Messages returns a copy of the messages in order.
func (c *ErrorCollection) Messages() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.messages))
	copy(out, c.messages)
	return out
}

// Get returns the message stored under key.
func (c *ErrorCollection) Get(key string) (string, bool) {
	for i := 0; i < c.Len(); i++ {
		if ErrorKey(i+1) == key {
			return c.messages[i], true
		}
	}
	return "", false
}

// Map returns the collection as a plain map.
func (c *ErrorCollection) Map() map[string]string {
	out := make(map[string]string, c.Len())
	for i := 0; i < c.Len(); i++ {
		out[ErrorKey(i+1)] = c.messages[i]
	}
	return out
}

// OrNil returns c when it holds entries and nil otherwise, matching the
// "error: null" convention of result envelopes.
func (c *ErrorCollection) OrNil() *ErrorCollection {
	if c.HasErrors() {
		return c
	}
	return nil
}

// MarshalJSON encodes the collection as an object whose keys keep their order.
func (c *ErrorCollection) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, msg := range c.messages {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(ErrorKey(i + 1))
		val, err := json.Marshal(msg)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keyed error01..errorNN. Gaps are rejected.
func (c *ErrorCollection) UnmarshalJSON(data []byte) error {
	c.messages = nil
	if string(bytes.TrimSpace(data)) == "null" {
		return nil
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return exception.NewFerryError(exception.ParseError, "model", "error collection is not a string map", err)
	}
	messages := make([]string, len(raw))
	for i := range messages {
		msg, ok := raw[ErrorKey(i+1)]
		if !ok {
			return exception.NewFerryErrorf(exception.ParseError, "model", "error collection keys are not sequential: missing %s", ErrorKey(i+1))
		}
		messages[i] = msg
	}
	c.messages = messages
	return nil
}
