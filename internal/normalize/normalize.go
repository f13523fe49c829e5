// Package normalize validates and repairs untrusted notification,
// conversation and message records before they enter typed store state.
//
// Every inbound batch goes through this package: initial loads, push
// deliveries and post-write reloads. Payloads are whatever the remote side
// produced (decoded JSON, database rows, typed slices); anything that is not
// a sequence is treated as an empty batch and nothing here returns an error.
package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"

	"github.com/nhle/inbox-sync/internal/model"
)

// Notifications normalizes a batch of raw notification records. Records
// missing an id, user id or type are dropped.
func Notifications(payload any) []model.Notification {
	records := Records(payload)
	out := make([]model.Notification, 0, len(records))
	for _, raw := range records {
		if n, ok := Notification(raw); ok {
			out = append(out, n)
		}
	}
	return out
}

// Notification normalizes one raw notification record. It reports false
// when the record cannot be repaired.
func Notification(raw any) (model.Notification, bool) {
	m, ok := object(raw)
	if !ok {
		return model.Notification{}, false
	}

	n := model.Notification{
		ID:        str(m, "id"),
		UserID:    str(m, "userId", "user_id"),
		Type:      str(m, "type"),
		Title:     str(m, "title"),
		Message:   str(m, "message"),
		Read:      truthy(field(m, "read")),
		CreatedAt: str(m, "createdAt", "created_at"),
	}
	if n.ID == "" || n.UserID == "" || n.Type == "" {
		return model.Notification{}, false
	}
	if n.CreatedAt == "" {
		n.CreatedAt = model.Timestamp(time.Now())
	}
	if data, ok := dataPayload(field(m, "data")); ok {
		n.Data = data
	}
	return n, true
}

// Conversations normalizes a batch of raw conversation records or
// summaries. Records without an id are dropped; a missing message list is
// replaced by an empty one.
func Conversations(payload any) []model.Conversation {
	records := Records(payload)
	out := make([]model.Conversation, 0, len(records))
	for _, raw := range records {
		if c, ok := Conversation(raw); ok {
			out = append(out, c)
		}
	}
	return out
}

// Conversation normalizes one raw conversation record.
func Conversation(raw any) (model.Conversation, bool) {
	m, ok := object(raw)
	if !ok {
		return model.Conversation{}, false
	}

	c := model.Conversation{
		ID:           str(m, "id"),
		Participants: participants(field(m, "participants")),
		UpdatedAt:    str(m, "updatedAt", "updated_at"),
		Messages:     []model.Message{},
	}
	if c.ID == "" {
		return model.Conversation{}, false
	}
	if msgs := field(m, "messages"); isSequence(msgs) {
		c.Messages = Messages(msgs)
	}
	return c, true
}

// Messages normalizes a batch of raw message records. The result is never
// nil.
func Messages(payload any) []model.Message {
	records := Records(payload)
	out := make([]model.Message, 0, len(records))
	for _, raw := range records {
		if msg, ok := Message(raw); ok {
			out = append(out, msg)
		}
	}
	return out
}

// Message normalizes one raw message record. Only non-object values are
// rejected.
func Message(raw any) (model.Message, bool) {
	m, ok := object(raw)
	if !ok {
		return model.Message{}, false
	}
	return model.Message{
		ID:         str(m, "id"),
		SenderID:   str(m, "senderId", "sender_id"),
		ReceiverID: str(m, "receiverId", "receiver_id"),
		Content:    str(m, "content"),
		Timestamp:  str(m, "timestamp"),
		Read:       truthy(field(m, "read")),
	}, true
}

// Records flattens an untrusted payload into its elements. Raw JSON
// ([]byte, json.RawMessage, string) is decoded first. Anything that is not
// a sequence yields nil.
func Records(payload any) []any {
	switch p := payload.(type) {
	case nil:
		return nil
	case []any:
		return p
	case json.RawMessage:
		return decodeRecords(p)
	case []byte:
		return decodeRecords(p)
	case string:
		return decodeRecords([]byte(p))
	}

	out, _ := sequence(payload)
	return out
}

// sequence copies the elements of any slice or array, or of a pointer to
// one, into a []any.
func sequence(v any) ([]any, bool) {
	var out []any
	if err := mapstructure.Decode(v, &out); err != nil {
		return nil, false
	}
	return out, true
}

func decodeRecords(data []byte) []any {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil
	}
	list, ok := decoded.([]any)
	if !ok {
		return nil
	}
	return list
}

// isSequence reports whether v is array-like. Raw JSON strings are not
// considered sequences at the field level.
func isSequence(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	_, ok := sequence(v)
	return ok
}

// object converts a raw record into a string-keyed map. Typed structs
// (e.g. model values passed through an in-process service) are keyed by
// their json tags.
func object(raw any) (map[string]any, bool) {
	switch r := raw.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return r, true
	case map[any]any:
		m, err := cast.ToStringMapE(r)
		return m, err == nil
	}

	var m map[string]any
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &m,
	})
	if err != nil {
		return nil, false
	}
	if err := dec.Decode(raw); err != nil {
		return nil, false
	}
	return m, m != nil
}

// field returns the first present value among keys.
func field(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// str coerces the first present value among keys to a trimmed string.
// Values that have no sensible string form (objects, lists) become "".
func str(m map[string]any, keys ...string) string {
	s, err := cast.ToStringE(field(m, keys...))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// truthy coerces v to a boolean. Booleans, numbers and boolean-like
// strings ("true", "0", "f", ...) use their parsed value; other non-empty
// strings and non-nil composite values are true.
func truthy(v any) bool {
	if v == nil {
		return false
	}
	if b, err := cast.ToBoolE(v); err == nil {
		return b
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

// dataPayload keeps an object-shaped data field and rejects everything else.
func dataPayload(v any) (map[string]any, bool) {
	switch d := v.(type) {
	case map[string]any:
		return d, true
	case map[any]any:
		m, err := cast.ToStringMapE(d)
		return m, err == nil
	}
	return nil, false
}

func participants(v any) []string {
	records := Records(v)
	if _, isString := v.(string); isString {
		records = nil
	}
	out := make([]string, 0, len(records))
	for _, r := range records {
		s, ok := r.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
