package domain

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/tidwall/gjson"
)

var jsonNull = []byte("null")

// ChangePayload is the JSON document of a row as captured by the audit log
// (old/new values) or the change log (the body pushed to the remote
// authority). The zero value means "not captured" and encodes as null.
type ChangePayload struct {
	set bool
	doc json.RawMessage
}

// NewChangePayload captures a copy of raw. A nil raw is captured but empty.
func NewChangePayload(raw json.RawMessage) ChangePayload {
	return ChangePayload{set: true, doc: slices.Clone(raw)}
}

// NewChangePayloadFromValue captures the JSON encoding of value.
func NewChangePayloadFromValue[T any](value T) (ChangePayload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangePayload{}, err
	}
	return ChangePayload{set: true, doc: raw}, nil
}

// UndefinedChangePayload returns the "not captured" payload.
func UndefinedChangePayload() ChangePayload { return ChangePayload{} }

// Defined reports whether a document was captured, even an empty one.
func (p ChangePayload) Defined() bool { return p.set }

// IsEmpty reports whether there are no bytes to read.
func (p ChangePayload) IsEmpty() bool { return len(p.doc) == 0 }

// Raw returns a copy of the document, or nil when empty.
func (p ChangePayload) Raw() json.RawMessage {
	if p.IsEmpty() {
		return nil
	}
	return slices.Clone(p.doc)
}

// Get reads one value by gjson path, e.g. "remote_id" or "items.#".
func (p ChangePayload) Get(path string) gjson.Result {
	if p.IsEmpty() {
		return gjson.Result{}
	}
	return gjson.GetBytes(p.doc, path)
}

// Decode unmarshals the document into dst. An empty payload leaves dst as is.
func (p ChangePayload) Decode(dst any) error {
	if p.IsEmpty() {
		return nil
	}
	return json.Unmarshal(p.doc, dst)
}

func (p ChangePayload) MarshalJSON() ([]byte, error) {
	if p.IsEmpty() {
		return jsonNull, nil
	}
	return slices.Clone(p.doc), nil
}

func (p *ChangePayload) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		*p = ChangePayload{}
		return nil
	}
	*p = NewChangePayload(data)
	return nil
}
