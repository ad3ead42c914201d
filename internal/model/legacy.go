package model

import (
	"bytes"
	"encoding/json"

	"github.com/dupipcom/morpheus-sub002/internal/recurrence"
)

// LegacyRecurrence keeps a legacy recurrence value verbatim so a malformed
// rule never prevents the surrounding document from decoding.
type LegacyRecurrence struct {
	Raw json.RawMessage
}

func (l *LegacyRecurrence) UnmarshalJSON(b []byte) error {
	l.Raw = append(l.Raw[:0], b...)
	return nil
}

func (l LegacyRecurrence) MarshalJSON() ([]byte, error) {
	if len(l.Raw) == 0 {
		return []byte("null"), nil
	}
	return l.Raw, nil
}

// Rule decodes the stored value. A null or empty value yields (nil, nil).
func (l *LegacyRecurrence) Rule() (*recurrence.Rule, error) {
	if l == nil || len(l.Raw) == 0 || bytes.Equal(bytes.TrimSpace(l.Raw), []byte("null")) {
		return nil, nil
	}
	var r recurrence.Rule
	if err := json.Unmarshal(l.Raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
