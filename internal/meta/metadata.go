// Package meta holds the free-form key/value attributes attached to daybook entries
// (trip ids, vehicle numbers, GST references and the like).
package meta

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/tinoosan/daybook/internal/errs"
)

// Metadata is a small string map with validation and stable JSON encoding.
type Metadata map[string]string

const (
	MaxPairs     = 20
	MaxKeyLen    = 64
	MaxValLen    = 256
	MaxTotalJSON = 4096
)

func New(m map[string]string) Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m Metadata) Clone() Metadata { return New(m) }

func (m Metadata) Get(k string) (string, bool) {
	v, ok := m[k]
	return v, ok
}

// Set stores k=v, refusing pairs that would break the limits.
func (m Metadata) Set(k, v string) error {
	if _, exists := m[k]; !exists && len(m) >= MaxPairs {
		return errs.Invalid("metadata", "too many pairs")
	}
	if err := checkPair(k, v); err != nil {
		return err
	}
	m[k] = v
	return nil
}

func (m Metadata) Del(k string) { delete(m, k) }

// Keys returns the keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge copies other into m in key order, stopping at the first rejected pair.
func (m Metadata) Merge(other Metadata) error {
	for _, k := range other.Keys() {
		if err := m.Set(k, other[k]); err != nil {
			return err
		}
	}
	return nil
}

func (m Metadata) Validate() error {
	if len(m) > MaxPairs {
		return errs.Invalid("metadata", "too many pairs")
	}
	for k, v := range m {
		if err := checkPair(k, v); err != nil {
			return err
		}
	}
	b, err := m.MarshalStableJSON()
	if err != nil {
		return err
	}
	if len(b) > MaxTotalJSON {
		return errs.Invalid("metadata", "exceeds max json size")
	}
	return nil
}

func checkPair(k, v string) error {
	if len(k) == 0 || len(k) > MaxKeyLen {
		return errs.Invalid("metadata", "key too long or empty")
	}
	if len(v) > MaxValLen {
		return errs.Invalid("metadata", "value too long")
	}
	return nil
}

// MarshalStableJSON returns a deterministic JSON representation with keys sorted.
func (m Metadata) MarshalStableJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m Metadata) MarshalJSON() ([]byte, error) { return m.MarshalStableJSON() }

func (m *Metadata) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*m = Metadata{}
		return nil
	}
	var tmp map[string]string
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*m = New(tmp)
	return nil
}

// Parse decodes a stored JSON column; empty input yields an empty map.
func Parse(b []byte) (Metadata, error) {
	var m Metadata
	if err := m.UnmarshalJSON(b); err != nil {
		return nil, err
	}
	return m, nil
}
