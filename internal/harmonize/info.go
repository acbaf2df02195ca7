package harmonize

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Field is one hm_info entry.
type Field struct {
	Key   string
	Value any
}

// Info is the hm_info audit trail. Keys keep their insertion order.
type Info []Field

// Set adds key or replaces its value in place.
func (in *Info) Set(key string, value any) {
	for i := range *in {
		if (*in)[i].Key == key {
			(*in)[i].Value = value
			return
		}
	}
	*in = append(*in, Field{Key: key, Value: value})
}

// Get returns the value stored under key.
func (in Info) Get(key string) (any, bool) {
	for _, f := range in {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in order.
func (in Info) Keys() []string {
	keys := make([]string, len(in))
	for i, f := range in {
		keys[i] = f.Key
	}
	return keys
}

// MarshalJSON implements json.Marshaler, keeping key order. The layout
// matches the PGS Catalog files, e.g. {"hm_source": "ENSEMBL", "hm_pos": 1234}.
func (in Info) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, f := range in {
		if i > 0 {
			sb.WriteString(", ")
		}
		k, err := encodeValue(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := encodeValue(f.Value)
		if err != nil {
			return nil, err
		}
		sb.Write(k)
		sb.WriteString(": ")
		sb.Write(v)
	}
	sb.WriteByte('}')
	return []byte(sb.String()), nil
}

// encodeValue encodes a single value without HTML escaping, so symbolic
// alleles such as <DEL> stay readable.
func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
