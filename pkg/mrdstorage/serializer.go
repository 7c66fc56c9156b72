package mrdstorage

import (
	"bytes"
	"encoding/gob"
	"encoding/json"

	"github.com/goccy/go-yaml"
)

// Serializer converts values to and from the byte payloads stored on the
// server. Implementations must round-trip byte-exact: Unmarshal(Marshal(v))
// yields a value equal to v.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONSerializer stores values as JSON documents. It is the default.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (JSONSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// GobSerializer stores values in Go's binary gob encoding. Useful when
// payloads are only ever read back by Go programs.
type GobSerializer struct{}

func (GobSerializer) Marshal(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := gob.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobSerializer) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// YAMLSerializer stores values as YAML documents.
type YAMLSerializer struct{}

func (YAMLSerializer) Marshal(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

func (YAMLSerializer) Unmarshal(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}
