package repository

import "encoding/json"

// Codec serializes job parameters and results.
//
// Duplicate detection compares serialized documents structurally, so a codec
// must spell the same value with the same keys every time.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec is the default codec. Field names follow the json struct tags of
// the parameter and result types.
type JSONCodec struct{}

// Marshal implements Codec.
func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal implements Codec.
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func encode[T any](c Codec, v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return c.Marshal(v)
}

func decode[T any](c Codec, data []byte) (*T, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	v := new(T)
	if err := c.Unmarshal(data, v); err != nil {
		return nil, err
	}
	return v, nil
}
