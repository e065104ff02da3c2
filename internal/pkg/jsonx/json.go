// Package jsonx routes JSON encoding through json-iterator.
package jsonx

import (
	"io"

	jsoniter "github.com/json-iterator/go"
)

var jsonx = jsoniter.ConfigCompatibleWithStandardLibrary

func Marshal(v interface{}) ([]byte, error) {
	return jsonx.Marshal(v)
}

func Unmarshal(data []byte, v interface{}) error {
	return jsonx.Unmarshal(data, v)
}

func NewDecoder(r io.Reader) *jsoniter.Decoder {
	return jsonx.NewDecoder(r)
}

func NewEncoder(w io.Writer) *jsoniter.Encoder {
	return jsonx.NewEncoder(w)
}

// Get walks data along path without decoding the whole document.
// A missing or mistyped node yields an Any whose ValueType is InvalidValue.
func Get(data []byte, path ...interface{}) jsoniter.Any {
	return jsonx.Get(data, path...)
}
