package wire

import "encoding/json"

// Encode serializes a bus payload.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode deserializes a bus payload into T.
func Decode[T any](data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}
