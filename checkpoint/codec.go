package checkpoint

import "encoding/json"

// JSONCodec is the default Codec, backed by encoding/json.
type JSONCodec struct{}

var _ Codec = JSONCodec{}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
