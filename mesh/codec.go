package mesh

import (
	"encoding/json"

	"github.com/pkg/errors"
)

const codecName = "fitmesh-json"

// jsonCodec lets the gRPC service carry Envelope values without generated
// protobuf types.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	return data, errors.WithStack(err)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return errors.WithStack(json.Unmarshal(data, v))
}

func (jsonCodec) Name() string {
	return codecName
}
