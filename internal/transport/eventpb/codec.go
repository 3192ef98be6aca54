package eventpb

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is registered with grpc's encoding package so grpcapi's
// service client can request it via grpc.CallContentSubtype, and the
// server picks it from the request's content subtype, instead of gRPC's
// default proto codec. Frames in
// this package are plain structs, not generated protobuf messages, so
// the default codec cannot carry them.
const CodecName = "eventjson"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecName }

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("eventpb: marshal %T: %w", v, err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("eventpb: unmarshal %T: %w", v, err)
	}
	return nil
}
