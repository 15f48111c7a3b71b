package rpcapi

import "encoding/json"

// jsonCodec implements grpc's encoding.Codec, standing in for the compiled
// protobuf codec that would normally ship with generated .pb.go stubs.
// Registered under content-subtype "json"; callers opt in via
// grpc.CallContentSubtype("json").
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return "json" }
