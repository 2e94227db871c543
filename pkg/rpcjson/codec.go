// Package rpcjson registers a JSON encoding.Codec with grpc-go so the
// real gRPC transport, streaming, and service-registration machinery
// can carry plain Go structs as messages instead of protobuf wire
// format. The wire contract those messages describe is documented
// under proto/ as the canonical interface definition.
package rpcjson

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// Name is the content-subtype registered with grpc-go and selected via
// grpc.CallContentSubtype / grpc.ForceServerCodec.
const Name = "json"

type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpcjson: unmarshal: %w", err)
	}
	return nil
}

func (codec) Name() string {
	return Name
}

func init() {
	encoding.RegisterCodec(codec{})
}
