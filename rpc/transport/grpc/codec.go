package grpc

import (
	"fmt"
)

const (
	serviceName = "kvproxy.Proxy"
	methodName  = "Call"
	fullMethod  = "/" + serviceName + "/" + methodName

	// shardIDKey is the metadata key carrying the target shard
	shardIDKey = "shard-id"
)

// rawFrame carries an already serialized message through grpc
type rawFrame struct {
	data []byte
}

// rawCodec passes frames through unchanged, the rpc serializer owns the encoding
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	frame, ok := v.(*rawFrame)
	if !ok {
		return nil, fmt.Errorf("rawCodec: cannot marshal %T", v)
	}
	return frame.data, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	frame, ok := v.(*rawFrame)
	if !ok {
		return fmt.Errorf("rawCodec: cannot unmarshal into %T", v)
	}
	// grpc may reuse data once Unmarshal returns
	frame.data = append(frame.data[:0], data...)
	return nil
}

func (rawCodec) Name() string {
	return "kvproxy-raw"
}
