package serializer

import "github.com/ValentinKolb/kvproxy/rpc/common"

// IRPCSerializer converts messages to and from their wire encoding.
// Implementations must be safe for concurrent use.
type IRPCSerializer interface {
	// Serialize encodes msg
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize decodes b into msg. Byte fields of msg must not alias b,
	// transports reuse their buffers.
	Deserialize(b []byte, msg *common.Message) error
}
