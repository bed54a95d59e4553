// Package serializer provides message serialization for the proxy's RPC
// system. It defines a common interface and multiple implementations for
// serializing and deserializing common.Message values between client and
// server.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - binarySerializerImpl: Custom binary format optimized for speed and space
//     efficiency. A flag byte marks which optional fields are present, only
//     those are encoded. Keys and values are raw bytes; a nil slice and an
//     empty slice are encoded differently.
//
//   - gobSerializerImpl: Implementation using Go's built-in gob encoding.
//
//   - jsonSerializerImpl: Implementation using JSON encoding, useful for debugging
//     or interoperability with other systems. Keys and values are base64 encoded,
//     so arbitrary bytes survive the round trip.
//
// Performance Characteristics:
//
//   - Binary: Fastest with the smallest payload size, recommended for production use.
//
//   - JSON: Acceptable performance with moderate payload sizes and human-readable output.
//
//   - GOB: Consistently larger payloads and slower than the other two.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	serializer := serializer.NewBinarySerializer()
//	data, err := serializer.Serialize(*common.NewRawGetRequest([]byte("key")))
//	// ... send data ...
//	var receivedMsg common.Message
//	err = serializer.Deserialize(receivedData, &receivedMsg)
package serializer
