package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/kvproxy/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: 1 byte MsgType, 1 byte flags, followed by the fields flagged as
// present in this order: TxnID (4 bytes), Mode (1 byte), Key (4 bytes length +
// data), Value (4 bytes length + data), Code (4 bytes), Err (4 bytes length +
// data). All integers are big endian.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasTxnID byte = 1 << 0
	hasMode  byte = 1 << 1
	hasKey   byte = 1 << 2
	hasValue byte = 1 << 3
	hasCode  byte = 1 << 4
	hasErr   byte = 1 << 5
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	result := make([]byte, b.sizeBytes(msg))

	// Write message type
	result[0] = byte(msg.MsgType)

	var flags byte = 0
	pos := 2 // Start after MsgType and flags

	if msg.TxnID != 0 {
		flags |= hasTxnID
		binary.BigEndian.PutUint32(result[pos:pos+4], msg.TxnID)
		pos += 4
	}

	if msg.Mode != 0 {
		flags |= hasMode
		result[pos] = msg.Mode
		pos += 1
	}

	// nil and empty keys are kept apart, an empty key must reach the server
	if msg.Key != nil {
		flags |= hasKey
		pos = putBytes(result, pos, msg.Key)
	}

	if msg.Value != nil {
		flags |= hasValue
		pos = putBytes(result, pos, msg.Value)
	}

	if msg.Code != 0 {
		flags |= hasCode
		binary.BigEndian.PutUint32(result[pos:pos+4], msg.Code)
		pos += 4
	}

	if msg.Err != "" {
		flags |= hasErr
		pos = putBytes(result, pos, []byte(msg.Err))
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags

	return result[:pos], nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	msg.MsgType = common.MessageType(data[0])
	flags := data[1]
	pos := 2

	msg.TxnID = 0
	if flags&hasTxnID != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for TxnID")
		}
		msg.TxnID = binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
	}

	msg.Mode = 0
	if flags&hasMode != 0 {
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for Mode")
		}
		msg.Mode = data[pos]
		pos += 1
	}

	var err error
	msg.Key = nil
	if flags&hasKey != 0 {
		if msg.Key, pos, err = readBytes(data, pos, nil, "key"); err != nil {
			return err
		}
	}

	if flags&hasValue != 0 {
		// reuse the value buffer of msg if it is large enough
		if msg.Value, pos, err = readBytes(data, pos, msg.Value, "value"); err != nil {
			return err
		}
	} else {
		msg.Value = nil
	}

	msg.Code = 0
	if flags&hasCode != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for Code")
		}
		msg.Code = binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
	}

	msg.Err = ""
	if flags&hasErr != 0 {
		var errBytes []byte
		if errBytes, _, err = readBytes(data, pos, nil, "error"); err != nil {
			return err
		}
		msg.Err = string(errBytes)
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	if msg.TxnID != 0 {
		size += 4 // uint32
	}
	if msg.Mode != 0 {
		size += 1
	}
	if msg.Key != nil {
		size += 4 + len(msg.Key) // 4 bytes for length + key bytes
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value) // 4 bytes for length + value bytes
	}
	if msg.Code != 0 {
		size += 4 // uint32
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err) // 4 bytes for length + error string
	}

	return size
}

// putBytes writes a length prefixed byte slice at pos and returns the new position
func putBytes(dst []byte, pos int, src []byte) int {
	binary.BigEndian.PutUint32(dst[pos:pos+4], uint32(len(src)))
	pos += 4
	copy(dst[pos:pos+len(src)], src)
	return pos + len(src)
}

// readBytes reads a length prefixed byte slice at pos into buf (allocating if
// buf is too small) and returns it with the new position. A zero length field
// yields an empty, non-nil slice.
func readBytes(data []byte, pos int, buf []byte, field string) ([]byte, int, error) {
	if pos+4 > len(data) {
		return nil, pos, fmt.Errorf("data too short for %s length", field)
	}
	n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4

	if n < 0 || pos+n > len(data) {
		return nil, pos, fmt.Errorf("data too short for %s data", field)
	}

	if buf == nil || cap(buf) < n {
		buf = make([]byte, n)
	} else {
		buf = buf[:n]
	}
	copy(buf, data[pos:pos+n])
	return buf, pos + n, nil
}
