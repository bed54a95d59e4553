package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/kvproxy/lib/kv"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	TxnID uint32 `json:"txn_id,omitempty"` // Used for: all txn operations except begin (request), begin (response)
	Mode  uint8  `json:"mode,omitempty"`   // Used for: txn begin (request)
	Key   []byte `json:"key,omitempty"`    // Used for: get, put, delete
	Value []byte `json:"value,omitempty"`  // Used for: put (request), get (response)

	// Response only fields
	Code uint32 `json:"code,omitempty"` // Status code (google.golang.org/grpc/codes), 0 means OK
	Err  string `json:"err,omitempty"`  // Empty if no error, otherwise contains the error message
}

// Status returns the status carried by a response, nil for OK.
func (m *Message) Status() error {
	if m.Code == uint32(codes.OK) && m.Err == "" {
		return nil
	}
	code := codes.Code(m.Code)
	if code == codes.OK {
		// error message without a code
		code = codes.Unknown
	}
	return status.Error(code, m.Err)
}

// withStatus stores err (usually a status error) in the message.
func (m *Message) withStatus(err error) *Message {
	if err != nil {
		st := status.Convert(err)
		m.Code = uint32(st.Code())
		m.Err = st.Message()
	}
	return m
}

// --------------------------------------------------------------------------
// Message Factory Functions (raw)
// --------------------------------------------------------------------------

// NewRawGetRequest creates a new raw Get request
func NewRawGetRequest(key []byte) *Message {
	return &Message{
		MsgType: MsgTRawGet,
		Key:     key,
	}
}

// NewRawGetResponse creates a new raw Get response
func NewRawGetResponse(value []byte, err error) *Message {
	return (&Message{
		MsgType: MsgTRawGet,
		Value:   value,
	}).withStatus(err)
}

// NewRawPutRequest creates a new raw Put request
func NewRawPutRequest(key, value []byte) *Message {
	return &Message{
		MsgType: MsgTRawPut,
		Key:     key,
		Value:   value,
	}
}

// NewRawPutResponse creates a new raw Put response
func NewRawPutResponse(err error) *Message {
	return (&Message{MsgType: MsgTRawPut}).withStatus(err)
}

// NewRawDeleteRequest creates a new raw Delete request
func NewRawDeleteRequest(key []byte) *Message {
	return &Message{
		MsgType: MsgTRawDelete,
		Key:     key,
	}
}

// NewRawDeleteResponse creates a new raw Delete response
func NewRawDeleteResponse(err error) *Message {
	return (&Message{MsgType: MsgTRawDelete}).withStatus(err)
}

// --------------------------------------------------------------------------
// Message Factory Functions (txn)
// --------------------------------------------------------------------------

// NewTxnBeginRequest creates a new Begin request
func NewTxnBeginRequest(mode kv.Mode) *Message {
	return &Message{
		MsgType: MsgTTxnBegin,
		Mode:    uint8(mode),
	}
}

// NewTxnBeginResponse creates a new Begin response
func NewTxnBeginResponse(txnID uint32, err error) *Message {
	return (&Message{
		MsgType: MsgTTxnBegin,
		TxnID:   txnID,
	}).withStatus(err)
}

// NewTxnGetRequest creates a new transactional Get request
func NewTxnGetRequest(txnID uint32, key []byte) *Message {
	return &Message{
		MsgType: MsgTTxnGet,
		TxnID:   txnID,
		Key:     key,
	}
}

// NewTxnGetResponse creates a new transactional Get response
func NewTxnGetResponse(value []byte, err error) *Message {
	return (&Message{
		MsgType: MsgTTxnGet,
		Value:   value,
	}).withStatus(err)
}

// NewTxnPutRequest creates a new transactional Put request
func NewTxnPutRequest(txnID uint32, key, value []byte) *Message {
	return &Message{
		MsgType: MsgTTxnPut,
		TxnID:   txnID,
		Key:     key,
		Value:   value,
	}
}

// NewTxnPutResponse creates a new transactional Put response
func NewTxnPutResponse(err error) *Message {
	return (&Message{MsgType: MsgTTxnPut}).withStatus(err)
}

// NewTxnDeleteRequest creates a new transactional Delete request
func NewTxnDeleteRequest(txnID uint32, key []byte) *Message {
	return &Message{
		MsgType: MsgTTxnDelete,
		TxnID:   txnID,
		Key:     key,
	}
}

// NewTxnDeleteResponse creates a new transactional Delete response
func NewTxnDeleteResponse(err error) *Message {
	return (&Message{MsgType: MsgTTxnDelete}).withStatus(err)
}

// NewTxnCommitRequest creates a new Commit request
func NewTxnCommitRequest(txnID uint32) *Message {
	return &Message{
		MsgType: MsgTTxnCommit,
		TxnID:   txnID,
	}
}

// NewTxnCommitResponse creates a new Commit response
func NewTxnCommitResponse(err error) *Message {
	return (&Message{MsgType: MsgTTxnCommit}).withStatus(err)
}

// NewTxnRollbackRequest creates a new Rollback request
func NewTxnRollbackRequest(txnID uint32) *Message {
	return &Message{
		MsgType: MsgTTxnRollback,
		TxnID:   txnID,
	}
}

// NewTxnRollbackResponse creates a new Rollback response
func NewTxnRollbackResponse(err error) *Message {
	return (&Message{MsgType: MsgTTxnRollback}).withStatus(err)
}

// NewErrorResponse creates a new Error response, used when the request could
// not be decoded or dispatched
func NewErrorResponse(err error) *Message {
	return (&Message{MsgType: MsgTError}).withStatus(err)
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:     "success",
	MsgTError:       "error",
	MsgTRawGet:      "raw.get",
	MsgTRawPut:      "raw.put",
	MsgTRawDelete:   "raw.delete",
	MsgTTxnBegin:    "txn.begin",
	MsgTTxnGet:      "txn.get",
	MsgTTxnPut:      "txn.put",
	MsgTTxnDelete:   "txn.delete",
	MsgTTxnCommit:   "txn.commit",
	MsgTTxnRollback: "txn.rollback",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsRaw reports whether t is served by raw shards.
func (t MessageType) IsRaw() bool {
	return t >= MsgTRawGet && t <= MsgTRawDelete
}

// IsTxn reports whether t is served by txn shards.
func (t MessageType) IsTxn() bool {
	return t >= MsgTTxnBegin && t <= MsgTTxnRollback
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	for msgType, name := range messageTypeNames {
		if name == s {
			*t = msgType
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates the request could not be processed

	// Raw operations

	MsgTRawGet    // Read a single key
	MsgTRawPut    // Write a single key
	MsgTRawDelete // Delete a single key

	// Transactional operations

	MsgTTxnBegin    // Start a session
	MsgTTxnGet      // Read a key within a session
	MsgTTxnPut      // Write a key within a session
	MsgTTxnDelete   // Delete a key within a session
	MsgTTxnCommit   // Commit and end a session
	MsgTTxnRollback // Roll back and end a session
)
