package serializer

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/ValentinKolb/kvproxy/lib/classify"
	"github.com/ValentinKolb/kvproxy/lib/kv"
	"github.com/ValentinKolb/kvproxy/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates one request and one response per operation
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Raw operations
		*common.NewRawGetRequest([]byte("test-key")),
		*common.NewRawGetResponse([]byte("test-value"), nil),
		*common.NewRawGetResponse(nil, classify.NotFound()),
		*common.NewRawPutRequest([]byte("test-key"), []byte{0x00, 0xff, 0x10}),
		*common.NewRawPutResponse(nil),
		*common.NewRawDeleteRequest([]byte("test-key")),
		*common.NewRawDeleteResponse(classify.Error("raw delete", kv.Errorf(kv.KindIO, "delete", "disk full"))),

		// Transactional operations
		*common.NewTxnBeginRequest(kv.ModePessimistic),
		*common.NewTxnBeginResponse(4711, nil),
		*common.NewTxnGetRequest(4711, []byte("test-key")),
		*common.NewTxnGetResponse([]byte("test-value"), nil),
		*common.NewTxnPutRequest(4711, []byte("test-key"), []byte("test-value")),
		*common.NewTxnPutResponse(classify.UnknownSession(4711)),
		*common.NewTxnDeleteRequest(4711, []byte("test-key")),
		*common.NewTxnDeleteResponse(nil),
		*common.NewTxnCommitRequest(4711),
		*common.NewTxnCommitResponse(classify.CommitError("txn commit", kv.Errorf(kv.KindUndetermined, "commit", "timeout"))),
		*common.NewTxnRollbackRequest(4711),
		*common.NewTxnRollbackResponse(nil),

		// Error response
		*common.NewErrorResponse(classify.InvalidArgument("test error message")),

		// Message with all fields filled
		{
			MsgType: common.MsgTTxnGet,
			TxnID:   1,
			Mode:    1,
			Key:     []byte("test-key"),
			Value:   []byte("test-value"),
			Code:    10,
			Err:     "test error message",
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d (%s) doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg.MsgType, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test for MsgTUnknown since this should raise an error)
			for msgType := common.MsgTSuccess; msgType <= common.MsgTTxnRollback; msgType++ {
				msg := common.Message{MsgType: msgType}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestStatusSurvivesRoundTrip tests that the status code and message reach the client
func TestStatusSurvivesRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			data, err := serializer.Serialize(*common.NewTxnGetResponse(nil, classify.UnknownSession(3)))
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if !classify.IsProtocolViolation(result.Status()) {
				t.Errorf("Expected protocol violation, got %v", result.Status())
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Empty key and value but not nil",
			msg: common.Message{
				MsgType: common.MsgTRawPut,
				Key:     []byte{},
				Value:   []byte{},
			},
		},
		{
			name: "Nil key with value",
			msg: common.Message{
				MsgType: common.MsgTRawGet,
				Value:   []byte("v"),
			},
		},
		{
			name: "Maximum ids and codes",
			msg: common.Message{
				MsgType: common.MsgTTxnCommit,
				TxnID:   ^uint32(0),
				Mode:    255,
				Code:    ^uint32(0),
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("Mismatch after round trip:\nOriginal: %+v\nResult: %+v", tc.msg, result)
			}

			// nil and empty byte slices are kept apart
			if (tc.msg.Key == nil) != (result.Key == nil) {
				t.Errorf("Key nil/non-nil mismatch: expected %v, got %v", tc.msg.Key, result.Key)
			}
			if (tc.msg.Value == nil) != (result.Value == nil) {
				t.Errorf("Value nil/non-nil mismatch: expected %v, got %v", tc.msg.Value, result.Value)
			}
		})
	}
}

// TestBinaryDeserializeResetsFields tests that a reused message does not keep stale fields
func TestBinaryDeserializeResetsFields(t *testing.T) {
	serializer := NewBinarySerializer()

	msg := common.Message{TxnID: 9, Mode: 1, Key: []byte("old"), Value: make([]byte, 0, 64), Code: 5, Err: "old"}
	data, _ := serializer.Serialize(*common.NewRawPutRequest([]byte("k"), []byte("new")))
	if err := serializer.Deserialize(data, &msg); err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}

	if msg.TxnID != 0 || msg.Mode != 0 || msg.Code != 0 || msg.Err != "" {
		t.Errorf("Stale fields after deserialize: %+v", msg)
	}
	if !bytes.Equal(msg.Key, []byte("k")) || !bytes.Equal(msg.Value, []byte("new")) {
		t.Errorf("Unexpected key/value: %q/%q", msg.Key, msg.Value)
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1}, // Only message type, no flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Truncated TxnID",
			data:        []byte{7, hasTxnID, 0, 0}, // Claims a txn id but only 2 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for key",
			data:        []byte{3, hasKey, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims key length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for value",
			data:        []byte{3, hasValue, 0, 0, 0, 10}, // Claims value length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Truncated code",
			data:        []byte{3, hasCode, 0},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
