package serializer

import (
	"github.com/StefanHein/binKV/rpc/common"
	"reflect"
	"testing"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Get request
		{
			MsgType:   common.MsgTBinGet,
			Namespace: "test-ns",
			Set:       "test-set",
			Key:       "test-key",
			Bins:      []string{"alpha", "beta"},
		},

		// Put request with the preserve sentinel
		{
			MsgType:   common.MsgTBinPut,
			Namespace: "test-ns",
			Set:       "test-set",
			Key:       "test-key",
			Bin:       "alpha",
			Value:     []byte("test-value"),
			TTLSec:    -1,
		},

		// Batch put request
		{
			MsgType:   common.MsgTBinPuts,
			Namespace: "test-ns",
			Key:       "test-key",
			Ops: []common.BinOp{
				{Bin: "alpha", Value: []byte("a"), TTLSec: 60},
				{Bin: "beta", Value: []byte("b"), TTLSec: 0},
			},
		},

		// Touch request (values unused)
		{
			MsgType:   common.MsgTBinTouch,
			Namespace: "test-ns",
			Set:       "test-set",
			Key:       "test-key",
			Ops: []common.BinOp{
				{Bin: "alpha", TTLSec: 30},
			},
		},

		// TTL response
		{
			MsgType: common.MsgTBinTTL,
			TTLSec:  42,
			Ok:      true,
		},

		// Sweep request / response pair fields
		{
			MsgType:   common.MsgTSweep,
			Namespace: "test-ns",
			Set:       "test-set",
			Bins:      []string{"alpha"},
			ScanID:    7,
		},

		// Sweep await request
		{
			MsgType:    common.MsgTSweepAwait,
			ScanID:     7,
			TimeoutSec: 5,
		},

		// Error response
		{
			MsgType: common.MsgTError,
			Err:     "test error message",
		},

		// Info response
		{
			MsgType: common.MsgTInfo,
			Meta:    []byte(`{"records":12}`),
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
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
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
			for msgType := common.MsgTSuccess; msgType <= common.MsgTInfo; msgType++ {
				msg := common.Message{MsgType: msgType}

				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Check type
				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
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
			name: "Message with empty strings and zero values",
			msg: common.Message{
				MsgType: common.MsgTBinPut,
				Key:     "",
				TTLSec:  0,
				Value:   []byte{},
				Ok:      false,
				Err:     "",
				Meta:    []byte{},
			},
		},
		{
			name: "Message with empty strings but Ok=true",
			msg: common.Message{
				MsgType: common.MsgTBinTTL,
				Key:     "",
				Ok:      true,
				Value:   nil,
			},
		},
		{
			name: "Negative TTL sentinel survives the round trip",
			msg: common.Message{
				MsgType: common.MsgTBinTTL,
				TTLSec:  -1,
				Ok:      true,
			},
		},
		{
			name: "Get response with nil slots for absent bins",
			msg: common.Message{
				MsgType: common.MsgTBinGet,
				Values:  [][]byte{[]byte("present"), nil, {}},
			},
		},
		{
			name: "Ops with nil and empty values",
			msg: common.Message{
				MsgType: common.MsgTBinTouch,
				Ops: []common.BinOp{
					{Bin: "alpha", Value: nil, TTLSec: -1},
					{Bin: "beta", Value: []byte{}, TTLSec: 10},
				},
			},
		},
		{
			name: "Empty bin name list",
			msg: common.Message{
				MsgType: common.MsgTBinGet,
				Bins:    []string{},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Serialize
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			// Deserialize
			var result common.Message
			err = serializer.Deserialize(data, &result)
			if err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("Message doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
					tc.msg, result)
			}

			// nil and empty byte slices must stay distinct
			if (tc.msg.Value == nil) != (result.Value == nil) {
				t.Errorf("Value nil/non-nil mismatch: expected %v, got %v", tc.msg.Value, result.Value)
			}
			if (tc.msg.Meta == nil) != (result.Meta == nil) {
				t.Errorf("Meta nil/non-nil mismatch: expected %v, got %v", tc.msg.Meta, result.Meta)
			}
			for i := range tc.msg.Values {
				if (tc.msg.Values[i] == nil) != (result.Values[i] == nil) {
					t.Errorf("Values slot %d nil/non-nil mismatch", i)
				}
			}
		})
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
			data:        []byte{1, 0}, // Message type plus half the flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for namespace",
			data:        []byte{1, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for value",
			data:        []byte{1, 0, 32, 0, 0, 0, 10}, // Claims value length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Forged bins count",
			data:        []byte{3, 0, 8, 0x05, 0xF5, 0xE1, 0x00}, // Claims 100M bin names in a 7 byte message
			expectError: true,
		},
		{
			name:        "Forged ops count",
			data:        []byte{4, 0, 128, 0xFF, 0xFF, 0xFF, 0xFF}, // Claims 4B ops with no payload
			expectError: true,
		},
		{
			name:        "Forged values count",
			data:        []byte{3, 2, 0, 0xFF, 0xFF, 0xFF, 0xFF}, // Claims 4B value slots with no payload
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
