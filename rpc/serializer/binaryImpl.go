package serializer

import (
	"encoding/binary"
	"fmt"
	"github.com/StefanHein/binKV/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasNamespace  uint16 = 1 << 0
	hasSet        uint16 = 1 << 1
	hasKey        uint16 = 1 << 2
	hasBins       uint16 = 1 << 3
	hasBin        uint16 = 1 << 4
	hasValue      uint16 = 1 << 5
	hasTTLSec     uint16 = 1 << 6
	hasOps        uint16 = 1 << 7
	hasTimeoutSec uint16 = 1 << 8
	hasValues     uint16 = 1 << 9
	hasScanID     uint16 = 1 << 10
	hasOk         uint16 = 1 << 11
	hasErr        uint16 = 1 << 12
	hasMeta       uint16 = 1 << 13
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	totalSize := b.sizeBytes(msg)
	result := make([]byte, totalSize)

	// Write message type
	result[0] = byte(msg.MsgType)

	// Initialize flags
	var flags uint16 = 0

	// Set position for writing (after MsgType and flags)
	pos := 3

	// Handle Namespace
	if msg.Namespace != "" {
		flags |= hasNamespace
		pos = writeString(result, pos, msg.Namespace)
	}

	// Handle Set
	if msg.Set != "" {
		flags |= hasSet
		pos = writeString(result, pos, msg.Set)
	}

	// Handle Key
	if msg.Key != "" {
		flags |= hasKey
		pos = writeString(result, pos, msg.Key)
	}

	// Handle Bins
	if msg.Bins != nil {
		flags |= hasBins
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Bins)))
		pos += 4
		for _, name := range msg.Bins {
			pos = writeString(result, pos, name)
		}
	}

	// Handle Bin
	if msg.Bin != "" {
		flags |= hasBin
		pos = writeString(result, pos, msg.Bin)
	}

	// Handle Value
	if msg.Value != nil {
		flags |= hasValue
		pos = writeBytes(result, pos, msg.Value)
	}

	// Handle TTLSec (can be negative, encoded as two's complement)
	if msg.TTLSec != 0 {
		flags |= hasTTLSec
		binary.BigEndian.PutUint64(result[pos:pos+8], uint64(msg.TTLSec))
		pos += 8
	}

	// Handle Ops
	if msg.Ops != nil {
		flags |= hasOps
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Ops)))
		pos += 4
		for _, op := range msg.Ops {
			pos = writeString(result, pos, op.Bin)
			// Presence byte keeps nil and empty values apart
			if op.Value != nil {
				result[pos] = 1
				pos++
				pos = writeBytes(result, pos, op.Value)
			} else {
				result[pos] = 0
				pos++
			}
			binary.BigEndian.PutUint64(result[pos:pos+8], uint64(op.TTLSec))
			pos += 8
		}
	}

	// Handle TimeoutSec
	if msg.TimeoutSec != 0 {
		flags |= hasTimeoutSec
		binary.BigEndian.PutUint64(result[pos:pos+8], uint64(msg.TimeoutSec))
		pos += 8
	}

	// Handle Values (nil slots mark absent bins and must round-trip)
	if msg.Values != nil {
		flags |= hasValues
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Values)))
		pos += 4
		for _, value := range msg.Values {
			if value != nil {
				result[pos] = 1
				pos++
				pos = writeBytes(result, pos, value)
			} else {
				result[pos] = 0
				pos++
			}
		}
	}

	// Handle ScanID
	if msg.ScanID != 0 {
		flags |= hasScanID
		binary.BigEndian.PutUint64(result[pos:pos+8], msg.ScanID)
		pos += 8
	}

	// Handle Ok
	if msg.Ok {
		flags |= hasOk
		result[pos] = 1
		pos++
	}

	// Handle Err
	if msg.Err != "" {
		flags |= hasErr
		pos = writeString(result, pos, msg.Err)
	}

	// Handle Meta
	if msg.Meta != nil {
		flags |= hasMeta
		pos = writeBytes(result, pos, msg.Meta)
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(result[1:3], flags)

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 3 {
		return fmt.Errorf("data too short for message header")
	}

	// Read message type
	msg.MsgType = common.MessageType(data[0])

	// Read flags
	flags := binary.BigEndian.Uint16(data[1:3])

	// Initialize read position
	pos := 3
	var err error

	// Read Namespace if present
	if flags&hasNamespace != 0 {
		if msg.Namespace, pos, err = readString(data, pos, "namespace"); err != nil {
			return err
		}
	} else {
		msg.Namespace = ""
	}

	// Read Set if present
	if flags&hasSet != 0 {
		if msg.Set, pos, err = readString(data, pos, "set"); err != nil {
			return err
		}
	} else {
		msg.Set = ""
	}

	// Read Key if present
	if flags&hasKey != 0 {
		if msg.Key, pos, err = readString(data, pos, "key"); err != nil {
			return err
		}
	} else {
		msg.Key = ""
	}

	// Read Bins if present
	if flags&hasBins != 0 {
		var count int
		// each bin name needs at least its 4 byte length prefix
		if count, pos, err = readCount(data, pos, 4, "bins"); err != nil {
			return err
		}
		msg.Bins = make([]string, count)
		for i := range msg.Bins {
			if msg.Bins[i], pos, err = readString(data, pos, "bin name"); err != nil {
				return err
			}
		}
	} else {
		msg.Bins = nil
	}

	// Read Bin if present
	if flags&hasBin != 0 {
		if msg.Bin, pos, err = readString(data, pos, "bin"); err != nil {
			return err
		}
	} else {
		msg.Bin = ""
	}

	// Read Value if present
	if flags&hasValue != 0 {
		if msg.Value, pos, err = readBytes(data, pos, "value"); err != nil {
			return err
		}
	} else {
		msg.Value = nil
	}

	// Read TTLSec if present
	if flags&hasTTLSec != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for TTLSec")
		}
		msg.TTLSec = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
		pos += 8
	} else {
		msg.TTLSec = 0
	}

	// Read Ops if present
	if flags&hasOps != 0 {
		var count int
		// each op needs at least bin length prefix + presence byte + TTLSec
		if count, pos, err = readCount(data, pos, 13, "ops"); err != nil {
			return err
		}
		msg.Ops = make([]common.BinOp, count)
		for i := range msg.Ops {
			if msg.Ops[i].Bin, pos, err = readString(data, pos, "op bin"); err != nil {
				return err
			}
			if pos+1 > len(data) {
				return fmt.Errorf("data too short for op value presence")
			}
			present := data[pos] != 0
			pos++
			if present {
				if msg.Ops[i].Value, pos, err = readBytes(data, pos, "op value"); err != nil {
					return err
				}
			}
			if pos+8 > len(data) {
				return fmt.Errorf("data too short for op TTLSec")
			}
			msg.Ops[i].TTLSec = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
			pos += 8
		}
	} else {
		msg.Ops = nil
	}

	// Read TimeoutSec if present
	if flags&hasTimeoutSec != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for TimeoutSec")
		}
		msg.TimeoutSec = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
		pos += 8
	} else {
		msg.TimeoutSec = 0
	}

	// Read Values if present
	if flags&hasValues != 0 {
		var count int
		// each value slot needs at least its presence byte
		if count, pos, err = readCount(data, pos, 1, "values"); err != nil {
			return err
		}
		msg.Values = make([][]byte, count)
		for i := range msg.Values {
			if pos+1 > len(data) {
				return fmt.Errorf("data too short for value presence")
			}
			present := data[pos] != 0
			pos++
			if present {
				if msg.Values[i], pos, err = readBytes(data, pos, "values entry"); err != nil {
					return err
				}
			}
		}
	} else {
		msg.Values = nil
	}

	// Read ScanID if present
	if flags&hasScanID != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for ScanID")
		}
		msg.ScanID = binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
	} else {
		msg.ScanID = 0
	}

	// Read Ok if present
	if flags&hasOk != 0 {
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for Ok flag")
		}
		msg.Ok = data[pos] != 0
		pos++
	} else {
		msg.Ok = false
	}

	// Read Err if present
	if flags&hasErr != 0 {
		if msg.Err, pos, err = readString(data, pos, "error"); err != nil {
			return err
		}
	} else {
		msg.Err = ""
	}

	// Read Meta if present
	if flags&hasMeta != 0 {
		if msg.Meta, pos, err = readBytes(data, pos, "meta"); err != nil {
			return err
		}
	} else {
		msg.Meta = nil
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// writeString writes a length prefixed string and returns the new position
func writeString(dst []byte, pos int, s string) int {
	binary.BigEndian.PutUint32(dst[pos:pos+4], uint32(len(s)))
	pos += 4
	copy(dst[pos:pos+len(s)], s)
	return pos + len(s)
}

// writeBytes writes a length prefixed byte slice and returns the new position
func writeBytes(dst []byte, pos int, b []byte) int {
	binary.BigEndian.PutUint32(dst[pos:pos+4], uint32(len(b)))
	pos += 4
	copy(dst[pos:pos+len(b)], b)
	return pos + len(b)
}

// readCount reads a 4 byte element count and validates it against the bytes
// remaining, so a forged count cannot force a huge allocation. minEntrySize
// is the smallest possible wire size of one element.
func readCount(data []byte, pos int, minEntrySize int, field string) (int, int, error) {
	if pos+4 > len(data) {
		return 0, pos, fmt.Errorf("data too short for %s count", field)
	}
	count := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if count > (len(data)-pos)/minEntrySize {
		return 0, pos, fmt.Errorf("%s count %d exceeds remaining data", field, count)
	}
	return count, pos, nil
}

// readString reads a length prefixed string and returns it with the new position
func readString(data []byte, pos int, field string) (string, int, error) {
	if pos+4 > len(data) {
		return "", pos, fmt.Errorf("data too short for %s length", field)
	}
	n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if pos+n > len(data) {
		return "", pos, fmt.Errorf("data too short for %s data", field)
	}
	return string(data[pos : pos+n]), pos + n, nil
}

// readBytes reads a length prefixed byte slice and returns it with the new position.
// A zero length yields an empty (non nil) slice.
func readBytes(data []byte, pos int, field string) ([]byte, int, error) {
	if pos+4 > len(data) {
		return nil, pos, fmt.Errorf("data too short for %s length", field)
	}
	n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if pos+n > len(data) {
		return nil, pos, fmt.Errorf("data too short for %s data", field)
	}
	out := make([]byte, n)
	copy(out, data[pos:pos+n])
	return out, pos + n, nil
}

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 2 bytes for flags
	size := 3

	if msg.Namespace != "" {
		size += 4 + len(msg.Namespace)
	}
	if msg.Set != "" {
		size += 4 + len(msg.Set)
	}
	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.Bins != nil {
		size += 4
		for _, name := range msg.Bins {
			size += 4 + len(name)
		}
	}
	if msg.Bin != "" {
		size += 4 + len(msg.Bin)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.TTLSec != 0 {
		size += 8
	}
	if msg.Ops != nil {
		size += 4
		for _, op := range msg.Ops {
			size += 4 + len(op.Bin) + 1 + 8
			if op.Value != nil {
				size += 4 + len(op.Value)
			}
		}
	}
	if msg.TimeoutSec != 0 {
		size += 8
	}
	if msg.Values != nil {
		size += 4
		for _, value := range msg.Values {
			size += 1
			if value != nil {
				size += 4 + len(value)
			}
		}
	}
	if msg.ScanID != 0 {
		size += 8
	}
	if msg.Ok {
		size += 1
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}

	return size
}
