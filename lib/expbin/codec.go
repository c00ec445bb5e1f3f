package expbin

import (
	"encoding/binary"
	"sort"
)

// --------------------------------------------------------------------------
// Expiry Metadata Codec
// --------------------------------------------------------------------------

// MetaBin is the reserved bin holding the record's expiry metadata. The name
// starts with a NUL byte, which no user bin name may contain, so it can
// never collide with user data.
const MetaBin = "\x00xmeta"

// Wire format of the metadata bin (little endian):
//
//	magic(1) version(1) count(4) [ nameLen(2) name deadline(8) ]*
//
// Deadlines are absolute unix seconds, computed at write time. Storing the
// absolute timestamp rather than a relative delta avoids re-basing errors
// when the value is read back later.
const (
	metaMagic   byte = 0xEB
	metaVersion byte = 1

	metaHeaderLen = 6
)

// encodeDeadlines serializes the bin->deadline mapping. An empty mapping
// encodes to nil, which callers use to drop the reserved bin entirely.
// Entries are written in sorted name order so the encoding is deterministic.
func encodeDeadlines(deadlines map[string]uint64) []byte {
	if len(deadlines) == 0 {
		return nil
	}

	names := make([]string, 0, len(deadlines))
	size := metaHeaderLen
	for name := range deadlines {
		names = append(names, name)
		size += 2 + len(name) + 8
	}
	sort.Strings(names)

	buf := make([]byte, 0, size)
	buf = append(buf, metaMagic, metaVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(names)))
	for _, name := range names {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(name)))
		buf = append(buf, name...)
		buf = binary.LittleEndian.AppendUint64(buf, deadlines[name])
	}
	return buf
}

// decodeDeadlines parses the metadata bin. Decoding is soft-fail by
// contract: missing, truncated or otherwise malformed metadata yields an
// empty mapping (every bin is then treated as a normal bin), never an error
// that would abort the enclosing record operation.
func decodeDeadlines(raw []byte) map[string]uint64 {
	if len(raw) < metaHeaderLen || raw[0] != metaMagic || raw[1] != metaVersion {
		return map[string]uint64{}
	}

	count := binary.LittleEndian.Uint32(raw[2:6])
	deadlines := make(map[string]uint64, count)
	pos := metaHeaderLen

	for i := uint32(0); i < count; i++ {
		if pos+2 > len(raw) {
			return map[string]uint64{}
		}
		nameLen := int(binary.LittleEndian.Uint16(raw[pos : pos+2]))
		pos += 2
		if nameLen == 0 || pos+nameLen+8 > len(raw) {
			return map[string]uint64{}
		}
		name := string(raw[pos : pos+nameLen])
		pos += nameLen
		deadlines[name] = binary.LittleEndian.Uint64(raw[pos : pos+8])
		pos += 8
	}

	if pos != len(raw) {
		// trailing garbage, treat the whole value as malformed
		return map[string]uint64{}
	}
	return deadlines
}
