// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package qpair

import (
	"bytes"
	"encoding/binary"
)

// SubmissionEntry is an NVMe submission queue entry, 64 bytes packed
// little-endian. Flags packs fuse (bits 0:1), reserved (bits 2:5) and the
// PRP-or-SGL selector (bits 6:7) into a single byte, matching the wire
// layout rather than the teacher's per-field struct tags.
type SubmissionEntry struct {
	Opcode uint8
	Flags  uint8
	CID    uint16
	NSID   uint32
	CDW2   uint32
	CDW3   uint32
	MPTR   uint64
	PRP1   uint64
	PRP2   uint64
	CDW10  uint32
	CDW11  uint32
	CDW12  uint32
	CDW13  uint32
	CDW14  uint32
	CDW15  uint32
}

const SubmissionEntrySize = 64
const CompletionEntrySize = 16

// CompletionEntry is an NVMe completion queue entry, 16 bytes packed
// little-endian. StatusPhase packs the phase tag (bit 0) and the 15-bit
// status field (bits 1:15).
type CompletionEntry struct {
	DW0         uint32
	DW1         uint32
	SQHD        uint16
	SQID        uint16
	CID         uint16
	StatusPhase uint16
}

// Phase returns the completion's phase tag.
func (c CompletionEntry) Phase() uint32 {
	return uint32(c.StatusPhase & 1)
}

// Status returns the completion's 15-bit status field.
func (c CompletionEntry) Status() uint16 {
	return c.StatusPhase >> 1
}

func encodeSubmission(e *SubmissionEntry) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, e)
	return buf.Bytes()
}

func decodeSubmission(raw []byte) SubmissionEntry {
	var e SubmissionEntry
	binary.Read(bytes.NewReader(raw), binary.LittleEndian, &e)
	return e
}

func encodeCompletion(e *CompletionEntry) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, e)
	return buf.Bytes()
}

func decodeCompletion(raw []byte) CompletionEntry {
	var e CompletionEntry
	binary.Read(bytes.NewReader(raw), binary.LittleEndian, &e)
	return e
}
