package stream

import (
	"fmt"
	"strconv"
	"strings"
)

// Redis stream entry IDs are "<ms>-<seq>". They are packed into one int64
// offset as ms<<seqBits | seq, which keeps the ordering of the IDs.
const (
	seqBits = 20
	seqMask = 1<<seqBits - 1
)

// EncodeID converts a Redis stream entry ID to an offset.
func EncodeID(id string) (int64, error) {
	msPart, seqPart, ok := strings.Cut(id, "-")
	if !ok {
		return 0, fmt.Errorf("stream id %q: missing sequence", id)
	}
	ms, err := strconv.ParseInt(msPart, 10, 64)
	if err != nil || ms < 0 || ms > 1<<(63-seqBits)-1 {
		return 0, fmt.Errorf("stream id %q: bad milliseconds", id)
	}
	seq, err := strconv.ParseInt(seqPart, 10, 64)
	if err != nil || seq < 0 || seq > seqMask {
		return 0, fmt.Errorf("stream id %q: bad sequence", id)
	}
	return ms<<seqBits | seq, nil
}

// DecodeID converts an offset back to a Redis stream entry ID.
func DecodeID(offset int64) string {
	if offset < 0 {
		return "0-0"
	}
	return strconv.FormatInt(offset>>seqBits, 10) + "-" + strconv.FormatInt(offset&seqMask, 10)
}
