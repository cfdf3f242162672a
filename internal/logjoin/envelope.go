package logjoin

import (
	"encoding/binary"
	"fmt"
)

// envelopeVersion is the wire version of the serialized envelope. Bumping
// it is how a future, incompatible envelope layout would be rolled out;
// spec.md §1 treats schema evolution of the *event* record as out of
// scope, but the envelope is this system's own output contract, so it
// carries a version byte up front the way the teacher's wire formats do.
const envelopeVersion = 1

// Envelope is the serialized output record spec.md §3/§6 describes: one
// per finalized session, written under an "__sessionq-" key for the
// downstream feed writer to pick up.
type Envelope struct {
	Customer    string
	SessionID   string // == uid
	TimeMicros  uint64 // first-seen time, microseconds since epoch
	SessionData []byte // opaque, produced by the JoinTarget
}

// EncodeEnvelope serializes e as a versioned, length-prefixed message
// (spec.md §6).
func EncodeEnvelope(e Envelope) []byte {
	buf := make([]byte, 0, 1+4+len(e.Customer)+4+len(e.SessionID)+8+4+len(e.SessionData))

	buf = append(buf, envelopeVersion)
	buf = appendLenPrefixed(buf, []byte(e.Customer))
	buf = appendLenPrefixed(buf, []byte(e.SessionID))

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], e.TimeMicros)
	buf = append(buf, tsBuf[:]...)

	buf = appendLenPrefixed(buf, e.SessionData)

	return buf
}

// DecodeEnvelope is the inverse of EncodeEnvelope.
func DecodeEnvelope(buf []byte) (Envelope, error) {
	if len(buf) < 1 {
		return Envelope{}, fmt.Errorf("logjoin: empty envelope")
	}

	if buf[0] != envelopeVersion {
		return Envelope{}, fmt.Errorf("logjoin: unsupported envelope version %d", buf[0])
	}

	off := 1

	customer, off, err := readLenPrefixed(buf, off)
	if err != nil {
		return Envelope{}, fmt.Errorf("logjoin: envelope customer: %w", err)
	}

	sessionID, off, err := readLenPrefixed(buf, off)
	if err != nil {
		return Envelope{}, fmt.Errorf("logjoin: envelope session id: %w", err)
	}

	if off+8 > len(buf) {
		return Envelope{}, fmt.Errorf("logjoin: envelope truncated time field")
	}

	timeMicros := binary.BigEndian.Uint64(buf[off : off+8])
	off += 8

	sessionData, _, err := readLenPrefixed(buf, off)
	if err != nil {
		return Envelope{}, fmt.Errorf("logjoin: envelope session data: %w", err)
	}

	return Envelope{
		Customer:    string(customer),
		SessionID:   string(sessionID),
		TimeMicros:  timeMicros,
		SessionData: sessionData,
	}, nil
}

func appendLenPrefixed(buf, data []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf = append(buf, lenBuf[:]...)

	return append(buf, data...)
}

func readLenPrefixed(buf []byte, off int) ([]byte, int, error) {
	if off+4 > len(buf) {
		return nil, 0, fmt.Errorf("truncated length prefix at offset %d", off)
	}

	n := int(binary.BigEndian.Uint32(buf[off : off+4]))
	off += 4

	if n < 0 || off+n > len(buf) {
		return nil, 0, fmt.Errorf("truncated field at offset %d, want %d bytes", off, n)
	}

	return buf[off : off+n], off + n, nil
}
