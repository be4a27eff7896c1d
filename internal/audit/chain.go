// Package audit implements the tamper-evidence chain over the fraud
// decision history. Every record's entry hash covers a canonical binary
// encoding of its fields plus the previous record's entry hash, so any
// retroactive edit breaks the chain. Verification is a batch recomputation
// over the full history, independent of the write path.
package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"math"

	"github.com/google/uuid"

	"github.com/banking/fraud-engine/internal/domain"
)

// zeroHash seeds the chain before the first entry.
var zeroHash [sha256.Size]byte

// EntryHash computes the chained hash for a decision. PrevHash must already
// be set; an empty PrevHash encodes the chain head.
func EntryHash(d *domain.FraudDecision) []byte {
	h := sha256.New()

	h.Write(d.ID[:])
	h.Write(d.TransactionID[:])
	h.Write(d.UserID[:])

	writeString(h, string(d.Decision))
	writeFloat(h, d.RiskScore)
	writeReasons(h, d.Reasons)

	// Microsecond precision survives the timestamptz round trip.
	writeUint64(h, uint64(d.DecidedAt.UnixMicro()))
	writeString(h, d.DecidedBy)

	if len(d.PrevHash) == 0 {
		h.Write(zeroHash[:])
	} else {
		h.Write(d.PrevHash)
	}

	return h.Sum(nil)
}

// VerifyChain recomputes the full chain over decisions in append order and
// returns the ids of every corrupted entry. An entry is corrupted when its
// stored prev link does not match its predecessor's stored entry hash, or
// when its recomputed hash does not match its stored entry hash.
func VerifyChain(decisions []domain.FraudDecision) []uuid.UUID {
	var corrupted []uuid.UUID
	prev := zeroHash[:]

	for i := range decisions {
		d := &decisions[i]

		storedPrev := d.PrevHash
		if len(storedPrev) == 0 {
			storedPrev = zeroHash[:]
		}

		if !bytes.Equal(storedPrev, prev) || !bytes.Equal(EntryHash(d), d.EntryHash) {
			corrupted = append(corrupted, d.ID)
		}

		// Continue against the stored hash so one bad entry does not
		// cascade over the rest of the history.
		prev = d.EntryHash
	}

	return corrupted
}

func writeString(h hash.Hash, s string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	h.Write(lenBuf[:])
	h.Write([]byte(s))
}

func writeUint64(h hash.Hash, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

func writeFloat(h hash.Hash, f float64) {
	writeUint64(h, math.Float64bits(f))
}

func writeBool(h hash.Hash, b bool) {
	if b {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
}

// writeReasons encodes the reasons block field by field in a fixed order.
func writeReasons(h hash.Hash, r domain.DecisionReasons) {
	writeUint64(h, uint64(r.Velocity.RecentCount))
	writeFloat(h, r.Velocity.Contribution)

	writeBool(h, r.Device.VPNDetected)
	writeBool(h, r.Device.VMDetected)
	writeBool(h, r.Device.NovelDevice)
	writeFloat(h, r.Device.Contribution)

	writeUint64(h, uint64(r.Network.HighRiskConnections))
	writeFloat(h, r.Network.Contribution)

	writeBool(h, r.Pattern.Matched)
	writeString(h, r.Pattern.PatternID)
	writeString(h, string(r.Pattern.Severity))
	writeFloat(h, r.Pattern.Distance)
	writeFloat(h, r.Pattern.Contribution)
}
