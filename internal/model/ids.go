package model

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/adler32"
	"math"
	"sort"
	"strings"
	"time"
)

// PoolID builds the collision-free deterministic pool id:
// tf | rfc3339(created_at) | hex(adler32(pack(tf, created_secs, top, bottom))).
// Fields are packed big-endian so the id is stable across platforms.
func PoolID(tf Timeframe, createdAt time.Time, top, bottom float64) string {
	name := tf.Name()
	buf := make([]byte, 0, len(name)+24)
	buf = append(buf, name...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(createdAt.Unix()))
	buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(top))
	buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(bottom))
	sum := adler32.Checksum(buf)
	return fmt.Sprintf("%s|%s|%08x", name, createdAt.UTC().Format(time.RFC3339), sum)
}

// HLZID derives a deterministic zone id from its member pool ids, independent
// of discovery order.
func HLZID(memberIDs []string) string {
	sorted := make([]string, len(memberIDs))
	copy(sorted, memberIDs)
	sort.Strings(sorted)
	sum := sha1.Sum([]byte(strings.Join(sorted, "|")))
	return "hlz_" + hex.EncodeToString(sum[:])[:12]
}

// CandidateID derives a candidate id from its source zone and spawn time.
func CandidateID(zoneID string, ts time.Time) string {
	return fmt.Sprintf("cand_%s_%d", zoneID, ts.Unix())
}

// SignalID derives a signal id from the emitting candidate and bar time.
func SignalID(candidateID string, ts time.Time) string {
	return fmt.Sprintf("sig_%s_%d", candidateID, ts.Unix())
}
