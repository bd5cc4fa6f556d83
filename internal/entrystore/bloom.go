package entrystore

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"math"

	"github.com/amaydixit11/mindoodb/internal/cryptocore"
)

// BloomSummary is the optional probabilistic id-set summary described in
// §6: {version:"bloom-v1", totalIds, bitCount, hashCount, salt, bitsetBase64}.
// There is no bitset/bloom-filter library anywhere in the reference pack
// (the only candidate, bits-and-blooms/bitset, is an indirect dependency of
// the libp2p transport stack this implementation drops entirely — pulling
// it back in solely for one small bitset would re-import that whole
// transitive graph), so this is a small hand-rolled bitset over a []byte.
type BloomSummary struct {
	Version      string `json:"version"`
	TotalIDs     int    `json:"totalIds"`
	BitCount     int    `json:"bitCount"`
	HashCount    int    `json:"hashCount"`
	Salt         string `json:"salt"`
	BitsetBase64 string `json:"bitsetBase64"`
}

const bloomTargetFalsePositive = 0.01

// buildBloomSummary builds a bloom-v1 summary over ids. Consumers must still
// reconcile exactly (§6) — this only prunes obviously-absent ids.
func buildBloomSummary(ids []string) BloomSummary {
	n := len(ids)
	if n == 0 {
		n = 1
	}
	bitCount := optimalBitCount(n, bloomTargetFalsePositive)
	hashCount := optimalHashCount(bitCount, n)
	if hashCount < 1 {
		hashCount = 1
	}

	salt, err := cryptocore.GenerateSalt()
	if err != nil {
		salt = make([]byte, 16)
	}

	bits := make([]byte, (bitCount+7)/8)
	for _, id := range ids {
		for _, h := range bloomHashes(salt, id, hashCount, bitCount) {
			bits[h/8] |= 1 << uint(h%8)
		}
	}

	return BloomSummary{
		Version:      "bloom-v1",
		TotalIDs:     len(ids),
		BitCount:     bitCount,
		HashCount:    hashCount,
		Salt:         base64.StdEncoding.EncodeToString(salt),
		BitsetBase64: base64.StdEncoding.EncodeToString(bits),
	}
}

// MayContain reports whether id could be a member of the summarized set.
// False means "definitely absent"; true means "maybe present".
func (b BloomSummary) MayContain(id string) bool {
	salt, err := base64.StdEncoding.DecodeString(b.Salt)
	if err != nil {
		return true // can't evaluate; be conservative
	}
	bits, err := base64.StdEncoding.DecodeString(b.BitsetBase64)
	if err != nil {
		return true
	}
	for _, h := range bloomHashes(salt, id, b.HashCount, b.BitCount) {
		byteIdx := h / 8
		if byteIdx >= len(bits) {
			return true
		}
		if bits[byteIdx]&(1<<uint(h%8)) == 0 {
			return false
		}
	}
	return true
}

// bloomHashes derives hashCount independent bit positions for id using the
// standard double-hashing construction: h_i = h1 + i*h2 (mod bitCount).
func bloomHashes(salt []byte, id string, hashCount, bitCount int) []int {
	h1 := sha256Uint64(salt, id, 1)
	h2 := sha256Uint64(salt, id, 2)
	positions := make([]int, hashCount)
	for i := 0; i < hashCount; i++ {
		combined := h1 + uint64(i)*h2
		positions[i] = int(combined % uint64(bitCount))
	}
	return positions
}

func sha256Uint64(salt []byte, id string, variant byte) uint64 {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte{variant})
	h.Write([]byte(id))
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

func optimalBitCount(n int, falsePositive float64) int {
	m := -float64(n) * math.Log(falsePositive) / (math.Ln2 * math.Ln2)
	if m < 64 {
		m = 64
	}
	return int(math.Ceil(m))
}

func optimalHashCount(bitCount, n int) int {
	k := float64(bitCount) / float64(n) * math.Ln2
	return int(math.Round(k))
}
