package mdcore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// EntryIDPattern is the grammar required by §6:
// ^[A-Za-z0-9_\-]+_(d|a)_[A-Za-z0-9_\-]+$
var EntryIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+_(d|a)_[A-Za-z0-9_\-]+$`)

// NewDocID mints a fresh document id. §3 requires uuidv7 for docId.
func NewDocID() string { return uuid.Must(uuid.NewV7()).String() }

// NewAttachmentID mints a fresh attachment id (uuidv7, §3).
func NewAttachmentID() string { return uuid.Must(uuid.NewV7()).String() }

// NewChunkID mints a fresh attachment chunk id (uuidv7).
func NewChunkID() string { return uuid.Must(uuid.NewV7()).String() }

// DepsFingerprint computes SHA-256(sorted(dependencyIds))[:16 hex] as
// required by the doc_* entry id grammar (§4.3).
func DepsFingerprint(dependencyIDs []string) string {
	sorted := append([]string(nil), dependencyIDs...)
	sort.Strings(sorted)
	h := sha256.New()
	for _, id := range sorted {
		h.Write([]byte(id))
		h.Write([]byte{0}) // separator so {"ab","c"} != {"a","bc"}
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:16]
}

// DocEntryID builds the id for a doc_create/doc_change/doc_snapshot/doc_delete
// entry: "<docId>_d_<depsFingerprint>_<crdtHash>".
func DocEntryID(docID string, dependencyIDs []string, crdtHash string) string {
	return fmt.Sprintf("%s_d_%s_%s", docID, DepsFingerprint(dependencyIDs), crdtHash)
}

// AttachmentChunkEntryID builds the id for an attachment_chunk entry:
// "<docId>_a_<fileUuid7>_<base62(chunkUuid7)>".
func AttachmentChunkEntryID(docID, attachmentID, chunkID string) string {
	return fmt.Sprintf("%s_a_%s_%s", docID, attachmentID, base62FromUUID(chunkID))
}

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// base62FromUUID encodes a uuid string's raw 128 bits as base62, so the
// chunk-id component of the attachment_chunk grammar stays within
// [A-Za-z0-9_\-]+ even though the alphabet itself never emits '_' or '-'.
func base62FromUUID(id string) string {
	u, err := uuid.Parse(id)
	if err != nil {
		// Fall back to a sanitized literal; callers always pass valid uuids.
		return strings.ReplaceAll(id, "-", "")
	}
	raw := u[:]

	// Treat the 16 bytes as a big base-256 number and repeatedly divide by 62.
	digits := make([]byte, 0, 22)
	num := append([]byte(nil), raw...)
	allZero := func(b []byte) bool {
		for _, v := range b {
			if v != 0 {
				return false
			}
		}
		return true
	}
	for !allZero(num) {
		var rem int
		for i := 0; i < len(num); i++ {
			cur := rem*256 + int(num[i])
			num[i] = byte(cur / 62)
			rem = cur % 62
		}
		digits = append(digits, base62Alphabet[rem])
	}
	if len(digits) == 0 {
		digits = append(digits, base62Alphabet[0])
	}
	// digits were generated least-significant-first; reverse.
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}

// HashUsername lowercases and SHA-256-hashes a username, per §4.4's
// username_hash field and §8's case-insensitivity invariant.
func HashUsername(username string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(username)))
	return hex.EncodeToString(sum[:])
}
