package entrystore

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/amaydixit11/mindoodb/internal/mdcore"
)

// metadataRecord is the on-disk metadata shape: a StoreEntry without the
// payload bytes, which live content-addressed under objects/ instead. §4.1:
// "Metadata lives in append-only JSON segments."
type metadataRecord struct {
	EntryType mdcore.EntryType `json:"entryType"`

	ID            string   `json:"id"`
	ContentHash   string   `json:"contentHash"`
	DocID         string   `json:"docId"`
	DependencyIDs []string `json:"dependencyIds"`

	CreatedAt          int64  `json:"createdAt"`
	CreatedByPublicKey string `json:"createdByPublicKey"`
	DecryptionKeyID    string `json:"decryptionKeyId"`

	Signature []byte `json:"signature"`

	OriginalSize  int64 `json:"originalSize"`
	EncryptedSize int64 `json:"encryptedSize"`
}

func recordFromEntry(e mdcore.StoreEntry) metadataRecord {
	return metadataRecord{
		EntryType:          e.EntryType,
		ID:                 e.ID,
		ContentHash:        e.ContentHash,
		DocID:              e.DocID,
		DependencyIDs:      append([]string(nil), e.DependencyIDs...),
		CreatedAt:          e.CreatedAt,
		CreatedByPublicKey: e.CreatedByPublicKey,
		DecryptionKeyID:    e.DecryptionKeyID,
		Signature:          append([]byte(nil), e.Signature...),
		OriginalSize:       e.OriginalSize,
		EncryptedSize:      e.EncryptedSize,
	}
}

// segmentFile is the JSON format of one metadata segment file: an object
// whose "records" field holds the array of records.
type segmentFile struct {
	Records []metadataRecord `json:"records"`
}

func (s *Store) segmentsDir() string { return filepath.Join(s.dir, "metadata-segments") }

// listSegmentFiles returns segment file paths sorted lexicographically by
// name, which — because filenames are zero-padded nanosecond timestamps —
// also sorts them by creation time, per §6.
func (s *Store) listSegmentFiles() ([]string, error) {
	entries, err := os.ReadDir(s.segmentsDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		files = append(files, filepath.Join(s.segmentsDir(), e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func readSegmentFile(path string) ([]metadataRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sf segmentFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("entrystore: corrupt segment %s: %w", path, err)
	}
	return sf.Records, nil
}

// writeNewSegment durably writes records as a brand new segment file (atomic
// temp-file + fsync + rename, the pattern internal/blob/store.go uses for
// content-addressed payloads) and returns its path.
func (s *Store) writeNewSegment(records []metadataRecord) (string, error) {
	if err := os.MkdirAll(s.segmentsDir(), 0700); err != nil {
		return "", fmt.Errorf("entrystore: mkdir segments: %w", err)
	}
	name := fmt.Sprintf("%020d-%s.json", time.Now().UnixNano(), randHex(4))
	path := filepath.Join(s.segmentsDir(), name)

	data, err := json.Marshal(segmentFile{Records: records})
	if err != nil {
		return "", fmt.Errorf("entrystore: marshal segment: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return "", fmt.Errorf("entrystore: open temp segment: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("entrystore: write segment: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", fmt.Errorf("entrystore: fsync segment: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("entrystore: close segment: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("entrystore: rename segment: %w", err)
	}
	return path, nil
}

func randHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// maybeCompact merges all current segment files into a single fresh one
// when files >= MetadataSegmentCompactionMinFiles OR total segment bytes >=
// MetadataSegmentCompactionMaxBytes (§4.1). minFiles <= 0 disables the
// file-count trigger. Caller holds s.mu.
func (s *Store) maybeCompact() error {
	files, err := s.listSegmentFiles()
	if err != nil {
		return err
	}
	if len(files) <= 1 {
		return nil
	}

	var totalBytes int64
	for _, f := range files {
		if fi, err := os.Stat(f); err == nil {
			totalBytes += fi.Size()
		}
	}

	triggerByCount := s.cfg.MetadataSegmentCompactionMinFiles > 0 && len(files) >= s.cfg.MetadataSegmentCompactionMinFiles
	triggerByBytes := s.cfg.MetadataSegmentCompactionMaxBytes > 0 && totalBytes >= s.cfg.MetadataSegmentCompactionMaxBytes
	if !triggerByCount && !triggerByBytes {
		return nil
	}

	start := time.Now()

	// Re-read all surviving (non-purged) records from the in-memory index,
	// which already reflects purges/dedup, rather than re-reading disk.
	records := make([]metadataRecord, 0, len(s.byID))
	for _, e := range s.byID {
		records = append(records, recordFromEntry(e))
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt < records[j].CreatedAt
		}
		return records[i].ID < records[j].ID
	})

	newPath, err := s.writeNewSegment(records)
	if err != nil {
		return fmt.Errorf("entrystore: compaction write: %w", err)
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("entrystore: compaction cleanup: %w", err)
		}
	}
	_ = newPath

	s.compactionStats.TotalCompactions++
	s.compactionStats.LastCompactedBytes = totalBytes
	s.compactionStats.LastCompactionAt = time.Now().UnixMilli()
	s.compactionStats.LastDurationMs = time.Since(start).Milliseconds()
	return nil
}
