// Package crdtdoc is MindooDB's native per-document CRDT, satisfying the
// external-collaborator contract §9 asks of "the CRDT library": create an
// empty document, apply a binary change, emit a binary change from a local
// mutation, snapshot to bytes, restore from a snapshot, expose the current
// heads as an ordered list of opaque ids, and hash a change deterministically.
//
// Grounded on internal/crdt/lww.go's Last-Writer-Wins conflict resolution
// (highest logical timestamp wins; ties broken by a stable id) and
// internal/crdt/replica.go's Merge/Clone shape, generalized from "one LWW-Set
// of whole entries" to "one LWW-register per document field," and extended
// with a DAG frontier (Heads) so changes can carry explicit dependencyIds the
// way Automerge-style CRDTs do, rather than a single linear clock.
package crdtdoc

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// register is one field's LWW value: the value itself plus the (seq,
// replicaID) pair used to resolve concurrent writes, mirroring
// internal/crdt/lww.go's LWWElement{Entry, Timestamp} shape one level down
// (per field instead of per whole entry).
type register struct {
	Value     any    `json:"value"`
	Seq       uint64 `json:"seq"`
	ReplicaID string `json:"replicaId"`
	Deleted   bool   `json:"deleted"`
}

// FieldOp is one field mutation recorded in a Change.
type FieldOp struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Change is the unit of replication: a set of field mutations made in one
// local transaction, causally dependent on the heads that preceded it.
type Change struct {
	ReplicaID string    `json:"replicaId"`
	Seq       uint64    `json:"seq"`
	Deps      []string  `json:"deps"`
	Ops       []FieldOp `json:"ops"`
}

// Hash returns the deterministic content hash of the change, used both as
// this change's identity in the Heads DAG and as the "crdtHash" component of
// the doc_* entry id grammar (§4.3).
func (c Change) Hash() string {
	// json.Marshal on a struct with ordered fields is already deterministic
	// (struct field order is fixed, unlike map iteration order), which is
	// all a content hash over a Change needs.
	buf, _ := json.Marshal(c)
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// Doc is one document's CRDT state: LWW-register fields plus the DAG
// frontier of applied changes.
type Doc struct {
	mu sync.RWMutex

	replicaID string
	seq       uint64

	fields  map[string]register
	heads   map[string]bool   // hashes of changes not yet superseded by a later change that lists them as a dep
	applied map[string]bool   // every change hash ever applied, for idempotent re-application
	deps    map[string][]string // change hash -> its own Deps, needed to recompute heads on out-of-order apply
}

// New creates an empty document CRDT for replicaID (the signing key or user
// id that will stamp every local change made through this handle).
func New(replicaID string) *Doc {
	return &Doc{
		replicaID: replicaID,
		fields:    make(map[string]register),
		heads:     make(map[string]bool),
		applied:   make(map[string]bool),
		deps:      make(map[string][]string),
	}
}

// Tx is the mutation surface exposed to a changeDoc callback.
type Tx struct {
	ops *[]FieldOp
	doc *Doc
}

// Set stages a field write.
func (t *Tx) Set(field string, value any) {
	*t.ops = append(*t.ops, FieldOp{Field: field, Value: value})
}

// Delete stages a field removal.
func (t *Tx) Delete(field string) {
	*t.ops = append(*t.ops, FieldOp{Field: field, Deleted: true})
}

// Get reads the current (pre-transaction) value of a field.
func (t *Tx) Get(field string) (any, bool) {
	return t.doc.Get(field)
}

// Change runs mutator, recording every Set/Delete call as one Change
// causally dependent on the doc's current heads, applies it locally, and
// returns the change serialized as the "binary" change bytes the entry
// pipeline signs and encrypts, plus the change's deterministic hash.
func (d *Doc) Change(mutator func(tx *Tx) error) (binary []byte, hash string, err error) {
	d.mu.Lock()
	var ops []FieldOp
	tx := &Tx{ops: &ops, doc: d}
	d.mu.Unlock()

	if err := mutator(tx); err != nil {
		return nil, "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	change := Change{
		ReplicaID: d.replicaID,
		Seq:       d.seq,
		Deps:      sortedKeys(d.heads),
		Ops:       ops,
	}
	h := change.Hash()
	d.applyLocked(change, h)

	buf, err := json.Marshal(change)
	if err != nil {
		return nil, "", fmt.Errorf("crdtdoc: marshal change: %w", err)
	}
	return buf, h, nil
}

// ApplyChange applies a remote or replayed binary change. Idempotent: a
// change whose hash has already been applied is a no-op.
func (d *Doc) ApplyChange(binary []byte) error {
	var change Change
	if err := json.Unmarshal(binary, &change); err != nil {
		return fmt.Errorf("crdtdoc: unmarshal change: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h := change.Hash()
	d.applyLocked(change, h)
	return nil
}

// applyLocked applies change (already hashed to h) to fields and the heads
// frontier. Caller holds d.mu.
func (d *Doc) applyLocked(change Change, h string) {
	if d.applied[h] {
		return
	}
	d.applied[h] = true
	d.deps[h] = append([]string(nil), change.Deps...)

	for _, op := range change.Ops {
		existing, exists := d.fields[op.Field]
		candidate := register{
			Value:     op.Value,
			Seq:       change.Seq,
			ReplicaID: change.ReplicaID,
			Deleted:   op.Deleted,
		}
		if !exists || lwwWins(candidate, existing) {
			d.fields[op.Field] = candidate
		}
	}

	// Heads: drop every dep this change lists (superseded), then add this
	// change as a new frontier node, mirroring a DAG's topological frontier.
	for _, dep := range change.Deps {
		delete(d.heads, dep)
	}
	if change.Seq > d.seq {
		d.seq = change.Seq
	}
	d.heads[h] = true
}

// lwwWins reports whether candidate should replace existing: higher Seq
// wins; ties break on ReplicaID (internal/crdt/lww.go's same pattern, one
// level down from whole-entry to single-field).
func lwwWins(candidate, existing register) bool {
	if candidate.Seq != existing.Seq {
		return candidate.Seq > existing.Seq
	}
	return candidate.ReplicaID > existing.ReplicaID
}

// Get returns a field's current value, or (nil, false) if unset or deleted.
func (d *Doc) Get(field string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.fields[field]
	if !ok || r.Deleted {
		return nil, false
	}
	return r.Value, true
}

// All returns every live (non-deleted) field as a plain map, suitable input
// to internal/docsign.CanonicalJSON.
func (d *Doc) All() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]any, len(d.fields))
	for k, r := range d.fields {
		if !r.Deleted {
			out[k] = r.Value
		}
	}
	return out
}

// Heads returns the current DAG frontier: change hashes not superseded by
// any later applied change, sorted for determinism.
func (d *Doc) Heads() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sortedKeys(d.heads)
}

// HashChange returns the deterministic hash of a serialized binary change,
// without applying it — used by the entry-id grammar (§4.3) when the caller
// already has the change bytes from Change().
func HashChange(binary []byte) (string, error) {
	var change Change
	if err := json.Unmarshal(binary, &change); err != nil {
		return "", fmt.Errorf("crdtdoc: unmarshal change: %w", err)
	}
	return change.Hash(), nil
}

// snapshotFile is Doc's full serializable state.
type snapshotFile struct {
	ReplicaID string                `json:"replicaId"`
	Seq       uint64                `json:"seq"`
	Fields    map[string]register   `json:"fields"`
	Heads     []string              `json:"heads"`
	Applied   []string              `json:"applied"`
	Deps      map[string][]string   `json:"deps"`
}

// Snapshot serializes the complete CRDT state (fields, frontier, applied
// set) to bytes, replacing replay of the whole change history (§4.3's
// doc_snapshot entries).
func (d *Doc) Snapshot() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sf := snapshotFile{
		ReplicaID: d.replicaID,
		Seq:       d.seq,
		Fields:    d.fields,
		Heads:     sortedKeys(d.heads),
		Applied:   sortedKeys(d.applied),
		Deps:      d.deps,
	}
	return json.Marshal(sf)
}

// Restore replaces the document's state with a previously captured
// snapshot.
func (d *Doc) Restore(data []byte) error {
	var sf snapshotFile
	if err := json.Unmarshal(bytes.TrimSpace(data), &sf); err != nil {
		return fmt.Errorf("crdtdoc: unmarshal snapshot: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replicaID = sf.ReplicaID
	d.seq = sf.Seq
	d.fields = sf.Fields
	if d.fields == nil {
		d.fields = make(map[string]register)
	}
	d.heads = make(map[string]bool, len(sf.Heads))
	for _, h := range sf.Heads {
		d.heads[h] = true
	}
	d.applied = make(map[string]bool, len(sf.Applied))
	for _, h := range sf.Applied {
		d.applied[h] = true
	}
	d.deps = sf.Deps
	if d.deps == nil {
		d.deps = make(map[string][]string)
	}
	return nil
}

// HasApplied reports whether a change hash has already been applied to this
// doc, letting callers short-circuit re-delivery without paying the JSON
// unmarshal cost of ApplyChange.
func (d *Doc) HasApplied(hash string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.applied[hash]
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
