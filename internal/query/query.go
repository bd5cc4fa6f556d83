// Package query implements a simple, explicitly non-SQL document filter
// over Database.ProcessChangesSince, the "simple query filter" SPEC_FULL.md
// §3 adds on top of the modification-order index the original spec already
// requires. Secondary indexing and SQL query planning remain Non-goals; this
// is struct-based filter composition, nothing more.
//
// Grounded on pkg/engine/query.go's QueryBuilder/ListFilter shape: a plain
// struct of optional criteria (DocType, Tag, Since, Until, Deleted, Limit,
// Offset) applied by scanning and testing each candidate, rather than a
// query language or planner.
package query

import (
	"sort"
	"strings"

	"github.com/amaydixit11/mindoodb/internal/database"
	"github.com/amaydixit11/mindoodb/internal/mdcore"
)

// Filter specifies criteria for selecting documents out of a Database's
// modification-order stream. A zero Filter matches everything.
type Filter struct {
	// DocType, when set, matches docs whose decoded fields carry a "type",
	// "docType" or "form" key equal to this value (case-sensitive). The
	// directory's own "_type" discriminator is not one of these keys.
	DocType string

	// Tag, when set, matches docs whose decoded "tags" field (expected
	// []any of strings, mirroring the teacher's []string Tags) contains
	// this value.
	Tag string

	// Since/Until bound LastModified, both inclusive (unlike the
	// EntryStore's half-open scan semantics — this is a convenience filter
	// over already-materialized documents, not a storage-layer cursor).
	Since int64
	Until int64 // 0 means unbounded

	// Deleted, when true, restricts to tombstoned documents; when false
	// (the zero value) tombstones are excluded. There is deliberately no
	// "include both" option — a caller wanting everything should use
	// ProcessChangesSince directly.
	Deleted bool

	Limit  int
	Offset int
}

// Result is one matched document paired with its decoded field view, since
// List already has to decode fields to filter by DocType/Tag and it would be
// wasteful to make the caller redo that work.
type Result struct {
	Doc    mdcore.MindooDoc
	Fields map[string]any
}

// List scans db's entire modification order and returns every document
// matching f, most-recently-modified last (ProcessChangesSince's own order),
// after Offset/Limit are applied. It is a convenience composition over the
// public contract, not a new storage primitive: large databases should
// prefer ProcessChangesSince/iterateChangesSince directly with their own
// early-stop logic.
func List(db *database.Database, f Filter) ([]Result, error) {
	var matched []Result

	var cursor *mdcore.Cursor
	for {
		docs, next, hasMore := db.ProcessChangesSince(cursor, 1000)
		for _, d := range docs {
			if d.IsDeleted != f.Deleted {
				continue
			}
			if f.Since != 0 && d.LastModified < f.Since {
				continue
			}
			if f.Until != 0 && d.LastModified > f.Until {
				continue
			}

			var fields map[string]any
			if f.DocType != "" || f.Tag != "" {
				ff, err := db.GetDocumentFields(d.DocID)
				if err != nil {
					continue
				}
				fields = ff
				if f.DocType != "" && !matchesDocType(fields, f.DocType) {
					continue
				}
				if f.Tag != "" && !matchesTag(fields, f.Tag) {
					continue
				}
			}
			matched = append(matched, Result{Doc: d, Fields: fields})
		}
		if !hasMore || next == nil {
			break
		}
		cursor = next
	}

	sort.Slice(matched, func(i, j int) bool {
		ci := mdcore.Cursor{LastModified: matched[i].Doc.LastModified, DocID: matched[i].Doc.DocID}
		cj := mdcore.Cursor{LastModified: matched[j].Doc.LastModified, DocID: matched[j].Doc.DocID}
		return ci.Less(cj)
	})

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func matchesDocType(fields map[string]any, want string) bool {
	for _, key := range []string{"type", "docType", "form"} {
		if v, ok := fields[key]; ok {
			if s, ok := v.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func matchesTag(fields map[string]any, want string) bool {
	raw, ok := fields["tags"]
	if !ok {
		return false
	}
	list, ok := raw.([]any)
	if !ok {
		return false
	}
	for _, v := range list {
		if s, ok := v.(string); ok && strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}
