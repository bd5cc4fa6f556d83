package crdtdoc

import (
	"testing"
)

func TestChangeApplyRoundTrip(t *testing.T) {
	a := New("replica-a")

	binary, hash, err := a.Change(func(tx *Tx) error {
		tx.Set("title", "hello")
		tx.Set("count", float64(1))
		return nil
	})
	if err != nil {
		t.Fatalf("Change: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty change hash")
	}

	b := New("replica-b")
	if err := b.ApplyChange(binary); err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}

	if v, ok := b.Get("title"); !ok || v != "hello" {
		t.Fatalf("title = %v, %v, want hello, true", v, ok)
	}
	if got := a.Heads(); len(got) != 1 || got[0] != hash {
		t.Fatalf("a.Heads() = %v, want [%s]", got, hash)
	}
	if got := b.Heads(); len(got) != 1 || got[0] != hash {
		t.Fatalf("b.Heads() = %v, want [%s]", got, hash)
	}
}

func TestApplyChangeIdempotent(t *testing.T) {
	d := New("replica-a")
	binary, hash, err := d.Change(func(tx *Tx) error {
		tx.Set("field", "value")
		return nil
	})
	if err != nil {
		t.Fatalf("Change: %v", err)
	}

	if err := d.ApplyChange(binary); err != nil {
		t.Fatalf("second ApplyChange: %v", err)
	}
	if got := d.Heads(); len(got) != 1 || got[0] != hash {
		t.Fatalf("Heads after duplicate apply = %v, want [%s]", got, hash)
	}
}

func TestConcurrentWritesLWWResolvesDeterministically(t *testing.T) {
	base := New("replica-a")
	baseBinary, _, err := base.Change(func(tx *Tx) error {
		tx.Set("field", "base")
		return nil
	})
	if err != nil {
		t.Fatalf("base change: %v", err)
	}

	left := New("replica-a")
	right := New("replica-b")
	for _, d := range []*Doc{left, right} {
		if err := d.ApplyChange(baseBinary); err != nil {
			t.Fatalf("apply base: %v", err)
		}
	}

	leftBinary, _, err := left.Change(func(tx *Tx) error {
		tx.Set("field", "from-left")
		return nil
	})
	if err != nil {
		t.Fatalf("left change: %v", err)
	}
	rightBinary, _, err := right.Change(func(tx *Tx) error {
		tx.Set("field", "from-right")
		return nil
	})
	if err != nil {
		t.Fatalf("right change: %v", err)
	}

	if err := left.ApplyChange(rightBinary); err != nil {
		t.Fatalf("left apply right: %v", err)
	}
	if err := right.ApplyChange(leftBinary); err != nil {
		t.Fatalf("right apply left: %v", err)
	}

	leftVal, _ := left.Get("field")
	rightVal, _ := right.Get("field")
	if leftVal != rightVal {
		t.Fatalf("replicas diverged after merge: left=%v right=%v", leftVal, rightVal)
	}

	leftHeads := left.Heads()
	rightHeads := right.Heads()
	if len(leftHeads) != 2 || len(rightHeads) != 2 {
		t.Fatalf("expected both concurrent changes to remain heads, got left=%v right=%v", leftHeads, rightHeads)
	}
}

func TestSnapshotRestore(t *testing.T) {
	d := New("replica-a")
	if _, _, err := d.Change(func(tx *Tx) error {
		tx.Set("a", "1")
		tx.Set("b", "2")
		return nil
	}); err != nil {
		t.Fatalf("Change: %v", err)
	}
	if _, _, err := d.Change(func(tx *Tx) error {
		tx.Delete("a")
		return nil
	}); err != nil {
		t.Fatalf("Change: %v", err)
	}

	snap, err := d.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	restored := New("")
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if _, ok := restored.Get("a"); ok {
		t.Fatal("expected deleted field 'a' to stay deleted after restore")
	}
	if v, ok := restored.Get("b"); !ok || v != "2" {
		t.Fatalf("b = %v, %v, want 2, true", v, ok)
	}
	if len(restored.Heads()) != len(d.Heads()) {
		t.Fatalf("restored heads = %v, want %v", restored.Heads(), d.Heads())
	}
}

func TestHashChangeMatchesReturnedHash(t *testing.T) {
	d := New("replica-a")
	binary, hash, err := d.Change(func(tx *Tx) error {
		tx.Set("x", float64(42))
		return nil
	})
	if err != nil {
		t.Fatalf("Change: %v", err)
	}
	recomputed, err := HashChange(binary)
	if err != nil {
		t.Fatalf("HashChange: %v", err)
	}
	if recomputed != hash {
		t.Fatalf("HashChange = %s, want %s", recomputed, hash)
	}
}
