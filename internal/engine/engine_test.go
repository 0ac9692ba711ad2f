package engine

import (
	"testing"
	"time"

	"github.com/web3guy0/polybot/types"
)

func TestInsertAndLookupBothDirections(t *testing.T) {
	s := NewStore()
	s.Insert(types.MirrorRecord{SourceOrderID: "s1", MirrorOrderID: "m1", CreatedAt: time.Now()})

	if _, ok := s.BySource("s1"); !ok {
		t.Fatal("expected lookup by source order id")
	}
	if _, ok := s.ByMirror("m1"); !ok {
		t.Fatal("expected lookup by mirror order id")
	}
}

func TestRemoveClearsBothMappings(t *testing.T) {
	s := NewStore()
	s.Insert(types.MirrorRecord{SourceOrderID: "s1", MirrorOrderID: "m1"})
	s.Remove("s1")

	if _, ok := s.BySource("s1"); ok {
		t.Fatal("expected source mapping removed")
	}
	if _, ok := s.ByMirror("m1"); ok {
		t.Fatal("expected mirror mapping removed")
	}
}

// TestStartupExclusion is Testable Property 2: orders present at init are
// never eligible for mirroring.
func TestStartupExclusion(t *testing.T) {
	s := NewStore()
	s.InitStartupSets(nil, nil, []string{"preexisting-1"}, nil)

	if !s.IsStartupSourceTrigger("preexisting-1") {
		t.Fatal("expected preexisting-1 to be recognized as a startup trigger")
	}
	if s.IsStartupSourceTrigger("new-order") {
		t.Fatal("did not expect a freshly-appeared order to be in the startup set")
	}
}

func TestLockOrderReturnsSameMutexForSameID(t *testing.T) {
	s := NewStore()
	a := s.LockOrder("s1")
	b := s.LockOrder("s1")
	if a != b {
		t.Fatal("expected the same mutex instance for the same order id")
	}
}
