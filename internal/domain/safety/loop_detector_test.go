package safety

import "testing"

func TestLoopDetector_DetectsExactRepeats(t *testing.T) {
	d := NewLoopDetector(20, 3)
	var results []bool
	for i := 0; i < 4; i++ {
		detected, _ := d.Record("search", `{"query":"cats"}`)
		results = append(results, detected)
	}
	want := []bool{false, false, false, true}
	for i, got := range results {
		if got != want[i] {
			t.Fatalf("call %d: got detected=%v, want %v (full sequence %v)", i+1, got, want[i], results)
		}
	}
	if d.LoopsDetected() != 1 {
		t.Fatalf("expected 1 loop detected, got %d", d.LoopsDetected())
	}
}

func TestLoopDetector_DistinctArgsDoNotTrigger(t *testing.T) {
	d := NewLoopDetector(20, 3)
	queries := []string{"cats", "dogs", "birds", "fish"}
	for _, q := range queries {
		if detected, _ := d.Record("search", `{"query":"`+q+`"}`); detected {
			t.Fatalf("did not expect loop detection for distinct query %q", q)
		}
	}
}

func TestLoopDetector_DetectsAlternatingPair(t *testing.T) {
	d := NewLoopDetector(20, 100) // disable exact-repeat so only alternating logic fires
	calls := []struct{ tool, args string }{
		{"toolA", "1"}, {"toolB", "2"},
		{"toolA", "1"}, {"toolB", "2"},
		{"toolA", "1"}, {"toolB", "2"},
	}
	var detected bool
	var reason string
	for _, c := range calls {
		detected, reason = d.Record(c.tool, c.args)
	}
	if !detected {
		t.Fatal("expected alternating pair loop to be detected")
	}
	if reason == "" {
		t.Fatal("expected a non-empty reason")
	}
}

func TestLoopDetector_ClearResetsState(t *testing.T) {
	d := NewLoopDetector(20, 3)
	d.Record("search", "x")
	d.Record("search", "x")
	d.Clear()
	detected, _ := d.Record("search", "x")
	if detected {
		t.Fatal("expected loop state to be reset after Clear")
	}
}

func TestLoopDetector_CapacityEviction(t *testing.T) {
	d := NewLoopDetector(4, 3)
	for i := 0; i < 10; i++ {
		d.Record("noop", "distinct-"+string(rune('a'+i)))
	}
	if len(d.recent) != 4 {
		t.Fatalf("expected deque to be capped at capacity 4, got %d", len(d.recent))
	}
}
