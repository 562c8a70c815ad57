package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHashIgnoresPointerSharing(t *testing.T) {
	shared := Phasor("p", Const(2))
	a := Add(shared, shared)
	b := Add(Phasor("p", Const(2)), Phasor("p", Const(2)))
	if Hash(a) != Hash(b) {
		t.Fatalf("structurally equal trees hashed differently")
	}
}

func TestHashSeesPropertyChanges(t *testing.T) {
	tests := []struct {
		name string
		a, b *Node
	}{
		{"const", Const(1), Const(2)},
		{"key", Phasor("a", Const(1)), Phasor("b", Const(1))},
		{"path", Table("/samples/a", Const(0)), Table("/samples/b", Const(0))},
		{"seq", SparSeq("s", []Event{{0, 1}}, Const(0), Const(0)), SparSeq("s", []Event{{1, 1}}, Const(0), Const(0))},
		{"arg order", Sub(Const(1), Const(2)), Sub(Const(2), Const(1))},
		{"delay size", Delay("d", 1, Const(1), Const(0), Const(0)), Delay("d", 2, Const(1), Const(0), Const(0))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Hash(tt.a) == Hash(tt.b) {
				t.Fatalf("hash did not change")
			}
		})
	}
}

func TestIdentityPrefersKey(t *testing.T) {
	h := NewHasher()
	if got := h.Identity(Phasor("grain:v0", Const(3))); got != "grain:v0" {
		t.Fatalf("identity=%q", got)
	}
	anon := h.Identity(Phasor("", Const(3)))
	if anon == "" || anon[0] != '#' {
		t.Fatalf("unkeyed identity=%q", anon)
	}
	if anon != h.Identity(Phasor("", Const(3))) {
		t.Fatalf("unkeyed identity not stable")
	}
}

func TestSparSeqSortsEventsWithoutAliasing(t *testing.T) {
	events := []Event{{Tick: 8, Value: 0}, {Tick: 0, Value: 1}, {Tick: 4, Value: 0.5}}
	n := SparSeq("s", events, Const(0), Const(0))
	want := []Event{{0, 1}, {4, 0.5}, {8, 0}}
	if diff := cmp.Diff(want, n.Seq); diff != "" {
		t.Fatalf("seq mismatch (-want +got):\n%s", diff)
	}
	if events[0].Tick != 8 {
		t.Fatalf("caller slice was reordered")
	}
}

func TestAddMulDegenerateArity(t *testing.T) {
	x := Const(3)
	if Add(x) != x || Mul(x) != x {
		t.Fatalf("single argument should pass through")
	}
	if Add().Value != 0 || Mul().Value != 1 {
		t.Fatalf("empty add/mul identities wrong")
	}
}

func TestKeyJoin(t *testing.T) {
	if got := Key("grain", "", "v3", "phase"); got != "grain:v3:phase" {
		t.Fatalf("Key=%q", got)
	}
}

func TestWalkKeysAndPaths(t *testing.T) {
	l := Mul(Table("/samples/a", Phasor("pa", Const(1))), Const(0.5))
	r := Convolve("room:r", "/ir/room", Table("/samples/a", Const(0)))
	s := Stereo{L: l, R: r}
	keys := make(map[string]Kind)
	for _, root := range []*Node{s.L, s.R} {
		Walk(root, func(n *Node) {
			if n.Key != "" {
				keys[n.Key] = n.Kind
			}
		})
	}
	if keys["pa"] != KindPhasor || keys["room:r"] != KindConvolve {
		t.Fatalf("keys=%v", keys)
	}
	if diff := cmp.Diff([]string{"/samples/a", "/ir/room"}, s.Paths()); diff != "" {
		t.Fatalf("paths (-want +got):\n%s", diff)
	}
}

func TestStatefulKinds(t *testing.T) {
	if KindAdd.Stateful() || KindConst.Stateful() || KindTable.Stateful() {
		t.Fatalf("pure kinds reported stateful")
	}
	for _, k := range []Kind{KindPhasor, KindLatch, KindSmooth, KindSparSeq, KindBandpass, KindDelay} {
		if !k.Stateful() {
			t.Fatalf("%s should be stateful", k)
		}
	}
}
