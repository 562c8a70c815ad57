// Package graph describes signal programs as immutable expression trees.
//
// A program is built on the control goroutine from plain constructors and
// handed to a Signal Runtime as a Stereo pair of roots. Nodes never change
// after construction; rebuilding a program means building new nodes. The
// runtime decides which stateful processes survive a rebuild by node
// identity: the explicit Key when one is set, the structural hash otherwise.
package graph

import "strings"

// Kind names a runtime primitive.
type Kind string

const (
	KindConst      Kind = "const"
	KindSampleRate Kind = "sr"
	KindAdd        Kind = "add"
	KindMul        Kind = "mul"
	KindSub        Kind = "sub"
	KindDiv        Kind = "div"
	KindMin        Kind = "min"
	KindMax        Kind = "max"
	KindMod        Kind = "mod"
	KindLt         Kind = "lt"
	KindGe         Kind = "ge"
	KindSin        Kind = "sin"
	KindCos        Kind = "cos"
	KindTau2Pole   Kind = "tau2pole"

	KindPhasor    Kind = "phasor"
	KindRand      Kind = "rand"
	KindNoise     Kind = "noise"
	KindPinkNoise Kind = "pinknoise"
	KindLatch     Kind = "latch"
	KindAccum     Kind = "accum"
	KindSmooth    Kind = "smooth"
	KindSparSeq   Kind = "sparseq"
	KindTable     Kind = "table"
	KindBandpass  Kind = "bandpass"
	KindLowpass   Kind = "lowpass"
	KindDelay     Kind = "delay"
	KindConvolve  Kind = "convolve"
	KindMeter     Kind = "meter"
	KindSnapshot  Kind = "snapshot"
	KindFFT       Kind = "fft"
)

// Stateful reports whether instances of kind carry state from one sample to
// the next, and therefore whether identity matters across submissions.
func (k Kind) Stateful() bool {
	switch k {
	case KindPhasor, KindRand, KindNoise, KindPinkNoise, KindLatch, KindAccum,
		KindSmooth, KindSparSeq, KindBandpass, KindLowpass, KindDelay,
		KindConvolve, KindMeter, KindSnapshot, KindFFT:
		return true
	}
	return false
}

// Event is one entry of a sparse sequence: at tick Tick the output becomes
// Value and holds until the next event.
type Event struct {
	Tick  int
	Value float64
}

// Node is one vertex of a signal program.
type Node struct {
	Kind Kind
	// Key is the explicit identity of a stateful node. Empty means the
	// structural hash is used instead.
	Key string
	// Value holds the constant for KindConst and the maximum delay time in
	// seconds for KindDelay.
	Value float64
	// Path is the virtual file path for KindTable and KindConvolve, and the
	// event source name for KindMeter, KindSnapshot and KindFFT.
	Path string
	// Seq holds the sorted events of a KindSparSeq node.
	Seq  []Event
	Args []*Node
}

// Stereo is a pair of channel roots.
type Stereo struct {
	L *Node
	R *Node
}

// Mono returns a stereo pair that plays n on both channels.
func Mono(n *Node) Stereo {
	return Stereo{L: n, R: n}
}

// Silence returns a stereo pair of exact zeros.
func Silence() Stereo {
	return Mono(Const(0))
}

// Key joins key parts with ':' skipping empty parts.
func Key(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ":")
}

// Walk visits n and its descendants depth first, children before parents.
// Shared subtrees are visited once.
func Walk(n *Node, fn func(*Node)) {
	seen := make(map[*Node]bool)
	var visit func(*Node)
	visit = func(x *Node) {
		if x == nil || seen[x] {
			return
		}
		seen[x] = true
		for _, a := range x.Args {
			visit(a)
		}
		fn(x)
	}
	visit(n)
}

// Paths returns the virtual file paths referenced below the stereo roots.
func (s Stereo) Paths() []string {
	seen := make(map[string]bool)
	var out []string
	collect := func(n *Node) {
		if n.Kind != KindTable && n.Kind != KindConvolve {
			return
		}
		if !seen[n.Path] {
			seen[n.Path] = true
			out = append(out, n.Path)
		}
	}
	Walk(s.L, collect)
	Walk(s.R, collect)
	return out
}
