package render

import (
	"fmt"

	"github.com/casperleerink/circular-music/graph"
)

// handle is the runtime-owned state behind one node identity. It survives
// as long as every submission contains a node with the same identity and
// signature; otherwise it is released and the next appearance starts fresh.
type handle struct {
	sig   string
	state any
	gen   uint64
}

type instance struct {
	kind graph.Kind
	node *graph.Node
	args []*instance
	in   [][]float64
	out  []float64
	k    kernel
}

type program struct {
	order []*instance
	left  *instance
	right *instance
}

type blockContext struct {
	sampleRate float64
	n          int
	emit       func(Event)
}

func (p *program) run(bc *blockContext) {
	for _, inst := range p.order {
		inst.k.run(bc, inst.out, inst.in)
	}
}

var arity = map[graph.Kind]int{
	graph.KindConst: 0, graph.KindSampleRate: 0,
	graph.KindSub: 2, graph.KindDiv: 2, graph.KindMin: 2, graph.KindMax: 2,
	graph.KindMod: 2, graph.KindLt: 2, graph.KindGe: 2,
	graph.KindSin: 1, graph.KindCos: 1, graph.KindTau2Pole: 1,
	graph.KindPhasor: 1, graph.KindRand: 0, graph.KindNoise: 0, graph.KindPinkNoise: 0,
	graph.KindLatch: 2, graph.KindAccum: 2, graph.KindSmooth: 2, graph.KindSparSeq: 2,
	graph.KindTable: 1, graph.KindBandpass: 3, graph.KindLowpass: 3, graph.KindDelay: 3,
	graph.KindConvolve: 1, graph.KindMeter: 1, graph.KindSnapshot: 2, graph.KindFFT: 1,
}

// compile turns s into a runnable program, binding stateful nodes to
// handles. Must be called with o.mu held. The graph is validated before any
// handle is touched, so a rejected submission leaves the running state as
// it was.
//
// A node's identity is its key, or its structural hash when unkeyed. Within
// one submission the first node seen for an identity wins and later nodes
// with the same identity alias its output. Across submissions a handle is
// reused when identity and signature (kind plus sizing properties) match; a
// signature change replaces the handle.
func (o *Offline) compile(s graph.Stereo) (*program, error) {
	if s.L == nil || s.R == nil {
		return nil, fmt.Errorf("submitted graph has a nil channel")
	}
	if err := validate(s); err != nil {
		return nil, err
	}
	o.gen++
	h := graph.NewHasher()
	memo := make(map[string]*instance)
	paths := make(map[string]bool)
	var order []*instance

	var build func(n *graph.Node) *instance
	build = func(n *graph.Node) *instance {
		id := h.Identity(n)
		if inst, ok := memo[id]; ok {
			return inst
		}
		args := make([]*instance, 0, len(n.Args))
		for _, a := range n.Args {
			args = append(args, build(a))
		}
		// A keyed descendant may have claimed this identity.
		if inst, ok := memo[id]; ok {
			return inst
		}
		if n.Kind == graph.KindTable || n.Kind == graph.KindConvolve {
			paths[n.Path] = true
		}
		inst := &instance{
			kind: n.Kind,
			node: n,
			args: args,
			in:   make([][]float64, len(args)),
			out:  make([]float64, o.cfg.BlockSize),
			k:    o.kernelFor(id, n),
		}
		for i, a := range args {
			inst.in[i] = a.out
		}
		memo[id] = inst
		order = append(order, inst)
		return inst
	}

	left := build(s.L)
	right := build(s.R)

	for id, hd := range o.handles {
		if hd.gen != o.gen {
			delete(o.handles, id)
		}
	}
	o.lastPaths = paths
	o.logger.Debug("graph compiled", "nodes", len(order), "handles", len(o.handles))
	return &program{order: order, left: left, right: right}, nil
}

// maxDelaySeconds bounds the buffer a single delay node may allocate.
const maxDelaySeconds = 60

func validate(s graph.Stereo) error {
	var err error
	check := func(n *graph.Node) {
		if err != nil {
			return
		}
		for _, a := range n.Args {
			if a == nil {
				err = fmt.Errorf("%s node %q has a nil argument", n.Kind, n.Key)
				return
			}
		}
		if err = checkArity(n); err != nil {
			return
		}
		switch n.Kind {
		case graph.KindDelay:
			if !(n.Value > 0 && n.Value <= maxDelaySeconds) {
				err = fmt.Errorf("delay %q max time must be in (0, %d] s: %g", n.Key, maxDelaySeconds, n.Value)
			}
		case graph.KindTable, graph.KindConvolve, graph.KindMeter, graph.KindSnapshot, graph.KindFFT:
			if n.Path == "" {
				err = fmt.Errorf("%s node %q needs a path", n.Kind, n.Key)
			}
		}
	}
	graph.Walk(s.L, check)
	graph.Walk(s.R, check)
	return err
}

func checkArity(n *graph.Node) error {
	switch n.Kind {
	case graph.KindAdd, graph.KindMul:
		if len(n.Args) < 1 {
			return fmt.Errorf("%s node needs at least one argument", n.Kind)
		}
		return nil
	}
	want, ok := arity[n.Kind]
	if !ok {
		return fmt.Errorf("unknown node kind %q", n.Kind)
	}
	if len(n.Args) != want {
		return fmt.Errorf("%s node needs %d arguments, got %d", n.Kind, want, len(n.Args))
	}
	return nil
}

// bind returns the state for id, creating it when absent or when the
// signature changed.
func (o *Offline) bind(id string, sig string, fresh func() any) any {
	if hd, ok := o.handles[id]; ok {
		if hd.sig == sig {
			hd.gen = o.gen
			return hd.state
		}
		o.logger.Debug("node signature changed; resetting state",
			"id", id, "old", hd.sig, "new", sig)
	}
	st := fresh()
	o.handles[id] = &handle{sig: sig, state: st, gen: o.gen}
	return st
}

// lookup returns a virtual file, reporting a missing path once until the
// path is registered.
func (o *Offline) lookup(path string) []float32 {
	data, ok := o.vfs[path]
	if ok {
		return data
	}
	if !o.warned[path] {
		o.warned[path] = true
		o.logger.Warn("virtual file not registered; rendering silence", "path", path)
		o.emit(Event{
			Type:    EventError,
			Source:  path,
			Message: fmt.Sprintf("virtual file %q is not registered", path),
		})
	}
	return nil
}
