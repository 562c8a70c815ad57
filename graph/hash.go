package graph

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"strconv"
)

// Hasher computes structural hashes and caches them per node pointer, so a
// shared subtree is hashed once.
type Hasher struct {
	memo map[*Node]uint64
}

func NewHasher() *Hasher {
	return &Hasher{memo: make(map[*Node]uint64)}
}

// Hash covers kind, key, properties and the hashes of all arguments in
// order. Structurally equal trees hash equal regardless of pointer sharing.
func (h *Hasher) Hash(n *Node) uint64 {
	if n == nil {
		return 0
	}
	if v, ok := h.memo[n]; ok {
		return v
	}
	f := fnv.New64a()
	var buf [8]byte
	writeU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = f.Write(buf[:])
	}
	writeStr := func(s string) {
		writeU64(uint64(len(s)))
		_, _ = f.Write([]byte(s))
	}
	writeStr(string(n.Kind))
	writeStr(n.Key)
	writeU64(math.Float64bits(n.Value))
	writeStr(n.Path)
	writeU64(uint64(len(n.Seq)))
	for _, e := range n.Seq {
		writeU64(uint64(int64(e.Tick)))
		writeU64(math.Float64bits(e.Value))
	}
	writeU64(uint64(len(n.Args)))
	for _, a := range n.Args {
		writeU64(h.Hash(a))
	}
	v := f.Sum64()
	h.memo[n] = v
	return v
}

// Identity is the key runtimes use to match n against earlier submissions:
// the explicit key, or "#" followed by the structural hash.
func (h *Hasher) Identity(n *Node) string {
	if n.Key != "" {
		return n.Key
	}
	return "#" + strconv.FormatUint(h.Hash(n), 16)
}

// Hash is a convenience for a one-off structural hash.
func Hash(n *Node) uint64 {
	return NewHasher().Hash(n)
}

// Equal reports whether two stereo programs are structurally identical.
func Equal(a, b Stereo) bool {
	h := NewHasher()
	return h.Hash(a.L) == h.Hash(b.L) && h.Hash(a.R) == h.Hash(b.R)
}
