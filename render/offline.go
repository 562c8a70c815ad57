package render

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/casperleerink/circular-music/graph"
)

// Config controls an Offline runtime.
type Config struct {
	SampleRate int
	// BlockSize is the number of frames rendered per program step. Control
	// changes take effect on block boundaries only.
	BlockSize int
	// Seed is mixed with each node identity to seed its random stream.
	Seed uint64
	// EventBuffer is the capacity of the event channel. Events are dropped
	// when it is full.
	EventBuffer int
	Logger      *slog.Logger
}

// DefaultConfig returns 48 kHz, 128-frame blocks.
func DefaultConfig() Config {
	return Config{
		SampleRate:  48000,
		BlockSize:   128,
		Seed:        1,
		EventBuffer: 256,
	}
}

// Offline is a reference Signal Runtime. Submit, UpdateVirtualFileSystem and
// PruneVirtualFileSystem belong to the control goroutine; Process belongs to
// the audio goroutine. The two may run concurrently.
type Offline struct {
	cfg        Config
	sampleRate float64
	logger     *slog.Logger
	events     chan Event

	// Control side, guarded by mu.
	mu        sync.Mutex
	vfs       map[string][]float32
	vfsVer    map[string]uint64
	handles   map[string]*handle
	warned    map[string]bool
	gen       uint64
	lastPaths map[string]bool

	pending atomic.Pointer[program]

	// Audio side.
	current *program
	carry   []float64
	block   []float64
	dropped atomic.Uint64
}

// New creates an Offline runtime.
func New(cfg Config) (*Offline, error) {
	def := DefaultConfig()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = def.BlockSize
	}
	if cfg.EventBuffer == 0 {
		cfg.EventBuffer = def.EventBuffer
	}
	if cfg.SampleRate < 1000 {
		return nil, fmt.Errorf("sample rate must be >= 1000: %d", cfg.SampleRate)
	}
	if cfg.BlockSize < 1 || cfg.BlockSize > 8192 {
		return nil, fmt.Errorf("block size must be in [1, 8192]: %d", cfg.BlockSize)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Offline{
		cfg:        cfg,
		sampleRate: float64(cfg.SampleRate),
		logger:     logger,
		events:     make(chan Event, cfg.EventBuffer),
		vfs:        make(map[string][]float32),
		vfsVer:     make(map[string]uint64),
		handles:    make(map[string]*handle),
		warned:     make(map[string]bool),
		block:      make([]float64, cfg.BlockSize*2),
	}, nil
}

// SampleRate returns the render rate in Hz.
func (o *Offline) SampleRate() int { return o.cfg.SampleRate }

// BlockSize returns the program step in frames.
func (o *Offline) BlockSize() int { return o.cfg.BlockSize }

// Events returns the analysis event stream.
func (o *Offline) Events() <-chan Event { return o.events }

// Dropped returns how many events were discarded because the channel was
// full.
func (o *Offline) Dropped() uint64 { return o.dropped.Load() }

// Submit compiles s against the current keyed state and schedules it for
// the next block. A later Submit before that block replaces it.
func (o *Offline) Submit(s graph.Stereo) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, err := o.compile(s)
	if err != nil {
		return err
	}
	o.pending.Store(p)
	return nil
}

// UpdateVirtualFileSystem adds or replaces virtual files. Graphs submitted
// afterwards see the new contents. Re-uploading identical contents is a
// no-op, so convolvers reading the file keep their tails.
func (o *Offline) UpdateVirtualFileSystem(files map[string][]float32) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for path, data := range files {
		if path == "" {
			return fmt.Errorf("virtual file path must not be empty")
		}
		if len(data) == 0 {
			return fmt.Errorf("virtual file %q has no samples", path)
		}
	}
	for path, data := range files {
		if old, ok := o.vfs[path]; ok && sameSamples(old, data) {
			continue
		}
		cp := make([]float32, len(data))
		copy(cp, data)
		o.vfs[path] = cp
		o.vfsVer[path]++
		delete(o.warned, path)
	}
	return nil
}

func sameSamples(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			return false
		}
	}
	return true
}

// PruneVirtualFileSystem drops virtual files that neither the last
// submitted graph references nor keep lists, and returns their paths,
// sorted.
func (o *Offline) PruneVirtualFileSystem(keep map[string]bool) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var removed []string
	for path := range o.vfs {
		if !o.lastPaths[path] && !keep[path] {
			delete(o.vfs, path)
			delete(o.vfsVer, path)
			removed = append(removed, path)
		}
	}
	sort.Strings(removed)
	return removed
}

// HasVirtualFile reports whether path is registered.
func (o *Offline) HasVirtualFile(path string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.vfs[path]
	return ok
}

// Process renders numFrames stereo frames, interleaved.
func (o *Offline) Process(numFrames int) []float32 {
	out := make([]float32, numFrames*2)
	tmp := o.pull(numFrames)
	for i, v := range tmp {
		out[i] = float32(v)
	}
	return out
}

// ProcessStereo renders numFrames frames as separate channels.
func (o *Offline) ProcessStereo(numFrames int) ([]float64, []float64) {
	inter := o.pull(numFrames)
	left := make([]float64, numFrames)
	right := make([]float64, numFrames)
	for i := 0; i < numFrames; i++ {
		left[i] = inter[i*2]
		right[i] = inter[i*2+1]
	}
	return left, right
}

func (o *Offline) pull(numFrames int) []float64 {
	if numFrames <= 0 {
		return nil
	}
	out := make([]float64, numFrames*2)
	written := 0
	for written < len(out) {
		if len(o.carry) == 0 {
			o.renderBlock()
		}
		n := copy(out[written:], o.carry)
		o.carry = o.carry[n:]
		written += n
	}
	return out
}

func (o *Offline) renderBlock() {
	if p := o.pending.Swap(nil); p != nil {
		o.current = p
	}
	n := o.cfg.BlockSize
	if o.current == nil {
		for i := range o.block {
			o.block[i] = 0
		}
		o.carry = o.block
		return
	}
	bc := &blockContext{sampleRate: o.sampleRate, n: n, emit: o.emit}
	o.current.run(bc)
	l, r := o.current.left.out, o.current.right.out
	for i := 0; i < n; i++ {
		o.block[i*2] = l[i]
		o.block[i*2+1] = r[i]
	}
	o.carry = o.block
}

func (o *Offline) emit(ev Event) {
	select {
	case o.events <- ev:
	default:
		o.dropped.Add(1)
	}
}
