// Package cache provides the set-associative data cache model using the Akita
// cache directory for tag management.
package cache

import (
	"math/rand/v2"
	"slices"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/pkg/errors"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/timing/config"
)

// Config holds cache configuration parameters.
type Config struct {
	// Lines is the total number of cache lines.
	Lines int
	// Associativity is the number of ways per set.
	Associativity int
	// LineSize in bytes.
	LineSize int
	// Replacement is config.ReplacementLRU or config.ReplacementRandom.
	Replacement string
	// WriteBack marks lines dirty on store; otherwise stores write through.
	WriteBack bool
	// AccessDelay is the hit latency in cycles.
	AccessDelay uint64
	// MemoryLoadLatency is added for every line fill.
	MemoryLoadLatency uint64
	// MemoryStoreLatency is added for every write to the backing store.
	MemoryStoreLatency uint64
	// Seed initializes random replacement.
	Seed uint64
}

// ConfigFrom extracts the cache parameters from a processor configuration.
func ConfigFrom(c *config.Config) Config {
	return Config{
		Lines:              c.Cache.Lines,
		Associativity:      c.Cache.Associativity,
		LineSize:           c.Cache.LineSize,
		Replacement:        c.Cache.Replacement,
		WriteBack:          c.Cache.WriteBack,
		AccessDelay:        c.Cache.AccessDelay,
		MemoryLoadLatency:  c.Memory.LoadLatency,
		MemoryStoreLatency: c.Memory.StoreLatency,
		Seed:               c.Seed,
	}
}

// AccessResult contains the result of a cache access.
type AccessResult struct {
	// Hit indicates whether every line touched was present.
	Hit bool
	// Latency is the number of cycles this access takes.
	Latency uint64
	// Data is the data read (for load operations).
	Data uint64
	// Evicted is true if a valid line was replaced.
	Evicted bool
	// EvictedAddr is the address of the last replaced line.
	EvictedAddr uint64
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// Line is a read-only view of one cache line.
type Line struct {
	Set, Way int
	Tag      uint64
	Valid    bool
	Dirty    bool
	LastUsed uint64
	Data     []byte
}

// Cache is a set-associative, write-allocate data cache.
type Cache struct {
	config  Config
	numSets int

	// Akita cache directory for tag/state management
	directory *akitacache.DirectoryImpl

	// Data storage - indexed by (setID * associativity + wayID)
	dataStore [][]byte
	// lastUsed holds the access clock of the latest touch of each line.
	lastUsed []uint64
	clock    uint64
	rng      rand.PCG

	stats   Statistics
	backing BackingStore
}

// randomVictimFinder picks an invalid way if there is one, otherwise a
// uniformly random way.
type randomVictimFinder struct {
	src *rand.PCG
}

func (f *randomVictimFinder) FindVictim(set *akitacache.Set) *akitacache.Block {
	for _, b := range set.Blocks {
		if !b.IsValid {
			return b
		}
	}
	return set.Blocks[rand.New(f.src).IntN(len(set.Blocks))]
}

// New creates a cache with the given configuration in front of backing.
func New(cfg Config, backing BackingStore) *Cache {
	c := &Cache{
		config:  cfg,
		numSets: cfg.Lines / cfg.Associativity,
		backing: backing,
		rng:     *rand.NewPCG(cfg.Seed, cfg.Seed^0x9E3779B97F4A7C15),
	}
	c.directory = akitacache.NewDirectory(c.numSets, cfg.Associativity, cfg.LineSize, c.victimFinder())

	c.dataStore = make([][]byte, cfg.Lines)
	for i := range c.dataStore {
		c.dataStore[i] = make([]byte, cfg.LineSize)
	}
	c.lastUsed = make([]uint64, cfg.Lines)
	return c
}

func (c *Cache) victimFinder() akitacache.VictimFinder {
	if c.config.Replacement == config.ReplacementRandom {
		return &randomVictimFinder{src: &c.rng}
	}
	return akitacache.NewLRUVictimFinder()
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// blockIndex computes the index into dataStore for a block.
func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *Cache) lineAddr(addr uint64) uint64 {
	return addr &^ uint64(c.config.LineSize-1)
}

// SplitAddress divides an address into tag, set index and block offset.
func (c *Cache) SplitAddress(addr uint64) (tag, index, offset uint64) {
	lineSize := uint64(c.config.LineSize)
	offset = addr % lineSize
	line := addr / lineSize
	index = line % uint64(c.numSets)
	tag = line / uint64(c.numSets)
	return tag, index, offset
}

func (c *Cache) touch(block *akitacache.Block) {
	c.clock++
	c.lastUsed[c.blockIndex(block)] = c.clock
	c.directory.Visit(block)
}

// fill brings the line at lineAddr into the cache and returns its block and
// the extra latency spent on the backing store.
func (c *Cache) fill(lineAddr uint64, res *AccessResult) (*akitacache.Block, uint64, error) {
	if block := c.directory.Lookup(0, lineAddr); block != nil {
		c.touch(block)
		return block, 0, nil
	}

	res.Hit = false
	extra := c.config.MemoryLoadLatency
	victim := c.directory.FindVictim(lineAddr)
	victimData := c.dataStore[c.blockIndex(victim)]

	if victim.IsValid {
		c.stats.Evictions++
		res.Evicted = true
		res.EvictedAddr = victim.Tag

		if victim.IsDirty {
			c.stats.Writebacks++
			extra += c.config.MemoryStoreLatency
			if err := c.backing.WriteBytes(victim.Tag, victimData); err != nil {
				return nil, 0, errors.Wrap(err, "cache writeback")
			}
		}
	}

	data, err := c.backing.ReadBytes(lineAddr, c.config.LineSize)
	if err != nil {
		return nil, 0, errors.Wrap(err, "cache line fill")
	}
	copy(victimData, data)

	// Tag stores the line-aligned address.
	victim.Tag = lineAddr
	victim.IsValid = true
	victim.IsDirty = false
	c.touch(victim)

	return victim, extra, nil
}

// span calls fn for each line-sized piece of [addr, addr+size).
func (c *Cache) span(addr uint64, size int, res *AccessResult,
	fn func(block *akitacache.Block, lineOffset uint64, pos, n int),
) error {
	lineSize := uint64(c.config.LineSize)
	for pos := 0; pos < size; {
		a := addr + uint64(pos)
		la := c.lineAddr(a)
		off := a - la
		n := int(lineSize - off)
		if n > size-pos {
			n = size - pos
		}

		block, extra, err := c.fill(la, res)
		if err != nil {
			return err
		}
		res.Latency += extra
		fn(block, off, pos, n)
		pos += n
	}
	return nil
}

func (c *Cache) checkRange(addr uint64, size int) error {
	if size < 1 || size > 8 || !c.backing.Contains(addr, size) {
		return errors.Wrapf(emu.ErrAccessFault, "cache access of %d bytes at 0x%X", size, addr)
	}
	return nil
}

func (c *Cache) count(res *AccessResult) {
	if res.Hit {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
}

// Read performs a cache read of size bytes. Accesses may span lines.
func (c *Cache) Read(addr uint64, size int) (AccessResult, error) {
	if err := c.checkRange(addr, size); err != nil {
		return AccessResult{}, err
	}
	c.stats.Reads++

	res := AccessResult{Hit: true, Latency: c.config.AccessDelay}
	buf := make([]byte, size)
	err := c.span(addr, size, &res, func(block *akitacache.Block, off uint64, pos, n int) {
		copy(buf[pos:pos+n], c.dataStore[c.blockIndex(block)][off:])
	})
	if err != nil {
		return AccessResult{}, err
	}
	res.Data = emu.DecodeLE(buf)
	c.count(&res)
	return res, nil
}

// Write performs a cache write of the low size bytes of value. Lines are
// allocated on miss; in write-through mode memory is updated as well.
func (c *Cache) Write(addr uint64, size int, value uint64) (AccessResult, error) {
	if err := c.checkRange(addr, size); err != nil {
		return AccessResult{}, err
	}
	c.stats.Writes++

	res := AccessResult{Hit: true, Latency: c.config.AccessDelay}
	data := emu.EncodeLE(value, size)
	err := c.span(addr, size, &res, func(block *akitacache.Block, off uint64, pos, n int) {
		copy(c.dataStore[c.blockIndex(block)][off:], data[pos:pos+n])
		if c.config.WriteBack {
			block.IsDirty = true
		}
	})
	if err != nil {
		return AccessResult{}, err
	}

	if !c.config.WriteBack {
		if err := c.backing.WriteBytes(addr, data); err != nil {
			return AccessResult{}, err
		}
		res.Latency += c.config.MemoryStoreLatency
	}
	c.count(&res)
	return res, nil
}

// Peek returns the current value at addr without changing cache state or
// statistics. Cached lines take precedence over memory.
func (c *Cache) Peek(addr uint64, size int) (uint64, error) {
	if err := c.checkRange(addr, size); err != nil {
		return 0, err
	}
	buf := make([]byte, size)
	for i := range buf {
		a := addr + uint64(i)
		la := c.lineAddr(a)
		if block := c.directory.Lookup(0, la); block != nil {
			buf[i] = c.dataStore[c.blockIndex(block)][a-la]
			continue
		}
		b, err := c.backing.ReadBytes(a, 1)
		if err != nil {
			return 0, err
		}
		buf[i] = b[0]
	}
	return emu.DecodeLE(buf), nil
}

// Flush writes back all dirty lines and invalidates every line.
func (c *Cache) Flush() error {
	sets := c.directory.GetSets()
	for _, set := range sets {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty {
				if err := c.backing.WriteBytes(block.Tag, c.dataStore[c.blockIndex(block)]); err != nil {
					return err
				}
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
	return nil
}

// Lines returns a snapshot of every line, ordered by set then way.
func (c *Cache) Lines() []Line {
	out := make([]Line, 0, c.config.Lines)
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			idx := c.blockIndex(block)
			tag, _, _ := c.SplitAddress(block.Tag)
			out = append(out, Line{
				Set:      block.SetID,
				Way:      block.WayID,
				Tag:      tag,
				Valid:    block.IsValid,
				Dirty:    block.IsDirty,
				LastUsed: c.lastUsed[idx],
				Data:     slices.Clone(c.dataStore[idx]),
			})
		}
	}
	return out
}

// Clone returns an independent copy of the cache in front of backing. The
// replacement state is reproduced exactly, so both copies make the same
// future decisions.
func (c *Cache) Clone(backing BackingStore) *Cache {
	n := &Cache{
		config:   c.config,
		numSets:  c.numSets,
		clock:    c.clock,
		rng:      c.rng,
		stats:    c.stats,
		backing:  backing,
		lastUsed: slices.Clone(c.lastUsed),
	}
	n.directory = akitacache.NewDirectory(c.numSets, c.config.Associativity, c.config.LineSize, n.victimFinder())

	n.dataStore = make([][]byte, len(c.dataStore))
	for i, d := range c.dataStore {
		n.dataStore[i] = slices.Clone(d)
	}

	src := c.directory.GetSets()
	dst := n.directory.GetSets()
	var touched []*akitacache.Block
	for s := range src {
		for w, b := range src[s].Blocks {
			nb := dst[s].Blocks[w]
			nb.Tag = b.Tag
			nb.IsValid = b.IsValid
			nb.IsDirty = b.IsDirty
			if n.lastUsed[n.blockIndex(nb)] > 0 {
				touched = append(touched, nb)
			}
		}
	}

	// Replaying the latest touch of every line in order rebuilds the
	// directory's recency state.
	slices.SortFunc(touched, func(a, b *akitacache.Block) int {
		x, y := n.lastUsed[n.blockIndex(a)], n.lastUsed[n.blockIndex(b)]
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	})
	for _, b := range touched {
		n.directory.Visit(b)
	}

	return n
}

// Equal reports whether two caches hold identical state.
func (c *Cache) Equal(o *Cache) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.config != o.config || c.clock != o.clock || c.rng != o.rng || c.stats != o.stats {
		return false
	}
	if !slices.Equal(c.lastUsed, o.lastUsed) {
		return false
	}
	a, b := c.directory.GetSets(), o.directory.GetSets()
	for s := range a {
		for w, x := range a[s].Blocks {
			y := b[s].Blocks[w]
			if x.Tag != y.Tag || x.IsValid != y.IsValid || x.IsDirty != y.IsDirty {
				return false
			}
		}
	}
	for i := range c.dataStore {
		if !slices.Equal(c.dataStore[i], o.dataStore[i]) {
			return false
		}
	}
	return true
}
