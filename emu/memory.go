package emu

import (
	"bytes"
	"encoding/binary"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrAccessFault is returned for accesses outside the memory.
var ErrAccessFault = errors.New("memory access fault")

// PageSize is the copy-on-write granularity of Memory.
const PageSize = 4096

// DefaultMemorySize is the size used by NewMemory when none is given.
const DefaultMemorySize = 64 * 1024

// generation hands out ownership tokens for copy-on-write pages.
var generation atomic.Uint64

type page struct {
	owner uint64
	data  [PageSize]byte
}

// Memory is a fixed-size little-endian byte-addressable store. Pages are
// shared between clones and copied on first write.
type Memory struct {
	size  uint64
	token uint64
	pages map[uint64]*page
}

// NewMemory creates a zeroed memory of the given size in bytes.
func NewMemory(size uint64) *Memory {
	if size == 0 {
		size = DefaultMemorySize
	}
	return &Memory{
		size:  size,
		token: generation.Add(1),
		pages: make(map[uint64]*page),
	}
}

// Size returns the memory size in bytes.
func (m *Memory) Size() uint64 {
	return m.size
}

// Contains reports whether [addr, addr+n) is inside the memory.
func (m *Memory) Contains(addr uint64, n int) bool {
	end := addr + uint64(n)
	return n >= 0 && end >= addr && end <= m.size
}

// Clone returns an independent copy. Both memories keep sharing pages until
// one of them writes.
func (m *Memory) Clone() *Memory {
	c := &Memory{
		size:  m.size,
		token: generation.Add(1),
		pages: make(map[uint64]*page, len(m.pages)),
	}
	for k, p := range m.pages {
		c.pages[k] = p
	}
	// Pages owned by m must no longer be written in place.
	m.token = generation.Add(1)
	return c
}

// Equal reports whether both memories hold the same bytes.
func (m *Memory) Equal(o *Memory) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.size != o.size {
		return false
	}
	var zero [PageSize]byte
	for k, p := range m.pages {
		q, ok := o.pages[k]
		switch {
		case ok && !bytes.Equal(p.data[:], q.data[:]):
			return false
		case !ok && !bytes.Equal(p.data[:], zero[:]):
			return false
		}
	}
	for k, q := range o.pages {
		if _, ok := m.pages[k]; !ok && !bytes.Equal(q.data[:], zero[:]) {
			return false
		}
	}
	return true
}

func (m *Memory) readByte(addr uint64) byte {
	p := m.pages[addr/PageSize]
	if p == nil {
		return 0
	}
	return p.data[addr%PageSize]
}

func (m *Memory) writeByte(addr uint64, b byte) {
	key := addr / PageSize
	p := m.pages[key]
	switch {
	case p == nil:
		if b == 0 {
			return
		}
		p = &page{owner: m.token}
		m.pages[key] = p
	case p.owner != m.token:
		cp := &page{owner: m.token, data: p.data}
		m.pages[key] = cp
		p = cp
	}
	p.data[addr%PageSize] = b
}

// ReadBytes copies n bytes starting at addr.
func (m *Memory) ReadBytes(addr uint64, n int) ([]byte, error) {
	if !m.Contains(addr, n) {
		return nil, errors.Wrapf(ErrAccessFault, "read of %d bytes at 0x%X", n, addr)
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = m.readByte(addr + uint64(i))
	}
	return out, nil
}

// WriteBytes stores data starting at addr.
func (m *Memory) WriteBytes(addr uint64, data []byte) error {
	if !m.Contains(addr, len(data)) {
		return errors.Wrapf(ErrAccessFault, "write of %d bytes at 0x%X", len(data), addr)
	}
	for i, b := range data {
		m.writeByte(addr+uint64(i), b)
	}
	return nil
}

// Load reads a little-endian value of size 1, 2, 4 or 8 bytes.
func (m *Memory) Load(addr uint64, size int) (uint64, error) {
	data, err := m.ReadBytes(addr, size)
	if err != nil {
		return 0, err
	}
	return DecodeLE(data), nil
}

// Store writes the low size bytes of value in little-endian order.
func (m *Memory) Store(addr uint64, size int, value uint64) error {
	return m.WriteBytes(addr, EncodeLE(value, size))
}

// DecodeLE assembles up to 8 little-endian bytes into a value.
func DecodeLE(data []byte) uint64 {
	var buf [8]byte
	copy(buf[:], data)
	return binary.LittleEndian.Uint64(buf[:])
}

// EncodeLE returns the low size bytes of value in little-endian order.
func EncodeLE(value uint64, size int) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	out := make([]byte, size)
	copy(out, buf[:size])
	return out
}
