package cache

// BackingStore is the next level below the cache. *emu.Memory satisfies it.
type BackingStore interface {
	// Contains reports whether [addr, addr+n) is addressable.
	Contains(addr uint64, n int) bool
	// ReadBytes fetches n bytes starting at addr.
	ReadBytes(addr uint64, n int) ([]byte, error)
	// WriteBytes stores data starting at addr.
	WriteBytes(addr uint64, data []byte) error
}
