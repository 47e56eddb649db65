package pipeline

// LoadState is the progress of a load buffer item.
type LoadState uint8

// Load states.
const (
	// LoadWaiting: the address is unknown, or the load waits for an older
	// store or a free memory unit.
	LoadWaiting LoadState = iota
	// LoadAccessing: a memory unit is reading the value.
	LoadAccessing
	// LoadDone: the value is on its way to writeback.
	LoadDone
)

// LoadItem is one load buffer entry.
type LoadItem struct {
	ID      InstanceID
	Address uint64
	Size    int
	State   LoadState
	// Bypassed is set when the value came from the store BypassFrom.
	Bypassed   bool
	BypassFrom InstanceID
	// Speculative is set when memory was read past an older store whose
	// address was unknown.
	Speculative bool
	// Conflict is set when an older store turned out to write bytes this
	// load had already read. The load is re-executed at commit.
	Conflict bool
}

// StoreItem is one store buffer entry. Committed items stay until a memory
// unit has written them.
type StoreItem struct {
	ID        InstanceID
	// PC and Text identify the store in a fault raised while draining.
	PC        uint64
	Text      string
	Address   uint64
	Size      int
	Data      uint64
	DataReady bool
	Faulted   bool
	// Reported is set once the ROB has been told the store is complete.
	Reported  bool
	Committed bool
	Draining  bool
}

func (s *StoreItem) fault(err error) *Fault {
	return &Fault{PC: s.PC, Inst: s.Text, Err: err}
}

func overlaps(a uint64, an int, b uint64, bn int) bool {
	return a < b+uint64(bn) && b < a+uint64(an)
}

func (m *Machine) loadIndex(id InstanceID) int {
	for i := range m.loads {
		if m.loads[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Machine) loadItem(id InstanceID) *LoadItem {
	return &m.loads[m.loadIndex(id)]
}

func (m *Machine) storeIndex(id InstanceID) int {
	for i := range m.stores {
		if m.stores[i].ID == id {
			return i
		}
	}
	return -1
}

// detectConflicts marks younger loads that already obtained a value
// overlapping the resolved store. A load bypassed from a store younger than
// this one got the newer bytes and is left alone.
func (m *Machine) detectConflicts(store *StoreItem) {
	for i := range m.loads {
		l := &m.loads[i]
		if l.ID < store.ID || l.State == LoadWaiting || l.Address == UnknownAddress {
			continue
		}
		if !overlaps(store.Address, store.Size, l.Address, l.Size) {
			continue
		}
		if l.Bypassed && l.BypassFrom > store.ID {
			continue
		}
		l.Conflict = true
	}
}

// forwardingDecision is the outcome of checking a load against older stores.
type forwardingDecision uint8

const (
	forwardNone forwardingDecision = iota // read memory
	forwardBypass
	forwardWait
)

// checkStores scans the stores older than the load from youngest to
// oldest. An exact-address store at least as wide as the load with its
// data known is bypassed; any other overlap makes the load wait. Stores
// with unknown addresses are skipped but make the access speculative.
func (m *Machine) checkStores(l *LoadItem) (decision forwardingDecision, from *StoreItem, speculative bool) {
	for i := len(m.stores) - 1; i >= 0; i-- {
		s := &m.stores[i]
		if s.ID > l.ID || s.Faulted {
			continue
		}
		if s.Address == UnknownAddress {
			speculative = true
			continue
		}
		if !overlaps(s.Address, s.Size, l.Address, l.Size) {
			continue
		}
		if s.Address == l.Address && s.Size >= l.Size && s.DataReady {
			return forwardBypass, s, speculative
		}
		return forwardWait, nil, speculative
	}
	return forwardNone, nil, speculative
}
