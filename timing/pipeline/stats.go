package pipeline

// StallStatistics counts dispatch stalls by the resource that was missing.
type StallStatistics struct {
	ROBFull         uint64
	WindowFull      uint64
	LoadBufferFull  uint64
	StoreBufferFull uint64
	NoFreeRegister  uint64
	// FetchBlocked counts cycles fetch waited for decode to drain the bundle.
	FetchBlocked uint64
}

// Statistics holds machine performance statistics.
type Statistics struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Fetched counts instances fetched, padding excluded.
	Fetched uint64
	// Committed is the number of instructions retired.
	Committed uint64
	// Flushed counts instances discarded by recovery.
	Flushed uint64
	// Flushes is the number of recoveries.
	Flushes uint64
	// Branches is the number of committed branches.
	Branches uint64
	// Mispredictions is the number of committed mispredicted branches.
	Mispredictions uint64
	// LoadConflicts counts recoveries caused by memory ordering.
	LoadConflicts uint64
	// BypassedLoads counts loads served from the store buffer.
	BypassedLoads uint64
	// SpeculativeLoads counts loads that accessed memory past an older
	// store with an unknown address.
	SpeculativeLoads uint64

	Stalls StallStatistics

	// UnitBusy counts occupied cycles per functional unit.
	UnitBusy []uint64
}

// CPI returns the cycles per committed instruction.
func (s Statistics) CPI() float64 {
	if s.Committed == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Committed)
}

// IPC returns the committed instructions per cycle.
func (s Statistics) IPC() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Committed) / float64(s.Cycles)
}

func (s Statistics) clone() Statistics {
	out := s
	out.UnitBusy = append([]uint64(nil), s.UnitBusy...)
	return out
}
