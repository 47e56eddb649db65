package pipeline

import (
	"github.com/sarchlab/rvsim/timing/config"
)

// CounterState is a 2-bit saturating counter.
type CounterState uint8

// Counter states.
const (
	StronglyNotTaken CounterState = iota
	WeaklyNotTaken
	WeaklyTaken
	StronglyTaken
)

func (s CounterState) String() string {
	return config.CounterStates[s]
}

// PredictsTaken reports whether the counter predicts taken.
func (s CounterState) PredictsTaken() bool {
	return s >= WeaklyTaken
}

// next moves the counter one state toward the outcome.
func (s CounterState) next(taken bool) CounterState {
	if taken {
		if s < StronglyTaken {
			return s + 1
		}
		return s
	}
	if s > StronglyNotTaken {
		return s - 1
	}
	return s
}

// BranchPredictorStats holds statistics for the branch predictor.
type BranchPredictorStats struct {
	// Predictions is the total number of branch predictions made.
	Predictions uint64
	// Correct is the number of committed branches predicted correctly.
	Correct uint64
	// Mispredictions is the number of committed mispredicted branches.
	Mispredictions uint64
	// BTBHits is the number of BTB hits.
	BTBHits uint64
	// BTBMisses is the number of BTB misses.
	BTBMisses uint64
}

// Accuracy returns the prediction accuracy as a percentage.
func (s BranchPredictorStats) Accuracy() float64 {
	total := s.Correct + s.Mispredictions
	if total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(total) * 100
}

// BTBHitRate returns the BTB hit rate as a percentage.
func (s BranchPredictorStats) BTBHitRate() float64 {
	total := s.BTBHits + s.BTBMisses
	if total == 0 {
		return 0
	}
	return float64(s.BTBHits) / float64(total) * 100
}

// Prediction represents a branch prediction result.
type Prediction struct {
	// Taken indicates whether fetch should redirect.
	Taken bool
	// Target is the predicted target address (valid if BTBHit).
	Target uint64
	// BTBHit indicates whether the target address is known.
	BTBHit bool
	// PHTIndex is the pattern table entry consulted.
	PHTIndex int
}

// BTBEntry caches the target of a taken branch.
type BTBEntry struct {
	Valid         bool
	PC            uint64
	Target        uint64
	Unconditional bool
}

// BranchPredictor implements GShare: a pattern table of 2-bit counters
// indexed by PC xor global history, plus a Branch Target Buffer.
type BranchPredictor struct {
	ghr         uint64
	historyMask uint64
	pht         []CounterState
	btb         []BTBEntry

	stats BranchPredictorStats
}

// NewBranchPredictor creates a predictor from the configuration.
func NewBranchPredictor(c config.PredictorConfig) *BranchPredictor {
	bp := &BranchPredictor{
		historyMask: uint64(1)<<uint(c.HistoryBits) - 1,
		pht:         make([]CounterState, c.PHTSize),
		btb:         make([]BTBEntry, c.BTBSize),
	}

	initial := CounterState(config.CounterStateIndex(c.DefaultState))
	for i := range bp.pht {
		bp.pht[i] = initial
	}

	return bp
}

// phtIndex hashes the PC with the global history.
func (bp *BranchPredictor) phtIndex(pc uint64) int {
	return int(((pc >> 2) ^ bp.ghr) & uint64(len(bp.pht)-1))
}

// btbIndex computes the BTB index for a given PC.
func (bp *BranchPredictor) btbIndex(pc uint64) int {
	return int((pc >> 2) & uint64(len(bp.btb)-1))
}

// Predict makes a prediction for the branch at pc. A branch is predicted
// taken only when the BTB knows its target.
func (bp *BranchPredictor) Predict(pc uint64, conditional bool) Prediction {
	pred := Prediction{PHTIndex: bp.phtIndex(pc)}

	entry := bp.btb[bp.btbIndex(pc)]
	if entry.Valid && entry.PC == pc {
		pred.Target = entry.Target
		pred.BTBHit = true
		bp.stats.BTBHits++
	} else {
		bp.stats.BTBMisses++
	}

	if conditional {
		pred.Taken = pred.BTBHit && bp.pht[pred.PHTIndex].PredictsTaken()
	} else {
		pred.Taken = pred.BTBHit
	}

	bp.stats.Predictions++
	return pred
}

// Update trains the predictor with a committed outcome. Conditional
// branches move their counter and shift one bit into the history; taken
// branches refresh the BTB.
func (bp *BranchPredictor) Update(pc uint64, phtIndex int, conditional, taken bool, target uint64, correct bool) {
	if correct {
		bp.stats.Correct++
	} else {
		bp.stats.Mispredictions++
	}

	if conditional {
		bp.pht[phtIndex] = bp.pht[phtIndex].next(taken)
		bit := uint64(0)
		if taken {
			bit = 1
		}
		bp.ghr = (bp.ghr<<1 | bit) & bp.historyMask
	}

	if taken {
		bp.btb[bp.btbIndex(pc)] = BTBEntry{
			Valid:         true,
			PC:            pc,
			Target:        target,
			Unconditional: !conditional,
		}
	}
}

// GHR returns the global history register.
func (bp *BranchPredictor) GHR() uint64 {
	return bp.ghr
}

// Counter returns pattern table entry i.
func (bp *BranchPredictor) Counter(i int) CounterState {
	return bp.pht[i]
}

// BTB returns a copy of the branch target buffer.
func (bp *BranchPredictor) BTB() []BTBEntry {
	return append([]BTBEntry(nil), bp.btb...)
}

// Stats returns the branch predictor statistics.
func (bp *BranchPredictor) Stats() BranchPredictorStats {
	return bp.stats
}

// Clone returns a deep copy.
func (bp *BranchPredictor) Clone() *BranchPredictor {
	return &BranchPredictor{
		ghr:         bp.ghr,
		historyMask: bp.historyMask,
		pht:         append([]CounterState(nil), bp.pht...),
		btb:         append([]BTBEntry(nil), bp.btb...),
		stats:       bp.stats,
	}
}
