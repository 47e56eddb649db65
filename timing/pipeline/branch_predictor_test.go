package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/timing/config"
	"github.com/sarchlab/rvsim/timing/pipeline"
)

var _ = Describe("BranchPredictor", func() {
	var bp *pipeline.BranchPredictor

	BeforeEach(func() {
		bp = pipeline.NewBranchPredictor(config.PredictorConfig{
			BTBSize:      4,
			PHTSize:      16,
			HistoryBits:  2,
			DefaultState: "WeaklyTaken",
		})
	})

	It("should predict not taken without a BTB entry", func() {
		pred := bp.Predict(0x10, true)
		Expect(pred.Taken).To(BeFalse())
		Expect(pred.BTBHit).To(BeFalse())
		Expect(pred.PHTIndex).To(Equal(4))
		Expect(bp.Stats().BTBMisses).To(Equal(uint64(1)))
	})

	It("should learn a taken conditional branch", func() {
		pred := bp.Predict(0x10, true)
		bp.Update(0x10, pred.PHTIndex, true, true, 0x40, false)

		Expect(bp.GHR()).To(Equal(uint64(1)))
		Expect(bp.Counter(4)).To(Equal(pipeline.StronglyTaken))

		pred = bp.Predict(0x10, true)
		Expect(pred.PHTIndex).To(Equal(5))
		Expect(pred.Taken).To(BeTrue())
		Expect(pred.Target).To(Equal(uint64(0x40)))
	})

	It("should follow the counter for conditional branches", func() {
		bp.Update(0x10, 4, true, true, 0x40, true)
		bp.Update(0x10, 5, true, false, 0, true)
		bp.Update(0x10, 5, true, false, 0, true)

		// GHR is now 0b00 again; entry 4 is StronglyTaken.
		Expect(bp.GHR()).To(BeZero())
		Expect(bp.Counter(5)).To(Equal(pipeline.StronglyNotTaken))
		Expect(bp.Predict(0x10, true).Taken).To(BeTrue())
	})

	It("should not shift history for unconditional branches", func() {
		bp.Update(0x20, 0, false, true, 0x80, false)
		Expect(bp.GHR()).To(BeZero())

		pred := bp.Predict(0x20, false)
		Expect(pred.Taken).To(BeTrue())
		Expect(pred.Target).To(Equal(uint64(0x80)))
		Expect(bp.BTB()[0].Unconditional).To(BeTrue())
	})

	It("should keep only HistoryBits of history", func() {
		for i := 0; i < 5; i++ {
			bp.Update(0x10, 0, true, true, 0x40, true)
		}
		Expect(bp.GHR()).To(Equal(uint64(3)))
	})

	It("should not fill the BTB for not-taken branches", func() {
		bp.Update(0x10, 4, true, false, 0x40, true)
		Expect(bp.BTB()[0].Valid).To(BeFalse())
	})

	It("should count accuracy", func() {
		bp.Update(0x10, 4, true, true, 0x40, true)
		bp.Update(0x10, 4, true, true, 0x40, false)
		Expect(bp.Stats().Accuracy()).To(BeNumerically("~", 50.0))
	})

	It("should clone independently", func() {
		c := bp.Clone()
		c.Update(0x10, 4, true, true, 0x40, true)
		Expect(bp.GHR()).To(BeZero())
		Expect(c.GHR()).To(Equal(uint64(1)))
	})
})
