package pipeline

// fetch fills a bundle of FetchWidth instances starting at the PC. Fetch
// waits while decode still holds part of the previous bundle.
//
// A predicted-taken branch redirects the PC. Up to BranchFollowLimit such
// redirects are followed within the cycle; after that the rest of the
// bundle is padded and fetch resumes at the target next cycle. Slots past
// the end of the code are padded too.
func (m *Machine) fetch() {
	if len(m.bundle) > 0 {
		m.stats.Stalls.FetchBlocked++
		return
	}

	width := m.cfg.FetchWidth
	followed := 0
	stopped := false
	bundle := make([]InstanceID, 0, width)

	for len(bundle) < width {
		inst := m.program.At(m.pc)
		if stopped || inst == nil {
			bundle = append(bundle, m.newInstance(nil, m.pc).ID)
			continue
		}

		i := m.newInstance(inst, m.pc)
		bundle = append(bundle, i.ID)
		m.stats.Fetched++

		def := inst.Def
		if !def.IsBranch() {
			m.pc += 4
			continue
		}

		pred := m.predictor.Predict(m.pc, def.IsConditional())
		i.PHTIndex = pred.PHTIndex
		if !pred.Taken {
			m.pc += 4
			continue
		}

		i.PredTaken = true
		i.PredTarget = pred.Target
		m.pc = pred.Target
		if followed >= m.cfg.BranchFollowLimit {
			stopped = true
		}
		followed++
	}

	m.bundle = bundle
}
