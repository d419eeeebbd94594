package content

// progressTracker counts downloaded bytes and reports each whole percent
// crossed.
type progressTracker struct {
	total   int64
	done    int64
	percent int
	emit    func(percent int, done, total int64)
}

func newProgressTracker(emit func(percent int, done, total int64)) *progressTracker {
	return &progressTracker{emit: emit}
}

// Update records the transfer position.
func (p *progressTracker) Update(done, total int64) {
	p.done = done
	p.total = total
	if total <= 0 {
		return
	}
	percent := int(done * 100 / total)
	if percent > 100 {
		percent = 100
	}
	if percent > p.percent {
		p.percent = percent
		if p.emit != nil {
			p.emit(percent, done, total)
		}
	}
}

// Percent returns the last whole percent reported.
func (p *progressTracker) Percent() int {
	return p.percent
}
