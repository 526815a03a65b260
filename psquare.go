package coroutine

import "math"

// quantileEstimator implements the P² algorithm for streaming estimation of
// one quantile: O(1) per observation, O(1) read, no stored observations.
//
// Jain, R. and Chlamtac, I. (1985). "The P² Algorithm for Dynamic
// Calculation of Quantiles and Histograms Without Storing Observations".
// Communications of the ACM, 28(10), pp. 1076-1085.
//
// Not thread-safe; callers serialize access (Metrics does this with a
// single mutex covering every estimator of every latencyQuantiles it owns).
type quantileEstimator struct {
	p float64

	q  [5]float64 // marker heights
	n  [5]int     // marker positions
	np [5]float64 // desired marker positions
	dn [5]float64 // increments for desired marker positions

	count      int
	initBuffer [5]float64 // holds the first 5 observations before the markers exist
}

func newQuantileEstimator(p float64) *quantileEstimator {
	return &quantileEstimator{
		p:  p,
		dn: [5]float64{0, p / 2, p, (1 + p) / 2, 1},
	}
}

// Update folds in one observation.
func (ps *quantileEstimator) Update(x float64) {
	ps.count++

	if ps.count <= 5 {
		ps.initBuffer[ps.count-1] = x
		if ps.count == 5 {
			ps.initialize()
		}
		return
	}

	var k int
	if x < ps.q[0] {
		ps.q[0] = x
		k = 0
	} else if x >= ps.q[4] {
		ps.q[4] = x
		k = 3
	} else {
		for k = 0; k < 4; k++ {
			if ps.q[k] <= x && x < ps.q[k+1] {
				break
			}
		}
	}

	for i := k + 1; i < 5; i++ {
		ps.n[i]++
	}
	for i := 0; i < 5; i++ {
		ps.np[i] += ps.dn[i]
	}

	for i := 1; i < 4; i++ {
		d := ps.np[i] - float64(ps.n[i])
		if (d >= 1 && ps.n[i+1]-ps.n[i] > 1) || (d <= -1 && ps.n[i-1]-ps.n[i] < -1) {
			sign := 1
			if d < 0 {
				sign = -1
			}
			qPrime := ps.parabolic(i, sign)
			if ps.q[i-1] < qPrime && qPrime < ps.q[i+1] {
				ps.q[i] = qPrime
			} else {
				ps.q[i] = ps.linear(i, sign)
			}
			ps.n[i] += sign
		}
	}
}

func (ps *quantileEstimator) initialize() {
	for i := 1; i < 5; i++ {
		key := ps.initBuffer[i]
		j := i - 1
		for j >= 0 && ps.initBuffer[j] > key {
			ps.initBuffer[j+1] = ps.initBuffer[j]
			j--
		}
		ps.initBuffer[j+1] = key
	}
	for i := 0; i < 5; i++ {
		ps.q[i] = ps.initBuffer[i]
		ps.n[i] = i
	}
	ps.np = [5]float64{0, 2 * ps.p, 4 * ps.p, 2 + 2*ps.p, 4}
}

func (ps *quantileEstimator) parabolic(i, d int) float64 {
	df := float64(d)
	ni, niPrev, niNext := float64(ps.n[i]), float64(ps.n[i-1]), float64(ps.n[i+1])
	term1 := df / (niNext - niPrev)
	term2 := (ni - niPrev + df) * (ps.q[i+1] - ps.q[i]) / (niNext - ni)
	term3 := (niNext - ni - df) * (ps.q[i] - ps.q[i-1]) / (ni - niPrev)
	return ps.q[i] + term1*(term2+term3)
}

func (ps *quantileEstimator) linear(i, d int) float64 {
	if d == 1 {
		return ps.q[i] + (ps.q[i+1]-ps.q[i])/float64(ps.n[i+1]-ps.n[i])
	}
	return ps.q[i] - (ps.q[i]-ps.q[i-1])/float64(ps.n[i]-ps.n[i-1])
}

// Quantile returns the current estimate. Before 5 observations it falls
// back to sorting the small init buffer.
func (ps *quantileEstimator) Quantile() float64 {
	if ps.count == 0 {
		return 0
	}
	if ps.count < 5 {
		sorted := make([]float64, ps.count)
		copy(sorted, ps.initBuffer[:ps.count])
		for i := 1; i < ps.count; i++ {
			key := sorted[i]
			j := i - 1
			for j >= 0 && sorted[j] > key {
				sorted[j+1] = sorted[j]
				j--
			}
			sorted[j+1] = key
		}
		index := int(float64(ps.count-1) * ps.p)
		if index >= ps.count {
			index = ps.count - 1
		}
		return sorted[index]
	}
	return ps.q[2]
}

// latencyQuantiles tracks P50/P90/P95/P99, mean, max, and count for one
// latency series — the fixed four percentiles SPEC_FULL.md's Metrics
// component reports, one quantileEstimator apiece rather than a generic
// variadic-percentile collection, since nothing in this runtime ever asks
// for a different percentile set.
//
// Not thread-safe; Metrics serializes all access with its own mutex.
type latencyQuantiles struct {
	p50, p90, p95, p99 *quantileEstimator
	sum, max           float64
	count              int
}

func newLatencyQuantiles() *latencyQuantiles {
	return &latencyQuantiles{
		p50: newQuantileEstimator(0.5),
		p90: newQuantileEstimator(0.9),
		p95: newQuantileEstimator(0.95),
		p99: newQuantileEstimator(0.99),
		max: -math.MaxFloat64,
	}
}

func (m *latencyQuantiles) Update(x float64) {
	m.count++
	m.sum += x
	if x > m.max {
		m.max = x
	}
	m.p50.Update(x)
	m.p90.Update(x)
	m.p95.Update(x)
	m.p99.Update(x)
}

func (m *latencyQuantiles) Count() int { return m.count }

func (m *latencyQuantiles) Max() float64 {
	if m.count == 0 {
		return 0
	}
	return m.max
}

func (m *latencyQuantiles) Mean() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}
