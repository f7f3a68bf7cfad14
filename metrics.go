package qf

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// quantileEstimator is one target percentile's P² streaming estimator
// (Jain & Chlamtac 1985): O(1) per update and per read, at the cost of an
// approximation rather than an exact order statistic. Not thread-safe; the
// caller (quantileSketch, guarded by LatencyMetrics' mutex) serializes
// access.
type quantileEstimator struct {
	p          float64    // target quantile, 0..1
	q          [5]float64 // marker heights
	n          [5]int     // marker positions
	np         [5]float64 // desired marker positions
	dn         [5]float64 // increments for desired positions
	count      int
	initBuffer [5]float64 // buffers the first 5 observations before the markers are seeded
}

func newQuantileEstimator(p float64) *quantileEstimator {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return &quantileEstimator{p: p, dn: [5]float64{0, p / 2, p, (1 + p) / 2, 1}}
}

// update folds in one observation. The first 5 observations seed the
// markers; every one after that adjusts them in O(1) per the P² algorithm.
func (e *quantileEstimator) update(x float64) {
	e.count++
	if e.count <= 5 {
		e.initBuffer[e.count-1] = x
		if e.count == 5 {
			e.seedMarkers()
		}
		return
	}

	var k int
	switch {
	case x < e.q[0]:
		e.q[0] = x
		k = 0
	case x >= e.q[4]:
		e.q[4] = x
		k = 3
	default:
		for k = 0; k < 4; k++ {
			if e.q[k] <= x && x < e.q[k+1] {
				break
			}
		}
	}

	for i := k + 1; i < 5; i++ {
		e.n[i]++
	}
	for i := 0; i < 5; i++ {
		e.np[i] += e.dn[i]
	}

	for i := 1; i < 4; i++ {
		d := e.np[i] - float64(e.n[i])
		if (d >= 1 && e.n[i+1]-e.n[i] > 1) || (d <= -1 && e.n[i-1]-e.n[i] < -1) {
			sign := 1
			if d < 0 {
				sign = -1
			}
			if q := e.parabolic(i, sign); e.q[i-1] < q && q < e.q[i+1] {
				e.q[i] = q
			} else {
				e.q[i] = e.linear(i, sign)
			}
			e.n[i] += sign
		}
	}
}

// seedMarkers sorts the first 5 observations and initializes the marker
// heights/positions from them.
func (e *quantileEstimator) seedMarkers() {
	for i := 1; i < 5; i++ {
		key := e.initBuffer[i]
		j := i - 1
		for j >= 0 && e.initBuffer[j] > key {
			e.initBuffer[j+1] = e.initBuffer[j]
			j--
		}
		e.initBuffer[j+1] = key
	}
	for i := 0; i < 5; i++ {
		e.q[i] = e.initBuffer[i]
		e.n[i] = i
	}
	e.np = [5]float64{0, 2 * e.p, 4 * e.p, 2 + 2*e.p, 4}
}

func (e *quantileEstimator) parabolic(i, d int) float64 {
	df := float64(d)
	ni, niPrev, niNext := float64(e.n[i]), float64(e.n[i-1]), float64(e.n[i+1])
	term1 := df / (niNext - niPrev)
	term2 := (ni - niPrev + df) * (e.q[i+1] - e.q[i]) / (niNext - ni)
	term3 := (niNext - ni - df) * (e.q[i] - e.q[i-1]) / (ni - niPrev)
	return e.q[i] + term1*(term2+term3)
}

func (e *quantileEstimator) linear(i, d int) float64 {
	if d == 1 {
		return e.q[i] + (e.q[i+1]-e.q[i])/float64(e.n[i+1]-e.n[i])
	}
	return e.q[i] - (e.q[i]-e.q[i-1])/float64(e.n[i]-e.n[i-1])
}

// quantile returns the current estimate, falling back to an exact small-n
// computation below 5 observations (the markers aren't seeded yet).
func (e *quantileEstimator) quantile() float64 {
	if e.count == 0 {
		return 0
	}
	if e.count < 5 {
		sorted := make([]float64, e.count)
		copy(sorted, e.initBuffer[:e.count])
		sort.Float64s(sorted)
		idx := min(int(float64(e.count-1)*e.p), e.count-1)
		return sorted[idx]
	}
	return e.q[2]
}

func (e *quantileEstimator) max() float64 {
	if e.count == 0 {
		return 0
	}
	if e.count < 5 {
		m := e.initBuffer[0]
		for i := 1; i < e.count; i++ {
			if e.initBuffer[i] > m {
				m = e.initBuffer[i]
			}
		}
		return m
	}
	return e.q[4]
}

// quantileSketch tracks several target percentiles at once, feeding the
// same observation to one quantileEstimator per percentile, per §3's
// dispatch-latency histogram requirement. Not thread-safe.
type quantileSketch struct {
	estimators []*quantileEstimator
	max        float64
}

func newQuantileSketch(percentiles ...float64) *quantileSketch {
	s := &quantileSketch{estimators: make([]*quantileEstimator, len(percentiles))}
	for i, p := range percentiles {
		s.estimators[i] = newQuantileEstimator(p)
	}
	return s
}

func (s *quantileSketch) update(x float64) {
	if x > s.max {
		s.max = x
	}
	for _, e := range s.estimators {
		e.update(x)
	}
}

func (s *quantileSketch) quantile(i int) float64 {
	if i < 0 || i >= len(s.estimators) {
		return 0
	}
	return s.estimators[i].quantile()
}

// Metrics tracks runtime statistics for a Framework. Metrics are designed to
// be low-overhead and thread-safe. Collection is opt-in via WithMetrics; when
// disabled, the Framework has no Metrics (Framework.Metrics returns nil) and
// nothing is recorded.
type Metrics struct {
	// Dispatch latency distribution (time spent inside one RTC step).
	Dispatch LatencyMetrics

	// Queue/pool watermark tracking, per §3/§8's n_min invariant.
	Queue QueueMetrics

	mu sync.Mutex

	// DispatchRate is dispatches-per-second, recomputed on Sample.
	DispatchRate float64

	rate *DispatchRateCounter
}

// newMetrics creates a Metrics with its rolling dispatch-rate counter ready.
func newMetrics() *Metrics {
	return &Metrics{
		Queue: *newQueueMetrics(),
		rate:  NewDispatchRateCounter(10*time.Second, time.Second),
	}
}

// SampleRate refreshes DispatchRate from the rolling window and returns it.
func (m *Metrics) SampleRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rate == nil {
		return 0
	}
	m.DispatchRate = m.rate.Rate()
	return m.DispatchRate
}

// LatencyMetrics tracks a latency distribution with streaming percentiles,
// using the P-Square algorithm for O(1) updates.
type LatencyMetrics struct {
	sketch *quantileSketch

	mu sync.RWMutex

	// Ring buffer of the most recent samples, used for exact percentiles
	// while the sample count is too small for P-Square to be meaningful.
	sampleIdx   int
	sampleCount int
	samples     [sampleSize]time.Duration

	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
	Max time.Duration

	Mean time.Duration
	Sum  time.Duration
}

// sampleSize is the maximum number of latency samples retained for exact,
// small-n percentile computation.
const sampleSize = 1000

// Record records one dispatch's duration. Called by a Framework after each
// run-to-completion step when metrics are enabled.
func (l *LatencyMetrics) Record(duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sketch == nil {
		l.sketch = newQuantileSketch(0.50, 0.90, 0.95, 0.99)
	}
	l.sketch.update(float64(duration))

	if l.sampleCount >= sampleSize {
		old := l.samples[l.sampleIdx]
		l.Sum -= old
	}
	l.samples[l.sampleIdx] = duration
	l.Sum += duration
	l.sampleIdx++
	if l.sampleIdx >= sampleSize {
		l.sampleIdx = 0
	}
	if l.sampleCount < sampleSize {
		l.sampleCount++
	}
}

// Sample recomputes the cached percentile fields from collected samples and
// returns the number of samples used.
func (l *LatencyMetrics) Sample() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := l.sampleCount
	if count == 0 {
		return 0
	}

	if count < 5 || l.sketch == nil {
		sorted := make([]time.Duration, count)
		copy(sorted, l.samples[:count])
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		l.P50 = sorted[percentileIndex(count, 50)]
		l.P90 = sorted[percentileIndex(count, 90)]
		l.P95 = sorted[percentileIndex(count, 95)]
		l.P99 = sorted[percentileIndex(count, 99)]
		l.Max = sorted[count-1]
		l.Mean = l.Sum / time.Duration(count)
		return count
	}

	l.P50 = time.Duration(l.sketch.quantile(0))
	l.P90 = time.Duration(l.sketch.quantile(1))
	l.P95 = time.Duration(l.sketch.quantile(2))
	l.P99 = time.Duration(l.sketch.quantile(3))
	l.Max = time.Duration(l.sketch.max)
	l.Mean = l.Sum / time.Duration(count)
	return count
}

func percentileIndex(n, p int) int {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}

// QueueMetrics tracks queue and pool low-watermark statistics: §3 requires
// n_min (queue) and a low-watermark (pool) to be tracked as the minimum
// ever-observed free count, monotonically non-increasing.
type QueueMetrics struct {
	mu sync.RWMutex

	// per-AO-priority queue free-count low-watermark, keyed by priority.
	queueLowWater map[uint8]int
	// per-pool-id free-block low-watermark.
	poolLowWater map[uint8]int

	// Current depths, for dashboards; not part of any invariant.
	queueDepth map[uint8]int
	poolInUse  map[uint8]int
}

func newQueueMetrics() *QueueMetrics {
	return &QueueMetrics{
		queueLowWater: make(map[uint8]int),
		poolLowWater:  make(map[uint8]int),
		queueDepth:    make(map[uint8]int),
		poolInUse:     make(map[uint8]int),
	}
}

// ObserveQueueFree records a free-slot count observation for the AO's queue
// (counting the front slot, per §8's invariant n_free + queued == capacity+1).
func (q *QueueMetrics) ObserveQueueFree(aoPrio uint8, free, depth int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.queueLowWater == nil {
		q.queueLowWater = make(map[uint8]int)
		q.queueDepth = make(map[uint8]int)
	}
	if cur, ok := q.queueLowWater[aoPrio]; !ok || free < cur {
		q.queueLowWater[aoPrio] = free
	}
	q.queueDepth[aoPrio] = depth
}

// ObservePoolFree records a free-block count observation for a pool.
func (q *QueueMetrics) ObservePoolFree(poolID uint8, free, inUse int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.poolLowWater == nil {
		q.poolLowWater = make(map[uint8]int)
		q.poolInUse = make(map[uint8]int)
	}
	if cur, ok := q.poolLowWater[poolID]; !ok || free < cur {
		q.poolLowWater[poolID] = free
	}
	q.poolInUse[poolID] = inUse
}

// QueueLowWater returns the minimum ever-observed free count for aoPrio's
// queue, and whether any observation has been recorded.
func (q *QueueMetrics) QueueLowWater(aoPrio uint8) (int, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	v, ok := q.queueLowWater[aoPrio]
	return v, ok
}

// PoolLowWater returns the minimum ever-observed free-block count for poolID.
func (q *QueueMetrics) PoolLowWater(poolID uint8) (int, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	v, ok := q.poolLowWater[poolID]
	return v, ok
}

// DispatchRateCounter tracks dispatches-per-second with a rolling window,
// using a ring buffer of fixed-duration buckets shifted on each read/write.
type DispatchRateCounter struct {
	lastRotation atomic.Value // time.Time
	buckets      []int64
	bucketSize   time.Duration
	windowSize   time.Duration
	mu           sync.Mutex
}

// NewDispatchRateCounter creates a rolling-window dispatch-rate counter.
// windowSize and bucketSize must be positive, and bucketSize <= windowSize.
func NewDispatchRateCounter(windowSize, bucketSize time.Duration) *DispatchRateCounter {
	if windowSize <= 0 {
		panic("qf: windowSize must be positive")
	}
	if bucketSize <= 0 {
		panic("qf: bucketSize must be positive")
	}
	if bucketSize > windowSize {
		panic("qf: bucketSize cannot exceed windowSize")
	}

	bucketCount := int(windowSize / bucketSize)
	c := &DispatchRateCounter{
		buckets:    make([]int64, bucketCount),
		bucketSize: bucketSize,
		windowSize: windowSize,
	}
	c.lastRotation.Store(time.Now())
	return c
}

// Increment records one dispatch.
func (c *DispatchRateCounter) Increment() {
	c.rotate()
	c.mu.Lock()
	c.buckets[len(c.buckets)-1]++
	c.mu.Unlock()
}

func (c *DispatchRateCounter) rotate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	lastRotation := c.lastRotation.Load().(time.Time)
	elapsed := now.Sub(lastRotation)

	advance := int64(elapsed) / int64(c.bucketSize)
	if advance < 0 || advance > int64(len(c.buckets)) {
		advance = int64(len(c.buckets))
	}

	if int(advance) >= len(c.buckets) {
		for i := range c.buckets {
			c.buckets[i] = 0
		}
		c.lastRotation.Store(now)
		return
	}
	if advance <= 0 {
		return
	}

	n := int(advance)
	copy(c.buckets, c.buckets[n:])
	for i := len(c.buckets) - n; i < len(c.buckets); i++ {
		c.buckets[i] = 0
	}
	c.lastRotation.Store(lastRotation.Add(time.Duration(n) * c.bucketSize))
}

// Rate returns dispatches per second over the configured window.
func (c *DispatchRateCounter) Rate() float64 {
	c.rotate()
	c.mu.Lock()
	defer c.mu.Unlock()

	var sum int64
	for _, n := range c.buckets {
		sum += n
	}
	if sum == 0 {
		return 0
	}
	monitored := float64(len(c.buckets)) * c.bucketSize.Seconds()
	return float64(sum) / monitored
}
