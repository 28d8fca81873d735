package mempool

// PressureTier classifies how full the pool is relative to policy limits,
// as reported by Pool.Overview().
type PressureTier uint8

const (
	PressureLow PressureTier = iota
	PressureMedium
	PressureHigh
	PressureCritical
)

func (p PressureTier) String() string {
	switch p {
	case PressureLow:
		return "low"
	case PressureMedium:
		return "medium"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Overview is a point-in-time snapshot of pool health, used by clients to
// decide fee bidding and by operators for capacity monitoring.
type Overview struct {
	TransactionCount int
	TotalBytes       uint64
	OrphanCount      int
	MinFeeRate       float64
	MedianFeeRate    float64
	MaxFeeRate       float64
	Pressure         PressureTier
}

// Overview computes the current Overview snapshot.
func (p *Pool) Overview() Overview {
	p.mtx.RLock()
	defer p.mtx.RUnlock()

	rates := make([]float64, 0, len(p.byTxID))
	var totalBytes uint64
	for _, e := range p.byTxID {
		rates = append(rates, e.FeeRate())
		totalBytes += e.SizeBytes
	}

	ov := Overview{
		TransactionCount: len(p.byTxID),
		TotalBytes:       totalBytes,
		OrphanCount:      p.orphans.Count(),
	}
	if len(rates) > 0 {
		ov.MinFeeRate, ov.MedianFeeRate, ov.MaxFeeRate = feeRateStats(rates)
	}
	ov.Pressure = classifyPressure(ov.TransactionCount, ov.TotalBytes, p.cfg.Policy)
	return ov
}

func feeRateStats(rates []float64) (min, median, max float64) {
	sorted := append([]float64(nil), rates...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	min = sorted[0]
	max = sorted[len(sorted)-1]
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		median = sorted[mid]
	} else {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}
	return
}

// classifyPressure buckets pool fullness into pressure tiers,
// using whichever of the count/byte budgets is more constrained.
func classifyPressure(count int, bytes uint64, policy Policy) PressureTier {
	countRatio := 0.0
	if policy.MaxTransactions > 0 {
		countRatio = float64(count) / float64(policy.MaxTransactions)
	}
	byteRatio := 0.0
	if policy.MaxBytes > 0 {
		byteRatio = float64(bytes) / float64(policy.MaxBytes)
	}
	ratio := countRatio
	if byteRatio > ratio {
		ratio = byteRatio
	}

	switch {
	case ratio >= 0.95:
		return PressureCritical
	case ratio >= 0.75:
		return PressureHigh
	case ratio >= 0.40:
		return PressureMedium
	default:
		return PressureLow
	}
}
