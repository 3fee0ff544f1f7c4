package correlation

import "math"

type leadLagResult struct {
	lagMS int64
	score float64
}

// leadLagCorrelation normalizes cross-correlation over binarized impulse
// trains for lags [0, maxLagBins], keeping whichever positive lag (a leads
// b) scores highest.
func leadLagCorrelation(seriesA, seriesB []int, maxLagBins int) *leadLagResult {
	if len(seriesA) != len(seriesB) || len(seriesA) < 3 {
		return nil
	}

	impulseA := toImpulse(seriesA)
	impulseB := toImpulse(seriesB)

	maxLag := maxLagBins
	if n := len(impulseA) - 1; n < maxLag {
		maxLag = n
	}

	bestScore := 0.0
	var bestLag int

	for lag := 0; lag <= maxLag; lag++ {
		var aligned, totalA, totalB int

		if lag == 0 {
			for i := range impulseA {
				aligned += impulseA[i] * impulseB[i]
			}
			totalA = sumInts(impulseA)
			totalB = sumInts(impulseB)
		} else {
			for i := 0; i < len(impulseA)-lag; i++ {
				aligned += impulseA[i] * impulseB[i+lag]
			}
			totalA = sumInts(impulseA[:len(impulseA)-lag])
			totalB = sumInts(impulseB[lag:])
		}

		if totalA == 0 || totalB == 0 {
			continue
		}

		score := float64(aligned) / math.Sqrt(float64(totalA*totalB))
		if score > bestScore {
			bestScore = score
			bestLag = lag
		}
	}

	if bestScore >= 0.3 && sumInts(impulseA) >= 2 && sumInts(impulseB) >= 2 {
		return &leadLagResult{lagMS: int64(bestLag) * 1000, score: bestScore}
	}

	return nil
}

func toImpulse(series []int) []int {
	out := make([]int, len(series))
	for i, v := range series {
		if v > 0 {
			out[i] = 1
		}
	}
	return out
}

func sumInts(series []int) int {
	total := 0
	for _, v := range series {
		total += v
	}
	return total
}
