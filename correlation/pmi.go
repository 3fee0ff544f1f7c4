package correlation

import "math"

type pmiResult struct {
	pmi     float64
	coCount int
}

// pmiCorrelation computes pointwise mutual information between two
// binarized (active/inactive) bin series, with add-one smoothing over the
// 2x2 contingency table.
func pmiCorrelation(seriesA, seriesB []int, minSupport int) *pmiResult {
	if len(seriesA) != len(seriesB) || len(seriesA) < 3 {
		return nil
	}

	coCount, countA, countB := 0, 0, 0
	for i := range seriesA {
		activeA := seriesA[i] > 0
		activeB := seriesB[i] > 0
		if activeA {
			countA++
		}
		if activeB {
			countB++
		}
		if activeA && activeB {
			coCount++
		}
	}

	if coCount < minSupport {
		return nil
	}

	reportedCoCount := coCount
	coCount++
	countA++
	countB++
	total := len(seriesA) + 4

	pAB := float64(coCount) / float64(total)
	pA := float64(countA) / float64(total)
	pB := float64(countB) / float64(total)

	if pA == 0 || pB == 0 {
		return nil
	}

	pmi := math.Log2(pAB / (pA * pB))
	if pmi < 1.0 {
		return nil
	}

	return &pmiResult{pmi: pmi, coCount: reportedCoCount}
}
