package evaluation

import (
	"math"
)

func dcg(grades []int, k int) float64 {
	k = min(k, len(grades))
	var sum float64
	for i := 0; i < k; i++ {
		sum += float64(grades[i]) / math.Log2(float64(i+2))
	}
	return sum
}

// NDCG calculates Normalized Discounted Cumulative Gain at K.
// ideal holds every judged grade of the query, highest first.
func NDCG(relevances, ideal []int, k int) float64 {
	if k <= 0 || len(relevances) == 0 {
		return 0
	}
	idcg := dcg(ideal, k)
	if idcg == 0 {
		return 0
	}
	return dcg(relevances, k) / idcg
}

// Recall calculates Recall at K against the total number of relevant documents.
func Recall(relevances []int, k, threshold, totalRelevant int) float64 {
	if totalRelevant == 0 {
		return 0
	}
	return float64(countRelevant(relevances, k, threshold)) / float64(totalRelevant)
}

// Precision calculates Precision at K. Missing ranks count as non-relevant.
func Precision(relevances []int, k, threshold int) float64 {
	if k <= 0 {
		return 0
	}
	return float64(countRelevant(relevances, k, threshold)) / float64(k)
}

func countRelevant(relevances []int, k, threshold int) int {
	k = min(k, len(relevances))
	n := 0
	for i := 0; i < k; i++ {
		if relevances[i] >= threshold {
			n++
		}
	}
	return n
}

// MRR calculates the reciprocal rank of the first relevant document.
func MRR(relevances []int, threshold int) float64 {
	for i, r := range relevances {
		if r >= threshold {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// AveragePrecision calculates Average Precision against the total number of relevant documents.
func AveragePrecision(relevances []int, threshold, totalRelevant int) float64 {
	if totalRelevant == 0 {
		return 0
	}

	relevant := 0
	sumPrecision := 0.0
	for i, r := range relevances {
		if r >= threshold {
			relevant++
			sumPrecision += float64(relevant) / float64(i+1)
		}
	}
	return sumPrecision / float64(totalRelevant)
}
