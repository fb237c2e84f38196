package service

import (
	"math"
	"slices"

	"review-metrics-service/internal/model"
)

func mean(values []int64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum int64
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

func median(values []int64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2
}

func bucketCounts(buckets []model.TermBucket) []int64 {
	counts := make([]int64, len(buckets))
	for i, b := range buckets {
		counts[i] = b.DocCount
	}
	return counts
}

// percentRatio returns num/den as a percentage rounded to one decimal, or nil
// when den is zero.
func percentRatio(num, den int64) *float64 {
	if den == 0 {
		return nil
	}
	r := math.Round(float64(num)/float64(den)*1000) / 10
	return &r
}
