// Package stats computes the descriptive statistics, process capability and
// outlier counts used by quality reports. Moments come from gonum; all
// standard deviations are population (ddof 0) unless noted.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
)

// Describe returns the statistics of values. values must not be empty.
// Skewness (adjusted Fisher-Pearson) needs n >= 3 and excess kurtosis
// (bias corrected) needs n >= 4; both are 0 for constant data.
func Describe(values []float64) models.Statistics {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mean, variance := stat.PopMeanVariance(sorted, nil)
	std := math.Sqrt(variance)

	s := models.Statistics{
		Count:    len(sorted),
		Mean:     mean,
		Median:   Percentile(sorted, 0.5),
		Std:      std,
		Min:      floats.Min(sorted),
		Max:      floats.Max(sorted),
		Q25:      Percentile(sorted, 0.25),
		Q75:      Percentile(sorted, 0.75),
		Variance: variance,
	}

	n := len(sorted)
	if n >= 3 {
		v := 0.0
		if std > 0 {
			v = stat.Skew(sorted, nil)
		}
		s.Skewness = &v
	}
	if n >= 4 {
		v := 0.0
		if std > 0 {
			v = stat.ExKurtosis(sorted, nil)
		}
		s.Kurtosis = &v
	}
	return s
}

// Percentile returns the p-quantile (0..1) of sorted data, interpolating
// linearly between the two closest ranks: h = (n-1)p.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return math.NaN()
	case n == 1 || p <= 0:
		return sorted[0]
	case p >= 1:
		return sorted[n-1]
	}
	h := float64(n-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= n {
		return sorted[n-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// MeanStd returns the mean and population standard deviation.
func MeanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean, variance := stat.PopMeanVariance(values, nil)
	return mean, math.Sqrt(variance)
}
