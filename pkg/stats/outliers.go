package stats

import (
	"math"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
)

// OutlierResult is the outcome of an outlier scan. Bounds is nil when the
// data has no spread under the chosen method.
type OutlierResult struct {
	Method     string
	Factor     float64
	Count      int
	Percentage float64
	Bounds     *models.Bounds
}

// Outliers counts values outside the fences of method ("iqr" or "zscore").
// iqr uses [Q1-k*IQR, Q3+k*IQR]; zscore flags |x-mean|/std > k.
func Outliers(values []float64, s models.Statistics, method string, k float64) (OutlierResult, error) {
	if method == "" {
		method = models.OutlierMethodIQR
	}
	res := OutlierResult{Method: method, Factor: k}

	var lower, upper float64
	switch method {
	case models.OutlierMethodIQR:
		iqr := s.Q75 - s.Q25
		if iqr <= 0 {
			return res, nil
		}
		lower, upper = s.Q25-k*iqr, s.Q75+k*iqr
	case models.OutlierMethodZScore:
		if s.Std == 0 || math.IsNaN(s.Std) {
			return res, nil
		}
		lower, upper = s.Mean-k*s.Std, s.Mean+k*s.Std
	default:
		return res, apperrors.Invalid(apperrors.ErrInvalidOutlier, method, "outlier method must be iqr or zscore")
	}

	for _, v := range values {
		if method == models.OutlierMethodZScore {
			if math.Abs(v-s.Mean)/s.Std > k {
				res.Count++
			}
			continue
		}
		if v < lower || v > upper {
			res.Count++
		}
	}
	if len(values) > 0 {
		res.Percentage = float64(res.Count) / float64(len(values)) * 100
	}
	res.Bounds = &models.Bounds{Lower: lower, Upper: upper}
	return res, nil
}
