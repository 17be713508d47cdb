package stats

import (
	"fmt"
	"math"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
)

// Capability evaluates values against the supplied specification limits.
// It returns nil when neither limit is given. Cp and Cpk need both limits.
func Capability(values []float64, mean, std float64, usl, lsl *float64) (*models.Quality, error) {
	if usl == nil && lsl == nil {
		return nil, nil
	}
	if usl != nil && lsl != nil && *lsl > *usl {
		return nil, apperrors.Invalid(apperrors.ErrInvalidSpecLimits,
			fmt.Sprintf("lsl=%g usl=%g", *lsl, *usl), "lower limit exceeds upper limit")
	}

	n := len(values)
	pct := func(c int) *float64 {
		v := 0.0
		if n > 0 {
			v = float64(c) / float64(n) * 100
		}
		return &v
	}

	q := &models.Quality{}
	high, low, nok := 0, 0, 0
	for _, v := range values {
		isHigh := usl != nil && v > *usl
		isLow := lsl != nil && v < *lsl
		if isHigh {
			high++
		}
		if isLow {
			low++
		}
		if isHigh || isLow {
			nok++
		}
	}

	if usl != nil {
		within := n - high
		q.USL = ptr(*usl)
		q.OutOfSpecHigh = &high
		q.NOKPercentageHigh = pct(high)
		q.WithinSpecHigh = &within
	}
	if lsl != nil {
		within := n - low
		q.LSL = ptr(*lsl)
		q.OutOfSpecLow = &low
		q.NOKPercentageLow = pct(low)
		q.WithinSpecLow = &within
	}
	if usl != nil && lsl != nil {
		q.TotalNOK = &nok
		q.TotalNOKPercentage = pct(nok)
		q.TotalOKPercentage = pct(n - nok)
		cp, cpk := CpCpk(mean, std, *usl, *lsl)
		q.Cp = &cp
		q.Cpk = &cpk
	}
	return q, nil
}

// CpCpk returns the process capability indices. With zero spread Cp is
// +Inf, and Cpk is +Inf when the mean lies within [lsl, usl] and 0 otherwise.
func CpCpk(mean, std, usl, lsl float64) (cp, cpk models.Float) {
	if std == 0 || math.IsNaN(std) {
		cp = models.Float(math.Inf(1))
		if lsl <= mean && mean <= usl {
			return cp, models.Float(math.Inf(1))
		}
		return cp, 0
	}
	cpu := (usl - mean) / (3 * std)
	cpl := (mean - lsl) / (3 * std)
	return models.Float((usl - lsl) / (6 * std)), models.Float(math.Min(cpu, cpl))
}

func ptr[T any](v T) *T { return &v }
