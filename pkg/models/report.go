package models

import (
	"math"
	"strconv"
)

// Float is a float64 that survives JSON encoding when it is infinite or NaN.
// Those values are written as the strings "Infinity", "-Infinity" and "NaN".
type Float float64

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Float) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case `"Infinity"`:
		*f = Float(math.Inf(1))
		return nil
	case `"-Infinity"`:
		*f = Float(math.Inf(-1))
		return nil
	case `"NaN"`:
		*f = Float(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Statistics are the descriptive statistics of one column.
// Skewness and Kurtosis are nil when the sample is too small to define them.
type Statistics struct {
	Count    int      `json:"count"`
	Mean     float64  `json:"mean"`
	Median   float64  `json:"median"`
	Std      float64  `json:"std"`
	Min      float64  `json:"min"`
	Max      float64  `json:"max"`
	Q25      float64  `json:"q25"`
	Q75      float64  `json:"q75"`
	Variance float64  `json:"variance"`
	Skewness *float64 `json:"skewness"`
	Kurtosis *float64 `json:"kurtosis"`
}

// Quality holds specification-limit results. Fields stay nil for limits not supplied.
type Quality struct {
	USL               *float64 `json:"usl,omitempty"`
	OutOfSpecHigh     *int     `json:"out_of_spec_high,omitempty"`
	NOKPercentageHigh *float64 `json:"nok_percentage_high,omitempty"`
	WithinSpecHigh    *int     `json:"within_spec_high,omitempty"`

	LSL              *float64 `json:"lsl,omitempty"`
	OutOfSpecLow     *int     `json:"out_of_spec_low,omitempty"`
	NOKPercentageLow *float64 `json:"nok_percentage_low,omitempty"`
	WithinSpecLow    *int     `json:"within_spec_low,omitempty"`

	TotalNOK           *int     `json:"total_nok,omitempty"`
	TotalNOKPercentage *float64 `json:"total_nok_percentage,omitempty"`
	TotalOKPercentage  *float64 `json:"total_ok_percentage,omitempty"`
	Cp                 *Float   `json:"cp,omitempty"`
	Cpk                *Float   `json:"cpk,omitempty"`
}

// Bounds is a closed value interval.
type Bounds struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// LineStats summarises the analyzed column for one production line.
type LineStats struct {
	Line  string  `json:"line"`
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
}

// Insights are derived observations about the distribution.
type Insights struct {
	DistributionShape  string      `json:"distribution_shape,omitempty"`
	OutlierMethod      string      `json:"outlier_method"`
	OutlierFactor      float64     `json:"outlier_factor"`
	OutliersDetected   int         `json:"outliers_detected"`
	OutlierPercentage  float64     `json:"outlier_percentage"`
	OutlierBounds      *Bounds     `json:"outlier_bounds,omitempty"`
	RelativeStdPercent *float64    `json:"relative_standard_deviation_percent,omitempty"`
	ProcessStability   string      `json:"process_stability,omitempty"`
	LineDistribution   []LineShare `json:"production_line_distribution,omitempty"`
	LinePerformance    []LineStats `json:"line_performance_comparison,omitempty"`
}

// FilteringInfo reports how many rows the pre-filters removed.
type FilteringInfo struct {
	OriginalRecords int `json:"original_records"`
	RecordsAfter    int `json:"records_after_filtering"`
	RecordsRemoved  int `json:"records_removed_by_filtering"`
}

// QualityReport is the analysis of one column. It is derived data and is
// recomputed for every request.
type QualityReport struct {
	Column          string        `json:"column_analyzed"`
	Statistics      Statistics    `json:"statistics"`
	Quality         *Quality      `json:"quality,omitempty"`
	Insights        Insights      `json:"insights"`
	Filtering       FilteringInfo `json:"filtering_info"`
	AnalyzedRecords int           `json:"analyzed_records"`
}

// Stability classes.
const (
	StabilityStable     = "stable"
	StabilityModerate   = "moderately_stable"
	StabilityUnstable   = "unstable"
	ShapeSymmetric      = "approximately_symmetric"
	ShapeRightSkewed    = "right_skewed"
	ShapeLeftSkewed     = "left_skewed"
	OutlierMethodIQR    = "iqr"
	OutlierMethodZScore = "zscore"
)
