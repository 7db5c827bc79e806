package domain

import (
	"strconv"
	"strings"
)

// Scale is the unit a trade metric is expressed in.
type Scale int

// Supported scales.
const (
	ScaleCash Scale = iota + 1
	ScalePercent
	ScaleTick
)

// AllScales lists every scale in report order.
var AllScales = []Scale{ScaleCash, ScalePercent, ScaleTick}

func (s Scale) String() string {
	switch s {
	case ScaleCash:
		return "cash"
	case ScalePercent:
		return "percent"
	case ScaleTick:
		return "tick"
	default:
		return "unknown"
	}
}

// Valid reports whether s is a supported scale.
func (s Scale) Valid() bool {
	return s == ScaleCash || s == ScalePercent || s == ScaleTick
}

// labelPrefix is the metric prefix used in summary labels.
func (s Scale) labelPrefix() string {
	switch s {
	case ScalePercent:
		return "Pct"
	case ScaleTick:
		return "Tick"
	default:
		return ""
	}
}

// ScaleFromString resolves a scale name ("cash", "percent"/"pct", "tick").
func ScaleFromString(name string) (Scale, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cash":
		return ScaleCash, true
	case "percent", "pct":
		return ScalePercent, true
	case "tick":
		return ScaleTick, true
	default:
		return 0, false
	}
}

// TradeDefinitionFromString resolves a definition name. Both dotted and
// dashed spellings are accepted.
func TradeDefinitionFromString(name string) (TradeDefinition, bool) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", ".") {
	case "flat.to.flat":
		return FlatToFlat, true
	case "flat.to.reduced":
		return FlatToReduced, true
	default:
		return 0, false
	}
}

// Sign selects the winning or losing partition of a trade table.
type Sign int

// Partitions.
const (
	SignPos Sign = iota + 1
	SignNeg
)

func (s Sign) String() string {
	switch s {
	case SignPos:
		return "pos"
	case SignNeg:
		return "neg"
	default:
		return "unknown"
	}
}

// SignFromString is the inverse of Sign.String.
func SignFromString(name string) (Sign, bool) {
	switch name {
	case "pos":
		return SignPos, true
	case "neg":
		return SignNeg, true
	default:
		return 0, false
	}
}

// Metric is the trade quantity a quantile is taken over.
type Metric int

// Metrics reported per partition.
const (
	MetricPL Metric = iota + 1
	MetricMAE
	MetricMFE
)

func (m Metric) String() string {
	switch m {
	case MetricPL:
		return "PL"
	case MetricMAE:
		return "MAE"
	case MetricMFE:
		return "MFE"
	default:
		return "unknown"
	}
}

// MetricFromString is the inverse of Metric.String.
func MetricFromString(name string) (Metric, bool) {
	switch name {
	case "PL":
		return MetricPL, true
	case "MAE":
		return MetricMAE, true
	case "MFE":
		return MetricMFE, true
	default:
		return 0, false
	}
}

// QuantileKey identifies one quantile value in a summary.
type QuantileKey struct {
	Sign   Sign
	Metric Metric
	Scale  Scale
	Level  float64
}

// Label formats the key as "{sign}{Metric} {level}", e.g. "posPL 0.95"
// or "negPctMAE 0.5".
func (k QuantileKey) Label() string {
	return k.Sign.String() + k.Scale.labelPrefix() + k.Metric.String() + " " + FormatLevel(k.Level)
}

// FormatLevel renders a probability with the shortest exact representation.
func FormatLevel(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// MaxCumLabel is the label of the per-scale "MAE at max cumulative P&L" entry.
func MaxCumLabel(s Scale) string {
	p := s.labelPrefix()
	return p + "MAE~max(cum" + p + "PL)"
}

// QuantileEntry is one quantile value.
type QuantileEntry struct {
	Key   QuantileKey
	Value float64
}

// MaxCumEntry is the MAE of the trade at which cumulative P&L peaks.
type MaxCumEntry struct {
	Scale Scale
	Value float64
}

// PartitionKey names a (scale, sign) partition that had no usable values.
type PartitionKey struct {
	Scale Scale
	Sign  Sign
}

// LabeledValue is one element of the flat labeled output vector.
type LabeledValue struct {
	Label string
	Value float64
}

// QuantileSummary is the trade-quantile result for one symbol.
// Corresponds to quantile_summaries table in ClickHouse.
type QuantileSummary struct {
	Symbol     string
	Definition TradeDefinition
	ComputedAt int64 // Unix ms

	TradeCount int
	Winners    int
	Losers     int

	Scales []Scale
	Probs  []float64

	Quantiles       []QuantileEntry
	MaxCum          []MaxCumEntry
	EmptyPartitions []PartitionKey
}

// Values returns the flat labeled vector: for each scale the quantile
// entries in stored order followed by that scale's max-cum entry.
func (s *QuantileSummary) Values() []LabeledValue {
	out := make([]LabeledValue, 0, len(s.Quantiles)+len(s.MaxCum))
	for _, scale := range s.Scales {
		for _, q := range s.Quantiles {
			if q.Key.Scale == scale {
				out = append(out, LabeledValue{Label: q.Key.Label(), Value: q.Value})
			}
		}
		for _, m := range s.MaxCum {
			if m.Scale == scale {
				out = append(out, LabeledValue{Label: MaxCumLabel(scale), Value: m.Value})
			}
		}
	}
	return out
}

// Labels returns the labels of Values in the same order.
func (s *QuantileSummary) Labels() []string {
	values := s.Values()
	labels := make([]string, len(values))
	for i, v := range values {
		labels[i] = v.Label
	}
	return labels
}

// Value looks up an entry by its display label.
func (s *QuantileSummary) Value(label string) (float64, bool) {
	for _, v := range s.Values() {
		if v.Label == label {
			return v.Value, true
		}
	}
	return 0, false
}

// Quantile looks up an entry by its structured key.
func (s *QuantileSummary) Quantile(key QuantileKey) (float64, bool) {
	for _, q := range s.Quantiles {
		if q.Key == key {
			return q.Value, true
		}
	}
	return 0, false
}
