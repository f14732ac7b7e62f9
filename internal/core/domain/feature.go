package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// CompareOp is a comparison operator applied by the persistence layer's
// audio-feature query.
type CompareOp string

const (
	OpLT  CompareOp = "lt"
	OpLTE CompareOp = "lte"
	OpGT  CompareOp = "gt"
	OpGTE CompareOp = "gte"
	OpEQ  CompareOp = "eq"
	OpNE  CompareOp = "ne"
)

// FeatureRule is one audio-feature threshold check. Tracks whose feature value
// does NOT satisfy the comparison are removed by the track filter.
type FeatureRule struct {
	Feature   string
	Op        CompareOp
	Threshold float64
}

// ParseFeatureExpr parses a configuration expression of the form
// "<op>&&<threshold>", e.g. "gte&&0.7" for "keep tracks with feature >= 0.7".
func ParseFeatureExpr(feature, expr string) (FeatureRule, error) {
	parts := strings.SplitN(expr, "&&", 2)
	if len(parts) != 2 {
		return FeatureRule{}, fmt.Errorf("feature %s: expression %q is not of the form op&&threshold", feature, expr)
	}

	op := CompareOp(parts[0])
	switch op {
	case OpLT, OpLTE, OpGT, OpGTE, OpEQ, OpNE:
	default:
		return FeatureRule{}, fmt.Errorf("feature %s: unknown operator %q", feature, parts[0])
	}

	threshold, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return FeatureRule{}, fmt.Errorf("feature %s: threshold %q: %w", feature, parts[1], err)
	}

	return FeatureRule{Feature: feature, Op: op, Threshold: threshold}, nil
}
