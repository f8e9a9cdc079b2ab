package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// 单个比较: <metric> <op> <number>
var reComparison = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*)\s*(>=|<=|==|!=|>|<)\s*(-?[0-9]+(?:\.[0-9]+)?)$`)

// comparison 条件中的一个比较项
type comparison struct {
	Metric string
	Op     string
	Value  float64
}

// condition 由 && 连接的比较项，全部成立才算满足
type condition []comparison

// parseCondition 解析条件表达式，例如 "ratio.BLOCKED >= 0.3 && threads > 20"
func parseCondition(expr string) (condition, error) {
	parts := strings.Split(expr, "&&")
	cond := make(condition, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		m := reComparison.FindStringSubmatch(part)
		if m == nil {
			return nil, fmt.Errorf("invalid comparison %q", part)
		}
		value, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number in %q: %w", part, err)
		}
		cond = append(cond, comparison{Metric: m[1], Op: m[2], Value: value})
	}
	return cond, nil
}

// Eval 对指标求值；引用了不存在的指标时条件不成立
func (c condition) Eval(values map[string]float64) bool {
	if len(c) == 0 {
		return false
	}
	for _, cmp := range c {
		v, ok := values[cmp.Metric]
		if !ok || !cmp.holds(v) {
			return false
		}
	}
	return true
}

func (c comparison) holds(v float64) bool {
	switch c.Op {
	case ">":
		return v > c.Value
	case ">=":
		return v >= c.Value
	case "<":
		return v < c.Value
	case "<=":
		return v <= c.Value
	case "==":
		return v == c.Value
	case "!=":
		return v != c.Value
	}
	return false
}
