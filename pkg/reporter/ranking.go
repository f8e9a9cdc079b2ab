package reporter

import (
	"strconv"

	"github.com/songzhibin97/stackinspector/pkg/analyzer"
)

// Bound 可选的正整数上限，零值表示不限制
type Bound struct {
	n     int
	isSet bool
}

// NoBound 不限制
func NoBound() Bound { return Bound{} }

// AtMost 上限为 n，n 必须大于 0，否则等同于 NoBound
func AtMost(n int) Bound {
	if n <= 0 {
		return Bound{}
	}
	return Bound{n: n, isSet: true}
}

// BoundFromFlag 命令行取值到 Bound 的转换，n <= 0 表示不限制
func BoundFromFlag(n int) Bound { return AtMost(n) }

// Value 返回上限以及是否设置
func (b Bound) Value() (int, bool) { return b.n, b.isSet }

// String 未设置时输出 none
func (b Bound) String() string {
	if !b.isSet {
		return "none"
	}
	return strconv.Itoa(b.n)
}

// RankOptions 排名表的截断方式
type RankOptions struct {
	Limit     Bound // 最多输出多少项
	Threshold Bound // 遇到第一个计数小于该值的项时停止
}

// Rank 按计数降序（计数相同按签名升序）排列，再按 limit / threshold 截断
// threshold 是排名截断而非逐项过滤：遍历到第一个低于阈值的项即停止
func Rank(table analyzer.TraceCountTable, opts RankOptions) []analyzer.TraceEntry {
	entries := table.Sorted()

	limit, hasLimit := opts.Limit.Value()
	threshold, hasThreshold := opts.Threshold.Value()

	ranked := make([]analyzer.TraceEntry, 0, len(entries))
	for _, e := range entries {
		if hasLimit && len(ranked) >= limit {
			break
		}
		if hasThreshold && e.Count < threshold {
			break
		}
		ranked = append(ranked, e)
	}
	return ranked
}
