package analyzer

import (
	"math"

	"github.com/songzhibin97/stackinspector/pkg/parser"
)

// TrendMetrics 趋势指标
type TrendMetrics struct {
	Slope     float64 // 斜率（每个快照的变化量）
	R2        float64 // R² 决定系数
	Direction string  // "increasing", "decreasing", "stable"
}

// SeriesTrends 快照序列的趋势数据
type SeriesTrends struct {
	ThreadCount *TrendMetrics // 线程总数趋势
	Blocked     *TrendMetrics // BLOCKED 线程数趋势
	Waiting     *TrendMetrics // WAITING + TIMED_WAITING 线程数趋势
	Runnable    *TrendMetrics // RUNNABLE 线程数趋势
}

// minTrendPoints 计算趋势需要的最少快照数
const minTrendPoints = 3

// CalculateTrends 计算快照序列的趋势
// 需要至少 3 个快照才能计算趋势
func CalculateTrends(series []SnapshotFile) *SeriesTrends {
	if len(series) < minTrendPoints {
		return nil
	}

	var threads, blocked, waiting, runnable []float64
	for _, file := range series {
		m := file.Metrics
		if m == nil {
			continue
		}
		threads = append(threads, float64(m.TotalThreads))
		blocked = append(blocked, float64(m.States[parser.StateBlocked]))
		waiting = append(waiting, float64(m.States[parser.StateWaiting]+m.States[parser.StateTimedWaiting]))
		runnable = append(runnable, float64(m.States[parser.StateRunnable]))
	}

	if len(threads) < minTrendPoints {
		return nil
	}

	return &SeriesTrends{
		ThreadCount: TrendOf(threads),
		Blocked:     TrendOf(blocked),
		Waiting:     TrendOf(waiting),
		Runnable:    TrendOf(runnable),
	}
}

// TrendOf 对一组数据点做线性回归
func TrendOf(values []float64) *TrendMetrics {
	slope, r2 := LinearRegression(values)
	return &TrendMetrics{
		Slope:     slope,
		R2:        r2,
		Direction: getDirection(slope),
	}
}

// LinearRegression 计算线性回归的斜率和 R²
// 使用最小二乘法
func LinearRegression(values []float64) (slope, r2 float64) {
	n := float64(len(values))
	if n < 2 {
		return 0, 0
	}

	// 检查是否有无效值
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0
		}
	}

	// 计算均值
	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	meanX := sumX / n
	meanY := sumY / n

	// 检查均值是否有效
	if math.IsNaN(meanY) || math.IsInf(meanY, 0) {
		return 0, 0
	}

	// 计算斜率
	numerator := sumXY - n*meanX*meanY
	denominator := sumX2 - n*meanX*meanX

	if denominator == 0 {
		return 0, 0
	}

	slope = numerator / denominator

	// 检查斜率是否有效
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 0, 0
	}

	// 计算 R²
	// R² = 1 - SS_res / SS_tot
	var ssRes, ssTot float64
	intercept := meanY - slope*meanX

	// 检查截距是否有效
	if math.IsNaN(intercept) || math.IsInf(intercept, 0) {
		return 0, 0
	}

	for i, y := range values {
		x := float64(i)
		predicted := slope*x + intercept
		if math.IsNaN(predicted) || math.IsInf(predicted, 0) {
			return 0, 0
		}
		ssRes += (y - predicted) * (y - predicted)
		ssTot += (y - meanY) * (y - meanY)
	}

	// 检查 ssRes 和 ssTot 是否有效
	if math.IsNaN(ssRes) || math.IsInf(ssRes, 0) ||
		math.IsNaN(ssTot) || math.IsInf(ssTot, 0) {
		return 0, 0
	}

	if ssTot == 0 {
		// 所有值相同
		r2 = 1.0
	} else {
		r2 = 1 - ssRes/ssTot
	}

	// 确保 R² 在 [0, 1] 范围内
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		r2 = 0
	}
	r2 = math.Max(0, math.Min(1, r2))

	return slope, r2
}

// getDirection 根据斜率判断趋势方向
func getDirection(slope float64) string {
	const threshold = 0.01 // 斜率阈值
	if slope > threshold {
		return "increasing"
	} else if slope < -threshold {
		return "decreasing"
	}
	return "stable"
}
