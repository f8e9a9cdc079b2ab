package histo

import (
	"sort"

	"github.com/songzhibin97/stackinspector/pkg/analyzer"
)

// Point 某个类在一次直方图中的取值
type Point struct {
	Instances int64 `json:"instances"`
	Bytes     int64 `json:"bytes"`
}

// Series 类名 -> 每个直方图一个点，下标与输入直方图一一对应
type Series map[string][]Point

// BuildSeries 把多次直方图合并成按类的时间序列
// 某次直方图中不存在的类记为 0；delta 为 true 时每个点都减去第一次直方图中的值
func BuildSeries(histos []*Histogram, delta bool) Series {
	series := make(Series)
	if len(histos) == 0 {
		return series
	}

	classes := make(map[string]struct{})
	for _, h := range histos {
		for _, class := range h.Order {
			classes[class] = struct{}{}
		}
	}

	base := histos[0]
	for class := range classes {
		var start Point
		if delta {
			if e, ok := base.Entries[class]; ok {
				start = Point{Instances: e.Instances, Bytes: e.Bytes}
			}
		}

		points := make([]Point, len(histos))
		for i, h := range histos {
			e := h.Entries[class]
			points[i] = Point{
				Instances: e.Instances - start.Instances,
				Bytes:     e.Bytes - start.Bytes,
			}
		}
		series[class] = points
	}
	return series
}

// ClassPeak 类及其峰值内存
type ClassPeak struct {
	Class     string
	PeakBytes int64
}

// Top 峰值内存最大的 n 个类，按峰值降序、类名升序排列；n <= 0 返回全部
func Top(series Series, n int) []ClassPeak {
	peaks := make([]ClassPeak, 0, len(series))
	for class, points := range series {
		if len(points) == 0 {
			continue
		}
		peak := points[0].Bytes
		for _, p := range points[1:] {
			if p.Bytes > peak {
				peak = p.Bytes
			}
		}
		peaks = append(peaks, ClassPeak{Class: class, PeakBytes: peak})
	}

	sort.Slice(peaks, func(i, j int) bool {
		if peaks[i].PeakBytes != peaks[j].PeakBytes {
			return peaks[i].PeakBytes > peaks[j].PeakBytes
		}
		return peaks[i].Class < peaks[j].Class
	})

	if n > 0 && len(peaks) > n {
		peaks = peaks[:n]
	}
	return peaks
}

// ClassTrend 对某个类的内存占用做线性回归，少于 3 个点时返回 nil
func ClassTrend(points []Point) *analyzer.TrendMetrics {
	if len(points) < 3 {
		return nil
	}
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = float64(p.Bytes)
	}
	return analyzer.TrendOf(values)
}
