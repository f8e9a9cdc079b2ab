package reporter

import (
	"io"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/songzhibin97/stackinspector/pkg/histo"
)

// HistoReport jmap -histo 序列报告
type HistoReport struct {
	Histograms []*histo.Histogram
	Series     histo.Series
	Delta      bool // Series 是否相对第一次直方图
	Top        int  // 输出峰值最大的前 N 个类，<= 0 表示全部
}

// WriteHistoSeries 按类输出内存占用随时间的变化
func WriteHistoSeries(w io.Writer, r HistoReport) error {
	ew := &errWriter{w: w}

	if len(r.Histograms) == 0 {
		ew.println("📭 没有找到可分析的 jmap -histo 文件")
		return ew.err
	}

	ew.println("\n" + banner)
	ew.println("                 StackInspector 堆直方图报告")
	ew.println(banner)

	ew.printf("\n📁 直方图 (%d 个文件):\n", len(r.Histograms))
	ew.println(separator)
	for i, h := range r.Histograms {
		name := h.Source
		if name != "" {
			name = filepath.Base(name)
		} else {
			name = "-"
		}
		ew.printf("  %d. %s (%d 个类)\n", i+1, name, h.Len())
	}

	mode := "绝对值"
	if r.Delta {
		mode = "相对第一个文件的增量"
	}
	ew.printf("\n📦 峰值内存最大的类 (%s):\n", mode)

	for i, peak := range histo.Top(r.Series, r.Top) {
		points := r.Series[peak.Class]
		ew.printf("\n  %d. %s (峰值 %s)\n", i+1, peak.Class, formatSignedBytes(peak.PeakBytes))

		for j, p := range points {
			ew.printf("     %3d: %14s 个实例 %12s\n",
				j+1, humanize.Comma(p.Instances), formatSignedBytes(p.Bytes))
		}

		if trend := histo.ClassTrend(points); trend != nil && trend.R2 > 0.7 {
			ew.printf("     %s 斜率=%s/快照, R²=%.2f (%s)\n",
				getDirectionIcon(trend.Direction), formatSignedBytes(int64(trend.Slope)), trend.R2, trend.Direction)
		}
	}

	ew.println("\n" + banner)
	return ew.err
}

// formatSignedBytes 增量模式下字节数可能为负
func formatSignedBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return humanize.Bytes(uint64(n))
}
