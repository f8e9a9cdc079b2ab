package rules

import (
	"github.com/songzhibin97/stackinspector/pkg/analyzer"
	"github.com/songzhibin97/stackinspector/pkg/parser"
)

// SnapshotValues 把快照指标展开成规则可引用的变量
//
//	threads, daemon, frames.unique, frames.total
//	state.<STATE>, ratio.<STATE>
//	wchan.max, wchan.max_ratio
func SnapshotValues(m *analyzer.SnapshotMetrics) map[string]float64 {
	values := make(map[string]float64)
	if m == nil {
		return values
	}

	values["threads"] = float64(m.TotalThreads)
	values["daemon"] = float64(m.DaemonThreads)
	values["frames.unique"] = float64(m.UniqueFrames)
	values["frames.total"] = float64(m.TotalFrames)

	for _, st := range parser.AllStates {
		values["state."+st.String()] = float64(m.States[st])
		values["ratio."+st.String()] = m.StateRatio(st)
	}

	values["wchan.max"] = float64(m.TopChannel.Threads)
	values["wchan.max_ratio"] = m.TopChannelRatio()
	return values
}

// TrendValues 把序列趋势展开成 trend.<series>.slope / trend.<series>.r2
func TrendValues(t *analyzer.SeriesTrends) map[string]float64 {
	values := make(map[string]float64)
	if t == nil {
		return values
	}

	put := func(name string, tm *analyzer.TrendMetrics) {
		if tm == nil {
			return
		}
		values["trend."+name+".slope"] = tm.Slope
		values["trend."+name+".r2"] = tm.R2
	}
	put("threads", t.ThreadCount)
	put("blocked", t.Blocked)
	put("waiting", t.Waiting)
	put("runnable", t.Runnable)
	return values
}
