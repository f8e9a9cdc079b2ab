package analyzer

import (
	"github.com/songzhibin97/stackinspector/pkg/parser"
)

// runnableChannel 未阻塞线程的等待通道标记
const runnableChannel = "runnable"

// SnapshotMetrics 单个快照的线程指标
type SnapshotMetrics struct {
	TotalThreads  int
	DaemonThreads int
	States        parser.StateHistogram // 六个状态齐全，缺失补零

	// 等待通道
	Channels   []ChannelCount
	TopChannel ChannelCount // 线程最多的阻塞通道（不含 runnable）

	// 栈帧
	UniqueFrames int
	TotalFrames  int
	TopFrames    []TraceEntry
}

// StateRatio 指定状态线程占比 (0~1)
func (m *SnapshotMetrics) StateRatio(state parser.ThreadState) float64 {
	if m == nil || m.TotalThreads == 0 {
		return 0
	}
	return float64(m.States[state]) / float64(m.TotalThreads)
}

// TopChannelRatio 最大阻塞通道的线程占比 (0~1)
func (m *SnapshotMetrics) TopChannelRatio() float64 {
	if m == nil || m.TotalThreads == 0 {
		return 0
	}
	return float64(m.TopChannel.Threads) / float64(m.TotalThreads)
}

// ExtractMetrics 从快照中提取指标
func ExtractMetrics(s *parser.Snapshot) *SnapshotMetrics {
	if s == nil {
		return nil
	}

	metrics := &SnapshotMetrics{
		TotalThreads: s.Len(),
		States:       s.Histogram(),
		Channels:     WaitChannels(s).Counts(),
	}

	for _, t := range s.Threads() {
		if t.Daemon {
			metrics.DaemonThreads++
		}
	}

	// Channels 已排序，第一个非 runnable 通道即最大阻塞通道
	for _, ch := range metrics.Channels {
		if ch.Channel != runnableChannel {
			metrics.TopChannel = ch
			break
		}
	}

	if s.Len() == 0 {
		return metrics
	}

	traces, err := Joint(s, Filter{})
	if err != nil {
		return metrics
	}
	metrics.UniqueFrames = len(traces)
	metrics.TotalFrames = traces.Total()
	metrics.TopFrames = topEntries(traces, 10)

	return metrics
}

// topEntries 取 Top N 栈帧
func topEntries(traces TraceCountTable, n int) []TraceEntry {
	entries := traces.Sorted()
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
