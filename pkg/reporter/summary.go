package reporter

import (
	"fmt"
	"io"

	"github.com/songzhibin97/stackinspector/pkg/analyzer"
	"github.com/songzhibin97/stackinspector/pkg/parser"
)

// StateCount 某个状态的线程数
type StateCount struct {
	State   parser.ThreadState `json:"state"`
	Threads int                `json:"threads"`
}

// Summary 单个快照的概要
type Summary struct {
	Total    int                     `json:"total"`
	Daemon   int                     `json:"daemon"`
	States   []StateCount            `json:"states"`   // 固定枚举顺序，缺失补零
	Channels []analyzer.ChannelCount `json:"channels"` // 按线程数降序
}

// Summarize 统计线程总数、各状态线程数与各等待通道线程数
func Summarize(s *parser.Snapshot) Summary {
	h := s.Histogram()
	sum := Summary{
		Total:    s.Len(),
		States:   make([]StateCount, 0, len(parser.AllStates)),
		Channels: analyzer.WaitChannels(s).Counts(),
	}
	for _, st := range parser.AllStates {
		sum.States = append(sum.States, StateCount{State: st, Threads: h[st]})
	}
	for _, t := range s.Threads() {
		if t.Daemon {
			sum.Daemon++
		}
	}
	return sum
}

// errWriter 记录第一次写错误，之后的写入全部跳过
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	ew.printf("%s\n", s)
}

// WriteSummary 输出线程总数、状态分布与等待通道
func WriteSummary(w io.Writer, sum Summary) error {
	ew := &errWriter{w: w}
	ew.printf("Total threads: %d\n\n", sum.Total)
	for _, sc := range sum.States {
		ew.printf("\tstate: %-15s %10d\n", sc.State, sc.Threads)
	}
	for _, ch := range sum.Channels {
		ew.printf("\twchan: %s for %d threads\n", ch.Channel, ch.Threads)
	}
	return ew.err
}

// WriteTraceTable 输出排名表，entries 应当已经由 Rank 截断
func WriteTraceTable(w io.Writer, entries []analyzer.TraceEntry, opts RankOptions) error {
	ew := &errWriter{w: w}
	ew.printf("Most frequent calls (limit: %s, threshold: %s):\n", opts.Limit, opts.Threshold)
	for _, e := range entries {
		ew.printf("\t%-120s %5d\n", e.Signature, e.Count)
	}
	return ew.err
}

// WriteReport 单个快照的完整报告：概要加上过滤后的栈帧排名
// 快照没有线程时概要照常输出，随后返回 analyzer.ErrEmptySnapshot
func WriteReport(w io.Writer, s *parser.Snapshot, f analyzer.Filter, opts RankOptions) error {
	if err := WriteSummary(w, Summarize(s)); err != nil {
		return err
	}

	traces, err := analyzer.Joint(s, f)
	if err != nil {
		return err
	}
	return WriteTraceTable(w, Rank(traces, opts), opts)
}
