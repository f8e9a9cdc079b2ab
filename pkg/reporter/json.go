package reporter

import (
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/songzhibin97/stackinspector/pkg/analyzer"
	"github.com/songzhibin97/stackinspector/pkg/locator"
	"github.com/songzhibin97/stackinspector/pkg/parser"
	"github.com/songzhibin97/stackinspector/pkg/rules"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SnapshotJSON 单个快照报告的 JSON 结构
type SnapshotJSON struct {
	Taken     *time.Time            `json:"taken,omitempty"`
	VM        string                `json:"vm,omitempty"`
	Summary   Summary               `json:"summary"`
	Filter    string                `json:"filter"`
	Limit     string                `json:"limit"`
	Threshold string                `json:"threshold"`
	Traces    []analyzer.TraceEntry `json:"traces"`
}

// NewSnapshotJSON 构造单个快照的 JSON 报告
func NewSnapshotJSON(s *parser.Snapshot, f analyzer.Filter, opts RankOptions) (*SnapshotJSON, error) {
	traces, err := analyzer.Joint(s, f)
	if err != nil {
		return nil, err
	}
	out := &SnapshotJSON{
		VM:        s.VM(),
		Summary:   Summarize(s),
		Filter:    f.String(),
		Limit:     opts.Limit.String(),
		Threshold: opts.Threshold.String(),
		Traces:    Rank(traces, opts),
	}
	if taken := s.Taken(); !taken.IsZero() {
		out.Taken = &taken
	}
	return out, nil
}

// SeriesFileJSON 序列中单个文件的概要
type SeriesFileJSON struct {
	Path    string    `json:"path"`
	Time    time.Time `json:"time"`
	Size    int64     `json:"size"`
	Summary Summary   `json:"summary"`
}

// HotPathJSON 热点调用栈
type HotPathJSON struct {
	Threads   int      `json:"threads"`
	Pct       float64  `json:"pct"`
	State     string   `json:"state,omitempty"`
	RootCause string   `json:"root_cause,omitempty"`
	Frames    []string `json:"frames"` // 从入口到栈顶
}

// ContextJSON 发现对应的问题上下文
type ContextJSON struct {
	Explanation string        `json:"explanation,omitempty"`
	Impact      string        `json:"impact,omitempty"`
	HotPaths    []HotPathJSON `json:"hot_paths,omitempty"`
	Commands    []string      `json:"commands,omitempty"`
	Suggestions []string      `json:"suggestions,omitempty"`
}

// FindingJSON 发现及其上下文
type FindingJSON struct {
	rules.Finding
	Context *ContextJSON `json:"context,omitempty"`
}

// SeriesJSON 离线序列分析的 JSON 结构
type SeriesJSON struct {
	Files       []SeriesFileJSON         `json:"files"`
	Trends      *analyzer.SeriesTrends   `json:"trends,omitempty"`
	Accumulated []analyzer.TraceEntry    `json:"accumulated"`
	Findings    []FindingJSON            `json:"findings"`
	Insights    []analyzer.ThreadInsight `json:"insights,omitempty"`
}

// NewSeriesJSON 构造序列分析的 JSON 报告
func NewSeriesJSON(r SeriesReport) (*SeriesJSON, error) {
	out := &SeriesJSON{
		Files:    make([]SeriesFileJSON, 0, len(r.Files)),
		Trends:   r.Trends,
		Findings: make([]FindingJSON, 0, len(r.Findings)),
	}

	for _, file := range r.Files {
		out.Files = append(out.Files, SeriesFileJSON{
			Path:    file.Path,
			Time:    file.Time,
			Size:    file.Size,
			Summary: Summarize(file.Snapshot),
		})
	}

	if len(r.Files) > 0 {
		total, err := analyzer.AccumulateSeries(r.Files, r.Filter)
		if err != nil {
			return nil, err
		}
		out.Accumulated = Rank(total, r.Rank)
		out.Insights = analyzer.AnalyzeThreadInsights(r.Files[len(r.Files)-1].Metrics)
	}

	for _, f := range r.Findings {
		out.Findings = append(out.Findings, FindingJSON{
			Finding: f,
			Context: contextJSON(r.Contexts[f.RuleID]),
		})
	}
	return out, nil
}

func contextJSON(ctx *locator.ProblemContext) *ContextJSON {
	if ctx == nil {
		return nil
	}
	out := &ContextJSON{
		Explanation: ctx.Explanation,
		Impact:      ctx.Impact,
	}
	for _, hp := range ctx.HotPaths {
		h := HotPathJSON{
			Threads: hp.Chain.Threads,
			Pct:     hp.Chain.Pct,
			State:   hp.DominantState(),
		}
		if rc := hp.GetRootCause(); rc != nil {
			h.RootCause = rc.Signature
		}
		for _, fr := range hp.Chain.Frames {
			h.Frames = append(h.Frames, fr.Signature)
		}
		out.HotPaths = append(out.HotPaths, h)
	}
	for _, cmd := range ctx.Commands {
		out.Commands = append(out.Commands, cmd.Command)
	}
	for _, s := range ctx.Suggestions {
		out.Suggestions = append(out.Suggestions, s.Content)
	}
	return out
}

// WriteJSON 以缩进格式写出任意报告结构
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
