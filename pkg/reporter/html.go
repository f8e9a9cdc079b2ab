package reporter

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/songzhibin97/stackinspector/pkg/analyzer"
	"github.com/songzhibin97/stackinspector/pkg/locator"
	"github.com/songzhibin97/stackinspector/pkg/parser"
	"github.com/songzhibin97/stackinspector/pkg/rules"
)

// HTMLReportData HTML 报告数据
type HTMLReportData struct {
	Title           string
	Generated       string
	Files           []HTMLFileData
	TimeRange       string
	Duration        string
	Trends          []HTMLTrend
	Insights        []analyzer.ThreadInsight
	FilterLabel     string
	RankLabel       string
	Accumulated     []analyzer.TraceEntry
	Findings        []rules.Finding
	ProblemContexts map[string]*HTMLProblemContext // RuleID -> HTMLProblemContext
}

// HTMLFileData 单个 dump 文件
type HTMLFileData struct {
	Name       string
	Time       string
	Size       string
	Threads    string
	Daemon     string
	States     []StateCount
	TopChannel string
	TopFrames  []analyzer.TraceEntry
}

// HTMLTrend R² > 0.7 的趋势
type HTMLTrend struct {
	Label     string
	Direction string
	Slope     float64
	R2        float64
}

// HTMLHotPath HTML 报告中的热点路径数据
type HTMLHotPath struct {
	Index       int
	Threads     int
	Pct         float64
	State       string
	Summary     string
	Frames      []HTMLStackFrame
	HasBusiness bool
}

// HTMLStackFrame HTML 报告中的栈帧数据
type HTMLStackFrame struct {
	Category     string
	CategoryName string
	CategoryIcon string
	ShortName    string
	Location     string
	IsHighlight  bool
	HighlightTag string
	IsNewSection bool
}

// HTMLSuggestion HTML 报告中的建议
type HTMLSuggestion struct {
	Category string
	Content  string
}

// HTMLProblemContext HTML 报告中的问题上下文
type HTMLProblemContext struct {
	Explanation          string
	Impact               string
	HotPaths             []HTMLHotPath
	Commands             []locator.ExecutableCmd
	ImmediateSuggestions []HTMLSuggestion
	LongTermSuggestions  []HTMLSuggestion
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            min-height: 100vh;
            padding: 20px;
        }
        .container { max-width: 1200px; margin: 0 auto; }
        .header, .group {
            background: white;
            border-radius: 16px;
            padding: 25px;
            margin-bottom: 20px;
            box-shadow: 0 10px 40px rgba(0,0,0,0.1);
        }
        .header { text-align: center; }
        .header h1 { color: #333; font-size: 2em; margin-bottom: 10px; }
        .header .generated { color: #666; font-size: 0.9em; }
        .group-header { display: flex; align-items: center; margin-bottom: 20px; padding-bottom: 15px; border-bottom: 2px solid #f0f0f0; }
        .group-title { font-size: 1.4em; color: #333; }
        .group-count { background: #667eea; color: white; padding: 4px 12px; border-radius: 20px; font-size: 0.85em; margin-left: 15px; }
        .file-card { background: #f8f9fa; border-radius: 12px; padding: 20px; margin-bottom: 15px; border-left: 4px solid #667eea; }
        .file-name { font-weight: 600; color: #333; font-size: 1.1em; }
        .file-meta { display: flex; gap: 20px; font-size: 0.9em; color: #666; margin: 10px 0; }
        .metrics-grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(140px, 1fr)); gap: 10px; margin-bottom: 10px; }
        .metric-card { background: white; border-radius: 8px; padding: 10px; box-shadow: 0 2px 8px rgba(0,0,0,0.05); }
        .metric-label { font-size: 0.8em; color: #888; }
        .metric-value { font-size: 1.2em; font-weight: 600; color: #333; }
        .mono { font-family: 'Monaco', 'Menlo', monospace; font-size: 0.85em; }
        table.traces { width: 100%; border-collapse: collapse; }
        table.traces td { padding: 4px 8px; border-bottom: 1px solid #f0f0f0; }
        table.traces td.count { text-align: right; font-weight: 600; color: #667eea; }
        .insight-card { border-radius: 8px; padding: 12px; margin-bottom: 10px; border-left: 4px solid #3498db; background: #f0f8ff; }
        .insight-card.critical { border-left-color: #e74c3c; background: #fff5f5; }
        .insight-card.warning { border-left-color: #f39c12; background: #fffbf0; }
        .finding-item { border-radius: 8px; padding: 15px; margin-bottom: 15px; border-left: 4px solid #888; background: #fafafa; }
        .finding-critical, .finding-high { border-left-color: #e74c3c; }
        .finding-medium { border-left-color: #f39c12; }
        .finding-low { border-left-color: #27ae60; }
        .finding-title { font-weight: 600; font-size: 1.1em; }
        .finding-meta { color: #666; font-size: 0.85em; margin: 5px 0 10px; }
        .section-title { font-weight: 600; margin: 12px 0 6px; }
        .call-chain-frame { display: flex; gap: 10px; padding: 4px 0; }
        .call-chain-frame.highlight { background: #fff8e1; }
        .frame-separator { border-top: 1px dashed #ccc; margin: 4px 0; }
        .frame-tag { color: #f39c12; font-weight: 600; }
        .frame-tag.root-cause { color: #e74c3c; }
        .command-code { background: #2d2d2d; color: #f8f8f2; padding: 8px; border-radius: 6px; margin: 4px 0; }
        .command-hint { color: #888; font-size: 0.85em; }
        .warning-box { color: #b9770e; margin-top: 6px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>🔍 {{.Title}}</h1>
            <div class="generated">生成时间: {{.Generated}}</div>
        </div>

        {{if .Findings}}
        <div class="group">
            <div class="group-header">
                <span class="group-title">规则发现</span>
                <span class="group-count">{{len .Findings}} 个发现</span>
            </div>
            {{range .Findings}}
            <div class="finding-item finding-{{.Severity}}">
                <div class="finding-title">{{.Title}}</div>
                <div class="finding-meta">规则: {{.RuleName}} ({{.RuleID}}) | 严重程度: {{.Severity}} | 范围: {{.Scope}}</div>
                {{range $k, $v := .Evidence}}<div>• {{$k}}: {{$v}}</div>{{end}}
                {{$ctx := index $.ProblemContexts .RuleID}}
                {{if $ctx}}
                    {{if $ctx.Explanation}}<div class="section-title">📝 问题解释</div><p>{{$ctx.Explanation}}</p>{{end}}
                    {{if $ctx.Impact}}<div class="section-title">📊 影响评估</div><p>{{$ctx.Impact}}</p>{{end}}
                    {{range $idx, $hp := $ctx.HotPaths}}
                    <details {{if eq $idx 0}}open{{end}}>
                        <summary>热点 #{{$hp.Index}}: {{$hp.Threads}} 个线程 ({{printf "%.1f" $hp.Pct}}%) {{$hp.State}}</summary>
                        <div>调用链: {{$hp.Summary}}</div>
                        {{range $hp.Frames}}
                        {{if .IsNewSection}}<div class="frame-separator"></div>{{end}}
                        <div class="call-chain-frame {{if .IsHighlight}}highlight{{end}}">
                            <span class="frame-{{.Category}}">{{.CategoryIcon}} {{.CategoryName}}</span>
                            <span class="mono">{{.ShortName}} ({{.Location}})</span>
                            {{if .HighlightTag}}<span class="frame-tag {{if eq .HighlightTag "根因"}}root-cause{{end}}">← {{.HighlightTag}}</span>{{end}}
                        </div>
                        {{end}}
                        {{if not $hp.HasBusiness}}<div class="warning-box">⚠️ 该路径中没有业务代码 - 可能是 JVM 内部线程或框架线程池</div>{{end}}
                    </details>
                    {{end}}
                    {{if $ctx.Commands}}
                    <div class="section-title">💻 调试命令</div>
                    {{range $ctx.Commands}}
                    <div>{{.Description}}</div>
                    <div class="command-code mono">$ {{.Command}}</div>
                    {{if .OutputHint}}<div class="command-hint">说明: {{.OutputHint}}</div>{{end}}
                    {{end}}
                    {{end}}
                    {{if $ctx.ImmediateSuggestions}}<div class="section-title">💡 立即</div>{{range $ctx.ImmediateSuggestions}}<div>• {{.Content}}</div>{{end}}{{end}}
                    {{if $ctx.LongTermSuggestions}}<div class="section-title">💡 长期</div>{{range $ctx.LongTermSuggestions}}<div>• {{.Content}}</div>{{end}}{{end}}
                {{else}}
                    {{range .Suggestions}}<div>• {{.}}</div>{{end}}
                {{end}}
            </div>
            {{end}}
        </div>
        {{end}}

        <div class="group">
            <div class="group-header">
                <span class="group-title">线程 dump</span>
                <span class="group-count">{{len .Files}} 个文件</span>
            </div>
            {{range $index, $file := .Files}}
            <div class="file-card">
                <div class="file-name">{{add $index 1}}. {{$file.Name}}</div>
                <div class="file-meta"><span>🕐 {{$file.Time}}</span><span>📦 {{$file.Size}}</span></div>
                <div class="metrics-grid">
                    <div class="metric-card"><div class="metric-label">线程数</div><div class="metric-value">{{$file.Threads}}</div></div>
                    <div class="metric-card"><div class="metric-label">守护线程</div><div class="metric-value">{{$file.Daemon}}</div></div>
                    {{range $file.States}}
                    <div class="metric-card"><div class="metric-label">{{.State}}</div><div class="metric-value">{{.Threads}}</div></div>
                    {{end}}
                </div>
                {{if $file.TopChannel}}<div>最拥挤等待通道: {{$file.TopChannel}}</div>{{end}}
                {{if $file.TopFrames}}
                <table class="traces">
                    {{range $file.TopFrames}}<tr><td class="mono">{{.Signature}}</td><td class="count">{{.Count}}</td></tr>{{end}}
                </table>
                {{end}}
            </div>
            {{end}}

            {{if .TimeRange}}<div>📊 时间范围: {{.TimeRange}} | ⏱️ 持续时间: {{.Duration}}</div>{{end}}

            {{range .Trends}}
            <div>{{if eq .Direction "increasing"}}📈{{else if eq .Direction "decreasing"}}📉{{else}}➡️{{end}} {{.Label}}: 斜率={{printf "%.2f" .Slope}}, R²={{printf "%.2f" .R2}} ({{.Direction}})</div>
            {{end}}

            {{range .Insights}}
            <div class="insight-card {{.Level}}"><strong>{{.Title}}</strong><div>{{.Description}}</div></div>
            {{end}}
        </div>

        <div class="group">
            <div class="group-header">
                <span class="group-title">累计栈帧</span>
                <span class="group-count">{{.FilterLabel}}</span>
            </div>
            <div class="finding-meta">{{.RankLabel}}</div>
            <table class="traces">
                {{range .Accumulated}}<tr><td class="mono">{{.Signature}}</td><td class="count">{{.Count}}</td></tr>{{end}}
            </table>
        </div>
    </div>
</body>
</html>`

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"add": func(a, b int) int { return a + b },
}).Parse(htmlTemplate))

// NewHTMLReportData 把序列报告转换为模板数据
func NewHTMLReportData(r SeriesReport) (*HTMLReportData, error) {
	data := &HTMLReportData{
		Title:           "StackInspector 线程分析报告",
		Generated:       time.Now().UTC().Format(time.RFC3339),
		FilterLabel:     r.Filter.String(),
		RankLabel:       fmt.Sprintf("limit: %s, threshold: %s", r.Rank.Limit, r.Rank.Threshold),
		Findings:        r.Findings,
		ProblemContexts: make(map[string]*HTMLProblemContext),
	}

	for ruleID, ctx := range r.Contexts {
		data.ProblemContexts[ruleID] = convertProblemContextToHTML(ctx)
	}

	for _, file := range r.Files {
		data.Files = append(data.Files, convertFileToHTML(file))
	}

	if len(r.Files) > 1 {
		first := r.Files[0].Time.UTC()
		last := r.Files[len(r.Files)-1].Time.UTC()
		data.TimeRange = fmt.Sprintf("%s → %s",
			first.Format("2006-01-02 15:04:05"),
			last.Format("2006-01-02 15:04:05"))
		data.Duration = formatDuration(last.Sub(first))
	}

	if r.Trends != nil {
		data.Trends = convertTrendsToHTML(r.Trends)
	}

	if len(r.Files) > 0 {
		data.Insights = analyzer.AnalyzeThreadInsights(r.Files[len(r.Files)-1].Metrics)

		total, err := analyzer.AccumulateSeries(r.Files, r.Filter)
		if err != nil {
			return nil, err
		}
		data.Accumulated = Rank(total, r.Rank)
	}

	return data, nil
}

// WriteHTMLReport 生成 HTML 格式的分析报告
func WriteHTMLReport(w io.Writer, r SeriesReport) error {
	data, err := NewHTMLReportData(r)
	if err != nil {
		return err
	}
	if err := reportTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

// WriteHTMLReportFile 生成 HTML 报告文件
func WriteHTMLReportFile(outputPath string, r SeriesReport) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file '%s': %w", outputPath, err)
	}
	if err := WriteHTMLReport(file, r); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func convertFileToHTML(file analyzer.SnapshotFile) HTMLFileData {
	out := HTMLFileData{
		Name: filepath.Base(file.Path),
		Time: file.Time.UTC().Format(time.RFC3339),
		Size: humanize.Bytes(uint64(file.Size)),
	}
	m := file.Metrics
	if m == nil {
		return out
	}

	out.Threads = humanize.Comma(int64(m.TotalThreads))
	out.Daemon = humanize.Comma(int64(m.DaemonThreads))
	for _, st := range parser.AllStates {
		out.States = append(out.States, StateCount{State: st, Threads: m.States[st]})
	}
	if m.TopChannel.Threads > 0 {
		out.TopChannel = fmt.Sprintf("%s (%d 个线程, %.1f%%)",
			m.TopChannel.Channel, m.TopChannel.Threads, m.TopChannelRatio()*100)
	}
	out.TopFrames = m.TopFrames
	if len(out.TopFrames) > 5 {
		out.TopFrames = out.TopFrames[:5]
	}
	return out
}

func convertTrendsToHTML(trends *analyzer.SeriesTrends) []HTMLTrend {
	items := []struct {
		label string
		trend *analyzer.TrendMetrics
	}{
		{"线程总数", trends.ThreadCount},
		{"BLOCKED", trends.Blocked},
		{"WAITING", trends.Waiting},
		{"RUNNABLE", trends.Runnable},
	}

	var out []HTMLTrend
	for _, it := range items {
		if it.trend == nil || it.trend.R2 <= 0.7 {
			continue
		}
		out = append(out, HTMLTrend{
			Label:     it.label,
			Direction: it.trend.Direction,
			Slope:     it.trend.Slope,
			R2:        it.trend.R2,
		})
	}
	return out
}

// convertProblemContextToHTML 转换 ProblemContext 为 HTML 模板友好格式
func convertProblemContextToHTML(ctx *locator.ProblemContext) *HTMLProblemContext {
	if ctx == nil {
		return nil
	}

	htmlCtx := &HTMLProblemContext{
		Explanation: strings.TrimSpace(ctx.Explanation),
		Impact:      ctx.Impact,
		HotPaths:    ConvertHotPathsForHTML(ctx.HotPaths),
		Commands:    ctx.Commands,
	}
	htmlCtx.ImmediateSuggestions, htmlCtx.LongTermSuggestions = ConvertSuggestionsForHTML(ctx.Suggestions)
	return htmlCtx
}

// ConvertHotPathsForHTML 将 HotPath 列表转换为 HTML 友好格式
func ConvertHotPathsForHTML(hotPaths []locator.HotPath) []HTMLHotPath {
	result := make([]HTMLHotPath, 0, len(hotPaths))
	for i, hp := range hotPaths {
		htmlHP := HTMLHotPath{
			Index:       i + 1,
			Threads:     hp.Chain.Threads,
			Pct:         hp.Chain.Pct,
			State:       hp.DominantState(),
			Summary:     hp.Chain.Summary(),
			HasBusiness: hp.Chain.HasBusinessCode(),
		}

		businessFrameSet := make(map[int]bool)
		for _, idx := range hp.BusinessFrames {
			businessFrameSet[idx] = true
		}

		var lastCategory locator.CodeCategory
		for j, frame := range hp.Chain.Frames {
			htmlFrame := HTMLStackFrame{
				Category:     string(frame.Category),
				CategoryName: frame.Category.String(),
				CategoryIcon: frame.Category.Icon(),
				ShortName:    frame.ShortName,
				Location:     frame.Location(),
				IsHighlight:  businessFrameSet[j],
				IsNewSection: j > 0 && frame.Category != lastCategory,
			}
			if businessFrameSet[j] {
				if j == hp.RootCauseIndex {
					htmlFrame.HighlightTag = "根因"
				} else {
					htmlFrame.HighlightTag = "关注"
				}
			}
			htmlHP.Frames = append(htmlHP.Frames, htmlFrame)
			lastCategory = frame.Category
		}

		result = append(result, htmlHP)
	}
	return result
}

// ConvertSuggestionsForHTML 分离立即和长期建议
func ConvertSuggestionsForHTML(suggestions []locator.Suggestion) (immediate, longTerm []HTMLSuggestion) {
	for _, s := range suggestions {
		htmlSuggestion := HTMLSuggestion{Category: s.Category, Content: s.Content}
		if s.Category == "long_term" {
			longTerm = append(longTerm, htmlSuggestion)
		} else {
			immediate = append(immediate, htmlSuggestion)
		}
	}
	return immediate, longTerm
}
