package reporter

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/songzhibin97/stackinspector/pkg/analyzer"
	"github.com/songzhibin97/stackinspector/pkg/locator"
	"github.com/songzhibin97/stackinspector/pkg/parser"
	"github.com/songzhibin97/stackinspector/pkg/rules"
)

const (
	banner    = "═══════════════════════════════════════════════════════════"
	separator = "───────────────────────────────────────────────────────────"
)

// SeriesReport 离线分析多个 dump 文件时的报告内容
type SeriesReport struct {
	Files    []analyzer.SnapshotFile
	Trends   *analyzer.SeriesTrends
	Findings []rules.Finding
	Contexts map[string]*locator.ProblemContext // RuleID -> 上下文
	Filter   analyzer.Filter                    // 累计栈帧表使用的过滤条件
	Rank     RankOptions
}

// WriteSeriesReport 生成带问题上下文的文本格式分析报告
func WriteSeriesReport(w io.Writer, r SeriesReport) error {
	ew := &errWriter{w: w}

	if len(r.Files) == 0 {
		ew.println("📭 没有找到可分析的线程 dump 文件")
		return ew.err
	}

	ew.println("\n" + banner)
	ew.println("                 StackInspector 线程分析报告")
	ew.println(banner)

	ew.printf("\n📁 线程 dump (%d 个文件):\n", len(r.Files))
	ew.println(separator)

	for i, file := range r.Files {
		ew.printf("  %d. %s\n", i+1, filepath.Base(file.Path))
		ew.printf("     ├─ 时间: %s\n", file.Time.UTC().Format(time.RFC3339))
		ew.printf("     ├─ 大小: %s\n", humanize.Bytes(uint64(file.Size)))
		if file.Metrics != nil {
			writeMetrics(ew, file.Metrics)
		}
	}

	if len(r.Files) > 1 {
		first := r.Files[0].Time.UTC()
		last := r.Files[len(r.Files)-1].Time.UTC()
		ew.printf("\n  📊 时间范围: %s → %s\n",
			first.Format("2006-01-02 15:04:05"),
			last.Format("2006-01-02 15:04:05"))
		ew.printf("  ⏱️  持续时间: %s\n", formatDuration(last.Sub(first)))
	}

	if r.Trends != nil {
		writeTrends(ew, r.Trends)
	}

	if latest := r.Files[len(r.Files)-1].Metrics; latest != nil {
		writeInsights(ew, analyzer.AnalyzeThreadInsights(latest))
	}

	if ew.err == nil {
		writeAccumulated(ew, r)
	}

	var snapshotFindings, seriesFindings []rules.Finding
	for _, f := range r.Findings {
		if f.Scope == rules.ScopeSeries {
			seriesFindings = append(seriesFindings, f)
		} else {
			snapshotFindings = append(snapshotFindings, f)
		}
	}

	if len(snapshotFindings) > 0 {
		ew.println("\n" + banner)
		ew.println("                        🔍 规则发现")
		ew.println(banner)
		for i, finding := range snapshotFindings {
			writeFindingWithContext(ew, i+1, finding, r.Contexts[finding.RuleID])
		}
	}

	if len(seriesFindings) > 0 {
		ew.println("\n" + banner)
		ew.println("                        📈 趋势发现")
		ew.println(banner)
		for i, finding := range seriesFindings {
			writeFindingWithContext(ew, i+1, finding, r.Contexts[finding.RuleID])
		}
	}

	ew.println("\n" + banner)
	return ew.err
}

// writeMetrics 打印单个快照的线程指标
func writeMetrics(ew *errWriter, m *analyzer.SnapshotMetrics) {
	ew.printf("     ├─ 线程数: %s (守护线程 %s)\n",
		humanize.Comma(int64(m.TotalThreads)), humanize.Comma(int64(m.DaemonThreads)))

	var parts []string
	for _, st := range parser.AllStates {
		if n := m.States[st]; n > 0 {
			parts = append(parts, st.String()+"="+humanize.Comma(int64(n)))
		}
	}
	if len(parts) > 0 {
		ew.printf("     ├─ 状态: %s\n", strings.Join(parts, ", "))
	}

	if m.TopChannel.Threads > 0 {
		ew.printf("     ├─ 最拥挤等待通道: %s (%d 个线程, %.1f%%)\n",
			m.TopChannel.Channel, m.TopChannel.Threads, m.TopChannelRatio()*100)
	}

	if len(m.TopFrames) > 0 {
		ew.println("     ├─ Top 栈帧:")
		for i, fr := range m.TopFrames {
			if i >= 5 {
				break
			}
			ew.printf("     │  %d. %s (%d)\n", i+1, truncateName(fr.Signature, 80), fr.Count)
		}
	}
	ew.println("     └─")
}

// writeTrends 打印趋势信息（仅 R² > 0.7）
func writeTrends(ew *errWriter, trends *analyzer.SeriesTrends) {
	items := []struct {
		label string
		trend *analyzer.TrendMetrics
	}{
		{"线程总数", trends.ThreadCount},
		{"BLOCKED", trends.Blocked},
		{"WAITING", trends.Waiting},
		{"RUNNABLE", trends.Runnable},
	}

	printed := false
	for _, it := range items {
		if it.trend == nil || it.trend.R2 <= 0.7 {
			continue
		}
		if !printed {
			ew.println("\n  📈 趋势分析:")
			printed = true
		}
		ew.printf("     %s %s: 斜率=%.2f, R²=%.2f (%s)\n",
			getDirectionIcon(it.trend.Direction), it.label, it.trend.Slope, it.trend.R2, it.trend.Direction)
	}
}

// writeInsights 打印最新快照的洞察
func writeInsights(ew *errWriter, insights []analyzer.ThreadInsight) {
	if len(insights) == 0 {
		return
	}
	ew.println("\n  🔎 最新快照洞察:")
	for _, in := range insights {
		ew.printf("     %s %s: %s\n", getLevelIcon(in.Level), in.Title, in.Description)
	}
}

// writeAccumulated 打印整个序列累计后的栈帧排名
func writeAccumulated(ew *errWriter, r SeriesReport) {
	total, err := analyzer.AccumulateSeries(r.Files, r.Filter)
	if err != nil {
		ew.printf("\n  ⚠️ 无法累计栈帧: %v\n", err)
		return
	}
	ew.printf("\n  🧮 累计栈帧 (%s, %d 个快照):\n", r.Filter, len(r.Files))
	if err := WriteTraceTable(ew.w, Rank(total, r.Rank), r.Rank); err != nil {
		ew.err = err
	}
}

// writeFindingWithContext 打印单个发现，包含问题上下文
func writeFindingWithContext(ew *errWriter, index int, finding rules.Finding, ctx *locator.ProblemContext) {
	ew.printf("\n%d. %s %s\n", index, getSeverityIcon(finding.Severity), finding.Title)
	ew.printf("   规则: %s (%s)\n", finding.RuleName, finding.RuleID)
	ew.printf("   严重程度: %s\n", finding.Severity)

	if len(finding.Evidence) > 0 {
		ew.println("   证据:")
		keys := make([]string, 0, len(finding.Evidence))
		for key := range finding.Evidence {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			ew.printf("     - %s: %s\n", key, finding.Evidence[key])
		}
	}

	if ctx == nil {
		if len(finding.Suggestions) > 0 {
			ew.println("   建议:")
			for _, suggestion := range finding.Suggestions {
				ew.printf("     • %s\n", suggestion)
			}
		}
		return
	}

	if ctx.Explanation != "" {
		ew.println("\n   📝 问题解释:")
		writeWrappedText(ew, ctx.Explanation, "      ", 70)
	}
	if ctx.Impact != "" {
		ew.println("\n   📊 影响评估:")
		ew.printf("      %s\n", ctx.Impact)
	}
	if len(ctx.HotPaths) > 0 {
		writeHotPaths(ew, ctx.HotPaths)
	}
	if len(ctx.Commands) > 0 {
		writeCommands(ew, ctx.Commands)
	}
	if len(ctx.Suggestions) > 0 {
		writeSuggestions(ew, ctx.Suggestions)
	}
}

// writeHotPaths 打印热点路径列表
func writeHotPaths(ew *errWriter, hotPaths []locator.HotPath) {
	ew.println("\n   🔥 热点调用栈:")
	for i, hp := range hotPaths {
		ew.printf("\n   ─── 热点 #%d: %d 个线程 (%.1f%%) ───\n", i+1, hp.Chain.Threads, hp.Chain.Pct)
		if state := hp.DominantState(); state != "" {
			ew.printf("      主要状态: %s\n", state)
		}
		if len(hp.Chain.ThreadNames) > 0 {
			ew.printf("      线程: %s\n", joinNames(hp.Chain.ThreadNames, 3))
		}
		if summary := hp.Chain.Summary(); summary != "" {
			ew.printf("      调用链: %s\n", summary)
		}
		writeCallChain(ew, hp)
	}
}

// writeCallChain 打印带分类标记的调用链，从入口到栈顶
func writeCallChain(ew *errWriter, hp locator.HotPath) {
	frames := hp.Chain.Frames
	if len(frames) == 0 {
		ew.println("      (空调用链)")
		return
	}

	businessFrameSet := make(map[int]bool)
	for _, idx := range hp.BusinessFrames {
		businessFrameSet[idx] = true
	}

	var lastCategory locator.CodeCategory
	for i, frame := range frames {
		if i > 0 && frame.Category != lastCategory {
			ew.println("      ─────────────────────────────")
		}

		highlight := ""
		if businessFrameSet[i] {
			if i == hp.RootCauseIndex {
				highlight = " ← 根因"
			} else {
				highlight = " ← 关注"
			}
		}

		ew.printf("      %s [%s] %s%s\n", frame.Category.Icon(), frame.Category.String(), frame.ShortName, highlight)
		ew.printf("             └─ %s\n", frame.Location())

		lastCategory = frame.Category
	}

	if !hp.Chain.HasBusinessCode() {
		ew.println("\n      ⚠️  该路径中没有业务代码 - 可能是 JVM 内部线程或框架线程池")
	}
}

// writeCommands 打印可执行命令
func writeCommands(ew *errWriter, commands []locator.ExecutableCmd) {
	ew.println("\n   💻 调试命令:")
	for i, cmd := range commands {
		ew.printf("\n      %d. %s\n", i+1, cmd.Description)
		ew.printf("         $ %s\n", cmd.Command)
		if cmd.OutputHint != "" {
			ew.printf("         说明: %s\n", cmd.OutputHint)
		}
	}
}

// writeSuggestions 打印分类建议
func writeSuggestions(ew *errWriter, suggestions []locator.Suggestion) {
	var immediate, longTerm []locator.Suggestion
	for _, s := range suggestions {
		if s.Category == "long_term" {
			longTerm = append(longTerm, s)
		} else {
			immediate = append(immediate, s)
		}
	}

	ew.println("\n   💡 建议:")
	if len(immediate) > 0 {
		ew.println("      [立即]")
		for _, s := range immediate {
			ew.printf("        • %s\n", s.Content)
		}
	}
	if len(longTerm) > 0 {
		ew.println("      [长期]")
		for _, s := range longTerm {
			ew.printf("        • %s\n", s.Content)
		}
	}
}

// writeWrappedText 打印自动换行的文本
func writeWrappedText(ew *errWriter, text string, prefix string, maxWidth int) {
	for _, para := range strings.Split(text, "\n") {
		if para == "" {
			ew.println("")
			continue
		}

		words := strings.Fields(para)
		if len(words) == 0 {
			ew.println(prefix)
			continue
		}

		line := prefix
		lineLen := len(prefix)
		for _, word := range words {
			wordLen := len(word)
			if lineLen+wordLen+1 > maxWidth && lineLen > len(prefix) {
				ew.println(line)
				line = prefix + word
				lineLen = len(prefix) + wordLen
			} else {
				if lineLen > len(prefix) {
					line += " "
					lineLen++
				}
				line += word
				lineLen += wordLen
			}
		}

		if lineLen > len(prefix) {
			ew.println(line)
		}
	}
}

// getDirectionIcon 获取趋势方向图标
func getDirectionIcon(direction string) string {
	switch direction {
	case "increasing":
		return "📈"
	case "decreasing":
		return "📉"
	default:
		return "➡️"
	}
}

// getSeverityIcon 获取严重程度图标
func getSeverityIcon(severity string) string {
	switch severity {
	case "critical":
		return "🔥"
	case "high":
		return "🔴"
	case "medium":
		return "🟡"
	case "low":
		return "🟢"
	default:
		return "⚪"
	}
}

// getLevelIcon 洞察级别图标
func getLevelIcon(level string) string {
	switch level {
	case "critical":
		return "🔴"
	case "warning":
		return "🟡"
	default:
		return "🔵"
	}
}

// formatDuration 格式化持续时间
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1f 秒", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1f 分钟", d.Minutes())
	}
	return fmt.Sprintf("%.1f 小时", d.Hours())
}

// truncateName 截断过长的栈帧签名，保留末尾
func truncateName(name string, maxLen int) string {
	if len(name) <= maxLen {
		return name
	}
	return "..." + name[len(name)-maxLen+3:]
}

// joinNames 最多列出 n 个名字，其余以数量代替
func joinNames(names []string, n int) string {
	if len(names) <= n {
		return strings.Join(names, ", ")
	}
	return strings.Join(names[:n], ", ") + " 等 " + humanize.Comma(int64(len(names))) + " 个"
}
