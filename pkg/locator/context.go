package locator

import (
	"fmt"
	"strings"

	"github.com/songzhibin97/stackinspector/pkg/analyzer"
	"github.com/songzhibin97/stackinspector/pkg/parser"
	"github.com/songzhibin97/stackinspector/pkg/rules"
)

// 问题类型
const (
	problemLock    = "lock"    // 锁竞争
	problemLeak    = "leak"    // 线程泄漏
	problemPileUp  = "pile_up" // 线程堆积在同一等待点
	problemGeneric = "generic"
)

// ContextGenerator 问题上下文生成器
type ContextGenerator struct {
	analyzer *PathAnalyzer
}

// NewContextGenerator 创建生成器
func NewContextGenerator(analyzer *PathAnalyzer) *ContextGenerator {
	return &ContextGenerator{
		analyzer: analyzer,
	}
}

// GenerateContext 生成问题上下文
// snaps 与 dumpPaths 按时间顺序排列，dumpPaths 可以为空（实时采集）
func (g *ContextGenerator) GenerateContext(
	finding rules.Finding,
	snaps []*parser.Snapshot,
	dumpPaths []string,
) *ProblemContext {
	if g.analyzer == nil {
		return nil
	}

	kind := determineProblemKind(finding)

	// 锁竞争只看 BLOCKED 线程；泄漏看最新快照中的全部线程
	var hotPaths []HotPath
	switch kind {
	case problemLock:
		hotPaths = g.analyzer.AnalyzeSnapshots(snaps, analyzer.Filter{State: parser.StateBlocked})
	case problemLeak:
		if len(snaps) > 0 {
			hotPaths = g.analyzer.AnalyzeHotPaths(snaps[len(snaps)-1], analyzer.Filter{})
		}
	default:
		hotPaths = g.analyzer.AnalyzeSnapshots(snaps, analyzer.Filter{})
	}

	return &ProblemContext{
		Title:       finding.Title,
		Severity:    normalizeSeverity(finding.Severity),
		Explanation: GenerateExplanation(finding, hotPaths),
		Impact:      GenerateImpact(hotPaths),
		HotPaths:    hotPaths,
		Commands:    NewCommandGenerator().GenerateCommandsWithContext(dumpPaths, g.analyzer.config.PID, kind == problemLock, hotPaths),
		Suggestions: GenerateSuggestions(finding, hotPaths),
	}
}

// determineProblemKind 从 Finding 判断问题类型
func determineProblemKind(finding rules.Finding) string {
	text := strings.ToLower(finding.RuleID + " " + finding.Title)

	switch {
	case containsAny(text, "lock", "block", "锁", "阻塞"):
		return problemLock
	case containsAny(text, "leak", "泄漏", "增长", "growth"):
		return problemLeak
	case containsAny(text, "pile", "wchan", "等待", "集中"):
		return problemPileUp
	default:
		return problemGeneric
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// normalizeSeverity 标准化严重程度
func normalizeSeverity(severity string) string {
	s := strings.ToLower(severity)
	switch s {
	case "critical", "严重":
		return "critical"
	case "high", "高":
		return "high"
	case "medium", "中":
		return "medium"
	case "low", "低":
		return "low"
	default:
		return "medium"
	}
}

// GenerateExplanation 生成通俗易懂的问题解释
func GenerateExplanation(finding rules.Finding, hotPaths []HotPath) string {
	var sb strings.Builder
	sb.WriteString(generateBasicExplanation(finding))

	if len(hotPaths) == 0 {
		return sb.String()
	}

	topPath := hotPaths[0]
	if rootCause := topPath.GetRootCause(); rootCause != nil {
		sb.WriteString(fmt.Sprintf(" 最多的一组线程（%d 个）停在业务代码 %s（%s）",
			topPath.Chain.Threads, rootCause.ShortName, rootCause.Location()))

		// 找到业务代码之后的第一个非业务代码帧
		for i := topPath.RootCauseIndex + 1; i < len(topPath.Chain.Frames); i++ {
			frame := topPath.Chain.Frames[i]
			if frame.Category != CategoryBusiness {
				sb.WriteString(fmt.Sprintf("，该方法调用了%s (%s)",
					getCategoryDescription(frame.Category), frame.ShortName))
				break
			}
		}
		sb.WriteString("。")
		return sb.String()
	}

	sb.WriteString(" 该热点路径中没有直接的业务代码，")
	top := topPath.Chain.Top()
	breakdown := topPath.Chain.CategoryBreakdown
	switch {
	case top != nil && isBlockingFrame(*top):
		sb.WriteString(fmt.Sprintf("线程停在 %s，通常是线程池空闲或在等待 I/O。", top.ShortName))
	case breakdown[CategoryThirdParty] > 0:
		sb.WriteString("主要是第三方库调用，可能是框架内部的工作线程。")
	case breakdown[CategoryJDK]+breakdown[CategoryJVM] == len(topPath.Chain.Frames):
		sb.WriteString("全部是 JDK/虚拟机代码，通常是 JVM 自身的后台线程。")
	default:
		sb.WriteString("需要结合线程名判断线程的来源。")
	}
	return sb.String()
}

// getCategoryDescription 获取代码类别的描述
func getCategoryDescription(category CodeCategory) string {
	switch category {
	case CategoryJVM:
		return "虚拟机内部实现"
	case CategoryJDK:
		return "JDK 类库"
	case CategoryThirdParty:
		return "第三方库"
	case CategoryBusiness:
		return "业务代码"
	default:
		return "未知代码"
	}
}

// generateBasicExplanation 生成基础问题解释
func generateBasicExplanation(finding rules.Finding) string {
	switch determineProblemKind(finding) {
	case problemLeak:
		return "线程数量在持续增长。这通常意味着线程泄漏：线程被创建后没有退出，常见原因包括每次请求新建线程池、线程池没有 shutdown、阻塞调用没有超时等。"
	case problemLock:
		return "大量线程处于 BLOCKED 状态，在等待进入同一个 synchronized 块或方法。持有监视器的线程执行得越慢，排队的线程越多。"
	case problemPileUp:
		return "多数线程等待在同一个位置。这可能是下游资源（连接池、队列、远程服务）成为瓶颈，也可能只是线程池空闲。"
	default:
		return fmt.Sprintf("检测到线程问题：%s。建议结合下面的热点路径检查相关代码。", finding.Title)
	}
}

// GenerateImpact 生成影响评估字符串
func GenerateImpact(hotPaths []HotPath) string {
	if len(hotPaths) == 0 {
		return "无法评估影响 - 没有找到热点路径"
	}

	var sb strings.Builder

	totalPct := 0.0
	for _, hp := range hotPaths {
		totalPct += hp.Chain.Pct
	}

	topPath := hotPaths[0]
	sb.WriteString(fmt.Sprintf("主要路径上有 %d 个线程，占 %.1f%%", topPath.Chain.Threads, topPath.Chain.Pct))
	if state := topPath.DominantState(); state != "" {
		sb.WriteString(fmt.Sprintf("（多为 %s）", state))
	}
	if len(hotPaths) > 1 {
		sb.WriteString(fmt.Sprintf("，前 %d 条路径共占 %.1f%%", len(hotPaths), totalPct))
	}

	if rootCause := topPath.GetRootCause(); rootCause != nil {
		sb.WriteString(fmt.Sprintf("。根因位于: %s (%s)", rootCause.ShortName, rootCause.Location()))
	}

	return sb.String()
}

// GenerateSuggestions 生成分类建议列表
func GenerateSuggestions(finding rules.Finding, hotPaths []HotPath) []Suggestion {
	suggestions := make([]Suggestion, 0)

	// 从 Finding 中提取建议（来自规则文件）
	for _, s := range finding.Suggestions {
		suggestions = append(suggestions, Suggestion{
			Category: "immediate",
			Content:  s,
		})
	}

	kind := determineProblemKind(finding)
	if len(hotPaths) > 0 {
		if rootCause := hotPaths[0].GetRootCause(); rootCause != nil {
			suggestions = append(suggestions, Suggestion{
				Category: "immediate",
				Content:  fmt.Sprintf("检查 %s 附近的代码逻辑", rootCause.Location()),
			})
		} else {
			suggestions = append(suggestions, generateNoBusinessCodeSuggestions(kind)...)
		}
		suggestions = append(suggestions, generateLongTermSuggestions(kind)...)
	}

	if len(suggestions) == 0 {
		suggestions = append(suggestions, Suggestion{
			Category: "immediate",
			Content:  "间隔几秒连续采集多个 dump，对比线程状态的变化",
		})
	}

	return suggestions
}

// generateNoBusinessCodeSuggestions 生成无业务代码情况的排查建议
func generateNoBusinessCodeSuggestions(kind string) []Suggestion {
	var contents []string
	switch kind {
	case problemLock:
		contents = []string{
			"热点路径中没有业务代码，锁可能在框架或 JDK 内部（如日志 appender、连接池）",
			"用 -pkg 指定业务包前缀后重新分析，确认调用方",
		}
	case problemLeak:
		contents = []string{
			"对比首尾两个 dump 中新增线程的名字，线程名前缀通常能指出线程池的来源",
			"检查是否有代码在循环或每次请求中调用 Executors.newXxx",
		}
	case problemPileUp:
		contents = []string{
			"线程空闲等待任务时也会聚集在同一位置，确认是否真的影响吞吐",
		}
	}

	suggestions := make([]Suggestion, 0, len(contents))
	for _, c := range contents {
		suggestions = append(suggestions, Suggestion{Category: "immediate", Content: c})
	}
	return suggestions
}

// generateLongTermSuggestions 生成长期建议
func generateLongTermSuggestions(kind string) []Suggestion {
	switch kind {
	case problemLock:
		return []Suggestion{{
			Category: "long_term",
			Content:  "缩小临界区，读多写少的场景考虑 ReadWriteLock 或并发容器",
		}}
	case problemLeak:
		return []Suggestion{{
			Category: "long_term",
			Content:  "为线程池命名并监控活跃线程数，确保所有线程池都有关闭路径",
		}}
	case problemPileUp:
		return []Suggestion{{
			Category: "long_term",
			Content:  "为远程调用设置超时，并让线程池大小与下游连接池大小匹配",
		}}
	}
	return nil
}
