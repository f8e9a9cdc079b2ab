package reporter

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/stackinspector/pkg/analyzer"
	"github.com/songzhibin97/stackinspector/pkg/locator"
	"github.com/songzhibin97/stackinspector/pkg/parser"
	"github.com/songzhibin97/stackinspector/pkg/rules"
)

// render 在 errWriter 上执行输出函数并返回结果
func render(f func(ew *errWriter)) string {
	var buf bytes.Buffer
	f(&errWriter{w: &buf})
	return buf.String()
}

func TestWriteSeriesReport(t *testing.T) {
	files := seriesFiles(t)
	var buf bytes.Buffer
	err := WriteSeriesReport(&buf, SeriesReport{
		Files:    files,
		Trends:   analyzer.CalculateTrends(files),
		Findings: []rules.Finding{lockFinding(), leakFinding()},
		Contexts: map[string]*locator.ProblemContext{"lock_contention": lockContext()},
		Rank:     RankOptions{Limit: AtMost(3)},
	})
	require.NoError(t, err)
	out := buf.String()

	assert.Contains(t, out, "StackInspector 线程分析报告")
	assert.Contains(t, out, "线程 dump (3 个文件)")
	assert.Contains(t, out, "threads-1.txt")
	assert.Contains(t, out, "线程数: 5 (守护线程 5)")
	assert.Contains(t, out, "状态: RUNNABLE=2, WAITING=3")
	assert.Contains(t, out, "最拥挤等待通道: Object.wait() (3 个线程, 60.0%)")
	assert.Contains(t, out, "时间范围: 2024-03-11 09:30:00 → 2024-03-11 09:32:00")
	assert.Contains(t, out, "持续时间: 2.0 分钟")

	// 累计表: Tomcat 一次加 Modern 两次
	assert.Contains(t, out, "累计栈帧 (all threads, 3 个快照)")
	assert.Contains(t, out, "Most frequent calls (limit: 3, threshold: none):")

	// 快照规则与趋势规则分开展示
	snapIdx := strings.Index(out, "🔍 规则发现")
	seriesIdx := strings.Index(out, "📈 趋势发现")
	require.Greater(t, snapIdx, 0)
	require.Greater(t, seriesIdx, snapIdx)
	assert.Contains(t, out[snapIdx:seriesIdx], "锁竞争 (lock_contention)")
	assert.Contains(t, out[seriesIdx:], "线程泄漏 (thread_leak)")

	// 有上下文的发现展示热点与命令
	assert.Contains(t, out, "🔥 热点调用栈")
	assert.Contains(t, out, "$ grep -c 'java.lang.Thread.State' threads.txt")
}

func TestWriteSeriesReport_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSeriesReport(&buf, SeriesReport{}))
	assert.Contains(t, buf.String(), "没有找到可分析的线程 dump 文件")
}

func TestWriteSeriesReport_FilterApplied(t *testing.T) {
	files := seriesFiles(t)
	var buf bytes.Buffer
	require.NoError(t, WriteSeriesReport(&buf, SeriesReport{
		Files:  files,
		Filter: analyzer.Filter{State: parser.StateBlocked},
	}))
	out := buf.String()

	table := out[strings.Index(out, "Most frequent calls"):]
	assert.Contains(t, out, "累计栈帧 (state=BLOCKED")
	assert.Contains(t, table, "com.example.shop.Inventory.reserve(Inventory.java:77)")
	assert.NotContains(t, table, "java.lang.Object.wait")
}

func TestWriteTrends_OnlyConfident(t *testing.T) {
	out := render(func(ew *errWriter) {
		writeTrends(ew, &analyzer.SeriesTrends{
			ThreadCount: &analyzer.TrendMetrics{Slope: 3, R2: 0.95, Direction: "increasing"},
			Blocked:     &analyzer.TrendMetrics{Slope: 1, R2: 0.4, Direction: "increasing"},
		})
	})

	assert.Contains(t, out, "📈 线程总数: 斜率=3.00, R²=0.95 (increasing)")
	assert.NotContains(t, out, "BLOCKED")

	assert.Empty(t, render(func(ew *errWriter) {
		writeTrends(ew, &analyzer.SeriesTrends{})
	}))
}

func TestWriteCallChain_WithBusinessFrames(t *testing.T) {
	out := render(func(ew *errWriter) { writeCallChain(ew, businessHotPath()) })

	assert.Contains(t, out, "OrderService.place ← 关注")
	assert.Contains(t, out, "Inventory.reserve ← 根因")
	assert.Contains(t, out, "💼")
	assert.Contains(t, out, "📚")
	assert.Contains(t, out, "⚙️")
	assert.Contains(t, out, "Inventory.java:77")
	assert.Contains(t, out, "Native Method")
	assert.Contains(t, out, "─────────────────────────────")
	assert.NotContains(t, out, "没有业务代码")

	// 入口在前，栈顶在后
	assert.Less(t, strings.Index(out, "Thread.run"), strings.Index(out, "Unsafe.park"))
}

func TestWriteCallChain_NoBusinessCode(t *testing.T) {
	hp := locator.HotPath{
		Chain: locator.CallChain{
			Frames: []locator.StackFrame{
				{ShortName: "Thread.run", FileName: "Thread.java", LineNumber: 662, Category: locator.CategoryJDK},
				{ShortName: "Object.wait", Native: true, Category: locator.CategoryJDK},
			},
		},
		RootCauseIndex: -1,
	}
	out := render(func(ew *errWriter) { writeCallChain(ew, hp) })

	assert.Contains(t, out, "没有业务代码")
	assert.NotContains(t, out, "─────────────────────────────")
}

func TestWriteCallChain_EmptyChain(t *testing.T) {
	out := render(func(ew *errWriter) { writeCallChain(ew, locator.HotPath{RootCauseIndex: -1}) })
	assert.Contains(t, out, "空调用链")
}

func TestWriteHotPaths(t *testing.T) {
	out := render(func(ew *errWriter) { writeHotPaths(ew, []locator.HotPath{businessHotPath()}) })

	assert.Contains(t, out, "热点 #1: 2 个线程 (50.0%)")
	assert.Contains(t, out, "主要状态: BLOCKED")
	assert.Contains(t, out, "线程: worker-1, worker-2")
	assert.Contains(t, out, "调用链:")
}

func TestWriteCommands(t *testing.T) {
	out := render(func(ew *errWriter) {
		writeCommands(ew, []locator.ExecutableCmd{
			{Command: "jstack -l 42 > threads-$(date +%s).txt", Description: "重新采集线程 dump"},
			{Command: "grep -c BLOCKED threads.txt", Description: "统计阻塞线程", OutputHint: "数值持续增大说明锁竞争加剧"},
		})
	})

	assert.Contains(t, out, "💻 调试命令")
	assert.Contains(t, out, "1. 重新采集线程 dump")
	assert.Contains(t, out, "$ jstack -l 42 > threads-$(date +%s).txt")
	assert.Contains(t, out, "说明: 数值持续增大说明锁竞争加剧")
	assert.Equal(t, 1, strings.Count(out, "说明:"))
}

func TestWriteSuggestions(t *testing.T) {
	out := render(func(ew *errWriter) { writeSuggestions(ew, lockContext().Suggestions) })

	assert.Contains(t, out, "[立即]")
	assert.Contains(t, out, "[长期]")
	assert.Less(t, strings.Index(out, "检查 Inventory.reserve"), strings.Index(out, "[长期]"))
	assert.Greater(t, strings.Index(out, "引入无锁数据结构"), strings.Index(out, "[长期]"))
}

func TestWriteFindingWithContext(t *testing.T) {
	out := render(func(ew *errWriter) { writeFindingWithContext(ew, 1, lockFinding(), lockContext()) })

	assert.Contains(t, out, "1. 🔴 大量线程阻塞在监视器上")
	assert.Contains(t, out, "规则: 锁竞争 (lock_contention)")
	assert.Contains(t, out, "📝 问题解释")
	assert.Contains(t, out, "📊 影响评估")
	assert.Contains(t, out, "🔥 热点调用栈")
	assert.Contains(t, out, "💡 建议")
	// 有上下文时不再重复规则自带的建议
	assert.NotContains(t, out, "缩小同步块范围")

	// 证据按键名排序
	assert.Less(t, strings.Index(out, "- blocked:"), strings.Index(out, "- channel:"))
}

func TestWriteFindingWithoutContext(t *testing.T) {
	out := render(func(ew *errWriter) { writeFindingWithContext(ew, 2, lockFinding(), nil) })

	assert.Contains(t, out, "2. 🔴 大量线程阻塞在监视器上")
	assert.Contains(t, out, "证据:")
	assert.Contains(t, out, "建议:")
	assert.Contains(t, out, "• 缩小同步块范围，或改用并发容器")
	assert.NotContains(t, out, "📝 问题解释")
}

func TestWriteWrappedText(t *testing.T) {
	out := render(func(ew *errWriter) {
		writeWrappedText(ew, "alpha beta gamma delta epsilon zeta eta theta", "  ", 20)
	})
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		assert.LessOrEqual(t, len(line), 20)
		assert.True(t, strings.HasPrefix(line, "  "))
	}
	assert.Equal(t, "alpha beta gamma delta epsilon zeta eta theta",
		strings.Join(strings.Fields(out), " "))
}

func TestWriteWrappedText_WithNewlines(t *testing.T) {
	out := render(func(ew *errWriter) { writeWrappedText(ew, "first\n\nsecond", "> ", 70) })
	assert.Equal(t, "> first\n\n> second\n", out)
}

func TestIcons(t *testing.T) {
	assert.Equal(t, "🔥", getSeverityIcon("critical"))
	assert.Equal(t, "🔴", getSeverityIcon("high"))
	assert.Equal(t, "🟡", getSeverityIcon("medium"))
	assert.Equal(t, "🟢", getSeverityIcon("low"))
	assert.Equal(t, "⚪", getSeverityIcon("whatever"))

	assert.Equal(t, "📈", getDirectionIcon("increasing"))
	assert.Equal(t, "📉", getDirectionIcon("decreasing"))
	assert.Equal(t, "➡️", getDirectionIcon("stable"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "30.0 秒", formatDuration(30*time.Second))
	assert.Equal(t, "1.5 分钟", formatDuration(90*time.Second))
	assert.Equal(t, "2.0 小时", formatDuration(2*time.Hour))
}

func TestTruncateAndJoin(t *testing.T) {
	assert.Equal(t, "short", truncateName("short", 10))
	assert.Equal(t, "...6789", truncateName("0123456789", 7))

	assert.Equal(t, "a, b", joinNames([]string{"a", "b"}, 3))
	assert.Equal(t, "a, b, c 等 4 个", joinNames([]string{"a", "b", "c", "d"}, 3))
}
