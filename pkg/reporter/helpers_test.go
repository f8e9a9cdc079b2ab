package reporter

import (
	"testing"
	"time"

	"github.com/songzhibin97/stackinspector/pkg/analyzer"
	"github.com/songzhibin97/stackinspector/pkg/locator"
	"github.com/songzhibin97/stackinspector/pkg/parser/parsertest"
	"github.com/songzhibin97/stackinspector/pkg/rules"
)

var seriesStart = time.Date(2024, 3, 11, 9, 30, 0, 0, time.UTC)

// seriesFiles 三个快照：Tomcat, Modern, Modern，间隔一分钟
func seriesFiles(t *testing.T) []analyzer.SnapshotFile {
	t.Helper()
	dumps := []string{parsertest.TomcatDump, parsertest.ModernDump, parsertest.ModernDump}
	names := []string{"threads-1.txt", "threads-2.txt", "threads-3.txt"}

	var files []analyzer.SnapshotFile
	for i, dump := range dumps {
		snap := parsertest.MustParse(t, dump)
		files = append(files, analyzer.SnapshotFile{
			Path:     "/var/dumps/" + names[i],
			Time:     seriesStart.Add(time.Duration(i) * time.Minute),
			Size:     int64(len(dump)),
			Snapshot: snap,
			Metrics:  analyzer.ExtractMetrics(snap),
		})
	}
	return files
}

func lockFinding() rules.Finding {
	return rules.Finding{
		RuleID:   "lock_contention",
		RuleName: "锁竞争",
		Severity: "high",
		Title:    "大量线程阻塞在监视器上",
		Scope:    rules.ScopeSnapshot,
		Evidence: map[string]string{
			"blocked": "2 个线程处于 BLOCKED (50.0%)",
			"channel": "最拥挤的等待通道: waiting for monitor entry (2 个线程)",
		},
		Suggestions: []string{"缩小同步块范围，或改用并发容器"},
	}
}

func leakFinding() rules.Finding {
	return rules.Finding{
		RuleID:   "thread_leak",
		RuleName: "线程泄漏",
		Severity: "high",
		Title:    "线程数持续增长",
		Scope:    rules.ScopeSeries,
		Evidence: map[string]string{"rate": "线程数增长速率 3 个/分钟"},
	}
}

// businessHotPath 业务帧在入口侧，栈顶是 JDK 帧
func businessHotPath() locator.HotPath {
	return locator.HotPath{
		Chain: locator.CallChain{
			Frames: []locator.StackFrame{
				{ShortName: "Thread.run", FileName: "Thread.java", LineNumber: 840, Category: locator.CategoryJDK,
					Signature: "java.lang.Thread.run(java.base@17.0.9/Thread.java:840)"},
				{ShortName: "OrderService.place", FileName: "OrderService.java", LineNumber: 31, Category: locator.CategoryBusiness,
					Signature: "com.example.shop.OrderService.place(OrderService.java:31)"},
				{ShortName: "Inventory.reserve", FileName: "Inventory.java", LineNumber: 77, Category: locator.CategoryBusiness,
					Signature: "com.example.shop.Inventory.reserve(Inventory.java:77)"},
				{ShortName: "Unsafe.park", Native: true, Category: locator.CategoryJVM,
					Signature: "jdk.internal.misc.Unsafe.park(java.base@17.0.9/Native Method)"},
			},
			Threads:     2,
			ThreadNames: []string{"worker-1", "worker-2"},
			Pct:         50,
			States:      map[string]int{"BLOCKED": 2},
		},
		BusinessFrames: []int{1, 2},
		RootCauseIndex: 2,
	}
}

func lockContext() *locator.ProblemContext {
	return &locator.ProblemContext{
		Title:       "大量线程阻塞在监视器上",
		Severity:    "high",
		Explanation: "多个线程在等待同一个监视器",
		Impact:      "主要路径上有 2 个线程，占 50.0%（多为 BLOCKED）",
		HotPaths:    []locator.HotPath{businessHotPath()},
		Commands: []locator.ExecutableCmd{
			{Command: "grep -c 'java.lang.Thread.State' threads.txt", Description: "统计线程状态", OutputHint: "关注 BLOCKED"},
		},
		Suggestions: []locator.Suggestion{
			{Category: "immediate", Content: "检查 Inventory.reserve 的同步块"},
			{Category: "long_term", Content: "引入无锁数据结构"},
		},
	}
}
