package analyzer

import (
	"fmt"

	"github.com/songzhibin97/stackinspector/pkg/parser"
)

// ThreadInsight 线程分析洞察
type ThreadInsight struct {
	Level       string // info, warning, critical
	Title       string // 洞察标题
	Description string // 详细描述
}

// AnalyzeThreadInsights 分析线程指标并生成洞察（只指出问题点，不给建议）
func AnalyzeThreadInsights(metrics *SnapshotMetrics) []ThreadInsight {
	var insights []ThreadInsight

	if metrics == nil || metrics.TotalThreads == 0 {
		return insights
	}

	// 1. BLOCKED 线程占比
	blockedRatio := metrics.StateRatio(parser.StateBlocked)
	if blockedRatio >= 0.3 {
		insights = append(insights, ThreadInsight{
			Level:       "critical",
			Title:       "🔒 大量线程阻塞",
			Description: fmt.Sprintf("%.1f%% 的线程处于 BLOCKED 状态，存在严重的锁竞争", blockedRatio*100),
		})
	} else if blockedRatio >= 0.1 {
		insights = append(insights, ThreadInsight{
			Level:       "warning",
			Title:       "💡 存在锁竞争",
			Description: fmt.Sprintf("%.1f%% 的线程处于 BLOCKED 状态", blockedRatio*100),
		})
	}

	// 2. 单个等待通道聚集了多数线程
	if metrics.TopChannel.Threads >= 3 && metrics.TopChannelRatio() >= 0.5 {
		insights = append(insights, ThreadInsight{
			Level: "warning",
			Title: "🎯 线程集中在同一等待点",
			Description: fmt.Sprintf("%d 个线程 (%.1f%%) 等待在 %s",
				metrics.TopChannel.Threads, metrics.TopChannelRatio()*100, metrics.TopChannel.Channel),
		})
	}

	// 3. 没有可运行线程
	if metrics.States[parser.StateRunnable] == 0 {
		insights = append(insights, ThreadInsight{
			Level:       "info",
			Title:       "😴 没有 RUNNABLE 线程",
			Description: "所有线程都在等待，进程可能处于空闲或整体卡住",
		})
	}

	// 4. 线程数过多
	if metrics.TotalThreads > 1000 {
		insights = append(insights, ThreadInsight{
			Level:       "warning",
			Title:       "📊 线程数较多",
			Description: fmt.Sprintf("共 %d 个线程，其中守护线程 %d 个", metrics.TotalThreads, metrics.DaemonThreads),
		})
	}

	return insights
}
