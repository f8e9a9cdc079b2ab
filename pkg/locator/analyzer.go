package locator

import (
	"sort"
	"strconv"
	"strings"

	"github.com/songzhibin97/stackinspector/pkg/analyzer"
	"github.com/songzhibin97/stackinspector/pkg/parser"
	"github.com/zeebo/xxh3"
)

// PathAnalyzer 热点路径分析器
type PathAnalyzer struct {
	extractor *Extractor
	config    LocatorConfig
}

// NewPathAnalyzer 创建分析器
func NewPathAnalyzer(extractor *Extractor, config LocatorConfig) *PathAnalyzer {
	// 设置默认值
	if config.MaxCallStackDepth <= 0 {
		config.MaxCallStackDepth = 10
	}
	if config.MaxHotPaths <= 0 {
		config.MaxHotPaths = 5
	}

	return &PathAnalyzer{
		extractor: extractor,
		config:    config,
	}
}

// stackGroup 调用栈完全相同的一组线程
type stackGroup struct {
	stack  []string
	names  []string
	states map[string]int
}

// AnalyzeHotPaths 分析单个快照的热点路径
func (a *PathAnalyzer) AnalyzeHotPaths(s *parser.Snapshot, f analyzer.Filter) []HotPath {
	if s == nil {
		return nil
	}
	return a.AnalyzeSnapshots([]*parser.Snapshot{s}, f)
}

// AnalyzeSnapshots 综合多个快照，把调用栈完全相同的线程聚合为一条路径
// 按线程数降序取 top N；没有栈帧的线程不参与统计
func (a *PathAnalyzer) AnalyzeSnapshots(snaps []*parser.Snapshot, f analyzer.Filter) []HotPath {
	groups := make(map[uint64]*stackGroup)
	total := 0

	for _, s := range snaps {
		for _, th := range s.Threads() {
			if len(th.Stack) == 0 || !f.Match(th) {
				continue
			}
			total++

			key := stackKey(th.Stack)
			g, ok := groups[key]
			if !ok {
				g = &stackGroup{stack: th.Stack, states: make(map[string]int)}
				groups[key] = g
			}
			g.names = append(g.names, th.Name)
			g.states[th.State.String()]++
		}
	}

	if total == 0 {
		return nil
	}

	ordered := make([]*stackGroup, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i].names) != len(ordered[j].names) {
			return len(ordered[i].names) > len(ordered[j].names)
		}
		return strings.Join(ordered[i].stack, "\n") < strings.Join(ordered[j].stack, "\n")
	})

	// 取 top N
	maxPaths := a.config.MaxHotPaths
	if len(ordered) < maxPaths {
		maxPaths = len(ordered)
	}

	hotPaths := make([]HotPath, 0, maxPaths)
	for _, g := range ordered[:maxPaths] {
		chain := a.extractor.ExtractCallChain(g.stack)
		chain.Threads = len(g.names)
		chain.ThreadNames = g.names
		chain.States = g.states
		chain.Pct = float64(chain.Threads) / float64(total) * 100

		// 限制调用栈深度，保留靠近栈顶的帧
		if depth := a.config.MaxCallStackDepth; len(chain.Frames) > depth {
			chain.Frames = chain.Frames[len(chain.Frames)-depth:]
			chain.BoundaryPoints = FindBoundaryPoints(chain.Frames)
			chain.CategoryBreakdown = calculateCategoryBreakdown(chain.Frames)
		}

		businessFrames := FindBusinessFrames(chain.Frames)
		rootCauseIndex := -1
		if len(businessFrames) > 0 {
			// 根因是最深的业务代码帧（最接近栈顶的业务代码）
			rootCauseIndex = businessFrames[len(businessFrames)-1]
		}

		hotPaths = append(hotPaths, HotPath{
			Chain:          chain,
			BusinessFrames: businessFrames,
			RootCauseIndex: rootCauseIndex,
		})
	}

	return hotPaths
}

// stackKey 调用栈的标识
func stackKey(stack []string) uint64 {
	return xxh3.HashString(strings.Join(stack, "\n"))
}

// FindBoundaryPoints 找出类别边界索引
// 边界点是类别发生变化的位置（从索引 1 开始检查）
func FindBoundaryPoints(frames []StackFrame) []int {
	if len(frames) <= 1 {
		return nil
	}

	boundaries := make([]int, 0)
	for i := 1; i < len(frames); i++ {
		if frames[i].Category != frames[i-1].Category {
			boundaries = append(boundaries, i)
		}
	}
	return boundaries
}

// FindBusinessFrames 找出所有业务代码帧索引
// 返回的索引按升序排列（从入口到栈顶）
func FindBusinessFrames(frames []StackFrame) []int {
	indices := make([]int, 0)
	for i, frame := range frames {
		if frame.Category == CategoryBusiness {
			indices = append(indices, i)
		}
	}
	return indices
}

// GenerateCategorySummary 生成类别分布摘要字符串
// 例如: "2 业务 → 1 第三方 → 2 JDK"
func GenerateCategorySummary(frames []StackFrame) string {
	if len(frames) == 0 {
		return "空调用链"
	}

	var sb strings.Builder
	count := 0
	for i, frame := range frames {
		count++
		if i < len(frames)-1 && frames[i+1].Category == frame.Category {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(" → ")
		}
		sb.WriteString(strconv.Itoa(count) + " " + frame.Category.String())
		count = 0
	}
	return sb.String()
}

// calculateCategoryBreakdown 计算类别分布统计
func calculateCategoryBreakdown(frames []StackFrame) map[CodeCategory]int {
	breakdown := make(map[CodeCategory]int)
	for _, frame := range frames {
		breakdown[frame.Category]++
	}
	return breakdown
}

// GetCategoryBreakdownSum 计算类别分布的总帧数
func GetCategoryBreakdownSum(breakdown map[CodeCategory]int) int {
	sum := 0
	for _, count := range breakdown {
		sum += count
	}
	return sum
}
