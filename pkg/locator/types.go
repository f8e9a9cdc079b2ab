package locator

import (
	"strconv"
	"strings"
)

// CodeCategory 代码分类
type CodeCategory string

const (
	CategoryJVM        CodeCategory = "jvm"         // 虚拟机内部实现 (sun.*, jdk.internal.*)
	CategoryJDK        CodeCategory = "jdk"         // JDK 公共类库 (java.*, javax.*)
	CategoryThirdParty CodeCategory = "third_party" // 第三方库
	CategoryBusiness   CodeCategory = "business"    // 业务代码
	CategoryUnknown    CodeCategory = "unknown"     // 未知
)

// String 返回分类的中文名称
func (c CodeCategory) String() string {
	switch c {
	case CategoryJVM:
		return "虚拟机"
	case CategoryJDK:
		return "JDK"
	case CategoryThirdParty:
		return "第三方"
	case CategoryBusiness:
		return "业务"
	default:
		return "未知"
	}
}

// Icon 返回分类的图标
func (c CodeCategory) Icon() string {
	switch c {
	case CategoryJVM:
		return "⚙️"
	case CategoryJDK:
		return "📚"
	case CategoryThirdParty:
		return "📦"
	case CategoryBusiness:
		return "💼"
	default:
		return "❓"
	}
}

// StackFrame 解析后的 Java 栈帧
type StackFrame struct {
	Signature   string       // dump 中的原始签名
	Module      string       // 模块前缀，如 java.base@17.0.9
	ClassName   string       // 完整类名（含包名与内部类）
	PackageName string       // 包名
	Method      string       // 方法名
	ShortName   string       // SimpleClass.method
	FileName    string       // 源文件
	LineNumber  int          // 行号，未知为 0
	Native      bool         // Native Method
	Category    CodeCategory // 代码分类
}

// Location 返回 "文件:行号" 格式的位置字符串
func (f StackFrame) Location() string {
	if f.Native {
		return "Native Method"
	}
	if f.FileName == "" {
		return "unknown"
	}
	if f.LineNumber <= 0 {
		return f.FileName
	}
	return f.FileName + ":" + strconv.Itoa(f.LineNumber)
}

// CallChain 一组线程共有的完整调用栈
type CallChain struct {
	Frames            []StackFrame         // 所有栈帧 (从入口到栈顶)
	Threads           int                  // 拥有该调用栈的线程数
	ThreadNames       []string             // 线程名（按出现顺序）
	Pct               float64              // 占参与统计线程的百分比
	States            map[string]int       // 线程状态分布
	CategoryBreakdown map[CodeCategory]int // 各类别帧数统计
	BoundaryPoints    []int                // 类别边界索引 (类别发生变化的位置)
}

// Summary 返回类别分布摘要字符串，如 "2 业务 → 1 第三方 → 2 JDK"
func (c CallChain) Summary() string {
	return GenerateCategorySummary(c.Frames)
}

// HasBusinessCode 检查调用链是否包含业务代码
func (c CallChain) HasBusinessCode() bool {
	for _, frame := range c.Frames {
		if frame.Category == CategoryBusiness {
			return true
		}
	}
	return false
}

// Top 栈顶帧，即线程当前所在的位置
func (c CallChain) Top() *StackFrame {
	if len(c.Frames) == 0 {
		return nil
	}
	return &c.Frames[len(c.Frames)-1]
}

// HotPath 热点路径
type HotPath struct {
	Chain          CallChain // 调用链
	BusinessFrames []int     // 业务代码帧索引
	RootCauseIndex int       // 根因帧索引 (-1 表示无业务代码)
}

// GetRootCause 获取根因栈帧，如果没有业务代码则返回 nil
func (h HotPath) GetRootCause() *StackFrame {
	if h.RootCauseIndex < 0 || h.RootCauseIndex >= len(h.Chain.Frames) {
		return nil
	}
	return &h.Chain.Frames[h.RootCauseIndex]
}

// DominantState 线程最多的状态
func (h HotPath) DominantState() string {
	best, bestN := "", 0
	for state, n := range h.Chain.States {
		if n > bestN || (n == bestN && state < best) {
			best, bestN = state, n
		}
	}
	return best
}

// ExecutableCmd 可执行命令
type ExecutableCmd struct {
	Command     string // 命令内容
	Description string // 命令说明
	OutputHint  string // 输出解读提示
}

// Suggestion 建议
type Suggestion struct {
	Category string // "immediate" 或 "long_term"
	Content  string // 建议内容
}

// ProblemContext 问题上下文
type ProblemContext struct {
	Title       string          // 问题标题
	Severity    string          // 严重程度 (critical/high/medium/low)
	Explanation string          // 通俗解释
	Impact      string          // 影响评估
	HotPaths    []HotPath       // 热点路径列表
	Commands    []ExecutableCmd // 可执行命令
	Suggestions []Suggestion    // 建议列表
}

// LocatorConfig 定位器配置
type LocatorConfig struct {
	BusinessPrefixes   []string // 业务代码包前缀 (从 pom.xml 读取或手动指定)
	ThirdPartyPrefixes []string // 额外的第三方包前缀
	MaxCallStackDepth  int      // 最大调用栈深度 (默认 10)
	MaxHotPaths        int      // 最大热点路径数 (默认 5)
	PID                int      // 目标进程，用于生成 jstack/jcmd 命令，0 表示未知
}

// DefaultConfig 返回默认配置
func DefaultConfig() LocatorConfig {
	return LocatorConfig{
		MaxCallStackDepth: 10,
		MaxHotPaths:       5,
	}
}

// ParsePrefixes 解析逗号分隔的包前缀列表
func ParsePrefixes(s string) []string {
	var prefixes []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}
