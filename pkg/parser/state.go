package parser

import (
	"errors"
	"fmt"
	"strings"

	lev "github.com/agnivade/levenshtein"
)

// ErrInvalidState 线程状态不在 JVM 定义的枚举范围内
var ErrInvalidState = errors.New("invalid thread state")

// ThreadState JVM 线程状态（java.lang.Thread.State）
type ThreadState int

const (
	StateUnset ThreadState = iota // 尚未观察到状态行
	StateNew
	StateBlocked
	StateTerminated
	StateRunnable
	StateWaiting
	StateTimedWaiting
)

// AllStates 固定顺序的全部线程状态，报告按此顺序输出
var AllStates = []ThreadState{
	StateNew,
	StateBlocked,
	StateTerminated,
	StateRunnable,
	StateWaiting,
	StateTimedWaiting,
}

var stateNames = map[ThreadState]string{
	StateNew:          "NEW",
	StateBlocked:      "BLOCKED",
	StateTerminated:   "TERMINATED",
	StateRunnable:     "RUNNABLE",
	StateWaiting:      "WAITING",
	StateTimedWaiting: "TIMED_WAITING",
}

// String 返回 JVM 中的状态名
func (s ThreadState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	if s == StateUnset {
		return "UNSET"
	}
	return fmt.Sprintf("ThreadState(%d)", int(s))
}

// Valid 是否为六个真实状态之一
func (s ThreadState) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// MarshalText 以状态名序列化
func (s ThreadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseThreadState 解析状态令牌，必须与 JVM 输出完全一致（区分大小写）
func ParseThreadState(token string) (ThreadState, error) {
	for _, s := range AllStates {
		if stateNames[s] == token {
			return s, nil
		}
	}
	return StateUnset, fmt.Errorf("%w: %q", ErrInvalidState, token)
}

// StateNames 返回全部状态名，用于帮助信息
func StateNames() []string {
	names := make([]string, 0, len(AllStates))
	for _, s := range AllStates {
		names = append(names, s.String())
	}
	return names
}

// SuggestState 返回与输入编辑距离最近的状态名
// 输入忽略大小写比较，距离过大时返回空字符串
func SuggestState(token string) string {
	upper := strings.ToUpper(strings.TrimSpace(token))
	if upper == "" {
		return ""
	}

	best := ""
	bestDist := -1
	for _, s := range AllStates {
		d := lev.ComputeDistance(upper, s.String())
		if bestDist < 0 || d < bestDist {
			best, bestDist = s.String(), d
		}
	}

	// 超过一半字符不同时不再给出建议
	if bestDist*2 > len(best) {
		return ""
	}
	return best
}
