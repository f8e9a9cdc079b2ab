package analyzer

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/songzhibin97/stackinspector/pkg/parser"
)

// ErrEmptySnapshot 对没有线程的快照做聚合属于调用方错误
var ErrEmptySnapshot = errors.New("snapshot has no threads")

// TraceCountTable 栈帧签名 -> 累计出现次数
type TraceCountTable map[string]int

// Clone 返回副本
func (t TraceCountTable) Clone() TraceCountTable {
	out := make(TraceCountTable, len(t))
	for sig, n := range t {
		out[sig] = n
	}
	return out
}

// Merge 返回 t 与 other 逐项相加的新表，两者都不修改
func (t TraceCountTable) Merge(other TraceCountTable) TraceCountTable {
	out := t.Clone()
	for sig, n := range other {
		out[sig] += n
	}
	return out
}

// Total 所有计数之和
func (t TraceCountTable) Total() int {
	total := 0
	for _, n := range t {
		total += n
	}
	return total
}

// Filter 线程过滤条件，零值表示不过滤
type Filter struct {
	State parser.ThreadState // StateUnset 表示不按状态过滤
	Name  string             // 线程名子串（区分大小写），空表示不过滤
}

// Validate 检查状态是否在枚举范围内
func (f Filter) Validate() error {
	if f.State != parser.StateUnset && !f.State.Valid() {
		return fmt.Errorf("%w: %s", parser.ErrInvalidState, f.State)
	}
	return nil
}

// Match 线程是否通过过滤
func (f Filter) Match(t parser.ThreadRecord) bool {
	if f.State != parser.StateUnset && t.State != f.State {
		return false
	}
	if f.Name != "" && !strings.Contains(t.Name, f.Name) {
		return false
	}
	return true
}

// String 过滤条件描述
func (f Filter) String() string {
	var parts []string
	if f.State != parser.StateUnset {
		parts = append(parts, "state="+f.State.String())
	}
	if f.Name != "" {
		parts = append(parts, "name="+f.Name)
	}
	if len(parts) == 0 {
		return "all threads"
	}
	return strings.Join(parts, ",")
}

// Joint 汇总通过过滤的线程的栈帧计数
// 相同签名在不同线程中累加；没有线程匹配时返回空表
func Joint(s *parser.Snapshot, f Filter) (TraceCountTable, error) {
	if s.Len() == 0 {
		return nil, ErrEmptySnapshot
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	traces := make(TraceCountTable)
	for _, t := range s.Threads() {
		if !f.Match(t) {
			continue
		}
		for sig, n := range t.Frames {
			traces[sig] += n
		}
	}
	return traces, nil
}

// TraceEntry 排名表中的一项
type TraceEntry struct {
	Signature string `json:"signature"`
	Count     int    `json:"count"`
}

// Sorted 按计数降序排列，计数相同按签名字典序升序
func (t TraceCountTable) Sorted() []TraceEntry {
	entries := make([]TraceEntry, 0, len(t))
	for sig, n := range t {
		entries = append(entries, TraceEntry{Signature: sig, Count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Signature < entries[j].Signature
	})
	return entries
}
