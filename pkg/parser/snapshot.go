package parser

import (
	"maps"
	"slices"
	"time"
)

// ThreadRecord 单个线程的解析结果
type ThreadRecord struct {
	Name        string         // 线程名（dump 中的引号部分）
	ID          string         // tid
	NID         string         // 本地线程 id
	Priority    int            // prio
	Daemon      bool           // 是否守护线程
	WaitChannel string         // 等待通道: 方法/监视器描述，或 runnable
	State       ThreadState    // 线程状态，未出现状态行时为 StateUnset
	Frames      map[string]int // 栈帧签名 -> 在本线程中出现次数
	Stack       []string       // 按 dump 顺序排列的栈帧（栈顶在前）
}

// StateHistogram 各状态的线程数
type StateHistogram map[ThreadState]int

// Total 所有状态计数之和
func (h StateHistogram) Total() int {
	total := 0
	for _, n := range h {
		total += n
	}
	return total
}

// Snapshot 一次线程 dump 的不可变模型
type Snapshot struct {
	threads   []ThreadRecord
	histogram StateHistogram
	taken     time.Time
	vm        string
}

// Threads 返回线程列表的深拷贝，修改返回值不会影响快照
func (s *Snapshot) Threads() []ThreadRecord {
	if s == nil {
		return nil
	}
	out := make([]ThreadRecord, len(s.threads))
	for i, t := range s.threads {
		t.Frames = maps.Clone(t.Frames)
		t.Stack = slices.Clone(t.Stack)
		out[i] = t
	}
	return out
}

// Len 线程数
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.threads)
}

// Histogram 返回状态计数的副本，六个状态全部存在（缺失补零）
func (s *Snapshot) Histogram() StateHistogram {
	h := make(StateHistogram, len(AllStates))
	for _, st := range AllStates {
		h[st] = 0
	}
	if s == nil {
		return h
	}
	for st, n := range s.histogram {
		h[st] = n
	}
	return h
}

// StateCount 指定状态的线程数
func (s *Snapshot) StateCount(state ThreadState) int {
	if s == nil {
		return 0
	}
	return s.histogram[state]
}

// Taken dump 头部的时间戳，没有时为零值
func (s *Snapshot) Taken() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.taken
}

// VM "Full thread dump" 行中的虚拟机描述
func (s *Snapshot) VM() string {
	if s == nil {
		return ""
	}
	return s.vm
}

// withTaken 返回替换时间戳后的副本
func (s *Snapshot) withTaken(t time.Time) *Snapshot {
	cp := *s
	cp.taken = t
	return &cp
}
