package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrParseReuse 同一个 Builder 只能解析一次
var ErrParseReuse = errors.New("parser already used")

// 单行最大长度，超长的栈帧签名也要能读进来
const maxLineSize = 4 * 1024 * 1024

const timestampLayout = "2006-01-02 15:04:05"

var (
	// 兼容旧版 `"name" daemon prio=10 tid=0x.. nid=0x.. in Object.wait()`
	// 以及新版 `"name" #12 [345] daemon prio=5 os_prio=0 cpu=.. elapsed=.. tid=.. nid=.. waiting on condition`
	reThread = regexp.MustCompile(`^"([^"]+)"\s+(?:#\d+\s+)?(?:\[\d+\]\s+)?(daemon\s+)?prio=(\d+)\s+` +
		`(?:os_prio=-?\d+\s+)?(?:cpu=\S+\s+)?(?:elapsed=\S+\s+)?` +
		`tid=(0x[0-9a-fA-F]+)\s+nid=(0x[0-9a-fA-F]+|\d+)\s+` +
		`(in \S+|runnable|waiting on condition|waiting for monitor entry|sleeping)`)
	reState     = regexp.MustCompile(`^\s+java\.lang\.Thread\.State: (\S+)`)
	reFrame     = regexp.MustCompile(`^\s+at (.+)$`)
	reTimestamp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)
)

// Option 解析选项
type Option func(*options)

type options struct {
	logger *log.Logger
	strict bool
}

// WithLogger 设置诊断日志输出，nil 表示丢弃
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithStrict 严格模式下，无法识别的状态令牌会使解析失败
func WithStrict(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

func newOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard, "", 0)
	}
	return o
}

// Builder 一次性的 dump 解析器
// 第一次 Parse 之后再调用会返回 ErrParseReuse
type Builder struct {
	opts options
	used bool
}

// NewBuilder 创建解析器
func NewBuilder(opts ...Option) *Builder {
	return &Builder{opts: newOptions(opts)}
}

// Parse 解析 jstack 输出的全部文本
func Parse(text string, opts ...Option) (*Snapshot, error) {
	return NewBuilder(opts...).Parse(strings.NewReader(text))
}

// Parse 单次前向扫描，逐行识别线程头、状态行与栈帧行
// 其余行（锁信息、空行、分隔符）一律忽略
func (b *Builder) Parse(r io.Reader) (*Snapshot, error) {
	if b.used {
		return nil, ErrParseReuse
	}
	b.used = true

	logger := b.opts.logger
	snap := &Snapshot{histogram: make(StateHistogram)}
	current := -1

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), " \t\r")

		if m := reThread.FindStringSubmatch(line); m != nil {
			prio, _ := strconv.Atoi(m[3])
			snap.threads = append(snap.threads, ThreadRecord{
				Name:        m[1],
				ID:          m[4],
				NID:         m[5],
				Priority:    prio,
				Daemon:      m[2] != "",
				WaitChannel: strings.TrimPrefix(strings.TrimSpace(m[6]), "in "),
				Frames:      make(map[string]int),
			})
			current = len(snap.threads) - 1
			logger.Printf("🧵 thread: [%s] wchan=%q", m[1], snap.threads[current].WaitChannel)
			continue
		}

		if current < 0 {
			b.parsePreamble(snap, line)
			continue
		}

		if m := reState.FindStringSubmatch(line); m != nil {
			state, err := ParseThreadState(m[1])
			if err != nil {
				if b.opts.strict {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				logger.Printf("⚠️ line %d: 跳过无法识别的线程状态 %q", lineNo, m[1])
				continue
			}
			snap.threads[current].State = state
			snap.histogram[state]++
			continue
		}

		if m := reFrame.FindStringSubmatch(line); m != nil {
			t := &snap.threads[current]
			t.Frames[m[1]]++
			t.Stack = append(t.Stack, m[1])
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read thread dump: %w", err)
	}

	logger.Printf("✅ 解析完成: %d 个线程", len(snap.threads))
	return snap, nil
}

// parsePreamble 处理第一个线程之前的时间戳与 VM 描述行
func (b *Builder) parsePreamble(snap *Snapshot, line string) {
	switch {
	case snap.taken.IsZero() && reTimestamp.MatchString(line):
		if t, err := time.ParseInLocation(timestampLayout, line, time.Local); err == nil {
			snap.taken = t
		}
	case snap.vm == "" && strings.HasPrefix(line, "Full thread dump"):
		vm := strings.TrimPrefix(line, "Full thread dump")
		snap.vm = strings.TrimSuffix(strings.TrimSpace(vm), ":")
	}
}

// LoadSnapshot 加载并解析 dump 文件
// dump 中没有时间戳时回退到文件修改时间
func LoadSnapshot(path string, opts ...Option) (*Snapshot, error) {
	o := newOptions(opts)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	snap, err := NewBuilder(opts...).Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if !snap.Taken().IsZero() {
		o.logger.Printf("✅ %s: 使用 dump 时间戳 %s", path, snap.Taken().Format(time.RFC3339))
		return snap, nil
	}

	fileInfo, statErr := f.Stat()
	if statErr != nil {
		return snap, nil
	}
	o.logger.Printf("⏰ %s: 未找到 dump 时间戳，回退到文件修改时间 (%s)",
		path, fileInfo.ModTime().Format(time.RFC3339))
	return snap.withTaken(fileInfo.ModTime()), nil
}
