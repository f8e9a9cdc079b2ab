package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/songzhibin97/stackinspector/pkg/analyzer"
	"github.com/songzhibin97/stackinspector/pkg/collector"
	"github.com/songzhibin97/stackinspector/pkg/parser"
	"github.com/songzhibin97/stackinspector/pkg/reporter"
)

// 输出格式
const (
	FormatText = "text"
	FormatCSV  = "csv"
	FormatJSON = "json"
)

const clearScreen = "\033[H\033[2J"

// Options 监控循环配置
type Options struct {
	Interval    time.Duration // 0 表示只采集一次并输出完整报告
	Filter      analyzer.Filter
	Rank        reporter.RankOptions
	Iterations  int  // 大于 0 时限制采集次数
	ClearScreen bool // 文本模式下每次输出前清屏
	Format      string
	Strict      bool // 遇到未知线程状态时报错

	Out    io.Writer
	Logger *log.Logger
}

// PollJSON 周期模式下每次采集输出的 JSON 结构
type PollJSON struct {
	Poll      int                   `json:"poll"`
	Time      time.Time             `json:"time"`
	Threads   int                   `json:"threads"`
	Filter    string                `json:"filter"`
	Limit     string                `json:"limit"`
	Threshold string                `json:"threshold"`
	Traces    []analyzer.TraceEntry `json:"traces"`
}

// Monitor 采集、解析并输出线程 dump
type Monitor struct {
	src  collector.Source
	opts Options
	now  func() time.Time
}

// New 创建监控器
func New(src collector.Source, opts Options) (*Monitor, error) {
	if src == nil {
		return nil, errors.New("monitor: nil source")
	}
	if opts.Interval < 0 {
		return nil, fmt.Errorf("monitor: negative interval %s", opts.Interval)
	}
	if err := opts.Filter.Validate(); err != nil {
		return nil, err
	}
	switch opts.Format {
	case "":
		opts.Format = FormatText
	case FormatText, FormatCSV, FormatJSON:
	default:
		return nil, fmt.Errorf("monitor: unknown format %q", opts.Format)
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Monitor{src: src, opts: opts, now: time.Now}, nil
}

// Run 创建监控器并运行
func Run(ctx context.Context, src collector.Source, opts Options) error {
	m, err := New(src, opts)
	if err != nil {
		return err
	}
	return m.Run(ctx)
}

// Run 单次模式输出完整报告；周期模式把每次采集累加到总表并输出排名
// 采集源耗尽（io.EOF）时正常结束
func (m *Monitor) Run(ctx context.Context) error {
	if m.opts.Interval == 0 {
		return m.once(ctx)
	}
	return m.loop(ctx)
}

func (m *Monitor) capture(ctx context.Context) (*parser.Snapshot, error) {
	text, err := m.src.Capture(ctx)
	if err != nil {
		return nil, err
	}
	return parser.Parse(text, parser.WithLogger(m.opts.Logger), parser.WithStrict(m.opts.Strict))
}

// taken dump 自带时间戳时使用它，否则使用采集时间
func (m *Monitor) taken(s *parser.Snapshot) time.Time {
	if t := s.Taken(); !t.IsZero() {
		return t
	}
	return m.now()
}

func (m *Monitor) once(ctx context.Context) error {
	snap, err := m.capture(ctx)
	if err != nil {
		return err
	}
	m.opts.Logger.Printf("📊 解析完成: %d 个线程", snap.Len())

	switch m.opts.Format {
	case FormatCSV:
		return reporter.NewCSVWriter(m.opts.Out).Write(m.taken(snap), reporter.Summarize(snap))
	case FormatJSON:
		report, err := reporter.NewSnapshotJSON(snap, m.opts.Filter, m.opts.Rank)
		if err != nil {
			return err
		}
		return reporter.WriteJSON(m.opts.Out, report)
	default:
		return reporter.WriteReport(m.opts.Out, snap, m.opts.Filter, m.opts.Rank)
	}
}

func (m *Monitor) loop(ctx context.Context) error {
	var (
		total analyzer.TraceCountTable
		csvw  *reporter.CSVWriter
	)
	if m.opts.Format == FormatCSV {
		csvw = reporter.NewCSVWriter(m.opts.Out)
	}

	for poll := 1; ; poll++ {
		snap, err := m.capture(ctx)
		if errors.Is(err, io.EOF) {
			if poll == 1 {
				return fmt.Errorf("no thread dump captured: %w", err)
			}
			m.opts.Logger.Printf("✅ 采集源已耗尽，共 %d 次采集", poll-1)
			return nil
		}
		if err != nil {
			return err
		}

		total, err = analyzer.Accumulate(total, snap, m.opts.Filter)
		if err != nil {
			return fmt.Errorf("poll %d: %w", poll, err)
		}
		m.opts.Logger.Printf("🔄 第 %d 次采集: %d 个线程, 累计 %d 个栈帧签名", poll, snap.Len(), len(total))

		if err := m.emit(poll, snap, total, csvw); err != nil {
			return err
		}

		if m.opts.Iterations > 0 && poll >= m.opts.Iterations {
			return nil
		}

		timer := time.NewTimer(m.opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (m *Monitor) emit(poll int, snap *parser.Snapshot, total analyzer.TraceCountTable, csvw *reporter.CSVWriter) error {
	switch m.opts.Format {
	case FormatCSV:
		return csvw.Write(m.taken(snap), reporter.Summarize(snap))
	case FormatJSON:
		return reporter.WriteJSON(m.opts.Out, &PollJSON{
			Poll:      poll,
			Time:      m.taken(snap),
			Threads:   snap.Len(),
			Filter:    m.opts.Filter.String(),
			Limit:     m.opts.Rank.Limit.String(),
			Threshold: m.opts.Rank.Threshold.String(),
			Traces:    reporter.Rank(total, m.opts.Rank),
		})
	default:
		if m.opts.ClearScreen {
			if _, err := io.WriteString(m.opts.Out, clearScreen); err != nil {
				return err
			}
		}
		return reporter.WriteTraceTable(m.opts.Out, reporter.Rank(total, m.opts.Rank), m.opts.Rank)
	}
}
