package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/songzhibin97/stackinspector/pkg/analyzer"
	"github.com/songzhibin97/stackinspector/pkg/collector"
	"github.com/songzhibin97/stackinspector/pkg/config"
	"github.com/songzhibin97/stackinspector/pkg/histo"
	"github.com/songzhibin97/stackinspector/pkg/locator"
	"github.com/songzhibin97/stackinspector/pkg/monitor"
	"github.com/songzhibin97/stackinspector/pkg/parser"
	"github.com/songzhibin97/stackinspector/pkg/reporter"
	"github.com/songzhibin97/stackinspector/pkg/rules"
)

// Config 命令行配置
type Config struct {
	// 实时采集
	PID        int           // 目标 JVM 进程
	Interval   time.Duration // 采集间隔，0 表示只采集一次
	Iterations int           // 采集次数上限，0 表示不限制

	// 过滤与排名
	Limit     int
	Threshold int
	State     parser.ThreadState
	Name      string
	Strict    bool
	Verbose   bool

	// 离线分析
	Inputs     []string // dump 文件或目录
	Format     string   // 输出格式: text, csv, json, html
	OutputPath string
	PprofPath  string
	RulesPath  string
	ConfigPath string

	// Problem Locator 配置
	BusinessPrefixes   []string
	ThirdPartyPrefixes []string
	StackDepth         int
	HotPaths           int

	// 堆直方图
	Histo      bool
	HistoLimit int
	Top        int
	Delta      bool
}

// DefaultRulesPath 默认规则文件路径
const DefaultRulesPath = "assets/default_rules.yaml"

// usageError 参数错误，进程以状态码 2 退出
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...interface{}) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func main() {
	cfg, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		var uerr *usageError
		if errors.As(err, &uerr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseArgs 解析命令行参数，配置文件中的值只在对应参数未显式设置时生效
func parseArgs(args []string, stderr io.Writer) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("stackinspector", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		intervalSeconds    int
		state              string
		businessPrefixes   string
		thirdPartyPrefixes string
	)

	// 实时采集
	fs.IntVar(&cfg.PID, "j", 0, "目标 JVM 进程 pid")
	fs.IntVar(&intervalSeconds, "i", 0, "两次采集之间的间隔秒数，0 表示只采集一次")
	fs.IntVar(&cfg.Iterations, "c", 0, "采集次数上限，0 表示直到中断")

	// 过滤与排名
	fs.IntVar(&cfg.Limit, "l", 0, "最多输出多少个栈帧，0 表示不限制")
	fs.IntVar(&cfg.Threshold, "t", 0, "计数低于该值的栈帧不再输出，0 表示不限制")
	fs.StringVar(&state, "s", "", "只统计该状态的线程: "+strings.Join(parser.StateNames(), ", "))
	fs.StringVar(&cfg.Name, "n", "", "只统计名称包含该子串的线程")
	fs.BoolVar(&cfg.Strict, "strict", false, "遇到无法识别的线程状态时报错")
	fs.BoolVar(&cfg.Verbose, "v", false, "输出诊断日志")

	// 输出
	fs.StringVar(&cfg.Format, "format", "text", "输出格式: text, csv, json, html")
	fs.StringVar(&cfg.OutputPath, "output", "", "输出文件路径")
	fs.StringVar(&cfg.PprofPath, "pprof", "", "将最新的快照导出为 pprof 文件")
	fs.StringVar(&cfg.RulesPath, "rules", DefaultRulesPath, "规则文件路径")
	fs.StringVar(&cfg.ConfigPath, "config", "", "YAML 配置文件路径")

	// Problem Locator 配置
	fs.StringVar(&businessPrefixes, "pkg", "", "业务代码包前缀，逗号分隔 (默认从 pom.xml / build.gradle 自动检测)")
	fs.StringVar(&thirdPartyPrefixes, "third-party-prefixes", "", "额外的第三方包前缀，逗号分隔")
	fs.IntVar(&cfg.StackDepth, "stack-depth", 10, "最大调用栈深度 (默认 10)")
	fs.IntVar(&cfg.HotPaths, "hot-paths", 5, "最大热点路径数 (默认 5)")

	// 堆直方图
	fs.BoolVar(&cfg.Histo, "histo", false, "输入为 jmap -histo 输出")
	fs.IntVar(&cfg.HistoLimit, "histo-limit", 0, "每个直方图只读取前 N 行，0 表示全部")
	fs.IntVar(&cfg.Top, "top", 10, "输出峰值最大的前 N 个类")
	fs.BoolVar(&cfg.Delta, "delta", false, "输出相对第一个直方图的增量")

	fs.Usage = func() {
		name := fs.Name()
		fmt.Fprintf(stderr, "StackInspector v0.1 - jstack 线程 dump 采样分析工具\n\n")
		fmt.Fprintf(stderr, "Usage: %s [options] -j <pid>\n", name)
		fmt.Fprintf(stderr, "       %s [options] <dump_dir_or_file>...\n\n", name)
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  %s -j 12345 -l 20\n", name)
		fmt.Fprintf(stderr, "  %s -j 12345 -i 5 -s BLOCKED -t 3\n", name)
		fmt.Fprintf(stderr, "  %s -j 12345 -i 1 -format csv -output threads.csv\n", name)
		fmt.Fprintf(stderr, "  %s ./dumps/\n", name)
		fmt.Fprintf(stderr, "  %s -format html -output report.html -pkg com.example ./dumps/\n", name)
		fmt.Fprintf(stderr, "  %s -histo -delta -top 5 ./histo/\n", name)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Inputs = fs.Args()

	fail := func(err error) (*Config, error) {
		fs.Usage()
		return nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	file, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return fail(usagef("%v", err))
	}
	if file != nil {
		applyConfigFile(cfg, file, set, &state, &businessPrefixes, &thirdPartyPrefixes)
	}

	if intervalSeconds < 0 {
		return fail(usagef("interval must not be negative"))
	}
	if !set["i"] && file != nil && file.Interval > 0 {
		cfg.Interval = file.Interval.Std()
	} else {
		cfg.Interval = time.Duration(intervalSeconds) * time.Second
	}

	if state != "" {
		st, err := parser.ParseThreadState(state)
		if err != nil {
			if suggestion := parser.SuggestState(state); suggestion != "" {
				return fail(usagef("invalid state %q, did you mean %s?", state, suggestion))
			}
			return fail(usagef("invalid state %q, must be one of: %s", state, strings.Join(parser.StateNames(), ", ")))
		}
		cfg.State = st
	}

	switch cfg.Format {
	case "text", "csv", "json", "html":
	default:
		return fail(usagef("invalid format '%s', must be 'text', 'csv', 'json' or 'html'", cfg.Format))
	}

	cfg.BusinessPrefixes = locator.ParsePrefixes(businessPrefixes)
	cfg.ThirdPartyPrefixes = locator.ParsePrefixes(thirdPartyPrefixes)

	// 验证配置限制
	if cfg.StackDepth < 1 {
		cfg.StackDepth = 1
	}
	if cfg.StackDepth > 100 {
		cfg.StackDepth = 100
	}
	if cfg.HotPaths < 1 {
		cfg.HotPaths = 1
	}
	if cfg.HotPaths > 50 {
		cfg.HotPaths = 50
	}

	switch {
	case cfg.PID < 0:
		return fail(usagef("invalid pid %d", cfg.PID))
	case cfg.PID > 0 && len(cfg.Inputs) > 0:
		return fail(usagef("-j cannot be combined with dump files"))
	case cfg.PID > 0 && cfg.Histo:
		return fail(usagef("-histo reads jmap -histo files, not a live process"))
	case cfg.PID > 0 && (cfg.Format == "html" || cfg.PprofPath != ""):
		return fail(usagef("-format html and -pprof require dump files"))
	case cfg.PID == 0 && len(cfg.Inputs) == 0:
		return fail(usagef("missing process id (-j) or dump files"))
	}

	return cfg, nil
}

// applyConfigFile 用配置文件补全未显式设置的参数
// 采集间隔在 parseArgs 中单独处理，配置文件支持秒以下的精度
func applyConfigFile(cfg *Config, file *config.File, set map[string]bool, state, businessPrefixes, thirdPartyPrefixes *string) {
	if !set["l"] && file.Limit != 0 {
		cfg.Limit = file.Limit
	}
	if !set["t"] && file.Threshold != 0 {
		cfg.Threshold = file.Threshold
	}
	if !set["s"] && file.State != "" {
		*state = file.State
	}
	if !set["n"] && file.Name != "" {
		cfg.Name = file.Name
	}
	if !set["format"] && file.Format != "" {
		cfg.Format = file.Format
	}
	if !set["rules"] && file.Rules != "" {
		cfg.RulesPath = file.Rules
	}
	if !set["pkg"] && len(file.Locator.BusinessPrefixes) > 0 {
		*businessPrefixes = strings.Join(file.Locator.BusinessPrefixes, ",")
	}
	if !set["third-party-prefixes"] && len(file.Locator.ThirdPartyPrefixes) > 0 {
		*thirdPartyPrefixes = strings.Join(file.Locator.ThirdPartyPrefixes, ",")
	}
	if !set["stack-depth"] && file.Locator.StackDepth > 0 {
		cfg.StackDepth = file.Locator.StackDepth
	}
	if !set["hot-paths"] && file.Locator.HotPaths > 0 {
		cfg.HotPaths = file.Locator.HotPaths
	}
}

func (c *Config) filter() analyzer.Filter {
	return analyzer.Filter{State: c.State, Name: c.Name}
}

func (c *Config) rank() reporter.RankOptions {
	return reporter.RankOptions{
		Limit:     reporter.BoundFromFlag(c.Limit),
		Threshold: reporter.BoundFromFlag(c.Threshold),
	}
}

func newLogger(verbose bool) *log.Logger {
	if !verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}

// run 按参数选择实时采集、离线分析或堆直方图模式
func run(ctx context.Context, cfg *Config, stdout io.Writer) error {
	logger := newLogger(cfg.Verbose)

	switch {
	case cfg.PID > 0:
		return runLive(ctx, cfg, stdout, logger)
	case cfg.Histo:
		return runHisto(cfg, stdout, logger)
	default:
		return runOffline(ctx, cfg, stdout, logger)
	}
}

// openOutput 打开输出文件，未指定时写到 stdout
func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

func runLive(ctx context.Context, cfg *Config, stdout io.Writer, logger *log.Logger) error {
	out, closeOut, err := openOutput(cfg.OutputPath, stdout)
	if err != nil {
		return err
	}

	err = monitor.Run(ctx, collector.JStack(cfg.PID, logger), monitor.Options{
		Interval:    cfg.Interval,
		Filter:      cfg.filter(),
		Rank:        cfg.rank(),
		Iterations:  cfg.Iterations,
		ClearScreen: cfg.Format == "text" && cfg.OutputPath == "" && term.IsTerminal(int(os.Stdout.Fd())),
		Format:      cfg.Format,
		Strict:      cfg.Strict,
		Out:         out,
		Logger:      logger,
	})
	// Ctrl-C 结束周期采集属于正常退出
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	return err
}

func runOffline(ctx context.Context, cfg *Config, stdout io.Writer, logger *log.Logger) error {
	paths, err := getDumpPaths(cfg.Inputs)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no valid thread dump files found")
	}

	// 单个文件且不要求 HTML 时输出经典报告
	if len(paths) == 1 && cfg.Format != "html" {
		if err := runSingle(ctx, cfg, paths[0], stdout, logger); err != nil {
			return err
		}
		if cfg.PprofPath != "" {
			snap, err := parser.LoadSnapshot(paths[0], parser.WithLogger(logger))
			if err != nil {
				return err
			}
			return exportProfile(cfg.PprofPath, snap, stdout)
		}
		return nil
	}

	files, err := analyzer.LoadSeries(paths, logger)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	if len(files) == 0 {
		return errors.New("no thread dump could be parsed")
	}

	if err := writeSeries(cfg, files, stdout, logger); err != nil {
		return err
	}

	if cfg.PprofPath != "" {
		return exportProfile(cfg.PprofPath, files[len(files)-1].Snapshot, stdout)
	}
	return nil
}

func runSingle(ctx context.Context, cfg *Config, path string, stdout io.Writer, logger *log.Logger) error {
	out, closeOut, err := openOutput(cfg.OutputPath, stdout)
	if err != nil {
		return err
	}
	err = monitor.Run(ctx, &collector.Files{Paths: []string{path}}, monitor.Options{
		Filter: cfg.filter(),
		Rank:   cfg.rank(),
		Format: cfg.Format,
		Strict: cfg.Strict,
		Out:    out,
		Logger: logger,
	})
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	return err
}

func writeSeries(cfg *Config, files []analyzer.SnapshotFile, stdout io.Writer, logger *log.Logger) error {
	if cfg.Format == "csv" {
		out, closeOut, err := openOutput(cfg.OutputPath, stdout)
		if err != nil {
			return err
		}
		w := reporter.NewCSVWriter(out)
		for _, f := range files {
			if err = w.Write(f.Time, reporter.Summarize(f.Snapshot)); err != nil {
				break
			}
		}
		if cerr := closeOut(); err == nil {
			err = cerr
		}
		return err
	}

	trends := analyzer.CalculateTrends(files)

	// 加载规则引擎
	var findings []rules.Finding
	engine, err := rules.NewEngine(cfg.RulesPath)
	if err != nil {
		// 规则加载失败只是警告，不影响主流程
		fmt.Fprintf(os.Stderr, "⚠️ 规则加载失败: %v\n", err)
	} else if engine != nil {
		findings = engine.EvaluateSeries(files, trends)
	}

	report := reporter.SeriesReport{
		Files:    files,
		Trends:   trends,
		Findings: findings,
		Contexts: generateProblemContexts(findings, files, createLocatorConfig(cfg, logger)),
		Filter:   cfg.filter(),
		Rank:     cfg.rank(),
	}

	switch cfg.Format {
	case "html":
		outputPath := cfg.OutputPath
		if outputPath == "" {
			outputPath = "report.html"
		}
		if err := reporter.WriteHTMLReportFile(outputPath, report); err != nil {
			return fmt.Errorf("HTML report generation failed: %w", err)
		}
		fmt.Fprintf(stdout, "✅ HTML 报告已生成: %s\n", outputPath)
		return nil
	case "json":
		data, err := reporter.NewSeriesJSON(report)
		if err != nil {
			return err
		}
		out, closeOut, err := openOutput(cfg.OutputPath, stdout)
		if err != nil {
			return err
		}
		err = reporter.WriteJSON(out, data)
		if cerr := closeOut(); err == nil {
			err = cerr
		}
		return err
	default:
		out, closeOut, err := openOutput(cfg.OutputPath, stdout)
		if err != nil {
			return err
		}
		err = reporter.WriteSeriesReport(out, report)
		if cerr := closeOut(); err == nil {
			err = cerr
		}
		return err
	}
}

func exportProfile(path string, snap *parser.Snapshot, stdout io.Writer) error {
	if err := reporter.WriteProfileFile(path, snap); err != nil {
		return fmt.Errorf("pprof export failed: %w", err)
	}
	fmt.Fprintf(stdout, "✅ pprof 文件已生成: %s\n", path)
	return nil
}

func runHisto(cfg *Config, stdout io.Writer, logger *log.Logger) error {
	paths, err := collectFiles(cfg.Inputs, func(string) bool { return true })
	if err != nil {
		return err
	}

	var histos []*histo.Histogram
	for _, path := range paths {
		h, err := histo.Load(path, cfg.HistoLimit)
		if err != nil {
			logger.Printf("⚠️ 跳过文件: %s, 错误: %v", path, err)
			continue
		}
		histos = append(histos, h)
	}
	histo.SortByTime(histos)

	out, closeOut, err := openOutput(cfg.OutputPath, stdout)
	if err != nil {
		return err
	}
	err = reporter.WriteHistoSeries(out, reporter.HistoReport{
		Histograms: histos,
		Series:     histo.BuildSeries(histos, cfg.Delta),
		Delta:      cfg.Delta,
		Top:        cfg.Top,
	})
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	return err
}

// getDumpPaths 展开输入路径；目录只收集 dump 扩展名的文件，显式给出的文件一律接受
func getDumpPaths(inputs []string) ([]string, error) {
	return collectFiles(inputs, isDumpFile)
}

func collectFiles(inputs []string, accept func(string) bool) ([]string, error) {
	var paths []string
	for _, input := range inputs {
		fileInfo, err := os.Stat(input)
		if err != nil {
			return nil, err
		}

		if !fileInfo.IsDir() {
			paths = append(paths, input)
			continue
		}

		err = filepath.Walk(input, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && accept(p) {
				paths = append(paths, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}

func isDumpFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".tdump", ".jstack", ".dump", ".threads":
		return true
	}
	return false
}

// createLocatorConfig 创建 Problem Locator 配置
func createLocatorConfig(cfg *Config, logger *log.Logger) locator.LocatorConfig {
	locatorConfig := locator.DefaultConfig()

	if len(cfg.BusinessPrefixes) > 0 {
		locatorConfig.BusinessPrefixes = cfg.BusinessPrefixes
	} else if base, err := locator.DetectBasePackage("."); err == nil {
		// 尝试从 pom.xml / build.gradle 自动检测
		logger.Printf("📦 检测到业务包前缀: %s", base)
		locatorConfig.BusinessPrefixes = []string{base}
	}

	if len(cfg.ThirdPartyPrefixes) > 0 {
		locatorConfig.ThirdPartyPrefixes = cfg.ThirdPartyPrefixes
	}

	locatorConfig.MaxCallStackDepth = cfg.StackDepth
	locatorConfig.MaxHotPaths = cfg.HotPaths

	return locatorConfig
}

// generateProblemContexts 为每个 Finding 生成 ProblemContext
func generateProblemContexts(findings []rules.Finding, files []analyzer.SnapshotFile, config locator.LocatorConfig) map[string]*locator.ProblemContext {
	if len(findings) == 0 {
		return nil
	}

	classifier := locator.NewClassifier(config)
	extractor := locator.NewExtractor(classifier)
	pathAnalyzer := locator.NewPathAnalyzer(extractor, config)
	contextGenerator := locator.NewContextGenerator(pathAnalyzer)

	snaps := make([]*parser.Snapshot, 0, len(files))
	paths := make([]string, 0, len(files))
	for _, f := range files {
		snaps = append(snaps, f.Snapshot)
		paths = append(paths, f.Path)
	}

	contexts := make(map[string]*locator.ProblemContext)
	for _, finding := range findings {
		if ctx := contextGenerator.GenerateContext(finding, snaps, paths); ctx != nil {
			contexts[finding.RuleID] = ctx
		}
	}
	return contexts
}
