package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/songzhibin97/stackinspector/assets"
	"github.com/songzhibin97/stackinspector/pkg/analyzer"
	"github.com/songzhibin97/stackinspector/pkg/histo"
	"github.com/songzhibin97/stackinspector/pkg/locator"
	"github.com/songzhibin97/stackinspector/pkg/parser"
	"github.com/songzhibin97/stackinspector/pkg/reporter"
	"github.com/songzhibin97/stackinspector/pkg/rules"
)

const defaultRankLimit = 20

func summarizeHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filePath, err := request.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	snap, err := parser.LoadSnapshot(filePath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load dump: %v", err)), nil
	}

	var sb strings.Builder
	if vm := snap.VM(); vm != "" {
		fmt.Fprintf(&sb, "VM: %s\n", vm)
	}
	if taken := snap.Taken(); !taken.IsZero() {
		fmt.Fprintf(&sb, "Taken: %s\n", taken.Format("2006-01-02 15:04:05"))
	}
	if err := reporter.WriteSummary(&sb, reporter.Summarize(snap)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	engine, err := loadEngine(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	metrics := analyzer.ExtractMetrics(snap)
	for _, insight := range analyzer.AnalyzeThreadInsights(metrics) {
		fmt.Fprintf(&sb, "\n[%s] %s: %s", insight.Level, insight.Title, insight.Description)
	}
	for _, finding := range engine.EvaluateSnapshot(metrics) {
		fmt.Fprintf(&sb, "\n[%s] %s (%s)", finding.Severity, finding.Title, finding.RuleID)
		for _, key := range sortedKeys(finding.Evidence) {
			fmt.Fprintf(&sb, "\n  - %s", finding.Evidence[key])
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func rankFramesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filePath, err := request.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	filter := analyzer.Filter{Name: request.GetString("name", "")}
	if state := request.GetString("state", ""); state != "" {
		st, err := parser.ParseThreadState(state)
		if err != nil {
			msg := fmt.Sprintf("Invalid state %q, must be one of: %s", state, strings.Join(parser.StateNames(), ", "))
			if suggestion := parser.SuggestState(state); suggestion != "" {
				msg = fmt.Sprintf("Invalid state %q, did you mean %s?", state, suggestion)
			}
			return mcp.NewToolResultError(msg), nil
		}
		filter.State = st
	}

	opts := reporter.RankOptions{
		Limit:     reporter.BoundFromFlag(int(request.GetFloat("limit", defaultRankLimit))),
		Threshold: reporter.BoundFromFlag(int(request.GetFloat("threshold", 0))),
	}

	snap, err := parser.LoadSnapshot(filePath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load dump: %v", err)), nil
	}

	traces, err := analyzer.Joint(snap, filter)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Filter: %s\n", filter)
	if err := reporter.WriteTraceTable(&sb, reporter.Rank(traces, opts), opts); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func analyzeSeriesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := request.RequireString("dir")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	paths, err := listFiles(dir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read directory: %v", err)), nil
	}

	files, err := analyzer.LoadSeries(paths, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(files) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("No thread dump found in %s", dir)), nil
	}

	trends := analyzer.CalculateTrends(files)

	engine, err := loadEngine(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	findings := engine.EvaluateSeries(files, trends)

	config := locator.DefaultConfig()
	config.BusinessPrefixes = locator.ParsePrefixes(request.GetString("business_prefixes", ""))
	contexts := make(map[string]*locator.ProblemContext)
	if len(findings) > 0 {
		generator := locator.NewContextGenerator(locator.NewPathAnalyzer(
			locator.NewExtractor(locator.NewClassifier(config)), config))

		snaps := make([]*parser.Snapshot, 0, len(files))
		loaded := make([]string, 0, len(files))
		for _, f := range files {
			snaps = append(snaps, f.Snapshot)
			loaded = append(loaded, f.Path)
		}
		for _, finding := range findings {
			if c := generator.GenerateContext(finding, snaps, loaded); c != nil {
				contexts[finding.RuleID] = c
			}
		}
	}

	var sb strings.Builder
	err = reporter.WriteSeriesReport(&sb, reporter.SeriesReport{
		Files:    files,
		Trends:   trends,
		Findings: findings,
		Contexts: contexts,
		Rank:     reporter.RankOptions{Limit: reporter.AtMost(defaultRankLimit)},
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func compareHistogramsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := request.RequireString("dir")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	paths, err := listFiles(dir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read directory: %v", err)), nil
	}

	var histos []*histo.Histogram
	for _, path := range paths {
		h, err := histo.Load(path, 0)
		if err != nil {
			continue
		}
		histos = append(histos, h)
	}
	if len(histos) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("No jmap -histo output found in %s", dir)), nil
	}
	histo.SortByTime(histos)

	delta := request.GetBool("delta", false)
	var sb strings.Builder
	err = reporter.WriteHistoSeries(&sb, reporter.HistoReport{
		Histograms: histos,
		Series:     histo.BuildSeries(histos, delta),
		Delta:      delta,
		Top:        int(request.GetFloat("top", 10)),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// loadEngine 优先使用 rules_path 指定的规则文件，否则使用内置默认规则
func loadEngine(request mcp.CallToolRequest) (*rules.Engine, error) {
	if rulesPath := request.GetString("rules_path", ""); rulesPath != "" {
		return rules.NewEngine(rulesPath)
	}
	return rules.LoadEngine(assets.DefaultRules)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// listFiles 目录下的普通文件，按文件名排序
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
