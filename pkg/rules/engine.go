package rules

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/songzhibin97/stackinspector/pkg/analyzer"
	"gopkg.in/yaml.v3"
)

// Engine 规则引擎
type Engine struct {
	rules []Rule
}

// NewEngine 创建规则引擎，从指定路径加载规则
func NewEngine(rulesPath string) (*Engine, error) {
	if rulesPath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(rulesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("rules file not found: %s", rulesPath)
		}
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	return LoadEngine(data)
}

// LoadEngine 从 YAML 内容创建规则引擎
func LoadEngine(data []byte) (*Engine, error) {
	var config RulesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	for i := range config.Rules {
		rule := &config.Rules[i]
		if rule.ID == "" {
			return nil, fmt.Errorf("rule %d: missing id", i)
		}
		if rule.Name == "" {
			return nil, fmt.Errorf("rule %s: missing name", rule.ID)
		}
		if rule.Scope == "" {
			rule.Scope = ScopeSnapshot
		}
		if rule.Scope != ScopeSnapshot && rule.Scope != ScopeSeries {
			return nil, fmt.Errorf("rule %s: invalid scope %q", rule.ID, rule.Scope)
		}
		if rule.Condition == "" {
			return nil, fmt.Errorf("rule %s: missing condition", rule.ID)
		}
		if len(rule.Actions) == 0 {
			return nil, fmt.Errorf("rule %s: missing actions", rule.ID)
		}

		cond, err := parseCondition(rule.Condition)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		rule.compiled = cond
	}

	return &Engine{rules: config.Rules}, nil
}

// Rules 已加载的规则
func (e *Engine) Rules() []Rule {
	if e == nil {
		return nil
	}
	return e.rules
}

// EvaluateSnapshot 对单个快照评估 snapshot 规则
func (e *Engine) EvaluateSnapshot(m *analyzer.SnapshotMetrics) []Finding {
	if e == nil || m == nil {
		return nil
	}

	values := SnapshotValues(m)
	vars := snapshotVars(m)

	var findings []Finding
	for _, rule := range e.rules {
		if rule.Scope != ScopeSnapshot {
			continue
		}
		if rule.compiled.Eval(values) {
			findings = append(findings, e.fire(rule, values, vars)...)
		}
	}
	return e.deduplicateFindings(findings)
}

// EvaluateSeries 评估整个快照序列
// snapshot 规则针对最新的快照；series 规则在趋势可用时才评估
func (e *Engine) EvaluateSeries(series []analyzer.SnapshotFile, trends *analyzer.SeriesTrends) []Finding {
	if e == nil || len(series) == 0 {
		return nil
	}

	var latest *analyzer.SnapshotMetrics
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].Metrics != nil {
			latest = series[i].Metrics
			break
		}
	}

	values := SnapshotValues(latest)
	vars := snapshotVars(latest)
	for k, v := range TrendValues(trends) {
		values[k] = v
	}
	for k, v := range seriesVars(series, trends) {
		vars[k] = v
	}

	var findings []Finding
	for _, rule := range e.rules {
		switch rule.Scope {
		case ScopeSnapshot:
			if latest == nil {
				continue
			}
		case ScopeSeries:
			if trends == nil {
				continue
			}
		}
		if rule.compiled.Eval(values) {
			findings = append(findings, e.fire(rule, values, vars)...)
		}
	}
	return e.deduplicateFindings(findings)
}

// fire 规则命中后按 actions 生成发现
func (e *Engine) fire(rule Rule, values map[string]float64, vars map[string]string) []Finding {
	findings := make([]Finding, 0, len(rule.Actions))
	for _, action := range rule.Actions {
		findings = append(findings, Finding{
			RuleID:      rule.ID,
			RuleName:    rule.Name,
			Severity:    action.Severity,
			Title:       action.Title,
			Scope:       rule.Scope,
			Evidence:    buildEvidence(action.EvidenceTemplate, values, vars),
			Suggestions: action.Suggestions,
		})
	}
	return findings
}

// deduplicateFindings 合并相同 RuleID 与标题的发现，保持原有顺序
func (e *Engine) deduplicateFindings(findings []Finding) []Finding {
	if len(findings) <= 1 {
		return findings
	}

	seen := make(map[string]bool)
	result := make([]Finding, 0, len(findings))
	for _, finding := range findings {
		key := finding.RuleID + ":" + finding.Title
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, finding)
	}
	return result
}

// snapshotVars 快照相关的文本变量
func snapshotVars(m *analyzer.SnapshotMetrics) map[string]string {
	vars := make(map[string]string)
	if m == nil {
		return vars
	}
	vars["top_channel"] = m.TopChannel.Channel
	if len(m.TopFrames) > 0 {
		vars["top_frame"] = m.TopFrames[0].Signature
	}
	return vars
}

// seriesVars 时间范围与速率变量
func seriesVars(series []analyzer.SnapshotFile, trends *analyzer.SeriesTrends) map[string]string {
	vars := map[string]string{
		"file_count": fmt.Sprintf("%d", len(series)),
	}
	if len(series) < 2 {
		return vars
	}

	first := series[0].Time
	last := series[len(series)-1].Time
	duration := last.Sub(first)
	vars["duration"] = formatDuration(duration)
	vars["start_time"] = first.Format(time.RFC3339)
	vars["end_time"] = last.Format(time.RFC3339)

	durationMinutes := duration.Minutes()
	if durationMinutes <= 0 {
		durationMinutes = 1
	}

	// 斜率单位是 线程/快照，换算成 线程/分钟
	if trends != nil {
		if trends.ThreadCount != nil {
			totalChange := trends.ThreadCount.Slope * float64(len(series)-1)
			vars["threads_per_minute"] = fmt.Sprintf("%.2f", totalChange/durationMinutes)
		}
		if trends.Blocked != nil {
			totalChange := trends.Blocked.Slope * float64(len(series)-1)
			vars["blocked_per_minute"] = fmt.Sprintf("%.2f", totalChange/durationMinutes)
		}
	}
	return vars
}

// buildEvidence 替换模板中的 {{.name}} 变量
// name 可以是任一规则指标，或 top_channel / duration 等文本变量
func buildEvidence(template map[string]string, values map[string]float64, vars map[string]string) map[string]string {
	if template == nil {
		return nil
	}

	evidence := make(map[string]string, len(template))
	for key, tmpl := range template {
		value := tmpl
		for name, v := range values {
			value = strings.ReplaceAll(value, "{{."+name+"}}", formatValue(name, v))
		}
		for name, v := range vars {
			value = strings.ReplaceAll(value, "{{."+name+"}}", v)
		}
		evidence[key] = value
	}
	return evidence
}

// formatValue 比例显示为百分比，整数不带小数
func formatValue(name string, v float64) string {
	if strings.HasPrefix(name, "ratio.") || strings.HasSuffix(name, "_ratio") {
		return fmt.Sprintf("%.1f%%", v*100)
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

// formatDuration 格式化持续时间
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1f 秒", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1f 分钟", d.Minutes())
	}
	return fmt.Sprintf("%.1f 小时", d.Hours())
}
