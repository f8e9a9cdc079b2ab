package rules

// 规则作用范围
const (
	ScopeSnapshot = "snapshot" // 针对最新一次快照的指标
	ScopeSeries   = "series"   // 针对快照序列的趋势，需要至少 3 个快照
)

// Rule 表示一条分析规则
type Rule struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Scope     string   `yaml:"scope"`
	Condition string   `yaml:"condition"`
	Actions   []Action `yaml:"actions"`

	compiled condition
}

// Action 表示规则触发后的动作
type Action struct {
	Type             string            `yaml:"type"`
	Severity         string            `yaml:"severity"`
	Title            string            `yaml:"title"`
	EvidenceTemplate map[string]string `yaml:"evidence_template"`
	Suggestions      []string          `yaml:"suggestions"`
}

// Finding 表示规则匹配后的发现
type Finding struct {
	RuleID      string            `json:"rule_id"`
	RuleName    string            `json:"rule_name"`
	Severity    string            `json:"severity"`
	Title       string            `json:"title"`
	Scope       string            `json:"scope"`
	Evidence    map[string]string `json:"evidence,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
}

// RulesConfig 规则配置文件结构
type RulesConfig struct {
	Rules []Rule `yaml:"rules"`
}
