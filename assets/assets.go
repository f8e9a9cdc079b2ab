package assets

import _ "embed"

// DefaultRules 内置的默认规则，未指定规则文件时使用
//
//go:embed default_rules.yaml
var DefaultRules []byte
