package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File 配置文件结构，所有字段都可以被命令行参数覆盖
type File struct {
	Interval  Duration `yaml:"interval"`
	Limit     int      `yaml:"limit"`
	Threshold int      `yaml:"threshold"`
	State     string   `yaml:"state"`
	Name      string   `yaml:"name"`
	Format    string   `yaml:"format"`
	Rules     string   `yaml:"rules"`

	Locator LocatorSection `yaml:"locator"`
}

// LocatorSection 问题定位相关配置
type LocatorSection struct {
	BusinessPrefixes   []string `yaml:"business_prefixes"`
	ThirdPartyPrefixes []string `yaml:"third_party_prefixes"`
	StackDepth         int      `yaml:"stack_depth"`
	HotPaths           int      `yaml:"hot_paths"`
}

// Duration 支持 "5s" 形式，也兼容纯数字（秒）
type Duration time.Duration

// UnmarshalYAML 解析时长
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var seconds int
	if err := value.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: invalid duration", value.Line)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std 转换为 time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load 读取 YAML 配置文件，path 为空时返回 nil
func Load(path string) (*File, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 配置
func Parse(data []byte) (*File, error) {
	var cfg File
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("interval must not be negative")
	}
	if cfg.Locator.StackDepth < 0 || cfg.Locator.HotPaths < 0 {
		return nil, fmt.Errorf("locator limits must not be negative")
	}
	return &cfg, nil
}
