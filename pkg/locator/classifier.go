package locator

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Classifier 代码分类器
type Classifier struct {
	businessPrefixes   []string
	thirdPartyPrefixes []string
}

// NewClassifier 创建分类器
func NewClassifier(config LocatorConfig) *Classifier {
	return &Classifier{
		businessPrefixes:   config.BusinessPrefixes,
		thirdPartyPrefixes: config.ThirdPartyPrefixes,
	}
}

// 虚拟机内部实现，优先于 JDK 判断
var jvmPrefixes = []string{
	"jdk.internal.",
	"sun.",
	"com.sun.",
}

var jdkPrefixes = []string{
	"java.",
	"javax.",
	"jdk.",
}

// 常见的第三方包顶级域
var thirdPartyDomains = []string{
	"org.",
	"com.",
	"io.",
	"net.",
	"edu.",
	"EDU.",
	"ch.",
	"kotlin.",
	"kotlinx.",
	"scala.",
	"groovy.",
	"reactor.",
}

// Classify 对包名进行分类
func (c *Classifier) Classify(packageName string) CodeCategory {
	if packageName == "" {
		return CategoryUnknown
	}

	// 1. 虚拟机内部
	if hasAnyPrefix(packageName, jvmPrefixes) {
		return CategoryJVM
	}

	// 2. JDK 类库
	if hasAnyPrefix(packageName, jdkPrefixes) {
		return CategoryJDK
	}

	// 3. 业务代码
	if c.isBusinessPackage(packageName) {
		return CategoryBusiness
	}

	// 4. 第三方库
	if c.isThirdPartyPackage(packageName) {
		return CategoryThirdParty
	}

	return CategoryUnknown
}

// isBusinessPackage 检查是否是业务代码包
func (c *Classifier) isBusinessPackage(packageName string) bool {
	for _, prefix := range c.businessPrefixes {
		if hasPackagePrefix(packageName, prefix) {
			return true
		}
	}

	// 默认包（没有任何 "."）里的类只可能是业务代码
	return !strings.Contains(packageName, ".")
}

// isThirdPartyPackage 检查是否是第三方包
func (c *Classifier) isThirdPartyPackage(packageName string) bool {
	for _, prefix := range c.thirdPartyPrefixes {
		if hasPackagePrefix(packageName, prefix) {
			return true
		}
	}
	return hasAnyPrefix(packageName, thirdPartyDomains)
}

// hasPackagePrefix 按包名边界匹配前缀: "com.example" 匹配 "com.example.shop"，不匹配 "com.examples"
func hasPackagePrefix(packageName, prefix string) bool {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return false
	}
	if strings.HasSuffix(prefix, ".") {
		return strings.HasPrefix(packageName, prefix)
	}
	return packageName == prefix || strings.HasPrefix(packageName, prefix+".")
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// pomProject pom.xml 中用于确定业务包名的字段
type pomProject struct {
	GroupID string `xml:"groupId"`
	Parent  struct {
		GroupID string `xml:"groupId"`
	} `xml:"parent"`
}

var reGradleGroup = regexp.MustCompile(`(?m)^\s*group\s*=?\s*["']([^"']+)["']`)

// DetectBasePackage 从 pom.xml 或 build.gradle 检测业务代码的包前缀
func DetectBasePackage(workDir string) (string, error) {
	if data, err := os.ReadFile(filepath.Join(workDir, "pom.xml")); err == nil {
		var pom pomProject
		if err := xml.Unmarshal(data, &pom); err != nil {
			return "", err
		}
		if pom.GroupID != "" {
			return pom.GroupID, nil
		}
		if pom.Parent.GroupID != "" {
			return pom.Parent.GroupID, nil
		}
	}

	for _, name := range []string{"build.gradle", "build.gradle.kts"} {
		data, err := os.ReadFile(filepath.Join(workDir, name))
		if err != nil {
			continue
		}
		if m := reGradleGroup.FindSubmatch(data); m != nil {
			return string(m[1]), nil
		}
	}

	return "", os.ErrNotExist
}
