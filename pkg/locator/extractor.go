package locator

import (
	"strconv"
	"strings"
)

// Extractor 调用栈提取器
type Extractor struct {
	classifier *Classifier
}

// NewExtractor 创建提取器
func NewExtractor(classifier *Classifier) *Extractor {
	return &Extractor{
		classifier: classifier,
	}
}

// ParseFrame 解析 dump 中 "at " 之后的栈帧签名
// 例如: "java.lang.Object.wait(Object.java:485)"
// 例如: "java.lang.Thread.sleep(java.base@17.0.9/Native Method)"
// 例如: "app//com.example.Foo$Inner.lambda$run$0(Foo.java:12)"
func ParseFrame(signature string) StackFrame {
	frame := StackFrame{Signature: signature}

	body, loc := signature, ""
	if open := strings.LastIndex(signature, "("); open >= 0 && strings.HasSuffix(signature, ")") {
		body, loc = signature[:open], signature[open+1:len(signature)-1]
	}

	// 类加载器/模块前缀: "app//" 或 "java.base@17/"
	if i := strings.Index(body, "//"); i >= 0 {
		body = body[i+2:]
	} else if i := strings.Index(body, "/"); i >= 0 && strings.Contains(body[:i], "@") {
		frame.Module = body[:i]
		body = body[i+1:]
	}

	dot := strings.LastIndex(body, ".")
	if dot < 0 {
		frame.Method = body
		frame.ShortName = body
	} else {
		frame.ClassName = body[:dot]
		frame.Method = body[dot+1:]
		simple := frame.ClassName
		if p := strings.LastIndex(frame.ClassName, "."); p >= 0 {
			frame.PackageName = frame.ClassName[:p]
			simple = frame.ClassName[p+1:]
		}
		frame.ShortName = simple + "." + frame.Method
	}

	if i := strings.LastIndex(loc, "/"); i >= 0 {
		frame.Module = loc[:i]
		loc = loc[i+1:]
	}

	switch loc {
	case "Native Method":
		frame.Native = true
	case "", "Unknown Source":
	default:
		frame.FileName = loc
		if c := strings.LastIndex(loc, ":"); c >= 0 {
			if n, err := strconv.Atoi(loc[c+1:]); err == nil {
				frame.FileName = loc[:c]
				frame.LineNumber = n
			}
		}
	}

	return frame
}

// ExtractStackFrame 解析并分类单个栈帧
func (e *Extractor) ExtractStackFrame(signature string) StackFrame {
	frame := ParseFrame(signature)
	frame.Category = CategoryUnknown
	if e.classifier == nil {
		return frame
	}

	// 默认包中的类
	if frame.ClassName != "" && frame.PackageName == "" {
		frame.Category = CategoryBusiness
		return frame
	}
	frame.Category = e.classifier.Classify(frame.PackageName)
	return frame
}

// ExtractCallChain 从线程栈提取完整调用链
// dump 中的栈是栈顶在前，这里反转为从入口到栈顶
func (e *Extractor) ExtractCallChain(stack []string) CallChain {
	chain := CallChain{
		Frames:            make([]StackFrame, 0, len(stack)),
		States:            make(map[string]int),
		CategoryBreakdown: make(map[CodeCategory]int),
		BoundaryPoints:    make([]int, 0),
	}

	var prevCategory CodeCategory
	for i := len(stack) - 1; i >= 0; i-- {
		frame := e.ExtractStackFrame(stack[i])

		chain.CategoryBreakdown[frame.Category]++

		// 检测类别边界
		frameIndex := len(chain.Frames)
		if frameIndex > 0 && frame.Category != prevCategory {
			chain.BoundaryPoints = append(chain.BoundaryPoints, frameIndex)
		}
		prevCategory = frame.Category

		chain.Frames = append(chain.Frames, frame)
	}

	return chain
}
