package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Source 一次采集返回一份完整的线程 dump 文本
type Source interface {
	Capture(ctx context.Context) (string, error)
}

// ToolError 外部诊断命令执行失败
// 非零退出码、stderr 有输出、stdout 为空都会被视为失败
type ToolError struct {
	Command  string
	ExitCode int // 未能启动或被信号终止时为 -1
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s failed", e.Command)
	if e.ExitCode > 0 {
		fmt.Fprintf(&sb, " (exit %d)", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		fmt.Fprintf(&sb, ": %s", firstLine(stderr))
	}
	return sb.String()
}

func (e *ToolError) Unwrap() error { return e.Err }

// ErrEmptyOutput 命令成功退出但没有任何输出
var ErrEmptyOutput = errors.New("command produced no output")

// ErrDiagnosticOutput 命令退出码为 0 但 stderr 有输出
var ErrDiagnosticOutput = errors.New("command wrote to stderr")

// Command 通过子进程采集 dump
type Command struct {
	Name   string
	Args   []string
	Logger *log.Logger
}

// JStack 生成 `jstack -l <pid>` 采集源
func JStack(pid int, logger *log.Logger) *Command {
	return &Command{
		Name:   "jstack",
		Args:   []string{"-l", strconv.Itoa(pid)},
		Logger: logger,
	}
}

func (c *Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

func (c *Command) logf(format string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.Printf(format, args...)
	}
}

// Capture 运行命令并返回 stdout
func (c *Command) Capture(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logf("🚀 执行: %s", c)
	err := cmd.Run()

	if err != nil {
		toolErr := &ToolError{Command: c.String(), ExitCode: -1, Stderr: stderr.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			toolErr.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			toolErr.Err = ctxErr
		}
		c.logf("❌ %v", toolErr)
		return "", toolErr
	}

	if stderr.Len() > 0 {
		toolErr := &ToolError{Command: c.String(), Stderr: stderr.String(), Err: ErrDiagnosticOutput}
		c.logf("❌ %v", toolErr)
		return "", toolErr
	}

	if strings.TrimSpace(stdout.String()) == "" {
		return "", &ToolError{Command: c.String(), Err: ErrEmptyOutput}
	}

	c.logf("✅ 采集完成: %d 字节", stdout.Len())
	return stdout.String(), nil
}

// Files 依次回放已保存的 dump 文件，每次 Capture 返回一个
// 全部读完后返回 io.EOF
type Files struct {
	Paths []string
	next  int
}

// Capture 读取下一个文件
func (f *Files) Capture(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.next >= len(f.Paths) {
		return "", io.EOF
	}
	path := f.Paths[f.next]
	f.next++

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
