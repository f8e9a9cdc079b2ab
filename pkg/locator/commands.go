package locator

import (
	"fmt"
	"strconv"
	"strings"
)

// defaultDumpPath 没有实际 dump 文件时命令中使用的占位路径
const defaultDumpPath = "./threads.txt"

// CommandGenerator 命令生成器
type CommandGenerator struct{}

// NewCommandGenerator 创建命令生成器
func NewCommandGenerator() *CommandGenerator {
	return &CommandGenerator{}
}

// pidArg pid 未知时使用占位符
func pidArg(pid int) string {
	if pid <= 0 {
		return "<pid>"
	}
	return strconv.Itoa(pid)
}

// GenerateJStackCommand 生成采集 dump 的命令
func (g *CommandGenerator) GenerateJStackCommand(pid int) ExecutableCmd {
	return ExecutableCmd{
		Command:     fmt.Sprintf("jstack -l %s > threads-$(date +%%s).txt", pidArg(pid)),
		Description: "再采集一次带锁信息的线程 dump，间隔几秒连续采集 3 次以上便于对比",
		OutputHint:  "\"- locked <0x...>\" 表示持有的监视器，\"- waiting to lock <0x...>\" 表示正在等待的监视器",
	}
}

// GenerateThreadPrintCommand 生成 jcmd 采集命令
func (g *CommandGenerator) GenerateThreadPrintCommand(pid int) ExecutableCmd {
	return ExecutableCmd{
		Command:     fmt.Sprintf("jcmd %s Thread.print -l", pidArg(pid)),
		Description: "jstack 不可用时的替代方式",
		OutputHint:  "输出格式与 jstack -l 相同，可直接交给本工具分析",
	}
}

// GenerateGrepCommand 生成在 dump 中查找指定栈帧上下文的命令
func (g *CommandGenerator) GenerateGrepCommand(dumpPath string, frame StackFrame) ExecutableCmd {
	pattern := frame.ShortName
	if frame.ClassName != "" {
		pattern = frame.ClassName + "." + frame.Method
	}
	return ExecutableCmd{
		Command:     fmt.Sprintf("grep -n -B 12 -A 4 '%s' %s", shellQuote(pattern), dumpPath),
		Description: fmt.Sprintf("查看所有经过 %s 的线程及其上下文", frame.ShortName),
		OutputHint:  "向上找到线程头可以看到线程名与状态，向下可以看到调用方",
	}
}

// GenerateStateCountCommand 生成统计线程状态的命令
func (g *CommandGenerator) GenerateStateCountCommand(dumpPath string) ExecutableCmd {
	return ExecutableCmd{
		Command:     fmt.Sprintf("grep -o 'java.lang.Thread.State: [A-Z_]*' %s | sort | uniq -c | sort -rn", dumpPath),
		Description: "统计各状态的线程数",
		OutputHint:  "BLOCKED 多说明锁竞争，WAITING/TIMED_WAITING 多通常是线程池空闲或等待下游",
	}
}

// GenerateLockOwnerCommand 生成查找监视器持有者的命令
func (g *CommandGenerator) GenerateLockOwnerCommand(dumpPath string) ExecutableCmd {
	return ExecutableCmd{
		Command:     fmt.Sprintf("grep -n -e 'waiting to lock' -e '- locked' %s | sort -k 5 | uniq -c -f 4", dumpPath),
		Description: "列出被等待和被持有的监视器地址",
		OutputHint:  "同一个地址既出现在 waiting to lock 又出现在 locked 中，持有它的线程就是瓶颈",
	}
}

// GenerateDiffCommand 生成对比两个 dump 中线程名变化的命令
func (g *CommandGenerator) GenerateDiffCommand(basePath, targetPath string) ExecutableCmd {
	return ExecutableCmd{
		Command: fmt.Sprintf("diff <(grep -o '^\"[^\"]*\"' %s | sort | uniq -c) <(grep -o '^\"[^\"]*\"' %s | sort | uniq -c)",
			basePath, targetPath),
		Description: "对比两个 dump 的线程名，找出新增或消失的线程",
		OutputHint:  "只在后一个文件中出现的线程名（以 > 开头）通常指向泄漏线程的创建者",
	}
}

// GeneratePprofCommand 生成导出 pprof 并查看的命令
func (g *CommandGenerator) GeneratePprofCommand(dumpPath string) ExecutableCmd {
	return ExecutableCmd{
		Command:     fmt.Sprintf("stackinspector -pprof threads.pb.gz %s && go tool pprof -http=:8080 threads.pb.gz", dumpPath),
		Description: "把线程 dump 导出为 pprof 格式，在浏览器中查看火焰图",
		OutputHint:  "每个线程是一个样本，可以按 state / wchan 标签过滤",
	}
}

// GenerateCommandsWithContext 根据完整上下文生成命令
// dumpPaths: dump 文件路径列表（按时间顺序）
// pid: 目标进程，0 表示未知
// hotPaths: 热点路径列表
func (g *CommandGenerator) GenerateCommandsWithContext(
	dumpPaths []string,
	pid int,
	blocking bool,
	hotPaths []HotPath,
) []ExecutableCmd {
	commands := make([]ExecutableCmd, 0)

	primaryPath := defaultDumpPath
	if len(dumpPaths) > 0 {
		primaryPath = dumpPaths[len(dumpPaths)-1]
	}

	commands = append(commands, g.GenerateStateCountCommand(primaryPath))

	if blocking {
		commands = append(commands, g.GenerateLockOwnerCommand(primaryPath))
	}

	// 如果有热点路径且有业务代码，生成定位命令
	if len(hotPaths) > 0 {
		if rootCause := hotPaths[0].GetRootCause(); rootCause != nil {
			commands = append(commands, g.GenerateGrepCommand(primaryPath, *rootCause))
		} else if top := hotPaths[0].Chain.Top(); top != nil {
			commands = append(commands, g.GenerateGrepCommand(primaryPath, *top))
		}
	}

	// 如果有多个 dump 文件，生成差异对比命令
	if len(dumpPaths) >= 2 {
		commands = append(commands, g.GenerateDiffCommand(dumpPaths[0], dumpPaths[len(dumpPaths)-1]))
	}

	commands = append(commands, g.GenerateJStackCommand(pid))
	commands = append(commands, g.GeneratePprofCommand(primaryPath))

	return commands
}

// shellQuote 转义单引号内的内容
func shellQuote(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}

// isBlockingFrame 检查栈帧是否是等待/阻塞调用
func isBlockingFrame(frame StackFrame) bool {
	blockingPatterns := []string{
		"Object.wait", "Unsafe.park", "LockSupport.park", "Thread.sleep",
		"socketRead", "socketAccept", "epollWait", "EPoll.wait", "take", "poll",
	}
	for _, pattern := range blockingPatterns {
		if strings.Contains(frame.ShortName, pattern) {
			return true
		}
	}
	return false
}
