package analyzer

import "github.com/songzhibin97/stackinspector/pkg/parser"

// Accumulate 将新快照的 Joint 结果累加到 total 上，返回新表
// total 不会被修改，调用方负责把返回值带入下一次调用。
// 同一条累计序列必须始终使用相同的过滤条件，否则累计值没有意义。
func Accumulate(total TraceCountTable, s *parser.Snapshot, f Filter) (TraceCountTable, error) {
	traces, err := Joint(s, f)
	if err != nil {
		return nil, err
	}
	return total.Merge(traces), nil
}
