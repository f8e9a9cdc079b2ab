package reporter

import (
	"fmt"
	"io"
	"os"

	"github.com/google/pprof/profile"

	"github.com/songzhibin97/stackinspector/pkg/analyzer"
	"github.com/songzhibin97/stackinspector/pkg/locator"
	"github.com/songzhibin97/stackinspector/pkg/parser"
)

// BuildProfile 把一个快照转换成 pprof 的 threads profile
// 每个有栈帧的线程对应一个样本，值为 1，带 state / wchan / thread 标签
// 同一签名的栈帧共用一个 Location 与 Function
func BuildProfile(s *parser.Snapshot) (*profile.Profile, error) {
	if s.Len() == 0 {
		return nil, fmt.Errorf("build profile: %w", analyzer.ErrEmptySnapshot)
	}

	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "threads", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "threads", Unit: "count"},
		Period:     1,
	}
	if taken := s.Taken(); !taken.IsZero() {
		p.TimeNanos = taken.UnixNano()
	}
	if vm := s.VM(); vm != "" {
		p.Comments = append(p.Comments, vm)
	}

	functions := make(map[string]*profile.Function)
	locations := make(map[string]*profile.Location)

	locationFor := func(sig string) *profile.Location {
		if loc, ok := locations[sig]; ok {
			return loc
		}

		frame := locator.ParseFrame(sig)
		name := frame.ClassName + "." + frame.Method
		if frame.ClassName == "" {
			name = sig
		}
		fn, ok := functions[name]
		if !ok {
			fn = &profile.Function{
				ID:         uint64(len(p.Function) + 1),
				Name:       name,
				SystemName: name,
				Filename:   frame.FileName,
			}
			functions[name] = fn
			p.Function = append(p.Function, fn)
		}

		loc := &profile.Location{
			ID:   uint64(len(p.Location) + 1),
			Line: []profile.Line{{Function: fn, Line: int64(frame.LineNumber)}},
		}
		locations[sig] = loc
		p.Location = append(p.Location, loc)
		return loc
	}

	for _, t := range s.Threads() {
		if len(t.Stack) == 0 {
			continue
		}
		// Stack 栈顶在前，与 pprof 的 Location 顺序一致
		sample := &profile.Sample{
			Value: []int64{1},
			Label: map[string][]string{
				"state":  {t.State.String()},
				"wchan":  {t.WaitChannel},
				"thread": {t.Name},
			},
		}
		for _, sig := range t.Stack {
			sample.Location = append(sample.Location, locationFor(sig))
		}
		p.Sample = append(p.Sample, sample)
	}

	if err := p.CheckValid(); err != nil {
		return nil, fmt.Errorf("build profile: %w", err)
	}
	return p, nil
}

// WriteProfile 以 gzip 压缩的 protobuf 格式写出 profile
func WriteProfile(w io.Writer, s *parser.Snapshot) error {
	p, err := BuildProfile(s)
	if err != nil {
		return err
	}
	return p.Write(w)
}

// WriteProfileFile 写出到文件，可直接用 go tool pprof 打开
func WriteProfileFile(path string, s *parser.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteProfile(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
