package reporter

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/stackinspector/pkg/analyzer"
	"github.com/songzhibin97/stackinspector/pkg/histo"
	"github.com/songzhibin97/stackinspector/pkg/locator"
	"github.com/songzhibin97/stackinspector/pkg/parser"
	"github.com/songzhibin97/stackinspector/pkg/parser/parsertest"
	"github.com/songzhibin97/stackinspector/pkg/rules"
)

func TestCSVWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewCSVWriter(&buf)

	tomcat := Summarize(parsertest.MustParse(t, parsertest.TomcatDump))
	modern := Summarize(parsertest.MustParse(t, parsertest.ModernDump))
	require.NoError(t, w.Write(seriesStart, tomcat))
	require.NoError(t, w.Write(seriesStart.Add(time.Second), modern))

	assert.Equal(t,
		"time,total,NEW,BLOCKED,TERMINATED,RUNNABLE,WAITING,TIMED_WAITING\n"+
			"2024-03-11T09:30:00Z,5,0,0,0,2,3,0\n"+
			"2024-03-11T09:30:01Z,4,0,2,0,1,0,1\n",
		buf.String())
}

func TestCSVWriter_WriteError(t *testing.T) {
	w := NewCSVWriter(failingWriter{})
	err := w.Write(seriesStart, Summarize(parsertest.MustParse(t, parsertest.TomcatDump)))
	assert.ErrorIs(t, err, errWrite)
}

func TestSnapshotJSON(t *testing.T) {
	snap := parsertest.MustParse(t, parsertest.TomcatDump)
	report, err := NewSnapshotJSON(snap, analyzer.Filter{State: parser.StateWaiting}, RankOptions{Limit: AtMost(1)})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, report))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, "state=WAITING", decoded["filter"])
	assert.Equal(t, "1", decoded["limit"])
	assert.Equal(t, "none", decoded["threshold"])
	assert.Equal(t, "Java HotSpot(TM) Server VM (20.1-b02 mixed mode)", decoded["vm"])

	summary := decoded["summary"].(map[string]interface{})
	assert.EqualValues(t, 5, summary["total"])
	states := summary["states"].([]interface{})
	require.Len(t, states, 6)
	assert.Equal(t, "WAITING", states[4].(map[string]interface{})["state"])

	traces := decoded["traces"].([]interface{})
	require.Len(t, traces, 1)
	first := traces[0].(map[string]interface{})
	// WAITING 线程的栈帧计数都是 3，按签名排序
	assert.Equal(t, parsertest.WaitFrame, first["signature"])
	assert.EqualValues(t, 3, first["count"])
}

func TestSnapshotJSON_EmptySnapshot(t *testing.T) {
	_, err := NewSnapshotJSON(parsertest.MustParse(t, ""), analyzer.Filter{}, RankOptions{})
	assert.ErrorIs(t, err, analyzer.ErrEmptySnapshot)
}

func TestSeriesJSON(t *testing.T) {
	files := seriesFiles(t)
	report, err := NewSeriesJSON(SeriesReport{
		Files:    files,
		Trends:   analyzer.CalculateTrends(files),
		Findings: []rules.Finding{lockFinding(), leakFinding()},
		Contexts: map[string]*locator.ProblemContext{"lock_contention": lockContext()},
		Rank:     RankOptions{Limit: AtMost(2)},
	})
	require.NoError(t, err)

	require.Len(t, report.Files, 3)
	assert.Equal(t, 4, report.Files[1].Summary.Total)
	assert.Len(t, report.Accumulated, 2)
	require.Len(t, report.Findings, 2)

	ctx := report.Findings[0].Context
	require.NotNil(t, ctx)
	require.Len(t, ctx.HotPaths, 1)
	assert.Equal(t, "com.example.shop.Inventory.reserve(Inventory.java:77)", ctx.HotPaths[0].RootCause)
	assert.Equal(t, "BLOCKED", ctx.HotPaths[0].State)
	assert.Len(t, ctx.HotPaths[0].Frames, 4)
	assert.Equal(t, []string{"检查 Inventory.reserve 的同步块", "引入无锁数据结构"}, ctx.Suggestions)
	assert.Nil(t, report.Findings[1].Context)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, report))
	assert.Contains(t, buf.String(), `"rule_id": "lock_contention"`)
	assert.Contains(t, buf.String(), `"root_cause"`)
}

func TestBuildProfile(t *testing.T) {
	snap := parsertest.MustParse(t, parsertest.TomcatDump)
	p, err := BuildProfile(snap)
	require.NoError(t, err)

	// Attach Listener 没有栈帧，不产生样本
	require.Len(t, p.Sample, 4)
	assert.Len(t, p.Location, 12)
	assert.Len(t, p.Function, 11)
	assert.Equal(t, "threads", p.SampleType[0].Type)
	assert.Equal(t, snap.Taken().UnixNano(), p.TimeNanos)

	first := p.Sample[0]
	assert.Equal(t, []int64{1}, first.Value)
	assert.Equal(t, []string{"WAITING"}, first.Label["state"])
	assert.Equal(t, []string{"Object.wait()"}, first.Label["wchan"])
	assert.Equal(t, []string{"http-0.0.0.0-8080-6"}, first.Label["thread"])

	// 第一个 Location 是栈顶
	top := first.Location[0].Line[0]
	assert.Equal(t, "java.lang.Object.wait", top.Function.Name)
	assert.Equal(t, int64(0), top.Line)
	assert.Equal(t, int64(485), first.Location[1].Line[0].Line)

	// 三个 http 线程共享 Location
	assert.Same(t, p.Sample[0].Location[0], p.Sample[1].Location[0])
}

func TestWriteProfile_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteProfile(&buf, parsertest.MustParse(t, parsertest.ModernDump)))

	p, err := profile.Parse(&buf)
	require.NoError(t, err)
	require.Len(t, p.Sample, 4)

	blocked := 0
	for _, s := range p.Sample {
		if s.Label["state"][0] == "BLOCKED" {
			blocked++
		}
	}
	assert.Equal(t, 2, blocked)
}

func TestWriteProfileFile(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "stackinspector-pprof")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	path := filepath.Join(tempDir, "threads.pb.gz")
	require.NoError(t, WriteProfileFile(path, parsertest.MustParse(t, parsertest.TomcatDump)))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = profile.Parse(f)
	assert.NoError(t, err)

	err = WriteProfileFile(filepath.Join(tempDir, "empty.pb.gz"), parsertest.MustParse(t, ""))
	assert.ErrorIs(t, err, analyzer.ErrEmptySnapshot)
}

func TestWriteHTMLReport(t *testing.T) {
	files := seriesFiles(t)
	var buf bytes.Buffer
	require.NoError(t, WriteHTMLReport(&buf, SeriesReport{
		Files:    files,
		Trends:   analyzer.CalculateTrends(files),
		Findings: []rules.Finding{lockFinding(), leakFinding()},
		Contexts: map[string]*locator.ProblemContext{"lock_contention": lockContext()},
		Rank:     RankOptions{Limit: AtMost(5)},
	}))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "StackInspector 线程分析报告")
	assert.Contains(t, out, "threads-2.txt")
	assert.Contains(t, out, "2 个发现")
	assert.Contains(t, out, "← 根因")
	assert.Contains(t, out, "引入无锁数据结构")
	assert.Contains(t, out, "limit: 5, threshold: none")
	// 栈帧签名原样输出
	assert.Contains(t, out, "JIoEndpoint$Worker")
	assert.NotContains(t, out, "<script>")
}

func TestConvertHotPathsForHTML(t *testing.T) {
	out := ConvertHotPathsForHTML([]locator.HotPath{businessHotPath()})
	require.Len(t, out, 1)
	hp := out[0]

	assert.Equal(t, 1, hp.Index)
	assert.True(t, hp.HasBusiness)
	require.Len(t, hp.Frames, 4)
	assert.False(t, hp.Frames[0].IsNewSection)
	assert.True(t, hp.Frames[1].IsNewSection)
	assert.False(t, hp.Frames[2].IsNewSection)
	assert.Equal(t, "关注", hp.Frames[1].HighlightTag)
	assert.Equal(t, "根因", hp.Frames[2].HighlightTag)
	assert.Equal(t, "", hp.Frames[3].HighlightTag)
	assert.Equal(t, "jvm", hp.Frames[3].Category)
}

func TestConvertSuggestionsForHTML(t *testing.T) {
	immediate, longTerm := ConvertSuggestionsForHTML(lockContext().Suggestions)
	assert.Equal(t, []HTMLSuggestion{{"immediate", "检查 Inventory.reserve 的同步块"}}, immediate)
	assert.Equal(t, []HTMLSuggestion{{"long_term", "引入无锁数据结构"}}, longTerm)
}

func TestWriteHistoSeries(t *testing.T) {
	a := &histo.Histogram{
		Source:  "/tmp/histo.1",
		Entries: map[string]histo.Entry{"[B": {Class: "[B", Instances: 10, Bytes: 1000}},
		Order:   []string{"[B"},
	}
	b := &histo.Histogram{
		Source: "/tmp/histo.2",
		Entries: map[string]histo.Entry{
			"[B":                     {Class: "[B", Instances: 20, Bytes: 3000},
			"com.example.shop.Order": {Class: "com.example.shop.Order", Instances: 5, Bytes: 500},
		},
		Order: []string{"[B", "com.example.shop.Order"},
	}
	histos := []*histo.Histogram{a, b}

	var buf bytes.Buffer
	require.NoError(t, WriteHistoSeries(&buf, HistoReport{
		Histograms: histos,
		Series:     histo.BuildSeries(histos, true),
		Delta:      true,
		Top:        1,
	}))
	out := buf.String()

	assert.Contains(t, out, "直方图 (2 个文件)")
	assert.Contains(t, out, "histo.2 (2 个类)")
	assert.Contains(t, out, "相对第一个文件的增量")
	assert.Contains(t, out, "1. [B (峰值 2.0 kB)")
	assert.NotContains(t, out, "com.example.shop.Order (峰值")
}

func TestWriteHistoSeries_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHistoSeries(&buf, HistoReport{}))
	assert.Contains(t, buf.String(), "没有找到可分析的 jmap -histo 文件")
}

func TestFormatSignedBytes(t *testing.T) {
	assert.Equal(t, "2.0 kB", formatSignedBytes(2000))
	assert.Equal(t, "-500 B", formatSignedBytes(-500))
}
