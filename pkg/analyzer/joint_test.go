package analyzer

import (
	"testing"

	"github.com/songzhibin97/stackinspector/pkg/parser"
	"github.com/songzhibin97/stackinspector/pkg/parser/parsertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitChannels_Tomcat(t *testing.T) {
	snap := parsertest.MustParse(t, parsertest.TomcatDump)

	chans := WaitChannels(snap)
	require.Contains(t, chans, "Object.wait()")
	assert.ElementsMatch(t, []string{
		"http-0.0.0.0-8080-4",
		"http-0.0.0.0-8080-5",
		"http-0.0.0.0-8080-6",
	}, chans["Object.wait()"])
	assert.ElementsMatch(t, []string{"Attach Listener", "JBoss System Threads(1)-1"}, chans["runnable"])
}

// 等待通道映射是线程集合的划分：每个线程恰好出现一次
func TestWaitChannels_Partition(t *testing.T) {
	for _, dump := range []string{parsertest.TomcatDump, parsertest.ModernDump} {
		snap := parsertest.MustParse(t, dump)

		seen := make(map[string]int)
		for _, threads := range WaitChannels(snap) {
			for _, name := range threads {
				seen[name]++
			}
		}

		require.Len(t, seen, snap.Len())
		for _, th := range snap.Threads() {
			assert.Equal(t, 1, seen[th.Name], th.Name)
		}
	}
}

func TestWaitChannelMap_Counts(t *testing.T) {
	m := WaitChannelMap{
		"b":        {"t1", "t2"},
		"a":        {"t3", "t4"},
		"runnable": {"t5", "t6", "t7"},
		"c":        {"t8"},
	}

	assert.Equal(t, []ChannelCount{
		{Channel: "runnable", Threads: 3},
		{Channel: "a", Threads: 2},
		{Channel: "b", Threads: 2},
		{Channel: "c", Threads: 1},
	}, m.Counts())
}

func TestJoint_NoFilter(t *testing.T) {
	snap := parsertest.MustParse(t, parsertest.TomcatDump)

	traces, err := Joint(snap, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, traces[parsertest.WaitFrame])
	assert.Equal(t, 4, traces["java.lang.Thread.run(Thread.java:662)"])
	assert.Equal(t, 1, traces["java.net.ServerSocket.accept(ServerSocket.java:430)"])
}

// 无过滤时每个签名的计数等于各线程计数之和
func TestJoint_SumsPerThreadCounts(t *testing.T) {
	for _, dump := range []string{parsertest.TomcatDump, parsertest.ModernDump} {
		snap := parsertest.MustParse(t, dump)

		expected := make(map[string]int)
		for _, th := range snap.Threads() {
			for sig, n := range th.Frames {
				expected[sig] += n
			}
		}

		traces, err := Joint(snap, Filter{})
		require.NoError(t, err)
		assert.Equal(t, expected, map[string]int(traces))
	}
}

func TestJoint_Filters(t *testing.T) {
	snap := parsertest.MustParse(t, parsertest.TomcatDump)

	tests := []struct {
		name     string
		filter   Filter
		wantLen  int
		wantWait int
	}{
		{"name not found", Filter{Name: "pluto"}, 0, 0},
		{"name http", Filter{Name: "http"}, 5, 3},
		{"name is case sensitive", Filter{Name: "HTTP"}, 0, 0},
		{"state waiting", Filter{State: parser.StateWaiting}, 5, 3},
		{"state runnable", Filter{State: parser.StateRunnable}, 8, 0},
		{"state blocked", Filter{State: parser.StateBlocked}, 0, 0},
		{"state and name", Filter{State: parser.StateWaiting, Name: "8080-4"}, 5, 1},
		{"state and name disjoint", Filter{State: parser.StateRunnable, Name: "http"}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			traces, err := Joint(snap, tt.filter)
			require.NoError(t, err)
			require.NotNil(t, traces)
			assert.Len(t, traces, tt.wantLen)
			assert.Equal(t, tt.wantWait, traces[parsertest.WaitFrame])
		})
	}
}

func TestJoint_ContractViolations(t *testing.T) {
	empty := parsertest.MustParse(t, "no threads here\n")

	_, err := Joint(empty, Filter{})
	assert.ErrorIs(t, err, ErrEmptySnapshot)

	_, err = Joint(nil, Filter{})
	assert.ErrorIs(t, err, ErrEmptySnapshot)

	snap := parsertest.MustParse(t, parsertest.TomcatDump)
	_, err = Joint(snap, Filter{State: parser.ThreadState(99)})
	assert.ErrorIs(t, err, parser.ErrInvalidState)
}

func TestAccumulate_Doubles(t *testing.T) {
	snap := parsertest.MustParse(t, parsertest.TomcatDump)

	first, err := Accumulate(TraceCountTable{}, snap, Filter{})
	require.NoError(t, err)
	second, err := Accumulate(first, snap, Filter{})
	require.NoError(t, err)

	require.NotEmpty(t, second)
	require.Len(t, second, len(first))
	for sig, n := range first {
		assert.Equal(t, 2*n, second[sig], sig)
	}
}

func TestAccumulate_DoesNotMutateTotal(t *testing.T) {
	snap := parsertest.MustParse(t, parsertest.TomcatDump)

	total := TraceCountTable{"only.in.Total(X.java:1)": 7}
	next, err := Accumulate(total, snap, Filter{Name: "http"})
	require.NoError(t, err)

	assert.Equal(t, TraceCountTable{"only.in.Total(X.java:1)": 7}, total)
	assert.Equal(t, 7, next["only.in.Total(X.java:1)"])
	assert.Equal(t, 3, next[parsertest.WaitFrame])
}

func TestAccumulate_NameFilter(t *testing.T) {
	snap := parsertest.MustParse(t, parsertest.TomcatDump)

	none, err := Accumulate(TraceCountTable{}, snap, Filter{Name: "badname"})
	require.NoError(t, err)
	assert.Empty(t, none)

	httpOnly, err := Accumulate(TraceCountTable{}, snap, Filter{Name: "http"})
	require.NoError(t, err)
	again, err := Accumulate(httpOnly, snap, Filter{Name: "http"})
	require.NoError(t, err)
	assert.Equal(t, len(httpOnly), len(again))

	// 中途换过滤条件：新的签名会进入累计表
	widened, err := Accumulate(httpOnly, snap, Filter{})
	require.NoError(t, err)
	assert.Greater(t, len(widened), len(httpOnly))
}

func TestAccumulate_PropagatesErrors(t *testing.T) {
	empty := parsertest.MustParse(t, "")
	_, err := Accumulate(TraceCountTable{}, empty, Filter{})
	assert.ErrorIs(t, err, ErrEmptySnapshot)
}

func TestTraceCountTable_Sorted(t *testing.T) {
	table := TraceCountTable{"b": 2, "a": 2, "c": 5, "d": 1}
	assert.Equal(t, []TraceEntry{
		{Signature: "c", Count: 5},
		{Signature: "a", Count: 2},
		{Signature: "b", Count: 2},
		{Signature: "d", Count: 1},
	}, table.Sorted())
	assert.Equal(t, 10, table.Total())
}

func TestFilter_String(t *testing.T) {
	assert.Equal(t, "all threads", Filter{}.String())
	assert.Equal(t, "state=BLOCKED,name=worker", Filter{State: parser.StateBlocked, Name: "worker"}.String())
}
