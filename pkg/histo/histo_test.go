package histo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const histoA = `
 num     #instances         #bytes  class name
----------------------------------------------
   1:         50000        4000000  [B
   2:         20000         960000  java.lang.String
   3:          1000         480000  com.example.shop.Order
   4:           300          24000  java.util.HashMap$Node
Total         71300        5464000
`

const histoB = `
 num     #instances         #bytes  class name (module)
-------------------------------------------------------
   1:         90000        7200000  [B (java.base@17.0.9)
   2:          4000        1920000  com.example.shop.Order
   3:         21000        1008000  java.lang.String (java.base@17.0.9)
Total        115000       10128000
`

func mustParse(t *testing.T, text string, limit int) *Histogram {
	t.Helper()
	h, err := Parse(strings.NewReader(text), limit)
	require.NoError(t, err)
	return h
}

func TestParse(t *testing.T) {
	h := mustParse(t, histoA, 0)

	require.Equal(t, 4, h.Len())
	assert.Equal(t, []string{"[B", "java.lang.String", "com.example.shop.Order", "java.util.HashMap$Node"}, h.Order)
	assert.Equal(t, Entry{Rank: 3, Class: "com.example.shop.Order", Instances: 1000, Bytes: 480000},
		h.Entries["com.example.shop.Order"])
}

func TestParse_ModuleSuffix(t *testing.T) {
	h := mustParse(t, histoB, 0)

	// 类名后面的 (module) 不属于类名
	assert.Contains(t, h.Entries, "java.lang.String")
	assert.Equal(t, int64(1008000), h.Entries["java.lang.String"].Bytes)
}

func TestParse_Limit(t *testing.T) {
	h := mustParse(t, histoA, 2)
	assert.Equal(t, []string{"[B", "java.lang.String"}, h.Order)
	assert.NotContains(t, h.Entries, "com.example.shop.Order")
}

func TestParse_NoRows(t *testing.T) {
	_, err := Parse(strings.NewReader("nothing to see\n"), 0)
	assert.ErrorIs(t, err, ErrNoEntries)
}

func TestParse_DuplicateClassMerged(t *testing.T) {
	text := `   1:   10   100  com.example.Plugin
   2:    5    50  com.example.Plugin
`
	h := mustParse(t, text, 0)
	require.Equal(t, 1, h.Len())
	assert.Equal(t, int64(15), h.Entries["com.example.Plugin"].Instances)
	assert.Equal(t, int64(150), h.Entries["com.example.Plugin"].Bytes)
}

func TestLoad(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "stackinspector-histo")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	path := filepath.Join(tempDir, "histo.1")
	require.NoError(t, os.WriteFile(path, []byte(histoA), 0644))

	h, err := Load(path, 0)
	require.NoError(t, err)
	assert.Equal(t, path, h.Source)
	assert.False(t, h.Taken.IsZero())

	_, err = Load(filepath.Join(tempDir, "missing"), 0)
	assert.Error(t, err)
}

func TestBuildSeries_Absolute(t *testing.T) {
	a, b := mustParse(t, histoA, 0), mustParse(t, histoB, 0)
	series := BuildSeries([]*Histogram{a, b}, false)

	require.Len(t, series, 4)
	assert.Equal(t, []Point{{50000, 4000000}, {90000, 7200000}}, series["[B"])
	// 第二次直方图中消失的类记为 0
	assert.Equal(t, []Point{{300, 24000}, {0, 0}}, series["java.util.HashMap$Node"])
}

func TestBuildSeries_Delta(t *testing.T) {
	a, b := mustParse(t, histoA, 0), mustParse(t, histoB, 0)
	series := BuildSeries([]*Histogram{a, b}, true)

	assert.Equal(t, []Point{{0, 0}, {3000, 1440000}}, series["com.example.shop.Order"])
	assert.Equal(t, []Point{{0, 0}, {1000, 48000}}, series["java.lang.String"])
}

func TestBuildSeries_Empty(t *testing.T) {
	assert.Empty(t, BuildSeries(nil, true))
}

func TestBuildSeries_AlignedProperty(t *testing.T) {
	// 每个类的点数都等于直方图个数，delta 模式下第一个点恒为 0
	property := func(sizes []uint8) bool {
		var histos []*Histogram
		for i, n := range sizes {
			h := &Histogram{Entries: make(map[string]Entry)}
			for j := 0; j < int(n%5); j++ {
				class := string(rune('A' + (i+j)%7))
				if _, ok := h.Entries[class]; ok {
					continue
				}
				h.Entries[class] = Entry{Class: class, Instances: int64(j + 1), Bytes: int64((j + 1) * 8)}
				h.Order = append(h.Order, class)
			}
			histos = append(histos, h)
		}

		series := BuildSeries(histos, true)
		for _, points := range series {
			if len(points) != len(histos) {
				return false
			}
			if points[0] != (Point{}) {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 100}))
}

func TestTop(t *testing.T) {
	series := Series{
		"a": {{1, 10}, {1, 50}},
		"b": {{1, 30}, {1, 20}},
		"c": {{1, 50}, {1, 5}},
		"d": {},
	}

	top := Top(series, 2)
	assert.Equal(t, []ClassPeak{{"a", 50}, {"c", 50}}, top)

	all := Top(series, 0)
	assert.Len(t, all, 3)
	assert.Equal(t, "b", all[2].Class)
}

func TestClassTrend(t *testing.T) {
	assert.Nil(t, ClassTrend([]Point{{1, 1}, {2, 2}}))

	trend := ClassTrend([]Point{{0, 100}, {0, 200}, {0, 300}, {0, 400}})
	require.NotNil(t, trend)
	assert.InDelta(t, 100.0, trend.Slope, 0.001)
	assert.InDelta(t, 1.0, trend.R2, 0.001)
	assert.Equal(t, "increasing", trend.Direction)
}

func TestSortByTime(t *testing.T) {
	base := time.Date(2024, 3, 11, 9, 30, 0, 0, time.UTC)
	a := &Histogram{Source: "a", Taken: base.Add(time.Minute)}
	b := &Histogram{Source: "b", Taken: base}
	c := &Histogram{Source: "c", Taken: base.Add(time.Minute)}

	histos := []*Histogram{a, b, c}
	SortByTime(histos)
	assert.Equal(t, []*Histogram{b, a, c}, histos)
}
