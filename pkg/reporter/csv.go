package reporter

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/songzhibin97/stackinspector/pkg/parser"
)

// CSVWriter 每次采样输出一行：时间、线程总数、各状态线程数
// 第一次写入前自动输出表头
type CSVWriter struct {
	w           *csv.Writer
	wroteHeader bool
}

// NewCSVWriter 创建 CSV 输出
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// Write 追加一行并立即刷新
func (c *CSVWriter) Write(taken time.Time, sum Summary) error {
	if !c.wroteHeader {
		header := append([]string{"time", "total"}, parser.StateNames()...)
		if err := c.w.Write(header); err != nil {
			return err
		}
		c.wroteHeader = true
	}

	row := make([]string, 0, 2+len(sum.States))
	row = append(row, taken.Format(time.RFC3339), strconv.Itoa(sum.Total))
	for _, sc := range sum.States {
		row = append(row, strconv.Itoa(sc.Threads))
	}
	if err := c.w.Write(row); err != nil {
		return err
	}

	c.w.Flush()
	return c.w.Error()
}
