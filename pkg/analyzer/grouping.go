package analyzer

import (
	"io"
	"log"
	"os"
	"sort"
	"time"

	"github.com/songzhibin97/stackinspector/pkg/parser"
)

// SnapshotFile 表示单个 dump 文件的信息
type SnapshotFile struct {
	Path     string
	Time     time.Time
	Size     int64
	Snapshot *parser.Snapshot
	Metrics  *SnapshotMetrics
}

// LoadSeries 加载多个 dump 文件并按采集时间排序
// 无法读取或解析的文件记录日志后跳过
func LoadSeries(paths []string, logger *log.Logger) ([]SnapshotFile, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	var files []SnapshotFile
	for _, path := range paths {
		fileInfo, err := os.Stat(path)
		if err != nil {
			logger.Printf("❌ 文件不存在或无效: %s, 错误: %v", path, err)
			continue
		}

		snap, err := parser.LoadSnapshot(path, parser.WithLogger(logger))
		if err != nil {
			logger.Printf("⚠️ 跳过文件: %s, 错误: %v", path, err)
			continue
		}

		if snap.Len() == 0 {
			logger.Printf("⚠️ 跳过文件: %s, 未找到任何线程", path)
			continue
		}

		files = append(files, SnapshotFile{
			Path:     path,
			Time:     snap.Taken(),
			Size:     fileInfo.Size(),
			Snapshot: snap,
			Metrics:  ExtractMetrics(snap),
		})
	}

	// 时间相同时保持输入顺序
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Time.Before(files[j].Time)
	})

	return files, nil
}

// AccumulateSeries 按时间顺序把整个序列折叠成一张累计表
func AccumulateSeries(files []SnapshotFile, f Filter) (TraceCountTable, error) {
	total := make(TraceCountTable)
	for _, file := range files {
		next, err := Accumulate(total, file.Snapshot, f)
		if err != nil {
			return nil, err
		}
		total = next
	}
	return total, nil
}
