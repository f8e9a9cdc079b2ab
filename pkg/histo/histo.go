package histo

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// ErrNoEntries 输入中没有任何直方图数据行
var ErrNoEntries = errors.New("no histogram rows found")

// `   1:        123456       12345678  [B (java.base@17.0.9)`
var reRow = regexp.MustCompile(`^\s*(\d+):\s+(\d+)\s+(\d+)\s+(\S+)`)

// Entry jmap -histo 的一行
type Entry struct {
	Rank      int
	Class     string
	Instances int64
	Bytes     int64
}

// Histogram 一次 jmap -histo 的结果
type Histogram struct {
	Source  string
	Taken   time.Time
	Entries map[string]Entry
	Order   []string // 按 rank 排列的类名
}

// Len 类的数量
func (h *Histogram) Len() int {
	if h == nil {
		return 0
	}
	return len(h.Order)
}

// Parse 解析 jmap -histo 输出
// 表头、分隔线与末尾的 Total 行被跳过；limit > 0 时只保留排名前 limit 行
func Parse(r io.Reader, limit int) (*Histogram, error) {
	h := &Histogram{Entries: make(map[string]Entry)}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m := reRow.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		if limit > 0 && len(h.Order) >= limit {
			break
		}

		rank, _ := strconv.Atoi(m[1])
		instances, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("rank %d: bad instance count: %w", rank, err)
		}
		bytes, err := strconv.ParseInt(m[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("rank %d: bad byte count: %w", rank, err)
		}

		class := m[4]
		if _, dup := h.Entries[class]; dup {
			// 不同类加载器可能加载同名类，合并计数
			e := h.Entries[class]
			e.Instances += instances
			e.Bytes += bytes
			h.Entries[class] = e
			continue
		}
		h.Entries[class] = Entry{Rank: rank, Class: class, Instances: instances, Bytes: bytes}
		h.Order = append(h.Order, class)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read histogram: %w", err)
	}
	if len(h.Order) == 0 {
		return nil, ErrNoEntries
	}
	return h, nil
}

// Load 读取 jmap -histo 文件，采集时间取文件修改时间
func Load(path string, limit int) (*Histogram, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, err := Parse(f, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	h.Source = path
	if info, err := f.Stat(); err == nil {
		h.Taken = info.ModTime()
	}
	return h, nil
}

// SortByTime 按采集时间排序，时间相同时保持输入顺序
func SortByTime(histos []*Histogram) {
	sort.SliceStable(histos, func(i, j int) bool {
		return histos[i].Taken.Before(histos[j].Taken)
	})
}
