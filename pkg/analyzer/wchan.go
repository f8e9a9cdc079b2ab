package analyzer

import (
	"sort"

	"github.com/songzhibin97/stackinspector/pkg/parser"
)

// WaitChannelMap 等待通道 -> 阻塞在该通道上的线程名
type WaitChannelMap map[string][]string

// ChannelCount 等待通道及其线程数
type ChannelCount struct {
	Channel string `json:"channel"`
	Threads int    `json:"threads"`
}

// WaitChannels 按等待通道反向索引线程
// 每个线程只属于一个通道，结果是线程集合的一个划分
func WaitChannels(s *parser.Snapshot) WaitChannelMap {
	chans := make(WaitChannelMap)
	for _, t := range s.Threads() {
		chans[t.WaitChannel] = append(chans[t.WaitChannel], t.Name)
	}
	return chans
}

// Counts 各通道线程数，按线程数降序、通道名升序排列
func (m WaitChannelMap) Counts() []ChannelCount {
	counts := make([]ChannelCount, 0, len(m))
	for ch, threads := range m {
		counts = append(counts, ChannelCount{Channel: ch, Threads: len(threads)})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Threads != counts[j].Threads {
			return counts[i].Threads > counts[j].Threads
		}
		return counts[i].Channel < counts[j].Channel
	})
	return counts
}
