package idgen

import (
	"sync"
	"time"
)

// SnowflakeIDGenerator 检出与规则实体的主键生成器
// 采用十进制拼接的秒级雪花变体：时间偏移 + 机器ID(2位) + 秒内序列(3位)，
// ID 可读、随时间单调递增，检测吞吐被队列限速，秒级精度够用
type SnowflakeIDGenerator struct {
	mu        sync.Mutex
	epoch     int64 // 纪元秒（2024-01-01 00:00:00 UTC）
	machineID int64 // 实例编号 0-99
	sequence  int64 // 当前秒内已分配的序列
	lastTime  int64 // 最近一次分配的时间戳
}

const (
	machineBits  = 2   // 实例编号占 2 位十进制
	sequenceBits = 3   // 秒内序列占 3 位十进制
	maxMachineID = 99  // 实例编号上限
	maxSequence  = 999 // 单实例每秒最多 1000 个 ID
)

// NewSnowflakeIDGenerator 按实例编号创建生成器
// 编号越界时回落为 0，多实例部署需保证编号互不相同
func NewSnowflakeIDGenerator(machineID int64) *SnowflakeIDGenerator {
	if machineID < 0 || machineID > maxMachineID {
		machineID = 0
	}

	// 以 2024-01-01 为纪元，压短时间偏移位数
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()

	return &SnowflakeIDGenerator{
		epoch:     epoch,
		machineID: machineID,
		sequence:  0,
		lastTime:  0,
	}
}

// NextID 分配下一个主键
func (g *SnowflakeIDGenerator) NextID() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().Unix()

	if now == g.lastTime {
		g.sequence = (g.sequence + 1) % (maxSequence + 1)
		if g.sequence == 0 {
			// 当前秒的序列耗尽，自旋到下一秒再分配
			for now <= g.lastTime {
				now = time.Now().Unix()
			}
		}
	} else {
		g.sequence = 0
	}

	g.lastTime = now

	timestamp := now - g.epoch

	// 十进制拼接：偏移秒数 * 100000 + 实例编号 * 1000 + 序列
	id := timestamp*100000 + g.machineID*1000 + g.sequence

	return id
}

// 进程内默认生成器，单机部署用编号 1
var defaultGenerator = NewSnowflakeIDGenerator(1)

// GenerateID 用默认生成器分配主键
func GenerateID() int64 {
	return defaultGenerator.NextID()
}
