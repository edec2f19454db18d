package utils

import (
	"fmt"
	"sync"
	"time"
)

// 雪花算法（Snowflake）生成分布式唯一ID（int64）
// 结构：1bit 符号位 + 41bit 毫秒时间戳 + 10bit 机器ID + 12bit 序列号
// 领券链路在 Redis 不可用时退化到本地雪花ID，保证发号不依赖单点

const (
	// 自定义纪元：2025-01-01 00:00:00 UTC，压缩时间戳占用
	epochMs int64 = 1735689600000

	workerIDBits uint8 = 10
	sequenceBits uint8 = 12
	timeBits     uint8 = 41
	maxWorkerID        = int64(-1) ^ (int64(-1) << workerIDBits) // 1023
	maxSeqPerMs        = int64(-1) ^ (int64(-1) << sequenceBits) // 4095

	workerIDShift = sequenceBits
	timeShift     = sequenceBits + workerIDBits
)

// Snowflake 生成器
type Snowflake struct {
	mu           sync.Mutex
	workerID     int64
	lastTimeMs   int64
	sequence     int64
	timeRollback int64 // 允许的时钟回拨容忍毫秒数
}

// NewSnowflake 创建一个雪花生成器，workerID 取值 [0, 1023]
func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID must be in [0, %d]", maxWorkerID)
	}
	return &Snowflake{
		workerID:     workerID,
		lastTimeMs:   -1,
		timeRollback: 5,
	}, nil
}

// NextID 生成下一个唯一ID
func (s *Snowflake) NextID() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := currentMs()

	// 时钟回拨：小幅回拨等待追平，大幅回拨拒绝生成
	if now < s.lastTimeMs {
		diff := s.lastTimeMs - now
		if diff <= s.timeRollback {
			now = waitUntil(s.lastTimeMs)
		} else {
			return 0, fmt.Errorf("clock moved backwards by %dms, refusing to generate id", diff)
		}
	}

	if now == s.lastTimeMs {
		s.sequence = (s.sequence + 1) & maxSeqPerMs
		// 同一毫秒内序列号用尽，等待下一毫秒
		if s.sequence == 0 {
			now = waitUntil(s.lastTimeMs + 1)
		}
	} else {
		s.sequence = 0
	}

	s.lastTimeMs = now

	ts := now - epochMs
	if ts < 0 {
		return 0, fmt.Errorf("current time is before epoch, ts=%d", ts)
	}
	if ts >= (int64(1) << timeBits) {
		return 0, fmt.Errorf("timestamp out of range: ts=%d", ts)
	}

	return (ts << timeShift) | (s.workerID << workerIDShift) | s.sequence, nil
}

func currentMs() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

func waitUntil(targetMs int64) int64 {
	for {
		now := currentMs()
		if now >= targetMs {
			return now
		}
		time.Sleep(100 * time.Microsecond)
	}
}
