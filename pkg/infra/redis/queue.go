package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"drp/internal/model"
)

// PriorityQueue Redis 有序集合实现的优先级队列（实现 scheduler.Queue）
// score = priority * 2^40 - seq，ZPOPMAX 弹出 score 最大者，
// 即优先级降序、同档内入队序号升序（FIFO），构成确定性的全序
//
// pending 为 zset，jobs 为任务载荷 hash，processing 为认领记录 hash；
// Push/Claim/Requeue 均为 Lua 脚本，多 worker 进程并发下同一任务
// 不会被弹出两次
type PriorityQueue struct {
	client *redis.Client
	prefix string
}

// NewPriorityQueue 创建队列实例
func NewPriorityQueue(addr, password string, db int, prefix string) (*PriorityQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if prefix == "" {
		prefix = "drp:detection"
	}
	return &PriorityQueue{
		client: client,
		prefix: prefix,
	}, nil
}

func (q *PriorityQueue) pendingKey() string    { return q.prefix + ":pending" }
func (q *PriorityQueue) jobsKey() string       { return q.prefix + ":jobs" }
func (q *PriorityQueue) processingKey() string { return q.prefix + ":processing" }
func (q *PriorityQueue) seqKey() string        { return q.prefix + ":seq" }

// pushScript 入队（同键任务已在 pending/processing 中则忽略）
// KEYS: pending, jobs, processing, seq
// ARGV: member, payload, priorityScore
var pushScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  return 0
end
if redis.call('HEXISTS', KEYS[3], ARGV[1]) == 1 then
  return 0
end
local seq = redis.call('INCR', KEYS[4])
local score = tonumber(ARGV[3]) * 1099511627776 - seq
redis.call('ZADD', KEYS[1], score, ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
return 1
`)

// claimScript 原子弹出并标记 processing
// KEYS: pending, jobs, processing
// ARGV: claimedAtMs
var claimScript = redis.NewScript(`
local popped = redis.call('ZPOPMAX', KEYS[1])
if #popped == 0 then
  return false
end
local member = popped[1]
local payload = redis.call('HGET', KEYS[2], member)
redis.call('HSET', KEYS[3], member, ARGV[1] .. '|' .. popped[2])
return payload
`)

// requeueScript 重试入队（保持原优先级，排到档内队尾）
// KEYS: pending, jobs, processing, seq
// ARGV: member, payload, priorityScore
var requeueScript = redis.NewScript(`
redis.call('HDEL', KEYS[3], ARGV[1])
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  return 0
end
local seq = redis.call('INCR', KEYS[4])
local score = tonumber(ARGV[3]) * 1099511627776 - seq
redis.call('ZADD', KEYS[1], score, ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
return 1
`)

// recoverScript 回收认领超时的任务
// KEYS: pending, jobs, processing, seq
// ARGV: cutoffMs
var recoverScript = redis.NewScript(`
local stale = {}
local entries = redis.call('HGETALL', KEYS[3])
for i = 1, #entries, 2 do
  local member = entries[i]
  local sep = string.find(entries[i+1], '|', 1, true)
  local claimedAt = tonumber(string.sub(entries[i+1], 1, sep - 1))
  local oldScore = tonumber(string.sub(entries[i+1], sep + 1))
  if claimedAt <= tonumber(ARGV[1]) then
    redis.call('HDEL', KEYS[3], member)
    if not redis.call('ZSCORE', KEYS[1], member) then
      local seq = redis.call('INCR', KEYS[4])
      local prio = math.floor(oldScore / 1099511627776) + 1
      local score = prio * 1099511627776 - seq
      redis.call('ZADD', KEYS[1], score, member)
    end
    table.insert(stale, member)
  end
end
return #stale
`)

// Push 入队（按键去重）
func (q *PriorityQueue) Push(ctx context.Context, job *model.DetectionJob) (bool, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("marshal job failed: %w", err)
	}

	res, err := pushScript.Run(ctx, q.client,
		[]string{q.pendingKey(), q.jobsKey(), q.processingKey(), q.seqKey()},
		job.Key(), payload, job.Priority.Score()).Int()
	if err != nil {
		return false, fmt.Errorf("queue push failed: %w", err)
	}
	return res == 1, nil
}

// Claim 原子弹出最高优先级任务；空队列返回 nil
func (q *PriorityQueue) Claim(ctx context.Context) (*model.DetectionJob, error) {
	res, err := claimScript.Run(ctx, q.client,
		[]string{q.pendingKey(), q.jobsKey(), q.processingKey()},
		time.Now().UnixMilli()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue claim failed: %w", err)
	}

	payload, ok := res.(string)
	if !ok || payload == "" {
		return nil, nil
	}

	var job model.DetectionJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job failed: %w", err)
	}
	return &job, nil
}

// Complete 结束一个已认领任务
func (q *PriorityQueue) Complete(ctx context.Context, key string) error {
	pipe := q.client.Pipeline()
	pipe.HDel(ctx, q.processingKey(), key)
	pipe.HDel(ctx, q.jobsKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue complete failed: %w", err)
	}
	return nil
}

// Requeue 重试入队
func (q *PriorityQueue) Requeue(ctx context.Context, job *model.DetectionJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job failed: %w", err)
	}

	_, err = requeueScript.Run(ctx, q.client,
		[]string{q.pendingKey(), q.jobsKey(), q.processingKey(), q.seqKey()},
		job.Key(), payload, job.Priority.Score()).Result()
	if err != nil {
		return fmt.Errorf("queue requeue failed: %w", err)
	}
	return nil
}

// RecoverStale 回收认领超过 ttr 仍未结束的任务
func (q *PriorityQueue) RecoverStale(ctx context.Context, ttr time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttr).UnixMilli()
	n, err := recoverScript.Run(ctx, q.client,
		[]string{q.pendingKey(), q.jobsKey(), q.processingKey(), q.seqKey()},
		cutoff).Int()
	if err != nil {
		return 0, fmt.Errorf("recover stale failed: %w", err)
	}
	return n, nil
}

// Depth 在途任务数（pending + processing）
func (q *PriorityQueue) Depth(ctx context.Context) (int64, error) {
	pipe := q.client.Pipeline()
	pendingCmd := pipe.ZCard(ctx, q.pendingKey())
	processingCmd := pipe.HLen(ctx, q.processingKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("queue depth failed: %w", err)
	}
	return pendingCmd.Val() + processingCmd.Val(), nil
}

// Close 关闭 Redis 连接
func (q *PriorityQueue) Close() error {
	return q.client.Close()
}
