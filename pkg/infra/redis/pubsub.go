package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"drp/internal/model"
)

// PubSub Redis 发布/订阅客户端
// 同步完成事件由数据同步侧发布，本服务订阅后触发检测入队
type PubSub struct {
	client *redis.Client
}

// NewPubSub 创建 PubSub 实例
func NewPubSub(addr, password string, db int) (*PubSub, error) {
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

	return &PubSub{
		client: client,
	}, nil
}

// PublishTrigger 发布同步完成事件
// 参数：
//   - ctx: 上下文
//   - channel: Redis 频道名称（drp:sync:complete:{seller_id}）
//   - event: 触发事件
func (p *PubSub) PublishTrigger(ctx context.Context, channel string, event *model.TriggerEvent) error {
	msgJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger event: %w", err)
	}

	if err := p.client.Publish(ctx, channel, msgJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish trigger event: %w", err)
	}

	return nil
}

// Subscribe 订阅 Redis 频道，返回消息通道与取消订阅函数
// （实现 realtime.Source）
func (p *PubSub) Subscribe(ctx context.Context, channel string) (<-chan string, func(), error) {
	sub := p.client.Subscribe(ctx, channel)

	// 等待订阅确认，失败及早暴露
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe channel %s: %w", channel, err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	unsubscribe := func() {
		_ = sub.Close()
	}
	return out, unsubscribe, nil
}

// Close 关闭 Redis 连接
func (p *PubSub) Close() error {
	return p.client.Close()
}
