package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"drp/internal/model"
	"drp/pkg/logger"
)

// ErrAlreadyStarted 同一卖家重复启动监听
var ErrAlreadyStarted = errors.New("realtime listener already started for seller")

// Source 订阅源接口（Redis pub/sub 适配器实现）
// 返回消息通道与取消订阅函数
type Source interface {
	Subscribe(ctx context.Context, channel string) (<-chan string, func(), error)
}

// EnqueueFunc 触发入队函数（调度器注入）
type EnqueueFunc func(ctx context.Context, sellerID, syncID string, trigger model.TriggerType, priority model.Priority) (bool, error)

// Callback 事件回调（可选，观察用）
type Callback func(ev *model.TriggerEvent)

// Listener 实时触发监听器
// 订阅上游同步完成事件并自动入队检测任务；每个卖家一条独立的
// 可取消订阅链路：重复 Start 被拒绝，未 Start 过的 Stop 安全无害
type Listener struct {
	source  Source
	enqueue EnqueueFunc
	logger  logger.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewListener 创建监听器
func NewListener(source Source, enqueue EnqueueFunc, log logger.Logger) *Listener {
	return &Listener{
		source:  source,
		enqueue: enqueue,
		logger:  log,
		cancels: make(map[string]context.CancelFunc),
	}
}

// channelFor 卖家事件频道命名规则
func channelFor(sellerID string) string {
	return fmt.Sprintf("drp:sync:complete:%s", sellerID)
}

// Start 启动指定卖家的监听（幂等：重复启动返回 ErrAlreadyStarted）
func (l *Listener) Start(ctx context.Context, sellerID string, cb Callback) error {
	if sellerID == "" {
		return fmt.Errorf("seller_id is required")
	}

	l.mu.Lock()
	if _, exists := l.cancels[sellerID]; exists {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	subCtx, cancel := context.WithCancel(ctx)
	l.cancels[sellerID] = cancel
	l.mu.Unlock()

	ch, unsubscribe, err := l.source.Subscribe(subCtx, channelFor(sellerID))
	if err != nil {
		l.mu.Lock()
		delete(l.cancels, sellerID)
		l.mu.Unlock()
		cancel()
		return fmt.Errorf("subscribe failed: %w", err)
	}

	l.wg.Add(1)
	go l.loop(subCtx, sellerID, ch, unsubscribe, cb)

	l.logger.Infof(ctx, "[Realtime] listener started: seller=%s", sellerID)
	return nil
}

// Stop 停止指定卖家的监听（从未启动时调用也安全）
func (l *Listener) Stop(sellerID string) {
	l.mu.Lock()
	cancel, ok := l.cancels[sellerID]
	if ok {
		delete(l.cancels, sellerID)
	}
	l.mu.Unlock()

	if ok {
		cancel()
		l.logger.Infof(context.Background(), "[Realtime] listener stopped: seller=%s", sellerID)
	}
}

// StopAll 停止全部监听并等待协程退出
func (l *Listener) StopAll() {
	l.mu.Lock()
	for sellerID, cancel := range l.cancels {
		cancel()
		delete(l.cancels, sellerID)
	}
	l.mu.Unlock()
	l.wg.Wait()
}

// Active 判断指定卖家的监听是否在运行
func (l *Listener) Active(sellerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.cancels[sellerID]
	return ok
}

// loop 监听循环
func (l *Listener) loop(ctx context.Context, sellerID string, ch <-chan string, unsubscribe func(), cb Callback) {
	defer l.wg.Done()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return

		case payload, ok := <-ch:
			if !ok {
				l.logger.Warnf(ctx, "[Realtime] channel closed: seller=%s", sellerID)
				return
			}

			var ev model.TriggerEvent
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				l.logger.Warnf(ctx, "[Realtime] bad trigger payload: seller=%s, error=%v", sellerID, err)
				continue
			}
			if ev.SellerID == "" {
				ev.SellerID = sellerID
			}
			if ev.TriggerType == "" {
				ev.TriggerType = model.TriggerInventory
			}
			priority := ev.Priority
			if priority == "" {
				priority = model.PriorityHigh
			}

			admitted, err := l.enqueue(ctx, ev.SellerID, ev.SyncID, ev.TriggerType, priority)
			if err != nil {
				l.logger.Errorf(ctx, "[Realtime] enqueue failed: seller=%s, sync=%s, error=%v",
					ev.SellerID, ev.SyncID, err)
			} else if admitted {
				l.logger.Infof(ctx, "[Realtime] detection triggered: seller=%s, sync=%s, type=%s",
					ev.SellerID, ev.SyncID, ev.TriggerType)
			}

			if cb != nil {
				cb(&ev)
			}
		}
	}
}
