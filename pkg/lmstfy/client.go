package lmstfy

import (
	"encoding/json"
	"fmt"

	"github.com/bitleak/lmstfy/client"

	"drp/internal/model"
)

// Client Lmstfy 客户端封装
// 检测完成后向 case 系统的回调队列投递结果通知
type Client struct {
	cli       *client.LmstfyClient
	namespace string
}

// NewClient 创建 Lmstfy 客户端
func NewClient(host string, port int, namespace string, token string) (*Client, error) {
	cli := client.NewLmstfyClient(host, port, namespace, token)
	return &Client{
		cli:       cli,
		namespace: namespace,
	}, nil
}

// PublishCallback 发布检测完成回调
func (c *Client) PublishCallback(queue string, cb *model.DetectionCallback) error {
	data, err := json.Marshal(cb)
	if err != nil {
		return fmt.Errorf("marshal callback failed: %w", err)
	}
	return c.Publish(queue, data, 0, 0)
}

// Publish 发布消息
func (c *Client) Publish(queue string, data []byte, ttl, delay uint32) error {
	_, err := c.cli.Publish(queue, data, ttl, 3, delay)
	if err != nil {
		return fmt.Errorf("lmstfy publish failed: %w", err)
	}
	return nil
}
