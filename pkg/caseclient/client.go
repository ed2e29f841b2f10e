package caseclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gorm.io/gorm"

	"drp/internal/entity"
	"drp/internal/model"
	"drp/pkg/logger"
)

// case 本地状态
const (
	StatusCreated   = "created"
	StatusSubmitted = "submitted"
	StatusApproved  = "approved"
)

// 命令动作
const (
	cmdCreate  = "create"
	cmdSubmit  = "submit"
	cmdApprove = "approve"
)

// Publisher 命令队列发布接口（lmstfy 实现）
type Publisher interface {
	Publish(queue string, data []byte, ttl, delay uint32) error
}

// caseCommand 发往争议管理服务的命令消息
type caseCommand struct {
	Action    string             `json:"action"`
	CaseID    string             `json:"case_id"`
	SellerID  string             `json:"seller_id"`
	Case      *model.DisputeCase `json:"case,omitempty"`
	FindingID int64              `json:"finding_id,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

// Client 争议 case 客户端（实现 service.CaseService 与 automation.CaseActioner）
// case 本体归争议管理服务所有，命令经 lmstfy 队列异步下发；
// 本地保留一份投影供读取与审计，队列投递失败时回滚本地写入
type Client struct {
	db        *gorm.DB
	publisher Publisher
	queue     string
	logger    logger.Logger
}

// NewClient 创建 case 客户端
func NewClient(db *gorm.DB, publisher Publisher, queue string, log logger.Logger) *Client {
	return &Client{
		db:        db,
		publisher: publisher,
		queue:     queue,
		logger:    log,
	}
}

// caseTypeFor 异常类型到 case 类型的映射
func caseTypeFor(anomalyType model.AnomalyType) string {
	switch anomalyType {
	case model.AnomalyLostWarehouse:
		return "lost_inventory"
	case model.AnomalyRefundNoReturn, model.AnomalyReturnlessRefundAbuse:
		return "refund_recovery"
	case model.AnomalyDamagedInventory:
		return "damaged_inventory"
	case model.AnomalyInboundLost, model.AnomalyInboundShortfall:
		return "inbound_discrepancy"
	case model.AnomalyRemovalShortfall:
		return "removal_discrepancy"
	case model.AnomalyFraudSignature:
		return "fraud_review"
	default:
		return "general"
	}
}

// CreateCase 基于一条检出开 case
func (c *Client) CreateCase(ctx context.Context, finding *model.Finding) (*model.DisputeCase, error) {
	if finding == nil || finding.SellerID == "" {
		return nil, fmt.Errorf("finding with seller_id is required")
	}

	now := time.Now()
	dc := &model.DisputeCase{
		CaseID:   uuid.NewString(),
		SellerID: finding.SellerID,
		CaseType: caseTypeFor(finding.AnomalyType),
		Amount:   finding.EstimatedValue,
		Currency: finding.Currency,
		Status:   StatusCreated,
	}

	po := &entity.DisputeCase{
		CaseID:    dc.CaseID,
		SellerID:  dc.SellerID,
		FindingID: finding.ID,
		CaseType:  dc.CaseType,
		Amount:    dc.Amount,
		Currency:  dc.Currency,
		Status:    dc.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.db.WithContext(ctx).Create(po).Error; err != nil {
		return nil, fmt.Errorf("create case failed: %w", err)
	}

	if err := c.dispatch(cmdCreate, dc, finding.ID); err != nil {
		// 命令没发出去就撤掉本地投影，避免两边不一致
		c.db.WithContext(ctx).Delete(&entity.DisputeCase{}, "case_id = ?", dc.CaseID)
		return nil, err
	}

	c.logger.Infof(ctx, "[CaseClient] case created: case=%s, finding=%d, type=%s",
		dc.CaseID, finding.ID, dc.CaseType)
	return dc, nil
}

// SubmitCase 提交 case（对重复提交幂等）
func (c *Client) SubmitCase(ctx context.Context, caseID string) error {
	return c.action(ctx, caseID, cmdSubmit, StatusSubmitted)
}

// ApproveCase 通过 case（对重复通过幂等）
func (c *Client) ApproveCase(ctx context.Context, caseID string) error {
	return c.action(ctx, caseID, cmdApprove, StatusApproved)
}

// action 下发动作命令并更新本地状态
func (c *Client) action(ctx context.Context, caseID, action, status string) error {
	if caseID == "" {
		return fmt.Errorf("case_id is required")
	}

	dc, err := c.GetCase(ctx, caseID)
	if err != nil {
		return err
	}
	if dc.Status == status {
		// 已处于目标状态，no-op
		c.logger.Debugf(ctx, "[CaseClient] %s no-op: case=%s", action, caseID)
		return nil
	}

	if err := c.dispatch(action, dc, 0); err != nil {
		return err
	}

	err = c.db.WithContext(ctx).
		Model(&entity.DisputeCase{}).
		Where("case_id = ?", caseID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("update case status failed: %w", err)
	}

	c.logger.Infof(ctx, "[CaseClient] case %s dispatched: case=%s", action, caseID)
	return nil
}

// GetCase 读取 case 投影
func (c *Client) GetCase(ctx context.Context, caseID string) (*model.DisputeCase, error) {
	var po entity.DisputeCase
	err := c.db.WithContext(ctx).Where("case_id = ?", caseID).First(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("case not found: %s", caseID)
	}
	if err != nil {
		return nil, fmt.Errorf("get case failed: %w", err)
	}

	return &model.DisputeCase{
		CaseID:      po.CaseID,
		SellerID:    po.SellerID,
		CaseType:    po.CaseType,
		Marketplace: po.Marketplace,
		Amount:      po.Amount,
		Currency:    po.Currency,
		Status:      po.Status,
	}, nil
}

// dispatch 发布命令到争议管理服务队列
func (c *Client) dispatch(action string, dc *model.DisputeCase, findingID int64) error {
	cmd := &caseCommand{
		Action:    action,
		CaseID:    dc.CaseID,
		SellerID:  dc.SellerID,
		Timestamp: time.Now().Unix(),
	}
	if action == cmdCreate {
		cmd.Case = dc
		cmd.FindingID = findingID
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal case command failed: %w", err)
	}
	if err := c.publisher.Publish(c.queue, data, 0, 0); err != nil {
		return fmt.Errorf("dispatch case command failed: %w", err)
	}
	return nil
}
