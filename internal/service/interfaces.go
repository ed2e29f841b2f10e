package service

import (
	"context"

	"drp/internal/detect"
	"drp/internal/model"
)

// SyncedDataProvider 同步数据读取接口
// 检测输入来自数据同步侧落库的快照，按 (seller, sync) 读取
type SyncedDataProvider interface {
	Fetch(ctx context.Context, sellerID, syncID string) (*detect.SyncedData, error)
}

// CaseService 争议管理服务接口
// 超阈值 Finding 在对端开 case；动作子集满足 automation.CaseActioner
type CaseService interface {
	CreateCase(ctx context.Context, finding *model.Finding) (*model.DisputeCase, error)
	SubmitCase(ctx context.Context, caseID string) error
	ApproveCase(ctx context.Context, caseID string) error
	GetCase(ctx context.Context, caseID string) (*model.DisputeCase, error)
}

// FindingStore 检出结果持久化接口（MySQL 实现在 pkg/infra/mysql）
type FindingStore interface {
	SaveAll(ctx context.Context, findings []model.Finding) error
	List(ctx context.Context, sellerID, syncID string, status model.FindingStatus, page, limit int) ([]model.Finding, int64, error)
	SetStatus(ctx context.Context, id int64, status model.FindingStatus) error
}

// CallbackPublisher 检测完成回调发布接口（lmstfy 实现）
type CallbackPublisher interface {
	PublishCallback(queue string, cb *model.DetectionCallback) error
}
