package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"drp/internal/detect"
	"drp/internal/entity"
)

// SnapshotDAO 同步数据快照访问对象（实现 service.SyncedDataProvider）
type SnapshotDAO struct {
	db *gorm.DB
}

// NewSnapshotDAO 创建 SnapshotDAO 实例
func NewSnapshotDAO(db *gorm.DB) *SnapshotDAO {
	return &SnapshotDAO{db: db}
}

// Fetch 读取一次同步的完整数据快照
func (dao *SnapshotDAO) Fetch(ctx context.Context, sellerID, syncID string) (*detect.SyncedData, error) {
	var po entity.SyncSnapshot
	err := dao.db.WithContext(ctx).
		Where("seller_id = ? AND sync_id = ?", sellerID, syncID).
		First(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("sync snapshot not found: seller=%s, sync=%s", sellerID, syncID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot failed: %w", err)
	}

	var data detect.SyncedData
	if err := json.Unmarshal(po.Payload, &data); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot failed: %w", err)
	}
	return &data, nil
}

// Save 写入一份快照（同 (seller, sync) 覆盖）
func (dao *SnapshotDAO) Save(ctx context.Context, sellerID, syncID string, data *detect.SyncedData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal snapshot failed: %w", err)
	}

	po := &entity.SyncSnapshot{
		SellerID:  sellerID,
		SyncID:    syncID,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	err = dao.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "seller_id"}, {Name: "sync_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload"}),
		}).
		Create(po).Error
	if err != nil {
		return fmt.Errorf("save snapshot failed: %w", err)
	}
	return nil
}
