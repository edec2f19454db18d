package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"coupon-backend/internal/model"
)

// RedeemService 核销引擎：券码查验与 UNUSED→USED 的一次性流转
type RedeemService struct {
	db        *gorm.DB
	templates *TemplateService
	notifier  *Notifier
	log       *zap.Logger
}

// NewRedeemService 创建 RedeemService 实例
func NewRedeemService(db *gorm.DB, templates *TemplateService, notifier *Notifier, log *zap.Logger) *RedeemService {
	return &RedeemService{db: db, templates: templates, notifier: notifier, log: log}
}

// VerifyResult 核销前的只读预览
type VerifyResult struct {
	Template *model.CouponTemplate `json:"template"`
	Record   *model.ClaimRecord    `json:"record"`
	Status   string                `json:"status"`
}

// Redeem 核销一张券码
// 并发防线是第 4 步的条件更新：两个请求同时核销同一券码，只有一个能把
// 状态从 UNUSED 改成 USED，输掉的一方拿到 CodeAlreadyUsed
func (s *RedeemService) Redeem(ctx context.Context, code string, shopID, operatorID int64, now time.Time) (*model.ClaimRecord, error) {
	// 1.按券码查领取记录
	var record model.ClaimRecord
	err := s.db.WithContext(ctx).Where("code = ?", code).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, wrapStoreErr("query claim record", err)
	}

	// 2.状态预检（真正的判定在条件更新，这里只为尽早给出准确错误）
	switch record.Status {
	case model.ClaimUsed:
		return nil, ErrCodeAlreadyUsed
	case model.ClaimExpired:
		return nil, ErrCodeExpired
	}

	// 3.模板交叉校验：可用时间窗口 + 门店范围
	tpl, err := s.templates.GetByID(ctx, record.TemplateID)
	if err != nil {
		return nil, err
	}
	if !tpl.Redeemable(now) {
		return nil, ErrRedemptionWindowClosed
	}
	if tpl.ShopID != nil && *tpl.ShopID != shopID {
		return nil, ErrShopNotEligible
	}

	// 4/5.条件更新完成状态流转，核销信息在同一条更新里写入
	if !record.Status.CanTransition(model.ClaimUsed) {
		return nil, ErrCodeAlreadyUsed
	}
	update := s.db.WithContext(ctx).
		Model(&model.ClaimRecord{}).
		Where("id = ? AND status = ?", record.ID, model.ClaimUnused).
		Updates(map[string]interface{}{
			"status":      model.ClaimUsed,
			"use_time":    now,
			"shop_id":     shopID,
			"operator_id": operatorID,
		})
	if update.Error != nil {
		return nil, wrapStoreErr("mark claim used", update.Error)
	}
	if update.RowsAffected == 0 {
		// 并发核销输掉了竞争，或者刚好被过期清理任务抢先
		return nil, ErrCodeAlreadyUsed
	}

	record.Status = model.ClaimUsed
	record.UseTime = &now
	record.ShopID = &shopID
	record.OperatorID = &operatorID
	if s.log != nil {
		s.log.Info("coupon redeemed",
			zap.Int64("claimId", record.ID),
			zap.Int64("shopId", shopID),
			zap.Int64("operatorId", operatorID))
	}

	// 6.核销成功后异步通知，失败只记日志
	if s.notifier != nil {
		s.notifier.Notify(ctx, record.UserID, EventRedeemed, record.ID)
	}
	return &record, nil
}

// Verify 核销前的只读查验，不产生任何写入
// 调用方不能把这里的结果当成核销依据，最终判定永远在 Redeem 的条件更新
func (s *RedeemService) Verify(ctx context.Context, code string) (*VerifyResult, error) {
	var record model.ClaimRecord
	err := s.db.WithContext(ctx).Where("code = ?", code).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, wrapStoreErr("query claim record", err)
	}
	tpl, err := s.templates.GetByID(ctx, record.TemplateID)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{
		Template: tpl,
		Record:   &record,
		Status:   record.Status.String(),
	}, nil
}
