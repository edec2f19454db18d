package model

import (
	"errors"
	"time"
)

// CouponKind enumerates the supported coupon categories.
type CouponKind int

const (
	KindCash            CouponKind = 1 // fixed amount off
	KindPercentDiscount CouponKind = 2 // rate in (0,1]
	KindExclusive       CouponKind = 3
	KindNewUser         CouponKind = 4
)

// TemplateStatus is the merchant-controlled lifecycle state of a template.
type TemplateStatus int

const (
	TemplateEnabled  TemplateStatus = 1
	TemplateDisabled TemplateStatus = 2
	TemplateEnded    TemplateStatus = 3
)

// CouponTemplate mirrors tb_coupon_template.
type CouponTemplate struct {
	ID             int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	MerchantID     int64          `gorm:"column:merchant_id" json:"merchantId"`
	ShopID         *int64         `gorm:"column:shop_id" json:"shopId,omitempty"`
	Kind           CouponKind     `gorm:"column:kind" json:"kind"`
	Amount         int64          `gorm:"column:amount" json:"amount"`
	DiscountRate   float64        `gorm:"column:discount_rate;type:decimal(4,3)" json:"discountRate"`
	MinSpend       int64          `gorm:"column:min_spend" json:"minSpend"`
	TotalStock     int            `gorm:"column:total_stock" json:"totalStock"`
	RemainingStock int            `gorm:"column:remaining_stock" json:"remainingStock"`
	PerUserLimit   *int           `gorm:"column:per_user_limit" json:"perUserLimit,omitempty"`
	DailyLimit     *int           `gorm:"column:daily_limit" json:"dailyLimit,omitempty"`
	BeginTime      time.Time      `gorm:"column:begin_time" json:"beginTime"`
	EndTime        time.Time      `gorm:"column:end_time" json:"endTime"`
	UseBeginTime   time.Time      `gorm:"column:use_begin_time" json:"useBeginTime"`
	UseEndTime     time.Time      `gorm:"column:use_end_time" json:"useEndTime"`
	Stackable      bool           `gorm:"column:stackable" json:"stackable"`
	Status         TemplateStatus `gorm:"column:status" json:"status"`
	CreateTime     time.Time      `gorm:"column:create_time;autoCreateTime" json:"createTime"`
	UpdateTime     time.Time      `gorm:"column:update_time;autoUpdateTime" json:"updateTime"`
}

func (CouponTemplate) TableName() string { return "tb_coupon_template" }

// EffectiveStatus 懒惰观察 ENDED：领取窗口结束或库存归零即视为已结束
// 不依赖定时任务主动改库，读到即生效
func (t *CouponTemplate) EffectiveStatus(now time.Time) TemplateStatus {
	if t.Status == TemplateEnabled {
		if !now.Before(t.EndTime) || t.RemainingStock <= 0 {
			return TemplateEnded
		}
	}
	return t.Status
}

// InClaimWindow reports whether now falls in [BeginTime, EndTime).
func (t *CouponTemplate) InClaimWindow(now time.Time) bool {
	return !now.Before(t.BeginTime) && now.Before(t.EndTime)
}

// InUseWindow reports whether now falls in [UseBeginTime, UseEndTime).
func (t *CouponTemplate) InUseWindow(now time.Time) bool {
	return !now.Before(t.UseBeginTime) && now.Before(t.UseEndTime)
}

// Claimable 是否允许领取：启用状态 + 处于领取窗口 + 还有剩余库存
func (t *CouponTemplate) Claimable(now time.Time) bool {
	return t.Status == TemplateEnabled && t.InClaimWindow(now) && t.RemainingStock > 0
}

// Redeemable 是否处于可核销窗口（库存已在领取时消耗，这里只看时间）
func (t *CouponTemplate) Redeemable(now time.Time) bool {
	return t.InUseWindow(now)
}

// Validate checks field consistency before a template is persisted.
func (t *CouponTemplate) Validate() error {
	switch t.Kind {
	case KindCash, KindExclusive, KindNewUser:
		if t.Amount <= 0 {
			return errors.New("amount must be positive")
		}
	case KindPercentDiscount:
		if t.DiscountRate <= 0 || t.DiscountRate > 1 {
			return errors.New("discount rate must be in (0,1]")
		}
	default:
		return errors.New("unknown coupon kind")
	}
	if t.TotalStock < 0 {
		return errors.New("total stock must not be negative")
	}
	if !t.BeginTime.Before(t.EndTime) {
		return errors.New("claim window is empty")
	}
	if !t.UseBeginTime.Before(t.UseEndTime) {
		return errors.New("use window is empty")
	}
	if t.MinSpend < 0 {
		return errors.New("min spend must not be negative")
	}
	return nil
}
