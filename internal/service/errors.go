package service

import (
	"errors"
	"fmt"
)

// ErrorKind 业务错误分类，handler 据此映射 HTTP 状态码
// 业务失败都是终态，调用方不应重试；只有 Transient 允许整单重试
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindPreconditionFailed
	KindConflict
	KindTransient
)

// BizError carries a stable kind alongside the message.
type BizError struct {
	Kind ErrorKind
	Msg  string
}

func (e *BizError) Error() string { return e.Msg }

func newBizError(kind ErrorKind, msg string) *BizError {
	return &BizError{Kind: kind, Msg: msg}
}

// 领取失败
var (
	ErrTemplateNotFound     = newBizError(KindNotFound, "优惠券不存在")
	ErrTemplateDisabled     = newBizError(KindPreconditionFailed, "优惠券已下架")
	ErrTemplateNotYetOpen   = newBizError(KindPreconditionFailed, "领取尚未开始")
	ErrTemplateExpired      = newBizError(KindPreconditionFailed, "领取已结束")
	ErrStockExhausted       = newBizError(KindConflict, "库存不足")
	ErrUserLimitExceeded    = newBizError(KindConflict, "已达到每人限领数量")
	ErrDailyLimitExceeded   = newBizError(KindConflict, "已达到今日限领数量")
	ErrCodeGenerationFailed = newBizError(KindConflict, "券码生成失败，请重试")
)

// 核销失败
var (
	ErrCodeNotFound           = newBizError(KindNotFound, "券码不存在")
	ErrCodeAlreadyUsed        = newBizError(KindConflict, "券码已被使用")
	ErrCodeExpired            = newBizError(KindConflict, "券码已过期")
	ErrRedemptionWindowClosed = newBizError(KindPreconditionFailed, "不在可用时间范围内")
	ErrShopNotEligible        = newBizError(KindPreconditionFailed, "该门店不支持此券")
)

// KindOf 提取错误分类；存储层错误统一归类为 Transient
func KindOf(err error) ErrorKind {
	var biz *BizError
	if errors.As(err, &biz) {
		return biz.Kind
	}
	if err != nil {
		return KindTransient
	}
	return KindUnknown
}

// wrapStoreErr 包装存储层错误，保留原因链
func wrapStoreErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
