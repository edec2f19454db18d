package model

import "time"

// ClaimStatus is the one-way state of a claimed coupon code.
type ClaimStatus int

const (
	ClaimUnused  ClaimStatus = 1
	ClaimUsed    ClaimStatus = 2
	ClaimExpired ClaimStatus = 3
)

// CanTransition 状态机只允许 UNUSED→USED 和 UNUSED→EXPIRED
// USED / EXPIRED 均为终态，任何写路径都必须先过这里再做条件更新
func (s ClaimStatus) CanTransition(to ClaimStatus) bool {
	if s != ClaimUnused {
		return false
	}
	return to == ClaimUsed || to == ClaimExpired
}

func (s ClaimStatus) String() string {
	switch s {
	case ClaimUnused:
		return "UNUSED"
	case ClaimUsed:
		return "USED"
	case ClaimExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// ClaimRecord mirrors tb_claim_record. One row per successful claim; rows are
// never deleted, so template stock is always recomputable from a count.
type ClaimRecord struct {
	ID         int64       `gorm:"column:id;primaryKey" json:"id"`
	TemplateID int64       `gorm:"column:template_id" json:"templateId"`
	UserID     int64       `gorm:"column:user_id" json:"userId"`
	Code       string      `gorm:"column:code;uniqueIndex:uk_claim_code" json:"code"`
	Status     ClaimStatus `gorm:"column:status" json:"status"`
	ClaimTime  time.Time   `gorm:"column:claim_time" json:"claimTime"`
	UseTime    *time.Time  `gorm:"column:use_time" json:"useTime,omitempty"`
	ShopID     *int64      `gorm:"column:shop_id" json:"shopId,omitempty"`
	OperatorID *int64      `gorm:"column:operator_id" json:"operatorId,omitempty"`
}

func (ClaimRecord) TableName() string { return "tb_claim_record" }
