package model

import (
	"testing"
	"time"
)

func baseTemplate(now time.Time) CouponTemplate {
	return CouponTemplate{
		MerchantID:     1,
		Kind:           KindCash,
		Amount:         500,
		TotalStock:     10,
		RemainingStock: 10,
		BeginTime:      now.Add(-time.Hour),
		EndTime:        now.Add(time.Hour),
		UseBeginTime:   now.Add(-time.Hour),
		UseEndTime:     now.Add(2 * time.Hour),
		Status:         TemplateEnabled,
	}
}

// TestClaimWindowHalfOpen 领取窗口是左闭右开区间
func TestClaimWindowHalfOpen(t *testing.T) {
	now := time.Now()
	tpl := baseTemplate(now)
	tpl.BeginTime = now
	tpl.EndTime = now.Add(time.Hour)

	if !tpl.InClaimWindow(now) {
		t.Errorf("start instant must be inside the window")
	}
	if tpl.InClaimWindow(now.Add(time.Hour)) {
		t.Errorf("end instant must be outside the window")
	}
	if tpl.InClaimWindow(now.Add(-time.Nanosecond)) {
		t.Errorf("instant before start must be outside the window")
	}
}

func TestClaimable(t *testing.T) {
	now := time.Now()

	tpl := baseTemplate(now)
	if !tpl.Claimable(now) {
		t.Fatalf("expected claimable")
	}

	disabled := baseTemplate(now)
	disabled.Status = TemplateDisabled
	if disabled.Claimable(now) {
		t.Errorf("disabled template must not be claimable")
	}

	empty := baseTemplate(now)
	empty.RemainingStock = 0
	if empty.Claimable(now) {
		t.Errorf("template without stock must not be claimable")
	}

	future := baseTemplate(now)
	future.BeginTime = now.Add(time.Minute)
	if future.Claimable(now) {
		t.Errorf("template before begin time must not be claimable")
	}
}

// TestEffectiveStatusLazyEnded ENDED 由读路径懒惰观察
func TestEffectiveStatusLazyEnded(t *testing.T) {
	now := time.Now()

	ended := baseTemplate(now)
	ended.EndTime = now.Add(-time.Minute)
	if got := ended.EffectiveStatus(now); got != TemplateEnded {
		t.Errorf("past end time: EffectiveStatus = %v, want ENDED", got)
	}

	soldOut := baseTemplate(now)
	soldOut.RemainingStock = 0
	if got := soldOut.EffectiveStatus(now); got != TemplateEnded {
		t.Errorf("zero stock: EffectiveStatus = %v, want ENDED", got)
	}

	active := baseTemplate(now)
	if got := active.EffectiveStatus(now); got != TemplateEnabled {
		t.Errorf("active: EffectiveStatus = %v, want ENABLED", got)
	}

	// DISABLED 不会被懒惰规则覆盖
	disabled := baseTemplate(now)
	disabled.Status = TemplateDisabled
	disabled.RemainingStock = 0
	if got := disabled.EffectiveStatus(now); got != TemplateDisabled {
		t.Errorf("disabled: EffectiveStatus = %v, want DISABLED", got)
	}
}

func TestTemplateValidate(t *testing.T) {
	now := time.Now()

	ok := baseTemplate(now)
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid template rejected: %v", err)
	}

	percent := baseTemplate(now)
	percent.Kind = KindPercentDiscount
	percent.DiscountRate = 0.85
	if err := percent.Validate(); err != nil {
		t.Fatalf("valid percent template rejected: %v", err)
	}

	badRate := percent
	badRate.DiscountRate = 1.5
	if err := badRate.Validate(); err == nil {
		t.Errorf("discount rate above 1 must be rejected")
	}

	badAmount := baseTemplate(now)
	badAmount.Amount = 0
	if err := badAmount.Validate(); err == nil {
		t.Errorf("cash coupon without amount must be rejected")
	}

	badWindow := baseTemplate(now)
	badWindow.EndTime = badWindow.BeginTime
	if err := badWindow.Validate(); err == nil {
		t.Errorf("empty claim window must be rejected")
	}

	badStock := baseTemplate(now)
	badStock.TotalStock = -1
	if err := badStock.Validate(); err == nil {
		t.Errorf("negative stock must be rejected")
	}

	badKind := baseTemplate(now)
	badKind.Kind = CouponKind(42)
	if err := badKind.Validate(); err == nil {
		t.Errorf("unknown kind must be rejected")
	}
}
