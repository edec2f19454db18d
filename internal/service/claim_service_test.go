package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coupon-backend/internal/model"
)

// TestClaimNoOversell 并发 200 次领取请求，验证不会超卖且库存守恒
func TestClaimNoOversell(t *testing.T) {
	db, rdb := testEnv(t)
	ctx := context.Background()

	const stock = 100
	tpl := newTestTemplate(t, db, stock, nil)
	svc := NewClaimService(db, rdb, nil, nil)

	const workers = 200
	var wg sync.WaitGroup
	var success int64

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			// 每个请求使用不同的 userId，只压库存这一条防线
			userID := int64(1000 + idx)
			if _, err := svc.Claim(ctx, userID, tpl.ID, time.Now()); err == nil {
				atomic.AddInt64(&success, 1)
			}
		}(i)
	}
	wg.Wait()

	if success > stock {
		t.Fatalf("oversold: success %d > stock %d", success, stock)
	}
	left := remainingStock(t, db, tpl.ID)
	if left < 0 {
		t.Fatalf("stock negative: %d", left)
	}
	// 库存守恒：剩余库存 = 总库存 - 成功领取数
	if int64(stock)-success != int64(left) {
		t.Fatalf("stock mismatch: total %d, success %d, left %d", stock, success, left)
	}
	var records int64
	if err := db.Model(&model.ClaimRecord{}).Where("template_id = ?", tpl.ID).Count(&records).Error; err != nil {
		t.Fatalf("count claims: %v", err)
	}
	if records != success {
		t.Fatalf("expected %d claim records, got %d", success, records)
	}
	t.Logf("success=%d, left=%d", success, left)
}

// TestClaimLastUnit 库存只剩 1 时两个用户并发领取，恰好一人成功
func TestClaimLastUnit(t *testing.T) {
	db, rdb := testEnv(t)
	ctx := context.Background()

	tpl := newTestTemplate(t, db, 1, nil)
	svc := NewClaimService(db, rdb, nil, nil)

	var wg sync.WaitGroup
	var success, exhausted int64
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := svc.Claim(ctx, int64(100+idx), tpl.ID, time.Now())
			if err == nil {
				atomic.AddInt64(&success, 1)
			} else if errors.Is(err, ErrStockExhausted) {
				atomic.AddInt64(&exhausted, 1)
			} else {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if success != 1 || exhausted != 1 {
		t.Fatalf("expected 1 success and 1 exhausted, got %d/%d", success, exhausted)
	}
	if left := remainingStock(t, db, tpl.ID); left != 0 {
		t.Fatalf("expected remaining stock 0, got %d", left)
	}
}

// TestClaimPerUserLimit 同一用户超出限领数量，第二次失败且库存被补偿回来
func TestClaimPerUserLimit(t *testing.T) {
	db, rdb := testEnv(t)
	ctx := context.Background()

	limit := 1
	tpl := newTestTemplate(t, db, 10, func(tpl *model.CouponTemplate) {
		tpl.PerUserLimit = &limit
	})
	svc := NewClaimService(db, rdb, nil, nil)
	userID := int64(42)

	if _, err := svc.Claim(ctx, userID, tpl.ID, time.Now()); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	leftAfterFirst := remainingStock(t, db, tpl.ID)

	_, err := svc.Claim(ctx, userID, tpl.ID, time.Now())
	if !errors.Is(err, ErrUserLimitExceeded) {
		t.Fatalf("expected ErrUserLimitExceeded, got %v", err)
	}
	// 补偿校验：失败的第二次领取不能留下任何库存变化
	if left := remainingStock(t, db, tpl.ID); left != leftAfterFirst {
		t.Fatalf("stock not compensated: before %d, after %d", leftAfterFirst, left)
	}
}

// TestClaimPerUserLimitConcurrent 同一用户并发领取，成功数不超过限领数量
func TestClaimPerUserLimitConcurrent(t *testing.T) {
	db, rdb := testEnv(t)
	ctx := context.Background()

	limit := 1
	tpl := newTestTemplate(t, db, 50, func(tpl *model.CouponTemplate) {
		tpl.PerUserLimit = &limit
	})
	svc := NewClaimService(db, rdb, nil, nil)
	userID := int64(7)

	const attempts = 20
	var wg sync.WaitGroup
	var success int64
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Claim(ctx, userID, tpl.ID, time.Now()); err == nil {
				atomic.AddInt64(&success, 1)
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly 1 success for single user, got %d", success)
	}
	var records int64
	if err := db.Model(&model.ClaimRecord{}).
		Where("template_id = ? AND user_id = ?", tpl.ID, userID).
		Count(&records).Error; err != nil {
		t.Fatalf("count claims: %v", err)
	}
	if records != 1 {
		t.Fatalf("expected 1 claim record, got %d", records)
	}
	// 失败的尝试全部补偿，库存只被成功的那一次消耗
	if left := remainingStock(t, db, tpl.ID); left != tpl.TotalStock-1 {
		t.Fatalf("expected remaining stock %d, got %d", tpl.TotalStock-1, left)
	}
}

// TestClaimDailyLimit 当日限领用尽后领取失败，库存同样被补偿
func TestClaimDailyLimit(t *testing.T) {
	db, rdb := testEnv(t)
	ctx := context.Background()

	daily := 1
	tpl := newTestTemplate(t, db, 10, func(tpl *model.CouponTemplate) {
		tpl.DailyLimit = &daily
	})
	svc := NewClaimService(db, rdb, nil, nil)
	userID := int64(55)

	if _, err := svc.Claim(ctx, userID, tpl.ID, time.Now()); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	_, err := svc.Claim(ctx, userID, tpl.ID, time.Now())
	if !errors.Is(err, ErrDailyLimitExceeded) {
		t.Fatalf("expected ErrDailyLimitExceeded, got %v", err)
	}
	if left := remainingStock(t, db, tpl.ID); left != tpl.TotalStock-1 {
		t.Fatalf("expected remaining stock %d, got %d", tpl.TotalStock-1, left)
	}
}

// TestClaimWindowAndStatus 窗口外、下架模板的领取失败分支
func TestClaimWindowAndStatus(t *testing.T) {
	db, rdb := testEnv(t)
	ctx := context.Background()
	svc := NewClaimService(db, rdb, nil, nil)
	now := time.Now()

	notOpen := newTestTemplate(t, db, 5, func(tpl *model.CouponTemplate) {
		tpl.BeginTime = now.Add(time.Hour)
		tpl.EndTime = now.Add(2 * time.Hour)
	})
	if _, err := svc.Claim(ctx, 1, notOpen.ID, now); !errors.Is(err, ErrTemplateNotYetOpen) {
		t.Fatalf("expected ErrTemplateNotYetOpen, got %v", err)
	}

	closed := newTestTemplate(t, db, 5, func(tpl *model.CouponTemplate) {
		tpl.BeginTime = now.Add(-2 * time.Hour)
		tpl.EndTime = now.Add(-time.Hour)
	})
	if _, err := svc.Claim(ctx, 1, closed.ID, now); !errors.Is(err, ErrTemplateExpired) {
		t.Fatalf("expected ErrTemplateExpired, got %v", err)
	}

	disabled := newTestTemplate(t, db, 5, func(tpl *model.CouponTemplate) {
		tpl.Status = model.TemplateDisabled
	})
	if _, err := svc.Claim(ctx, 1, disabled.ID, now); !errors.Is(err, ErrTemplateDisabled) {
		t.Fatalf("expected ErrTemplateDisabled, got %v", err)
	}

	if _, err := svc.Claim(ctx, 1, 99999999, now); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}

	// 失败分支不能留下任何领取记录或库存变化
	for _, tpl := range []*model.CouponTemplate{notOpen, closed, disabled} {
		if left := remainingStock(t, db, tpl.ID); left != tpl.TotalStock {
			t.Fatalf("template %d stock changed on failed claim: %d", tpl.ID, left)
		}
	}
}

// TestClaimCodesUnique 同一模板的所有券码全局唯一
func TestClaimCodesUnique(t *testing.T) {
	db, rdb := testEnv(t)
	ctx := context.Background()

	tpl := newTestTemplate(t, db, 50, nil)
	svc := NewClaimService(db, rdb, nil, nil)

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		record, err := svc.Claim(ctx, int64(2000+i), tpl.ID, time.Now())
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if _, dup := seen[record.Code]; dup {
			t.Fatalf("duplicate code issued: %s", record.Code)
		}
		seen[record.Code] = struct{}{}
		if record.Status != model.ClaimUnused {
			t.Fatalf("new claim must be UNUSED, got %v", record.Status)
		}
	}
}
