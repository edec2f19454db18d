package service

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"coupon-backend/internal/model"
	"coupon-backend/internal/utils"
)

// testEnv 集成测试环境：连不上 MySQL/Redis 就跳过
func testEnv(t *testing.T) (*gorm.DB, *redis.Client) {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("TEST_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(127.0.0.1:3306)/coupon?parseTime=true&loc=Local&charset=utf8mb4"
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Skipf("skip: cannot connect mysql: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		// 控制连接数，避免并发压测触发 MySQL max_connections
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(10)
		t.Cleanup(func() { sqlDB.Close() })
	}
	if err := db.AutoMigrate(&model.CouponTemplate{}, &model.ClaimRecord{}); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: "127.0.0.1:6379",
		DB:   0,
	})
	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skip: cannot connect redis: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })

	return db, rdb
}

// newTestTemplate 创建一张处于可领取窗口内的测试模板
func newTestTemplate(t *testing.T, db *gorm.DB, stock int, mutate func(*model.CouponTemplate)) *model.CouponTemplate {
	t.Helper()
	now := time.Now()
	tpl := &model.CouponTemplate{
		MerchantID:     1,
		Kind:           model.KindCash,
		Amount:         500,
		TotalStock:     stock,
		RemainingStock: stock,
		BeginTime:      now.Add(-time.Minute),
		EndTime:        now.Add(time.Hour),
		UseBeginTime:   now.Add(-time.Minute),
		UseEndTime:     now.Add(24 * time.Hour),
		Status:         model.TemplateEnabled,
	}
	if mutate != nil {
		mutate(tpl)
	}
	if err := db.Create(tpl).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}
	return tpl
}

// invalidateTemplateCache 清除模板的 Redis 缓存，让后续读取回源数据库
func invalidateTemplateCache(t *testing.T, rdb *redis.Client, templateID int64) {
	t.Helper()
	key := utils.CACHE_TEMPLATE_KEY + strconv.FormatInt(templateID, 10)
	if err := rdb.Del(context.Background(), key).Err(); err != nil {
		t.Fatalf("invalidate template cache: %v", err)
	}
}

func remainingStock(t *testing.T, db *gorm.DB, templateID int64) int {
	t.Helper()
	var left int
	if err := db.Raw("SELECT remaining_stock FROM tb_coupon_template WHERE id = ?", templateID).Scan(&left).Error; err != nil {
		t.Fatalf("query remaining stock: %v", err)
	}
	return left
}
