package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"coupon-backend/internal/model"
	"coupon-backend/internal/utils"
)

// 券码生成冲突的最大重试次数，超过则放弃本次领取
const maxCodeAttempts = 5

// 同一用户的领取请求串行化锁的参数
const (
	claimLockTTL        = 5 * time.Second
	claimLockRetryDelay = 50 * time.Millisecond
	claimLockMaxRetries = 20
)

var errClaimBusy = newBizError(KindConflict, "操作过于频繁，请稍后再试")

// ClaimService 领券引擎：校验模板 → 原子扣减库存 → 限领校验（超限补偿回滚库存）→ 生成券码 → 落库
type ClaimService struct {
	db        *gorm.DB
	rdb       *redis.Client
	idWorker  *utils.RedisIdWorker
	snowflake *utils.Snowflake
	notifier  *Notifier
	log       *zap.Logger
}

// NewClaimService 创建 ClaimService 实例
func NewClaimService(db *gorm.DB, rdb *redis.Client, notifier *Notifier, log *zap.Logger) *ClaimService {
	// Redis 不可用时退化到本地雪花ID，领券不因发号器单点失败而不可用
	sf, err := utils.NewSnowflake(0)
	if err != nil {
		panic(err)
	}
	return &ClaimService{
		db:        db,
		rdb:       rdb,
		idWorker:  utils.NewRedisIdWorker(rdb),
		snowflake: sf,
		notifier:  notifier,
		log:       log,
	}
}

// Claim 领取一张优惠券
// 并发安全性依赖两点：库存扣减是单条条件更新（超卖唯一防线），
// 限领校验放在扣减之后并以补偿回补库存，扣减本身成为同模板请求的串行化点
func (s *ClaimService) Claim(ctx context.Context, userID, templateID int64, now time.Time) (*model.ClaimRecord, error) {
	// 1.查询模板信息（领券链路直接读库，不走缓存，拿最新状态）
	var tpl model.CouponTemplate
	err := s.db.WithContext(ctx).First(&tpl, templateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, wrapStoreErr("query template", err)
	}

	// 2.校验可领取性
	if tpl.Status == model.TemplateDisabled {
		return nil, ErrTemplateDisabled
	}
	if tpl.Status == model.TemplateEnded || !now.Before(tpl.EndTime) {
		return nil, ErrTemplateExpired
	}
	if now.Before(tpl.BeginTime) {
		return nil, ErrTemplateNotYetOpen
	}
	if tpl.RemainingStock <= 0 {
		return nil, ErrStockExhausted
	}

	// 同一用户的领取请求用分布式锁串行化，保证限领计数读到的是彼此提交后的数据
	// 跨模板不互斥，锁粒度是 (用户, 模板)
	unlock, err := s.lockUserClaim(ctx, userID, templateID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 3.原子扣减库存：单条条件更新，影响行数为 0 即已售罄
	// 这是唯一会减库存的路径，禁止任何先读后写的扣减
	update := s.db.WithContext(ctx).
		Model(&model.CouponTemplate{}).
		Where("id = ? AND remaining_stock > 0", templateID).
		Update("remaining_stock", gorm.Expr("remaining_stock - 1"))
	if update.Error != nil {
		return nil, wrapStoreErr("decrement stock", update.Error)
	}
	if update.RowsAffected == 0 {
		return nil, ErrStockExhausted
	}

	// 已占住一个库存，从这里开始任何失败都必须补偿回补，不留半成品状态
	record, err := s.claimReserved(ctx, &tpl, userID, now)
	if err != nil {
		s.compensateStock(ctx, templateID)
		return nil, err
	}

	// 7.领取成功后异步通知，失败只记日志，绝不回滚领取
	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, EventClaimed, record.ID)
	}
	return record, nil
}

// claimReserved 库存占用后的剩余流程：限领校验、生成券码、插入领取记录
func (s *ClaimService) claimReserved(ctx context.Context, tpl *model.CouponTemplate, userID int64, now time.Time) (*model.ClaimRecord, error) {
	// 4.限领校验：库存扣减已经把并发请求串行化，此时读到的计数是可信的
	if tpl.PerUserLimit != nil {
		var total int64
		if err := s.db.WithContext(ctx).
			Model(&model.ClaimRecord{}).
			Where("template_id = ? AND user_id = ?", tpl.ID, userID).
			Count(&total).Error; err != nil {
			return nil, wrapStoreErr("count user claims", err)
		}
		if total >= int64(*tpl.PerUserLimit) {
			return nil, ErrUserLimitExceeded
		}
	}
	if tpl.DailyLimit != nil {
		// 按 UTC 日界统计当日领取量
		dayStart := now.UTC().Truncate(24 * time.Hour)
		dayEnd := dayStart.Add(24 * time.Hour)
		var today int64
		if err := s.db.WithContext(ctx).
			Model(&model.ClaimRecord{}).
			Where("template_id = ? AND user_id = ? AND claim_time >= ? AND claim_time < ?",
				tpl.ID, userID, dayStart, dayEnd).
			Count(&today).Error; err != nil {
			return nil, wrapStoreErr("count daily claims", err)
		}
		if today >= int64(*tpl.DailyLimit) {
			return nil, ErrDailyLimitExceeded
		}
	}

	// 5/6.生成券码并插入领取记录；券码唯一性由唯一索引兜底
	// 撞码时换码重试，有限次数内不让偶发冲突毁掉整次领取
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := utils.NewClaimCode()
		if err != nil {
			return nil, wrapStoreErr("generate claim code", err)
		}
		id, err := s.nextClaimID(ctx)
		if err != nil {
			return nil, err
		}
		record := &model.ClaimRecord{
			ID:         id,
			TemplateID: tpl.ID,
			UserID:     userID,
			Code:       code,
			Status:     model.ClaimUnused,
			ClaimTime:  now,
		}
		err = s.db.WithContext(ctx).Create(record).Error
		if err == nil {
			return record, nil
		}
		if isDuplicateKey(err) {
			if s.log != nil {
				s.log.Warn("claim code collision, regenerating",
					zap.Int64("templateId", tpl.ID), zap.Int("attempt", attempt+1))
			}
			continue
		}
		return nil, wrapStoreErr("insert claim record", err)
	}
	return nil, ErrCodeGenerationFailed
}

// compensateStock 回补一个库存，抵消已执行的扣减
func (s *ClaimService) compensateStock(ctx context.Context, templateID int64) {
	err := s.db.WithContext(ctx).
		Model(&model.CouponTemplate{}).
		Where("id = ?", templateID).
		Update("remaining_stock", gorm.Expr("remaining_stock + 1")).Error
	if err != nil && s.log != nil {
		// 补偿失败会造成少卖，不会超卖；记录下来人工核对
		s.log.Error("stock compensation failed",
			zap.Int64("templateId", templateID), zap.Error(err))
	}
}

// lockUserClaim 获取 (用户, 模板) 粒度的分布式锁
// SET NX 带 TTL 保证占锁与过期是一个原子操作；解锁用 Lua 校验 token 防止误删他人锁
func (s *ClaimService) lockUserClaim(ctx context.Context, userID, templateID int64) (func(), error) {
	lockKey := fmt.Sprintf("lock:coupon:claim:%d:%d", userID, templateID)
	lockToken := uuid.NewString()
	for attempt := 0; attempt < claimLockMaxRetries; attempt++ {
		locked, err := s.rdb.SetArgs(ctx, lockKey, lockToken, redis.SetArgs{
			Mode: "NX",
			TTL:  claimLockTTL,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, wrapStoreErr("acquire claim lock", err)
		}
		if locked == "OK" {
			return func() {
				script := redis.NewScript(`
					if redis.call("get", KEYS[1]) == ARGV[1] then
						return redis.call("del", KEYS[1])
					end
					return 0
				`)
				_, _ = script.Run(context.Background(), s.rdb, []string{lockKey}, lockToken).Result()
			}, nil
		}
		time.Sleep(claimLockRetryDelay)
	}
	return nil, errClaimBusy
}

// nextClaimID 生成领取记录ID，优先使用 Redis 发号器
func (s *ClaimService) nextClaimID(ctx context.Context) (int64, error) {
	id, err := s.idWorker.NextId(ctx, "claim")
	if err == nil {
		return id, nil
	}
	if s.log != nil {
		s.log.Warn("redis id worker unavailable, falling back to snowflake", zap.Error(err))
	}
	id, sfErr := s.snowflake.NextID()
	if sfErr != nil {
		return 0, wrapStoreErr("generate claim id", sfErr)
	}
	return id, nil
}

// isDuplicateKey 判断是否为 MySQL 唯一键冲突（errno 1062）
func isDuplicateKey(err error) bool {
	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
