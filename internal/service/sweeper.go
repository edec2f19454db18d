package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"coupon-backend/internal/model"
	"coupon-backend/internal/utils"
)

const defaultSweepInterval = 5 * time.Minute
const defaultSweepBatchSize = 500

// SweeperService 过期清理任务：把可用期已过的 UNUSED 券码置为 EXPIRED
// 只改状态，不回补库存，库存在领取时已永久消耗
type SweeperService struct {
	db        *gorm.DB
	rdb       *redis.Client
	interval  time.Duration
	batchSize int
	log       *zap.Logger
}

// NewSweeperService 创建 SweeperService 实例
func NewSweeperService(db *gorm.DB, rdb *redis.Client, interval time.Duration, batchSize int, log *zap.Logger) *SweeperService {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	return &SweeperService{db: db, rdb: rdb, interval: interval, batchSize: batchSize, log: log}
}

// Run 周期运行清理任务，直到 ctx 结束
func (s *SweeperService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepWithLock(ctx)
		}
	}
}

// sweepWithLock 多实例部署时用分布式锁保证同一轮只有一个节点执行
// 抢锁失败直接跳过本轮，清理是幂等的，下一轮补上即可
func (s *SweeperService) sweepWithLock(ctx context.Context) {
	lockToken := uuid.NewString()
	locked, err := s.rdb.SetArgs(ctx, utils.LOCK_SWEEP_KEY, lockToken, redis.SetArgs{
		Mode: "NX",
		TTL:  time.Duration(utils.LOCK_SWEEP_TTL) * time.Second,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		if s.log != nil {
			s.log.Warn("sweep lock failed", zap.Error(err))
		}
		return
	}
	if locked != "OK" {
		return
	}
	defer func() {
		script := redis.NewScript(`
			if redis.call("get", KEYS[1]) == ARGV[1] then
				return redis.call("del", KEYS[1])
			end
			return 0
		`)
		_, _ = script.Run(context.Background(), s.rdb, []string{utils.LOCK_SWEEP_KEY}, lockToken).Result()
	}()

	expired, err := s.SweepOnce(ctx, time.Now())
	if err != nil {
		if s.log != nil {
			s.log.Error("sweep failed", zap.Error(err))
		}
		return
	}
	if expired > 0 && s.log != nil {
		s.log.Info("swept expired claims", zap.Int64("count", expired))
	}
}

// SweepOnce 执行一轮清理，返回置为过期的记录数
// 条件更新只命中仍为 UNUSED 的行，和并发核销竞争时以数据库裁决为准；
// 对已 EXPIRED 的数据重复执行是空操作，天然幂等
func (s *SweeperService) SweepOnce(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for {
		// 先按批取出候选ID，再做条件更新；分批执行避免长事务锁表
		var ids []int64
		err := s.db.WithContext(ctx).Raw(`
			SELECT cr.id
			FROM tb_claim_record cr
			JOIN tb_coupon_template t ON t.id = cr.template_id
			WHERE cr.status = ? AND t.use_end_time < ?
			LIMIT ?`,
			model.ClaimUnused, now, s.batchSize).Scan(&ids).Error
		if err != nil {
			return total, wrapStoreErr("select expirable claims", err)
		}
		if len(ids) == 0 {
			return total, nil
		}
		// 条件更新只命中仍为 UNUSED 的行，被并发核销抢走的行自动跳过
		res := s.db.WithContext(ctx).
			Model(&model.ClaimRecord{}).
			Where("id IN ? AND status = ?", ids, model.ClaimUnused).
			Update("status", model.ClaimExpired)
		if res.Error != nil {
			return total, wrapStoreErr("expire claims", res.Error)
		}
		total += res.RowsAffected
		if len(ids) < s.batchSize {
			return total, nil
		}
	}
}
