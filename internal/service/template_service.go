package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"coupon-backend/internal/model"
	"coupon-backend/internal/utils"
)

const lockRetryDelay = 50 * time.Millisecond // 拿不到互斥锁时的短暂休眠时间，避免热点击穿
const defaultLocalTemplateCacheTTL = 30 * time.Second

// TemplateService 优惠券模板目录：模板的创建、查询与上下架
type TemplateService struct {
	db         *gorm.DB
	rdb        *redis.Client
	log        *zap.Logger
	localCache *bigcache.BigCache
}

// NewTemplateService 创建 TemplateService 实例
func NewTemplateService(db *gorm.DB, rdb *redis.Client, log *zap.Logger) *TemplateService {
	cache := initTemplateLocalCache(log)
	return &TemplateService{db: db, rdb: rdb, log: log, localCache: cache}
}

// Create 创建优惠券模板，剩余库存初始化为总库存
func (s *TemplateService) Create(ctx context.Context, tpl *model.CouponTemplate) error {
	if err := tpl.Validate(); err != nil {
		return &BizError{Kind: KindPreconditionFailed, Msg: err.Error()}
	}
	if tpl.Status == 0 {
		tpl.Status = model.TemplateEnabled
	}
	tpl.RemainingStock = tpl.TotalStock
	if err := s.db.WithContext(ctx).Create(tpl).Error; err != nil {
		return wrapStoreErr("create template", err)
	}
	return nil
}

// GetByID 查询模板信息 - 本地缓存 → Redis → 数据库，互斥锁解决缓存击穿
// 读接口使用；领券链路直接读库拿最新数据，见 ClaimService
func (s *TemplateService) GetByID(ctx context.Context, id int64) (*model.CouponTemplate, error) {
	key := utils.CACHE_TEMPLATE_KEY + strconv.FormatInt(id, 10)
	lockKey := utils.LOCK_TEMPLATE_KEY + strconv.FormatInt(id, 10)

	if tpl, ok := s.getLocalTemplate(key); ok {
		return tpl, nil
	}

	for {
		// 1.从 Redis 查询模板缓存
		cached, err := s.rdb.Get(ctx, key).Result()
		if err == nil {
			var tpl model.CouponTemplate
			if unmarshalErr := json.Unmarshal([]byte(cached), &tpl); unmarshalErr != nil {
				return nil, unmarshalErr
			}
			s.setLocalTemplate(key, []byte(cached))
			return &tpl, nil
		}
		if !errors.Is(err, redis.Nil) {
			return nil, wrapStoreErr("get template cache", err)
		}

		// 2.缓存未命中，尝试获取互斥锁；失败则短暂休眠后重试
		locked, lockErr := s.tryLock(ctx, lockKey)
		if lockErr != nil {
			return nil, wrapStoreErr("lock template cache", lockErr)
		}
		if !locked {
			time.Sleep(lockRetryDelay)
			continue
		}
		// DoubleCheck：拿到锁后再查一次缓存，其他协程可能已经回填
		cached, err = s.rdb.Get(ctx, key).Result()
		if err == nil {
			var tpl model.CouponTemplate
			if unmarshalErr := json.Unmarshal([]byte(cached), &tpl); unmarshalErr != nil {
				_ = s.unlock(ctx, lockKey)
				return nil, unmarshalErr
			}
			s.setLocalTemplate(key, []byte(cached))
			_ = s.unlock(ctx, lockKey)
			return &tpl, nil
		}
		if !errors.Is(err, redis.Nil) {
			_ = s.unlock(ctx, lockKey)
			return nil, wrapStoreErr("get template cache", err)
		}

		// 3.查询数据库并回填缓存，最后释放互斥锁
		tpl, loadErr := s.loadTemplateAndCache(ctx, id, key)
		_ = s.unlock(ctx, lockKey)
		return tpl, loadErr
	}
}

// QueryByShop 查询某门店可用的模板：门店专属 + 商户全店通用
func (s *TemplateService) QueryByShop(ctx context.Context, shopID int64) ([]model.CouponTemplate, error) {
	var tpls []model.CouponTemplate
	err := s.db.WithContext(ctx).
		Where("(shop_id = ? OR shop_id IS NULL) AND status = ?", shopID, model.TemplateEnabled).
		Order("id ASC").
		Find(&tpls).Error
	if err != nil {
		return nil, wrapStoreErr("query templates of shop", err)
	}
	return tpls, nil
}

// SetStatus 商户上下架模板，仅允许 ENABLED / DISABLED
// ENDED 由读路径懒惰观察（EffectiveStatus），不允许手工设置；模板不提供删除
func (s *TemplateService) SetStatus(ctx context.Context, id int64, status model.TemplateStatus) error {
	if status != model.TemplateEnabled && status != model.TemplateDisabled {
		return &BizError{Kind: KindPreconditionFailed, Msg: "status must be enabled or disabled"}
	}
	key := utils.CACHE_TEMPLATE_KEY + strconv.FormatInt(id, 10)
	// 先更新数据库再删缓存，保证缓存与库的一致性
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.CouponTemplate{}).
			Where("id = ? AND status <> ?", id, model.TemplateEnded).
			Update("status", status)
		if res.Error != nil {
			return wrapStoreErr("update template status", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrTemplateNotFound
		}
		if err := s.rdb.Del(ctx, key).Err(); err != nil {
			return wrapStoreErr("invalidate template cache", err)
		}
		s.deleteLocalTemplate(key)
		return nil
	})
}

// loadTemplateAndCache 查询数据库并将结果写入 Redis，配合互斥锁使用
func (s *TemplateService) loadTemplateAndCache(ctx context.Context, id int64, key string) (*model.CouponTemplate, error) {
	var tpl model.CouponTemplate
	err := s.db.WithContext(ctx).First(&tpl, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, wrapStoreErr("query template", err)
	}

	data, err := json.Marshal(&tpl)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, key, data, time.Duration(utils.CACHE_TEMPLATE_TTL)*time.Minute).Err(); err != nil {
		return nil, wrapStoreErr("set template cache", err)
	}
	s.setLocalTemplate(key, data)
	return &tpl, nil
}

// tryLock 尝试获取互斥锁，SETNX + TTL 防止死锁
func (s *TemplateService) tryLock(ctx context.Context, key string) (bool, error) {
	return s.rdb.SetNX(ctx, key, "1", time.Duration(utils.LOCK_TEMPLATE_TTL)*time.Second).Result()
}

// unlock 释放锁
func (s *TemplateService) unlock(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// initTemplateLocalCache 初始化本地缓存
func initTemplateLocalCache(log *zap.Logger) *bigcache.BigCache {
	ttl := localTemplateCacheTTL()
	config := bigcache.DefaultConfig(ttl)
	if ttl > 0 {
		// 清理窗口设为 TTL 的一半，降低过期键清理的抖动
		config.CleanWindow = ttl / 2
	}
	cache, err := bigcache.New(context.Background(), config)
	if err != nil {
		if log != nil {
			log.Warn("init template local cache failed", zap.Error(err))
		}
		return nil
	}
	return cache
}

// localTemplateCacheTTL 本地缓存 TTL，支持通过环境变量覆盖
func localTemplateCacheTTL() time.Duration {
	if raw := os.Getenv("TEMPLATE_LOCAL_CACHE_TTL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return defaultLocalTemplateCacheTTL
}

func (s *TemplateService) getLocalTemplate(key string) (*model.CouponTemplate, bool) {
	if s.localCache == nil {
		return nil, false
	}
	data, err := s.localCache.Get(key)
	if err != nil {
		return nil, false
	}
	var tpl model.CouponTemplate
	if unmarshalErr := json.Unmarshal(data, &tpl); unmarshalErr != nil {
		s.localCache.Delete(key)
		return nil, false
	}
	return &tpl, true
}

func (s *TemplateService) setLocalTemplate(key string, data []byte) {
	if s.localCache == nil || len(data) == 0 {
		return
	}
	_ = s.localCache.Set(key, data)
}

func (s *TemplateService) deleteLocalTemplate(key string) {
	if s.localCache == nil {
		return
	}
	s.localCache.Delete(key)
}
