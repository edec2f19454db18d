package service

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"coupon-backend/internal/utils"
)

// Registry 聚合全部业务 Service，方便注入 handler
type Registry struct {
	Template *TemplateService
	Claim    *ClaimService
	Redeem   *RedeemService
	Sweeper  *SweeperService
	Notifier *Notifier
}

// RegistryOptions 注册中心的外部依赖
type RegistryOptions struct {
	KafkaWriter      *kafka.Writer
	KafkaRetryWriter *kafka.Writer
	KafkaDLQWriter   *kafka.Writer
	KafkaReader      *kafka.Reader
	KafkaRetryReader *kafka.Reader
	KafkaDLQReader   *kafka.Reader
	SMTP             utils.SMTPConfig
	SweepInterval    time.Duration
	SweepBatchSize   int
}

// NewRegistry 构造服务注册中心
func NewRegistry(db *gorm.DB, rdb *redis.Client, opts RegistryOptions, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	notifier := NewNotifier(
		opts.KafkaWriter,
		opts.KafkaRetryWriter,
		opts.KafkaDLQWriter,
		opts.KafkaReader,
		opts.KafkaRetryReader,
		opts.KafkaDLQReader,
		opts.SMTP,
		log,
	)
	templateSvc := NewTemplateService(db, rdb, log)
	return &Registry{
		Template: templateSvc,
		Claim:    NewClaimService(db, rdb, notifier, log),
		Redeem:   NewRedeemService(db, templateSvc, notifier, log),
		Sweeper:  NewSweeperService(db, rdb, opts.SweepInterval, opts.SweepBatchSize, log),
		Notifier: notifier,
	}
}
