package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"coupon-backend/internal/utils"
)

// EventKind 通知事件类型
type EventKind string

const (
	EventClaimed  EventKind = "coupon.claimed"
	EventRedeemed EventKind = "coupon.redeemed"
)

// NotifyEvent 投递到 Kafka 的通知消息体
type NotifyEvent struct {
	UserID    int64     `json:"userId"`
	Event     EventKind `json:"event"`
	RefID     int64     `json:"refId"` // 领取记录ID
	Timestamp time.Time `json:"timestamp"`
}

// Notifier 领取/核销成功后的通知管道：主题 → 重试主题 → 死信主题
// 通知是尽力而为的旁路，任何失败都不影响已提交的领取或核销
type Notifier struct {
	writer      *kafka.Writer
	retryWriter *kafka.Writer
	dlqWriter   *kafka.Writer
	reader      *kafka.Reader
	retryReader *kafka.Reader
	dlqReader   *kafka.Reader
	smtpCfg     utils.SMTPConfig
	log         *zap.Logger
}

// NewNotifier 创建 Notifier 实例
func NewNotifier(
	writer *kafka.Writer,
	retryWriter *kafka.Writer,
	dlqWriter *kafka.Writer,
	reader *kafka.Reader,
	retryReader *kafka.Reader,
	dlqReader *kafka.Reader,
	smtpCfg utils.SMTPConfig,
	log *zap.Logger,
) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		writer:      writer,
		retryWriter: retryWriter,
		dlqWriter:   dlqWriter,
		reader:      reader,
		retryReader: retryReader,
		dlqReader:   dlqReader,
		smtpCfg:     smtpCfg,
		log:         log,
	}
}

// Notify 在业务提交成功之后调用，异步投递事件
// 投递失败只记日志，绝不向调用方传播，更不回滚业务
func (n *Notifier) Notify(ctx context.Context, userID int64, event EventKind, refID int64) {
	if n.writer == nil {
		return
	}
	evt := NotifyEvent{
		UserID:    userID,
		Event:     event,
		RefID:     refID,
		Timestamp: time.Now(),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		n.log.Error("marshal notify event", zap.Error(err))
		return
	}
	go func() {
		// 与请求上下文解耦，请求返回后投递继续完成
		writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		msg := kafka.Message{
			Key:   []byte(strconv.FormatInt(userID, 10)),
			Value: payload,
		}
		if err := n.writer.WriteMessages(writeCtx, msg); err != nil {
			n.log.Warn("notify publish failed",
				zap.String("event", string(event)),
				zap.Int64("userId", userID),
				zap.Error(err))
		}
	}()
}

// StartConsumers 启动主/重试/死信三个消费循环，ctx 结束时退出
func (n *Notifier) StartConsumers(ctx context.Context) {
	if n.reader != nil {
		go n.consumeLoop(ctx, n.reader, n.retryWriter, "main")
	}
	if n.retryReader != nil {
		go n.consumeLoop(ctx, n.retryReader, n.dlqWriter, "retry")
	}
	if n.dlqReader != nil {
		go n.consumeDLQ(ctx)
	}
}

// consumeLoop 消费通知并发送邮件；处理失败转投下一级主题后再提交 offset
// 手动提交保证至少一次语义，邮件重复发送可以接受
func (n *Notifier) consumeLoop(ctx context.Context, reader *kafka.Reader, failover *kafka.Writer, stage string) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			n.log.Warn("fetch notify message", zap.String("stage", stage), zap.Error(err))
			continue
		}
		if err := n.deliver(msg.Value); err != nil {
			n.log.Warn("deliver notification failed",
				zap.String("stage", stage), zap.Error(err))
			if failover != nil {
				if ferr := failover.WriteMessages(ctx, kafka.Message{Key: msg.Key, Value: msg.Value}); ferr != nil {
					n.log.Error("failover publish failed",
						zap.String("stage", stage), zap.Error(ferr))
				}
			}
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			n.log.Warn("commit notify offset", zap.String("stage", stage), zap.Error(err))
		}
	}
}

// consumeDLQ 死信只做审计与告警日志，不再尝试投递
func (n *Notifier) consumeDLQ(ctx context.Context) {
	for {
		msg, err := n.dlqReader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			n.log.Warn("fetch dlq message", zap.Error(err))
			continue
		}
		n.log.Error("notification dead-lettered", zap.ByteString("payload", msg.Value))
		if err := n.dlqReader.CommitMessages(ctx, msg); err != nil {
			n.log.Warn("commit dlq offset", zap.Error(err))
		}
	}
}

// deliver 将事件渲染为邮件并通过 SMTP 发送
func (n *Notifier) deliver(payload []byte) error {
	var evt NotifyEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		// 消息体损坏没有重试价值，记日志后当成功处理
		n.log.Error("bad notify payload", zap.ByteString("payload", payload), zap.Error(err))
		return nil
	}
	var subject, body string
	switch evt.Event {
	case EventClaimed:
		subject = "优惠券领取成功"
		body = fmt.Sprintf("用户 %d 领取成功，记录ID %d，时间 %s", evt.UserID, evt.RefID, evt.Timestamp.Format(time.RFC3339))
	case EventRedeemed:
		subject = "优惠券核销成功"
		body = fmt.Sprintf("用户 %d 的券已核销，记录ID %d，时间 %s", evt.UserID, evt.RefID, evt.Timestamp.Format(time.RFC3339))
	default:
		n.log.Warn("unknown notify event", zap.String("event", string(evt.Event)))
		return nil
	}
	return utils.SendEmail(n.smtpCfg, subject, body)
}
