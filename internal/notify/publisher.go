package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/pkg/errors"
	"github.com/eidos-exchange/eidos-whalesync/pkg/logger"
)

// EmailMessage 邮件通知消息体
type EmailMessage struct {
	MessageID      string          `json:"messageId"`
	NotificationID int64           `json:"notificationId"`
	UserID         int64           `json:"userId"`
	AlertID        *int64          `json:"alertId,omitempty"`
	ActivityID     *int64          `json:"activityId,omitempty"`
	Type           model.AlertType `json:"type"`
	To             string          `json:"to"`
	Content        string          `json:"content"`
	CreatedAt      int64           `json:"createdAt"`
}

// Publisher 通过同步生产者投递邮件通知
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

// NewPublisher 连接 Kafka 并创建投递器
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.Wrapf(errors.ErrConfiguration, "kafka brokers is required")
	}
	sc, err := buildSaramaConfig(cfg)
	if err != nil {
		return nil, errors.WrapWithCause(errors.ErrConfiguration, err, "kafka config")
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, errors.WrapWithCause(errors.ErrDispatch, err, "create sync producer")
	}
	logger.Info("kafka publisher created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.Bool("idempotent", cfg.Idempotent))
	return NewPublisherWithProducer(producer, cfg.Topic), nil
}

// NewPublisherWithProducer 使用已有生产者创建投递器
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		log:      logger.Named("notify"),
	}
}

// DispatchEmail 投递一条 pending 邮件通知, 以用户ID作为分区键
func (p *Publisher) DispatchEmail(ctx context.Context, n *model.Notification, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapWithCause(errors.ErrCanceled, err, "dispatch notification %d", n.ID)
	}
	if user.Email == nil || *user.Email == "" {
		return errors.Wrapf(errors.ErrDispatch, "user %d has no email", user.ID)
	}

	msg := EmailMessage{
		MessageID:      uuid.NewString(),
		NotificationID: n.ID,
		UserID:         n.UserID,
		AlertID:        n.AlertID,
		ActivityID:     n.ActivityID,
		Type:           n.Type,
		To:             *user.Email,
		Content:        n.Content,
		CreatedAt:      n.SentAt,
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return errors.WrapWithCause(errors.ErrDispatch, err, "encode notification %d", n.ID)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(n.UserID, 10)),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("message-id"), Value: []byte(msg.MessageID)},
			{Key: []byte("content-type"), Value: []byte("application/json")},
		},
		Timestamp: time.UnixMilli(n.SentAt),
	})
	if err != nil {
		return errors.WrapWithCause(errors.ErrDispatch, err, "send notification %d", n.ID)
	}

	p.log.Debug("email notification published",
		zap.Int64("notification_id", n.ID),
		zap.String("message_id", msg.MessageID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Close 关闭生产者
func (p *Publisher) Close() error {
	return p.producer.Close()
}
