// Package consumer runs checks requested over the message queue and
// publishes their results.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"solcheck/internal/checker/model"
	"solcheck/internal/checker/service"
	"solcheck/internal/common/mq"
	appErr "solcheck/pkg/errors"
	"solcheck/pkg/utils/contextkey"
	"solcheck/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Checker runs one check.
type Checker interface {
	Check(ctx context.Context, req model.CheckRequest) (model.CheckResult, error)
}

// CheckReply is published to the result topic for every finished message.
// Exactly one of Result and Error is set.
type CheckReply struct {
	CheckID string             `json:"checkId"`
	Result  *model.CheckResult `json:"result,omitempty"`
	Error   *ReplyError        `json:"error,omitempty"`
}

// ReplyError describes a check that could not be run.
type ReplyError struct {
	Code    appErr.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// Config wires a CheckConsumer.
type Config struct {
	Queue   mq.MessageQueue
	Checker Checker
	Intake  *service.Intake

	RequestTopic    string
	ResultTopic     string
	DeadLetterTopic string
	ConsumerGroup   string
	Concurrency     int
	MaxRetries      int
	RetryDelay      time.Duration
	// InFlight bounds fetched but unfinished messages.
	InFlight *mq.TokenLimiter
}

// CheckConsumer turns queue messages into checks.
type CheckConsumer struct {
	queue   mq.MessageQueue
	checker Checker
	intake  *service.Intake
	opts    mq.SubscribeOptions

	requestTopic string
	resultTopic  string
}

// New creates a consumer. Nothing is consumed until Start.
func New(cfg Config) (*CheckConsumer, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("message queue is required")
	}
	if cfg.Checker == nil {
		return nil, fmt.Errorf("checker is required")
	}
	if cfg.Intake == nil {
		return nil, fmt.Errorf("intake is required")
	}
	if cfg.RequestTopic == "" || cfg.ResultTopic == "" {
		return nil, fmt.Errorf("request and result topics are required")
	}
	opts := mq.SubscribeOptions{
		ConsumerGroup:   cfg.ConsumerGroup,
		Concurrency:     cfg.Concurrency,
		MaxRetries:      cfg.MaxRetries,
		RetryDelay:      cfg.RetryDelay,
		DeadLetterTopic: cfg.DeadLetterTopic,
		Limiter:         cfg.InFlight,
	}
	opts.SetDefaults()
	return &CheckConsumer{
		queue:        cfg.Queue,
		checker:      cfg.Checker,
		intake:       cfg.Intake,
		opts:         opts,
		requestTopic: cfg.RequestTopic,
		resultTopic:  cfg.ResultTopic,
	}, nil
}

// Start subscribes to the request topic and starts the queue.
func (c *CheckConsumer) Start(ctx context.Context) error {
	opts := c.opts
	if err := c.queue.Subscribe(ctx, c.requestTopic, c.HandleMessage, &opts); err != nil {
		return appErr.Wrapf(err, appErr.QueueError, "subscribe %s failed", c.requestTopic)
	}
	if err := c.queue.Start(); err != nil {
		return appErr.Wrapf(err, appErr.QueueError, "start consumer failed")
	}
	logger.Info(ctx, "check consumer started",
		zap.String("request_topic", c.requestTopic),
		zap.String("result_topic", c.resultTopic),
		zap.Int("concurrency", c.opts.Concurrency),
	)
	return nil
}

// Stop stops consuming and waits for running checks.
func (c *CheckConsumer) Stop() error {
	return c.queue.Stop()
}

// HandleMessage runs one requested check. Requests that can never succeed are
// answered with an error reply and acknowledged. Server-side failures are
// returned so the queue retries them; the last attempt also sends an error reply.
func (c *CheckConsumer) HandleMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	checkID := msg.ID

	payload, err := service.ParsePayload(msg.Body)
	if err == nil {
		if payload.CheckID == "" {
			payload.CheckID = checkID
		}
		if payload.CheckID == "" {
			payload.CheckID = uuid.NewString()
		}
		checkID = payload.CheckID
	}
	ctx = context.WithValue(ctx, contextkey.CheckID, checkID)
	if err != nil {
		logger.Warn(ctx, "invalid check message", zap.Error(err))
		return c.replyError(ctx, checkID, err)
	}

	req, err := c.intake.Request(ctx, payload)
	if err != nil {
		return c.fail(ctx, msg, checkID, err)
	}
	res, err := c.checker.Check(ctx, req)
	if err != nil {
		return c.fail(ctx, msg, checkID, err)
	}
	return c.publish(ctx, CheckReply{CheckID: checkID, Result: &res})
}

func (c *CheckConsumer) fail(ctx context.Context, msg *mq.Message, checkID string, err error) error {
	if !appErr.Retryable(err) {
		logger.Warn(ctx, "check rejected", zap.Error(err))
		return c.replyError(ctx, checkID, err)
	}
	logger.Error(ctx, "check failed",
		zap.Error(err),
		zap.Int("attempt", msg.RetryCount+1),
		zap.Int("max_retries", msg.MaxRetries),
	)
	if msg.RetryCount >= msg.MaxRetries {
		if perr := c.replyError(ctx, checkID, err); perr != nil {
			logger.Error(ctx, "publish final error reply failed", zap.Error(perr))
		}
	}
	return err
}

func (c *CheckConsumer) replyError(ctx context.Context, checkID string, err error) error {
	e := appErr.GetError(err)
	return c.publish(ctx, CheckReply{
		CheckID: checkID,
		Error:   &ReplyError{Code: e.Code, Message: e.Error()},
	})
}

func (c *CheckConsumer) publish(ctx context.Context, reply CheckReply) error {
	body, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("marshal check reply failed: %w", err)
	}
	if err := c.queue.Publish(ctx, c.resultTopic, mq.NewMessage(reply.CheckID, body)); err != nil {
		return appErr.Wrapf(err, appErr.QueueError, "publish check reply failed")
	}
	return nil
}
