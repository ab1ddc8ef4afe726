package main

import (
	"context"
	"fmt"

	lambdaEvents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
	"philcali.me/reviews/internal/config"
	"philcali.me/reviews/internal/dynamodb/audits"
	"philcali.me/reviews/internal/dynamodb/token"
	"philcali.me/reviews/internal/events"
	"philcali.me/reviews/internal/logging"
	"philcali.me/reviews/internal/sns/services"
)

type Handler struct {
	Handlers []events.EventFilter
	Logger   *zap.Logger
}

func NewHandler(ctx context.Context) (*Handler, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogProduction)
	if err != nil {
		return nil, err
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg)
	marshaler := token.NewGCM(cfg.TokenSecret)
	handlers := []events.EventFilter{
		events.DefaultAuditHandler(audits.NewAuditService(cfg.TableName, client, marshaler)),
	}
	if cfg.TopicArn != "" {
		handlers = append(handlers, events.DefaultInvalidationHandler(
			services.NewNotificationService(sns.NewFromConfig(awsCfg), cfg.TopicArn)))
	}
	return &Handler{
		Handlers: handlers,
		Logger:   logger,
	}, nil
}

func (h *Handler) HandleRequest(ctx context.Context, event lambdaEvents.DynamoDBEvent) error {
	h.Logger.Debug("Received stream batch", zap.Int("records", len(event.Records)))
	return events.Dispatch(ctx, h.Logger, h.Handlers, event.Records)
}

func main() {
	handler, err := NewHandler(context.Background())
	if err != nil {
		panic(fmt.Sprintf("Failed to start: %s", err))
	}
	defer handler.Logger.Sync()
	lambda.Start(handler.HandleRequest)
}
