package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
	"philcali.me/reviews/internal/config"
	applicationData "philcali.me/reviews/internal/dynamodb/applications"
	artifactData "philcali.me/reviews/internal/dynamodb/artifacts"
	auditData "philcali.me/reviews/internal/dynamodb/audits"
	profileData "philcali.me/reviews/internal/dynamodb/profiles"
	programData "philcali.me/reviews/internal/dynamodb/programs"
	shareData "philcali.me/reviews/internal/dynamodb/shares"
	subscriberData "philcali.me/reviews/internal/dynamodb/subscriptions"
	"philcali.me/reviews/internal/dynamodb/token"
	"philcali.me/reviews/internal/logging"
	"philcali.me/reviews/internal/projection"
	"philcali.me/reviews/internal/registry"
	"philcali.me/reviews/internal/routes"
	"philcali.me/reviews/internal/routes/audits"
	"philcali.me/reviews/internal/routes/shares"
	"philcali.me/reviews/internal/routes/subscriptions"
	"philcali.me/reviews/internal/sns/services"
)

type App struct {
	Router *routes.Router
	Logger *zap.Logger
}

func NewApp(ctx context.Context) (*App, error) {
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

	store := shareData.NewShareService(cfg.TableName, client, marshaler, cfg.ReviewerIndex, cfg.SubmitterIndex)
	shareRegistry := registry.New(store,
		registry.WithLogger(logger),
		registry.WithUpdateAttempts(cfg.UpdateAttempts))
	assembler := projection.NewAssembler(
		artifactData.NewArtifactService(cfg.TableName, client, marshaler),
		profileData.NewProfileService(cfg.TableName, client, marshaler),
		applicationData.NewApplicationService(cfg.TableName, client, marshaler),
		programData.NewProgramService(cfg.TableName, client, marshaler),
		logger)

	router := routes.NewRouter(
		logger,
		shares.NewRoute(shareRegistry, projection.NewLoader(shareRegistry, assembler)),
		audits.NewRoute(auditData.NewAuditService(cfg.TableName, client, marshaler)),
		subscriptions.NewRoute(
			subscriberData.NewSubscriptionService(cfg.TableName, client, marshaler),
			services.NewNotificationService(sns.NewFromConfig(awsCfg), cfg.TopicArn),
		),
	)
	return &App{
		Router: router,
		Logger: logger,
	}, nil
}

func (app *App) HandleRequest(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return app.Router.Invoke(request, ctx), nil
}

func main() {
	app, err := NewApp(context.Background())
	if err != nil {
		panic(fmt.Sprintf("Failed to start: %s", err))
	}
	defer app.Logger.Sync()
	lambda.Start(app.HandleRequest)
}
