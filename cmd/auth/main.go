package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"philcali.me/reviews/internal/auth"
	"philcali.me/reviews/internal/config"
	"philcali.me/reviews/internal/dynamodb/apitokens"
	"philcali.me/reviews/internal/dynamodb/token"
	"philcali.me/reviews/internal/logging"
)

func main() {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogProduction)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		panic(fmt.Sprintf("Failed to load AWS config: %s", err))
	}
	tokens := apitokens.NewApiTokenService(cfg.TableName, dynamodb.NewFromConfig(awsCfg), token.NewGCM(cfg.TokenSecret))
	authorizer := auth.NewAuthorizer(tokens, cfg.AuthPoolURL, logger)
	lambda.Start(authorizer.Authorize)
}
