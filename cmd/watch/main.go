// Command watch keeps a live, projected list of one party's shares and logs
// every change to it. With WATCH_MARK_VIEWED a reviewer's pending shares are
// marked viewed as they arrive.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"philcali.me/reviews/internal/bus"
	"philcali.me/reviews/internal/cache"
	"philcali.me/reviews/internal/config"
	"philcali.me/reviews/internal/data"
	applicationData "philcali.me/reviews/internal/dynamodb/applications"
	artifactData "philcali.me/reviews/internal/dynamodb/artifacts"
	profileData "philcali.me/reviews/internal/dynamodb/profiles"
	programData "philcali.me/reviews/internal/dynamodb/programs"
	shareData "philcali.me/reviews/internal/dynamodb/shares"
	"philcali.me/reviews/internal/dynamodb/streams"
	"philcali.me/reviews/internal/dynamodb/token"
	"philcali.me/reviews/internal/logging"
	"philcali.me/reviews/internal/projection"
	"philcali.me/reviews/internal/registry"
	"philcali.me/reviews/internal/status"
)

type WatchConfig struct {
	Party      string `env:"WATCH_PARTY,required"`
	Role       string `env:"WATCH_ROLE" envDefault:"reviewer"`
	MarkViewed bool   `env:"WATCH_MARK_VIEWED" envDefault:"false"`
}

func (w WatchConfig) Scope() (data.Scope, error) {
	switch w.Role {
	case "reviewer":
		return data.ReviewerScope(w.Party), nil
	case "submitter":
		return data.SubmitterScope(w.Party), nil
	}
	return data.Scope{}, fmt.Errorf("unknown WATCH_ROLE %q", w.Role)
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	watch, err := env.ParseAs[WatchConfig]()
	if err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	scope, err := watch.Scope()
	if err != nil {
		return err
	}
	if cfg.StreamArn == "" {
		return fmt.Errorf("STREAM_ARN is required to watch shares")
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogProduction)
	if err != nil {
		return err
	}
	defer logger.Sync()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg)
	marshaler := token.NewGCM(cfg.TokenSecret)

	feed := streams.NewFeed(dynamodbstreams.NewFromConfig(awsCfg), cfg.StreamArn, cfg.StreamPollInterval, logger)
	changes := bus.New(feed,
		bus.WithLogger(logger),
		bus.WithBackOff(cfg.StreamPollInterval, cfg.ResubscribeMaxInterval))
	defer changes.Close()

	store := shareData.NewShareService(cfg.TableName, client, marshaler, cfg.ReviewerIndex, cfg.SubmitterIndex)
	shareRegistry := registry.New(store,
		registry.WithNotifier(changes),
		registry.WithLogger(logger),
		registry.WithUpdateAttempts(cfg.UpdateAttempts))
	assembler := projection.NewAssembler(
		artifactData.NewArtifactService(cfg.TableName, client, marshaler),
		profileData.NewProfileService(cfg.TableName, client, marshaler),
		applicationData.NewApplicationService(cfg.TableName, client, marshaler),
		programData.NewProgramService(cfg.TableName, client, marshaler),
		logger)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return changes.Run(ctx)
	})

	snapshots := make(chan []data.ProjectedShare, 1)
	shares, err := cache.New(ctx,
		projection.NewLoader(shareRegistry, assembler),
		shareRegistry,
		changes,
		scope,
		watch.Party,
		cache.WithLogger(logger),
		cache.WithOnChange(func(items []data.ProjectedShare) {
			for {
				select {
				case snapshots <- items:
					return
				default:
				}
				select {
				case <-snapshots:
				default:
				}
			}
		}))
	if err != nil {
		return fmt.Errorf("initial load for %s: %w", scope, err)
	}
	defer shares.Close()

	group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case items := <-snapshots:
				report(logger, scope, items)
				if watch.MarkViewed && watch.Role == "reviewer" {
					markViewed(ctx, logger, shares, items)
				}
			}
		}
	})
	return group.Wait()
}

func report(logger *zap.Logger, scope data.Scope, items []data.ProjectedShare) {
	counts := make(map[status.Status]int, len(status.All()))
	for _, item := range items {
		counts[item.Share.Status]++
	}
	fields := []zap.Field{
		zap.Stringer("scope", scope),
		zap.Int("total", len(items)),
	}
	for _, s := range status.All() {
		fields = append(fields, zap.Int(string(s), counts[s]))
	}
	logger.Info("Shares changed", fields...)
}

func markViewed(ctx context.Context, logger *zap.Logger, shares *cache.Cache, items []data.ProjectedShare) {
	for _, item := range items {
		if item.Share.Status != status.PENDING {
			continue
		}
		if _, err := shares.ApplyOptimisticStatusUpdate(ctx, item.Share.Id, status.VIEWED, nil); err != nil {
			logger.Warn("Failed to mark share viewed",
				zap.String("shareId", item.Share.Id),
				zap.Error(err))
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
