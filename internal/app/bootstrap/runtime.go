package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/ridgeline-site/internal/config"
	"github.com/wolfman30/ridgeline-site/internal/ratelimit"
	"github.com/wolfman30/ridgeline-site/pkg/logging"
)

const memoryJanitorInterval = time.Minute

// AWSConfigLoader resolves the shared AWS SDK configuration on first use.
type AWSConfigLoader func(ctx context.Context) (aws.Config, error)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures are returned.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, verify bool) (*redis.Client, error) {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client, nil
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("bootstrap: redis ping: %w", err)
	}
	return client, nil
}

// BuildRateLimitStore selects the counter store named by RATE_LIMIT_BACKEND.
// The returned cleanup func releases background work and connections.
func BuildRateLimitStore(ctx context.Context, cfg *appconfig.Config, loadAWS AWSConfigLoader, logger *logging.Logger) (ratelimit.Store, func(), error) {
	if logger == nil {
		logger = logging.Default()
	}
	noop := func() {}

	switch cfg.RateLimitBackend {
	case appconfig.RateLimitBackendRedis:
		client, err := BuildRedisClient(ctx, cfg, true)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("rate limit store: redis", "addr", cfg.RedisAddr)
		return ratelimit.NewRedisStore(client), func() { _ = client.Close() }, nil

	case appconfig.RateLimitBackendDynamoDB:
		if loadAWS == nil {
			return nil, noop, fmt.Errorf("bootstrap: dynamodb rate limit store needs AWS config")
		}
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		logger.Info("rate limit store: dynamodb", "table", cfg.RateLimitTable)
		return ratelimit.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.RateLimitTable), noop, nil

	default:
		store := ratelimit.NewMemoryStore()
		janitorCtx, cancel := context.WithCancel(context.Background())
		store.StartJanitor(janitorCtx, memoryJanitorInterval)
		logger.Info("rate limit store: in-process memory; counts are per instance")
		return store, cancel, nil
	}
}
