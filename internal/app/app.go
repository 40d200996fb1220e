package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/tometh04/maxevagestion-sub002/internal/api/mcp/resources"
	"github.com/tometh04/maxevagestion-sub002/internal/api/mcp/tools"
	envconfig "github.com/tometh04/maxevagestion-sub002/internal/common/config"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/account"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/balance"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/commission"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/currency"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/ledger"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/mcp"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/settlement"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/treasury"
	"github.com/tometh04/maxevagestion-sub002/internal/platform/cache"
	dynamoClient "github.com/tometh04/maxevagestion-sub002/internal/platform/dynamodb/client"
	dynamodbRepository "github.com/tometh04/maxevagestion-sub002/internal/platform/dynamodb/repository"
	"github.com/tometh04/maxevagestion-sub002/internal/platform/lock"
	"github.com/tometh04/maxevagestion-sub002/internal/platform/logging"
	"github.com/tometh04/maxevagestion-sub002/internal/platform/memory"
	"github.com/tometh04/maxevagestion-sub002/internal/platform/metrics"
	"github.com/tometh04/maxevagestion-sub002/internal/platform/postgres"
)

// Version is reported to MCP clients; overridden at build time
var Version = "dev"

// Repositories groups the storage ports the domain services need
type Repositories struct {
	Accounts    account.Repository
	Movements   ledger.Repository
	Rates       currency.Repository
	Payables    settlement.Repository
	Commissions commission.Repository
}

// App holds the wired services of the treasury ledger
type App struct {
	Config *envconfig.Config
	Logger *slog.Logger

	Accounts    *account.Service
	Rates       *currency.Service
	Ledger      *ledger.Store
	Calculator  *balance.Calculator
	Validator   *balance.Validator
	Treasury    *treasury.Service
	Settlements *settlement.Processor
	Commissions *commission.Reconciler
	MCP         *mcp.Service

	Metrics  *metrics.Prometheus
	Registry *prometheus.Registry

	closers []func() error
}

// New builds the application from configuration, opening the configured
// storage, cache and lock backends
func New(ctx context.Context, cfg *envconfig.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if cfg.NeedsSecrets() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		if err := cfg.ResolveSecrets(ctx, envconfig.NewSecretsManagerSource(awsCfg)); err != nil {
			return nil, err
		}
	}

	// The platform layers log through zap, configured from LOG_LEVEL, LOG_FORMAT and LOG_DEV
	zapLogger, err := logging.NewLoggerFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	a.closers = append(a.closers, func() error {
		_ = zapLogger.Sync()
		return nil
	})

	a.Metrics = metrics.NewPrometheus("ledger")
	a.Registry = prometheus.NewRegistry()
	if err := a.Metrics.Register(a.Registry); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	repos, err := a.openStorage(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	balanceCache, err := a.openCache(cfg, zapLogger)
	if err != nil {
		a.Close()
		return nil, err
	}

	locker, err := a.openLocker(ctx, cfg, zapLogger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.wire(repos, balanceCache, locker)
	return a, nil
}

// NewWithRepositories wires the services on caller-supplied storage, with an
// in-memory balance cache and an in-process lock
func NewWithRepositories(cfg *envconfig.Config, logger *slog.Logger, repos Repositories) *App {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics.NewPrometheus("ledger"),
		Registry: prometheus.NewRegistry(),
	}
	_ = a.Metrics.Register(a.Registry)
	a.wire(repos, cache.NewBalanceCache(cache.NewMemoryLayer(""), cfg.BalanceCacheTTL), lock.NewLocalLocker())
	return a
}

func (a *App) wire(repos Repositories, balanceCache balance.Cache, locker treasury.Locker) {
	cfg, logger := a.Config, a.Logger

	a.Rates = currency.NewService(repos.Rates, currency.Config{
		Pair:         cfg.Pair,
		FallbackRate: cfg.FallbackRate,
	}, logger.With("component", "currency"))
	a.Accounts = account.NewService(repos.Accounts, cfg.Pair, logger.With("component", "account"))
	a.Calculator = balance.NewCalculator(repos.Accounts, repos.Movements, a.Rates, balanceCache, logger.With("component", "balance"))
	a.Validator = balance.NewValidator(a.Calculator, a.Rates)
	a.Commissions = commission.NewReconciler(repos.Commissions, logger.With("component", "commission"))
	a.Ledger = ledger.NewStore(repos.Movements, a.Rates, a.Calculator, logger.With("component", "ledger"),
		ledger.WithCommissionReconciler(a.Commissions),
		ledger.WithObserver(a.Metrics),
	)
	a.Treasury = treasury.NewService(a.Accounts, a.Ledger, a.Calculator, a.Validator, a.Rates, locker, logger.With("component", "treasury"))
	a.Settlements = settlement.NewProcessor(repos.Payables, a.Accounts, a.Ledger, a.Validator, a.Rates, locker,
		logger.With("component", "settlement"),
		settlement.WithDefaultCostAccount(cfg.CostAccountID),
		settlement.WithBatchObserver(a.Metrics),
	)

	a.MCP = mcp.NewService(logger, a.handlerRegistry(), mcp.WithObserver(a.Metrics), mcp.WithVersion(Version))
}

func (a *App) handlerRegistry() *mcp.HandlerRegistry {
	registry := mcp.NewHandlerRegistry()

	registry.RegisterTool(tools.NewCreateLedgerMovementTool(a.Treasury))
	registry.RegisterTool(tools.NewRetractLedgerMovementTool(a.Treasury))
	registry.RegisterTool(tools.NewTransferBetweenAccountsTool(a.Treasury))
	registry.RegisterTool(tools.NewInvalidateBalanceCacheTool(a.Treasury))
	registry.RegisterTool(tools.NewGetAccountBalanceTool(a.Calculator))
	registry.RegisterTool(tools.NewGetBalanceBreakdownTool(a.Calculator))
	registry.RegisterTool(tools.NewValidateSufficientBalanceTool(a.Validator))
	registry.RegisterTool(tools.NewResolveExchangeRateTool(a.Rates))
	registry.RegisterTool(tools.NewLatestExchangeRateTool(a.Rates))
	registry.RegisterTool(tools.NewSetExchangeRateTool(a.Rates))
	registry.RegisterTool(tools.NewProcessBulkSettlementTool(a.Settlements))
	registry.RegisterTool(tools.NewCreatePayableTool(a.Settlements))
	registry.RegisterTool(tools.NewGetPayableTool(a.Settlements))
	registry.RegisterTool(tools.NewListFundingAccountsTool(a.Accounts))
	registry.RegisterTool(tools.NewCreateFinancialAccountTool(a.Accounts))
	registry.RegisterTool(tools.NewCreateAccountCategoryTool(a.Accounts))

	registry.RegisterResource(resources.NewAccountsResource(a.Accounts, a.Calculator))
	registry.RegisterResource(resources.NewLatestExchangeRateResource(a.Rates))

	return registry
}

func (a *App) openStorage(ctx context.Context, cfg *envconfig.Config, logger *slog.Logger) (Repositories, error) {
	switch cfg.StorageBackend {
	case envconfig.StorageDynamoDB:
		client, err := dynamoClient.NewDynamoDBClient(ctx, dynamoClient.Options{
			Region:      cfg.AWSRegion,
			Endpoint:    cfg.DynamoDBEndpoint,
			MaxAttempts: cfg.DynamoDBMaxAttempts,
		})
		if err != nil {
			return Repositories{}, fmt.Errorf("failed to initialize DynamoDB client: %w", err)
		}
		factory := dynamodbRepository.NewFactory(client, cfg.DynamoDBTableName, logger.With("component", "dynamodb"))
		return Repositories{
			Accounts:    factory.Accounts(),
			Movements:   factory.Movements(),
			Rates:       factory.ExchangeRates(),
			Payables:    factory.Payables(),
			Commissions: factory.Commissions(),
		}, nil

	case envconfig.StoragePostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN, logger.With("component", "postgres"))
		if err != nil {
			return Repositories{}, err
		}
		a.closers = append(a.closers, store.Close)
		return storeRepositories(store), nil

	case envconfig.StorageMemory:
		logger.Warn("using in-memory storage; data is lost on exit")
		return storeRepositories(memory.NewStore()), nil
	}
	return Repositories{}, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

// allInOne is a store implementing every repository port
type allInOne interface {
	account.Repository
	ledger.Repository
	currency.Repository
	settlement.Repository
	commission.Repository
}

func storeRepositories(store allInOne) Repositories {
	return Repositories{
		Accounts:    store,
		Movements:   store,
		Rates:       store,
		Payables:    store,
		Commissions: store,
	}
}

func (a *App) openCache(cfg *envconfig.Config, logger *logging.Logger) (balance.Cache, error) {
	switch cfg.CacheBackend {
	case envconfig.CacheNone:
		return balance.NopCache{}, nil

	case envconfig.CacheMemory:
		return cache.NewBalanceCache(cache.NewMemoryLayer(""), cfg.BalanceCacheTTL), nil

	case envconfig.CacheRedis:
		redisCfg := cache.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		layer, err := cache.NewRedisLayer(redisCfg)
		if err != nil {
			return nil, err
		}
		resilient := cache.NewResilientLayer(layer, cache.DefaultResilientConfig(), a.Metrics, logger)
		a.closers = append(a.closers, resilient.Close)
		return cache.NewBalanceCache(resilient, cfg.BalanceCacheTTL), nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
}

func (a *App) openLocker(ctx context.Context, cfg *envconfig.Config, logger *logging.Logger) (treasury.Locker, error) {
	if cfg.LockBackend != envconfig.LockRedis {
		return lock.NewLocalLocker(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis for locks: %w", err)
	}
	a.closers = append(a.closers, client.Close)

	opts := lock.DefaultOptions()
	opts.Expiry = cfg.LockExpiry
	return lock.NewRedisLocker(client, opts, logger), nil
}

// Close releases every backend opened by New, last opened first
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
