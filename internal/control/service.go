// Package control assembles the application: storage, chain gateways,
// signer, claim preparation, reconciliation and the HTTP server.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pressly/goose/v3"

	"github.com/claimgate/claimgate/internal/api"
	"github.com/claimgate/claimgate/internal/claims/lock"
	"github.com/claimgate/claimgate/internal/claims/prepare"
	"github.com/claimgate/claimgate/internal/claims/signer"
	"github.com/claimgate/claimgate/internal/core/config"
	"github.com/claimgate/claimgate/internal/infra/chain"
	"github.com/claimgate/claimgate/internal/infra/chain/evm"
	redisclient "github.com/claimgate/claimgate/internal/infra/redis"
	"github.com/claimgate/claimgate/internal/infra/rpc"
	"github.com/claimgate/claimgate/internal/infra/storage/postgres"
	"github.com/claimgate/claimgate/internal/reconcile"
	"github.com/claimgate/claimgate/migrations"
)

// Service is the composed application.
type Service struct {
	cfg         *config.AppConfig
	db          *postgres.DB
	redisClient *redisclient.Client
	rpcClients  []*rpc.Client
	apiServer   *api.Server
	pollers     []*reconcile.Poller
	sweeper     *reconcile.Sweeper
	cancel      context.CancelFunc
	done        chan struct{}
	log         *slog.Logger
}

// NewService wires all dependencies from configuration.
func NewService(cfg *config.AppConfig) (*Service, error) {
	log := slog.Default()

	// 1. Storage
	db, err := postgres.NewDB(context.Background(), cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, err
	}
	goose.SetBaseFS(migrations.FS)
	if err := goose.Up(db.DB.DB, "."); err != nil {
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}
	store := postgres.NewStore(db)

	// 2. Locking. Redis when configured, in-process otherwise.
	var (
		locks       lock.Locker
		redisClient *redisclient.Client
	)
	if cfg.Redis.URL != "" {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		locks = lock.NewRedisLocker(redisClient)
		log.Info("Using Redis locking")
	} else {
		locks = lock.NewKeyedMutex()
		log.Info("Using in-process locking, single instance only")
	}

	// 3. Signer
	keySigner, err := signer.NewKeySigner(cfg.Signer.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to init signer: %w", err)
	}
	log.Info("Signer initialized", "address", keySigner.Address().Hex())

	// 4. Chain gateways
	gateways := make(map[int64]chain.Gateway, len(cfg.Chains))
	var rpcClients []*rpc.Client
	var chainIDs []int64
	pipeline := reconcile.NewPipeline(store, locks)
	var pollers []*reconcile.Poller

	for _, chainCfg := range cfg.Chains {
		if !common.IsHexAddress(chainCfg.Contract) {
			return nil, fmt.Errorf("chain %d: invalid contract address %q", chainCfg.ChainID, chainCfg.Contract)
		}
		client := rpc.NewClient(chainCfg.Name, chainCfg.RPCURL, 10*time.Second)
		rpcClients = append(rpcClients, client)

		gw := evm.NewGateway(chainCfg.ChainID, common.HexToAddress(chainCfg.Contract), client)
		gateways[chainCfg.ChainID] = gw
		chainIDs = append(chainIDs, chainCfg.ChainID)

		pollers = append(pollers, reconcile.NewPoller(reconcile.PollerConfig{
			ChainID:       chainCfg.ChainID,
			StartBlock:    chainCfg.StartBlock,
			Confirmations: chainCfg.Confirmations,
			PollInterval:  chainCfg.PollInterval,
			ChunkSize:     chainCfg.ChunkSize,
		}, gw, pipeline, store))
	}

	// 5. Claim preparation and sweeper
	prepareSvc := prepare.NewService(store, gateways, keySigner, locks)

	sweeper := reconcile.NewSweeper(reconcile.SweeperConfig{
		SweepInterval: cfg.Reconciler.SweepInterval,
		BatchSize:     cfg.Reconciler.BatchSize,
		BaseDelay:     cfg.Reconciler.BaseDelay,
		MaxAttempts:   cfg.Reconciler.MaxAttempts,
		ChainIDs:      chainIDs,
	}, store, pipeline)

	// 6. HTTP server
	checkers := map[string]api.HealthChecker{
		"postgres": healthFunc(db.Health),
	}
	if redisClient != nil {
		checkers["redis"] = healthFunc(redisClient.Health)
	}
	apiServer := api.NewServer(cfg.Server.Port, prepareSvc, checkers)

	return &Service{
		cfg:         cfg,
		db:          db,
		redisClient: redisClient,
		rpcClients:  rpcClients,
		apiServer:   apiServer,
		pollers:     pollers,
		sweeper:     sweeper,
		done:        make(chan struct{}),
		log:         log,
	}, nil
}

// Start launches the HTTP server and background loops.
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.apiServer.Start()

	for _, p := range s.pollers {
		go func(p *reconcile.Poller) {
			if err := p.Run(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("Poller failed", "error", err)
			}
		}(p)
	}

	go func() {
		defer close(s.done)
		if err := s.sweeper.Run(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("Sweeper failed", "error", err)
		}
	}()

	return nil
}

// Stop shuts down in dependency order: HTTP first so no new work arrives,
// then background loops, then connections.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping service...")

	err := s.apiServer.Stop(ctx)

	if s.cancel != nil {
		s.cancel()
	}
	select {
	case <-s.done:
	case <-ctx.Done():
	}

	for _, c := range s.rpcClients {
		_ = c.Close()
	}
	if s.redisClient != nil {
		if cerr := s.redisClient.Close(); cerr != nil {
			s.log.Warn("Failed to close Redis", "error", cerr)
		}
	}
	if cerr := s.db.Close(); cerr != nil {
		s.log.Warn("Failed to close DB", "error", cerr)
	}
	return err
}

// healthFunc adapts a method value to the api.HealthChecker interface.
type healthFunc func(ctx context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }
