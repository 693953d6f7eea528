package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/adapters"
	"github.com/elys-network/joint/internal/adapters/evm"
	"github.com/elys-network/joint/internal/adapters/paper"
	"github.com/elys-network/joint/internal/config"
	"github.com/elys-network/joint/internal/factory"
	"github.com/elys-network/joint/internal/joint"
	"github.com/elys-network/joint/internal/keeper"
	"github.com/elys-network/joint/internal/lock"
	"github.com/elys-network/joint/internal/logger"
	"github.com/elys-network/joint/internal/state"
	"github.com/elys-network/joint/internal/types"
	"github.com/elys-network/joint/internal/wallet"
	"github.com/elys-network/joint/internal/web"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	// paperLockKey serializes every paper instance because they share one simulated venue.
	paperLockKey = "paper-venue"
	jobTimeout   = 5 * time.Minute
	shutdownWait = 30 * time.Second
)

// main is the entry point of the joint keeper.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(config.LogLevel, config.LogFormat)
	log.Info().Str("mode", config.Mode).Msg("Joint keeper starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	specs, err := config.LoadInstances(config.InstancesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load instance definitions")
	}

	// --- 2. Storage and locking ---
	store, err := openStore()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer state.CloseDB()
	defer store.Close()

	var locker lock.Locker
	if config.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", config.RedisAddr).Msg("Failed to reach redis")
		}
		locker, err = lock.NewRedisLocker(client, config.LockTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create redis locker")
		}
		log.Info().Str("addr", config.RedisAddr).Dur("ttl", config.LockTTL).Msg("Using redis operation lock")
	}

	// --- 3. Venue binding (with Safety Switch) ---
	factoryCfg := factory.Config{Store: store, Locker: locker}
	if config.Mode == config.ModeLive {
		log.Warn().Msg("Initializing keeper in LIVE mode. Real transactions will be broadcast.")
		bind, closeChain, err := liveBinder(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize live venue")
		}
		defer closeChain()
		factoryCfg.Bind = bind
	} else {
		log.Warn().Msg("Initializing keeper in PAPER mode. No transaction leaves the process.")
		venue, err := seedPaperVenue(specs)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to seed paper venue")
		}
		factoryCfg.Bind = func(inst types.Instance) (adapters.Venue, error) { return venue.Bind(inst), nil }
		factoryCfg.LockKey = paperLockKey
	}

	f, err := factory.New(factoryCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create instance factory")
	}

	joints, err := openInstances(ctx, f, factoryCfg.Bind, specs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open instances")
	}

	// --- 4. Keeper ---
	k, err := keeper.NewKeeper(keeper.Config{Joints: joints, ReturnFunds: config.EpochReturnFunds})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create keeper")
	}

	// --- 5. Start Web Server ---
	webServer, err := web.NewWebServer(web.Config{
		Port:    config.WebPort,
		Store:   store,
		Factory: f,
		Joints:  joints,
		APIKeys: config.APIKeys,
		OnClone: k.Add,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create web server")
	}
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting joint API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed")
			stop()
		}
	}()

	// --- 6. Start the keeper schedule ---
	scheduler := keeper.NewScheduler(ctx, jobTimeout)
	if err := scheduler.AddJob(config.EpochSchedule, keeper.EpochJob{Keeper: k}); err != nil {
		log.Fatal().Err(err).Str("schedule", config.EpochSchedule).Msg("Invalid epoch schedule")
	}
	if err := scheduler.AddJob(config.ProjectionSchedule, keeper.ProjectionJob{Keeper: k}); err != nil {
		log.Fatal().Err(err).Str("schedule", config.ProjectionSchedule).Msg("Invalid projection schedule")
	}
	if err := scheduler.RunNow(keeper.ProjectionJob{Keeper: k}); err != nil {
		log.Warn().Err(err).Msg("Initial projection refresh failed")
	}
	scheduler.Start()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received, stopping...")

	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	log.Info().Int64("cycles", k.Cycles()).Msg("Joint keeper stopped")
}

func openStore() (state.Store, error) {
	if config.StoreBackend == config.StoreBackendBadger {
		log.Info().Str("path", config.BadgerPath).Msg("Opening badger store")
		store, err := state.OpenBadger(config.BadgerPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		return nil, err
	}
	if err := state.EnsureSchema(); err != nil {
		state.CloseDB()
		return nil, err
	}
	store, err := state.NewPostgresStore(state.DB)
	if err != nil {
		state.CloseDB()
		return nil, err
	}
	return store, nil
}

// liveBinder dials the chain and binds every instance to the keeper's signing account.
func liveBinder(ctx context.Context) (factory.BindFunc, func(), error) {
	rpc, err := ethclient.DialContext(ctx, config.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial %s: %w", config.RPCURL, err)
	}
	closers := []func(){rpc.Close}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	var private wallet.TxSender
	if config.PrivateTxRPC != "" {
		privateRPC, err := ethclient.DialContext(ctx, config.PrivateTxRPC)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to dial private tx endpoint: %w", err)
		}
		closers = append(closers, privateRPC.Close)
		private = privateRPC
	}

	signer, err := wallet.NewSigningClient(wallet.ConfigFromEnv(), rpc, private)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	opts := evm.Options{SlippageBps: config.SwapSlippageBps}
	bind := func(inst types.Instance) (adapters.Venue, error) {
		return evm.Bind(inst, signer, opts)
	}
	return bind, closeAll, nil
}

// seedPaperVenue builds one simulated market holding the pools, staking pools and funds
// of every instance that carries a paper seed.
func seedPaperVenue(specs []config.InstanceSpec) (*paper.Venue, error) {
	venue := paper.NewVenue(30)
	for _, spec := range specs {
		if spec.Paper == nil {
			continue
		}
		inst, err := spec.Instance()
		if err != nil {
			return nil, fmt.Errorf("instance %s: %w", spec.ID, err)
		}
		amounts, err := spec.Paper.Amounts()
		if err != nil {
			return nil, fmt.Errorf("instance %s: %w", spec.ID, err)
		}
		reserveA, reserveB, rewardReserve, fundA, fundB := amounts[0], amounts[1], amounts[2], amounts[3], amounts[4]

		for _, leg := range []types.Leg{inst.LegA, inst.LegB} {
			venue.RegisterToken(leg.Token, orDefault(leg.Symbol, leg.Token.Hex()[:8]), decimalsOrDefault(leg.Decimals))
		}
		if inst.SideOf(inst.Reward) == types.SideNone {
			venue.RegisterToken(inst.Reward, "REWARD", 18)
		}

		if reserveA.IsPositive() && reserveB.IsPositive() {
			venue.CreatePool(inst.Pair, inst.LegA.Token, inst.LegB.Token, reserveA, reserveB)
		}
		if rewardReserve.IsPositive() && inst.Reward != inst.BaseAsset {
			baseReserve := reserveA
			if inst.BaseAsset == inst.LegB.Token {
				baseReserve = reserveB
			}
			venue.CreatePool(rewardPoolAddress(inst), inst.Reward, inst.BaseAsset, rewardReserve, baseReserve)
		}
		venue.AddStakingPool(inst.PoolID, inst.Pair)

		governance, err := seedAddress(spec.Paper.Governance, inst.LegA.Provider)
		if err != nil {
			return nil, fmt.Errorf("instance %s governance: %w", spec.ID, err)
		}
		strategist, err := seedAddress(spec.Paper.Strategist, governance)
		if err != nil {
			return nil, fmt.Errorf("instance %s strategist: %w", spec.ID, err)
		}
		venue.RegisterProvider(inst.LegA.Provider, governance, strategist, inst.LegA.Token)
		venue.RegisterProvider(inst.LegB.Provider, governance, strategist, inst.LegB.Token)

		mintPositive(venue, inst.LegA.Token, inst.Self, fundA)
		mintPositive(venue, inst.LegB.Token, inst.Self, fundB)

		log.Info().
			Str("instance", spec.ID).
			Str("reserveA", reserveA.String()).
			Str("reserveB", reserveB.String()).
			Str("fundA", fundA.String()).
			Str("fundB", fundB.String()).
			Msg("Paper market seeded")
	}
	return venue, nil
}

// rewardPoolAddress derives a stable address for the simulated reward/base pool.
func rewardPoolAddress(inst types.Instance) common.Address {
	var addr common.Address
	copy(addr[:], inst.Reward[:])
	addr[0] ^= 0xff
	return addr
}

func seedAddress(raw string, fallback common.Address) (common.Address, error) {
	if raw == "" {
		return fallback, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %q", config.ErrInvalidAddress, raw)
	}
	return common.HexToAddress(raw), nil
}

func mintPositive(venue *paper.Venue, token, holder common.Address, amount sdkmath.Int) {
	if amount.IsPositive() {
		venue.Mint(token, holder, amount)
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func decimalsOrDefault(d uint8) uint8 {
	if d == 0 {
		return 18
	}
	return d
}

// openInstances opens every configured instance, initializing the ones seen for the first time.
func openInstances(ctx context.Context, f *factory.Factory, bind factory.BindFunc, specs []config.InstanceSpec) ([]*joint.Joint, error) {
	var joints []*joint.Joint
	for _, spec := range specs {
		inst, err := spec.Instance()
		if err != nil {
			return nil, fmt.Errorf("instance %s: %w", spec.ID, err)
		}
		params, err := spec.Parameters()
		if err != nil {
			return nil, fmt.Errorf("instance %s: %w", spec.ID, err)
		}
		if inst.LegA.Symbol == "" || inst.LegA.Decimals == 0 || inst.LegB.Symbol == "" || inst.LegB.Decimals == 0 {
			if err := resolveMetadata(ctx, bind, &inst); err != nil {
				return nil, fmt.Errorf("instance %s: %w", spec.ID, err)
			}
		}

		j, created, err := f.OpenOrInitialize(ctx, inst, params)
		if err != nil {
			if errors.Is(err, factory.ErrAccountInUse) {
				return nil, fmt.Errorf("instance %s: each instance needs its own account: %w", spec.ID, err)
			}
			return nil, fmt.Errorf("instance %s: %w", spec.ID, err)
		}
		log.Info().
			Str("instance", j.ID()).
			Str("name", j.Name()).
			Bool("created", created).
			Msg("Instance ready")
		joints = append(joints, j)
	}
	return joints, nil
}

func resolveMetadata(ctx context.Context, bind factory.BindFunc, inst *types.Instance) error {
	venue, err := bind(*inst)
	if err != nil {
		return err
	}
	return factory.ResolveMetadata(ctx, venue.Tokens, inst)
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
