package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/yourorg/zkmint/circuits"
	"github.com/yourorg/zkmint/internal/ethsim"
	"github.com/yourorg/zkmint/pkg/config"
	"github.com/yourorg/zkmint/pkg/coordinator"
	"github.com/yourorg/zkmint/pkg/debugstore"
	"github.com/yourorg/zkmint/pkg/ledger"
	"github.com/yourorg/zkmint/pkg/localnet"
	"github.com/yourorg/zkmint/pkg/localprover"
	"github.com/yourorg/zkmint/pkg/slot"
	"github.com/yourorg/zkmint/pkg/stateproof"
	"github.com/yourorg/zkmint/pkg/witness"
)

type localEnv struct {
	Coordinators []*coordinator.Coordinator
	Chain        *localnet.Chain

	closers []func()
}

func (e *localEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// ethereumSource returns the block oracle and proof provider. A non-nil sim
// replaces the RPC with a simulated state in which every target holds sim.
func ethereumSource(ctx context.Context, env *localEnv, cfg *config.Config, variant witness.Variant, sim *uint256.Int) (witness.BlockOracle, witness.ProofProvider, error) {
	if sim != nil {
		st := ethsim.New(cfg.Ethereum.Domain, 1)
		for _, t := range cfg.Coordinator.Targets {
			holder := common.HexToAddress(t.Holder)
			if variant == witness.StorageSlot {
				st.SetStorage(common.HexToAddress(t.Token), slot.Derive(holder, cfg.Circuit.BalanceSlot), sim)
				continue
			}
			st.SetBalance(holder, sim)
		}
		return st, st, nil
	}

	if cfg.Ethereum.RPCURL == "" {
		return nil, nil, fmt.Errorf("ethereum.rpc_url is required unless --sim-balance is set")
	}
	cli, err := rpc.DialContext(ctx, cfg.Ethereum.RPCURL)
	if err != nil {
		return nil, nil, err
	}
	env.closers = append(env.closers, cli.Close)

	oracle := witness.NewRPCOracle(cfg.Ethereum.BlockTag)
	oracle.Register(cfg.Ethereum.Domain, cli)
	provider := witness.NewRPCProvider()
	provider.Register(cfg.Ethereum.Network, cli)
	return oracle, provider, nil
}

func debugStore(ctx context.Context, cfg config.DebugConfig) (debugstore.Store, error) {
	switch cfg.Store {
	case "file":
		return &debugstore.FileStore{Root: cfg.Dir}, nil
	case "s3":
		return debugstore.NewS3StoreFromEnv(ctx, cfg.Region, cfg.Bucket, cfg.Prefix)
	}
	return debugstore.Nop{}, nil
}

// wireLocal proves in-process and runs every target against an in-process
// chain hosting the mint contracts.
func wireLocal(ctx context.Context, cfg *config.Config, sim *uint256.Int, metrics *coordinator.Metrics, logger zerolog.Logger) (*localEnv, error) {
	env := &localEnv{}
	fail := func(err error) (*localEnv, error) {
		env.Close()
		return nil, err
	}

	variant, err := cfg.Variant()
	if err != nil {
		return fail(err)
	}
	oracle, provider, err := ethereumSource(ctx, env, cfg, variant, sim)
	if err != nil {
		return fail(err)
	}

	params := cfg.MintParams()
	circuit, err := stateproof.New(stateproof.Config{
		Variant:               variant,
		Domain:                cfg.Ethereum.Domain,
		TokenContract:         params.TokenContract,
		Registry:              params.Registry,
		BlockNumber:           params.BlockNumber,
		AuthorizationContract: params.AuthorizationContract,
		BalanceSlot:           cfg.Circuit.BalanceSlot,
	})
	if err != nil {
		return fail(err)
	}

	logger.Info().Str("dir", cfg.Circuit.KeysDir).Msg("loading commitment keys")
	keys, err := circuits.LoadOrSetup(cfg.Circuit.KeysDir, cfg.Circuit.MaxChunks)
	if err != nil {
		return fail(err)
	}

	lp := localprover.New(keys, logger)
	err = lp.Register(cfg.Coprocessor.AppID, &witness.Builder{
		Oracle:      oracle,
		Provider:    provider,
		Network:     cfg.Ethereum.Network,
		Domain:      cfg.Ethereum.Domain,
		Variant:     variant,
		BalanceSlot: cfg.Circuit.BalanceSlot,
		Logger:      logger.With().Str("component", "witness").Logger(),
	}, circuit)
	if err != nil {
		return fail(err)
	}

	env.Chain = localnet.New(logger)
	addrs := localnet.Addresses{
		Authorizations: cfg.Neutron.Authorizations,
		Processor:      cfg.Neutron.Processor,
		CW20:           cfg.Neutron.CW20,
	}
	localnet.DeployMint(env.Chain, addrs, &keys.Verifier, ledger.NewMemory(), cfg.Coordinator.Label, localnet.ZKAuthorization{
		Registry: cfg.Circuit.Registry,
		Domains:  []string{cfg.Ethereum.Domain},
	})

	store, err := debugStore(ctx, cfg.Debug)
	if err != nil {
		return fail(err)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		env.closers = append(env.closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err))
		}
	}

	for _, t := range cfg.Coordinator.Targets {
		opts := []coordinator.Option{
			coordinator.WithMetrics(metrics),
			coordinator.WithDebugStore(store),
		}
		if rdb != nil {
			opts = append(opts,
				coordinator.WithLedger(ledger.NewRedis(rdb, cfg.Redis.Prefix, cfg.Redis.LedgerTTL)),
				coordinator.WithSignerLock(ledger.NewSignerLock(rdb, t.Signer, cfg.Redis.LockTTL)),
			)
		} else {
			opts = append(opts, coordinator.WithLedger(ledger.NewMemory()))
		}

		c, err := coordinator.New(coordinator.Config{
			Label:              cfg.Coordinator.Label,
			AppID:              cfg.Coprocessor.AppID,
			Signer:             t.Signer,
			Authorizations:     addrs.Authorizations,
			Processor:          addrs.Processor,
			CW20:               addrs.CW20,
			Request:            t.Request(),
			PollInterval:       cfg.Coordinator.PollInterval,
			InclusionTimeout:   cfg.Coordinator.InclusionTimeout,
			MaxSequenceRetries: cfg.Coordinator.MaxSequenceRetries,
		}, env.Chain, lp, logger, opts...)
		if err != nil {
			return fail(err)
		}
		env.Coordinators = append(env.Coordinators, c)
	}
	return env, nil
}
