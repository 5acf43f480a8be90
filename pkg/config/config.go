// Package config loads the zkmint configuration from a TOML file, a .env
// file and ZKMINT_ prefixed environment variables, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/yourorg/zkmint/pkg/authz"
	"github.com/yourorg/zkmint/pkg/errs"
	"github.com/yourorg/zkmint/pkg/witness"
)

const EnvPrefix = "ZKMINT"

type EthereumConfig struct {
	RPCURL   string `mapstructure:"rpc_url"`
	Network  string `mapstructure:"network"`
	Domain   string `mapstructure:"domain"`
	BlockTag string `mapstructure:"block_tag"`
}

type NeutronConfig struct {
	GRPCURL        string `mapstructure:"grpc_url"`
	GRPCPort       string `mapstructure:"grpc_port"`
	ChainID        string `mapstructure:"chain_id"`
	Authorizations string `mapstructure:"authorizations"`
	Processor      string `mapstructure:"processor"`
	CW20           string `mapstructure:"cw20"`
}

type CoprocessorConfig struct {
	URL     string        `mapstructure:"url"`
	AppID   string        `mapstructure:"app_id"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CircuitConfig struct {
	Variant               string `mapstructure:"variant"`
	BalanceSlot           uint64 `mapstructure:"balance_slot"`
	Registry              uint64 `mapstructure:"registry"`
	BlockNumber           uint64 `mapstructure:"block_number"`
	AuthorizationContract string `mapstructure:"authorization_contract"`
	KeysDir               string `mapstructure:"keys_dir"`
	MaxChunks             int    `mapstructure:"max_chunks"`
}

// Target is one signer and the holder it mints for. Every target gets its
// own coordinator.
type Target struct {
	Signer      string `mapstructure:"signer"`
	Holder      string `mapstructure:"holder"`
	Destination string `mapstructure:"destination"`
	Token       string `mapstructure:"token"`
}

type CoordinatorConfig struct {
	Label              string        `mapstructure:"label"`
	Schedule           string        `mapstructure:"schedule"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	InclusionTimeout   time.Duration `mapstructure:"inclusion_timeout"`
	MaxSequenceRetries int           `mapstructure:"max_sequence_retries"`
	Targets            []Target      `mapstructure:"targets"`
}

type DebugConfig struct {
	// Store is "none", "file" or "s3".
	Store  string `mapstructure:"store"`
	Dir    string `mapstructure:"dir"`
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	Region string `mapstructure:"region"`
}

// RedisConfig enables the shared artifact ledger and signer locks when
// Addr is set.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Prefix    string        `mapstructure:"prefix"`
	LedgerTTL time.Duration `mapstructure:"ledger_ttl"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
}

type MetricsConfig struct {
	// Listen is the address of the /metrics and /healthz server. Empty
	// disables it.
	Listen string `mapstructure:"listen"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Ethereum    EthereumConfig    `mapstructure:"ethereum"`
	Neutron     NeutronConfig     `mapstructure:"neutron"`
	Coprocessor CoprocessorConfig `mapstructure:"coprocessor"`
	Circuit     CircuitConfig     `mapstructure:"circuit"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Debug       DebugConfig       `mapstructure:"debug"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Log         LogConfig         `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ethereum.rpc_url", "")
	v.SetDefault("ethereum.network", witness.DefaultNetwork)
	v.SetDefault("ethereum.domain", witness.DefaultDomain)
	v.SetDefault("ethereum.block_tag", "latest")

	v.SetDefault("neutron.grpc_url", "")
	v.SetDefault("neutron.grpc_port", "")
	v.SetDefault("neutron.chain_id", "")
	v.SetDefault("neutron.authorizations", "")
	v.SetDefault("neutron.processor", "")
	v.SetDefault("neutron.cw20", "")

	v.SetDefault("coprocessor.url", "")
	v.SetDefault("coprocessor.app_id", "")
	v.SetDefault("coprocessor.timeout", 2*time.Minute)

	v.SetDefault("circuit.variant", "native")
	v.SetDefault("circuit.balance_slot", 0)
	v.SetDefault("circuit.registry", authz.Unconstrained)
	v.SetDefault("circuit.block_number", authz.Unconstrained)
	v.SetDefault("circuit.authorization_contract", "")
	v.SetDefault("circuit.keys_dir", "keys")
	v.SetDefault("circuit.max_chunks", 64)

	v.SetDefault("coordinator.label", authz.ZKMintLabel)
	v.SetDefault("coordinator.schedule", "@every 1m")
	v.SetDefault("coordinator.poll_interval", 3*time.Second)
	v.SetDefault("coordinator.inclusion_timeout", time.Minute)
	v.SetDefault("coordinator.max_sequence_retries", 3)

	v.SetDefault("debug.store", "none")
	v.SetDefault("debug.dir", "debug")
	v.SetDefault("debug.bucket", "")
	v.SetDefault("debug.prefix", "")
	v.SetDefault("debug.region", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "")
	v.SetDefault("redis.ledger_ttl", 30*24*time.Hour)
	v.SetDefault("redis.lock_ttl", 5*time.Minute)

	v.SetDefault("metrics.listen", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads path (skipped when empty) and the environment. envFiles are
// loaded into the environment first; with none given an optional ./.env is
// loaded.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Variant returns the parsed circuit variant.
func (c *Config) Variant() (witness.Variant, error) {
	return witness.ParseVariant(c.Circuit.Variant)
}

// MintParams returns the deployment parameters of the mint message.
func (c *Config) MintParams() authz.MintParams {
	p := authz.MintParams{
		TokenContract: c.Neutron.CW20,
		Registry:      c.Circuit.Registry,
		BlockNumber:   c.Circuit.BlockNumber,
	}
	if c.Circuit.AuthorizationContract != "" {
		contract := c.Circuit.AuthorizationContract
		p.AuthorizationContract = &contract
	}
	return p
}

// Request returns the proof request of t.
func (t Target) Request() witness.Request {
	req := witness.Request{Holder: common.HexToAddress(t.Holder), Destination: t.Destination}
	if t.Token != "" {
		token := common.HexToAddress(t.Token)
		req.Token = &token
	}
	return req
}

func invalid(format string, args ...any) error {
	return errorsmod.Wrapf(errs.ErrConfiguration, format, args...)
}

// Validate checks everything a coordinator run needs.
func (c *Config) Validate() error {
	variant, err := c.Variant()
	if err != nil {
		return err
	}
	if c.Coprocessor.AppID == "" {
		return invalid("coprocessor.app_id is required")
	}
	if c.Neutron.Authorizations == "" || c.Neutron.Processor == "" || c.Neutron.CW20 == "" {
		return invalid("neutron.authorizations, neutron.processor and neutron.cw20 are required")
	}
	if c.Coordinator.Label == "" {
		return invalid("coordinator.label is required")
	}
	if c.Circuit.MaxChunks <= 0 {
		return invalid("circuit.max_chunks must be positive")
	}
	if len(c.Coordinator.Targets) == 0 {
		return invalid("at least one coordinator target is required")
	}

	signers := make(map[string]bool)
	for i, t := range c.Coordinator.Targets {
		switch {
		case t.Signer == "":
			return invalid("target %d: signer is required", i)
		case signers[t.Signer]:
			return invalid("target %d: signer %s is used twice", i, t.Signer)
		case !common.IsHexAddress(t.Holder):
			return invalid("target %d: holder %q is not an address", i, t.Holder)
		case variant == witness.StorageSlot && !common.IsHexAddress(t.Token):
			return invalid("target %d: the storage variant needs a token address", i)
		}
		signers[t.Signer] = true
	}

	switch c.Debug.Store {
	case "", "none":
	case "file":
		if c.Debug.Dir == "" {
			return invalid("debug.dir is required for the file store")
		}
	case "s3":
		if c.Debug.Bucket == "" {
			return invalid("debug.bucket is required for the s3 store")
		}
	default:
		return invalid("unknown debug store %q", c.Debug.Store)
	}

	if c.Redis.Addr != "" {
		// one proof request plus two inclusion waits
		worst := c.Coprocessor.Timeout + 2*c.Coordinator.InclusionTimeout
		if c.Redis.LockTTL <= worst {
			return invalid("redis.lock_ttl %s must exceed the longest cycle %s", c.Redis.LockTTL, worst)
		}
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level: %v", err)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return invalid("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}
