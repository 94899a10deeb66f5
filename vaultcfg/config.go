// Package vaultcfg loads, validates and applies the daemon-level
// configuration and assembles a Vault from it.
package vaultcfg

import (
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btclog"
	flags "github.com/jessevdk/go-flags"

	"github.com/mintvaultlabs/mintvault"
	"github.com/mintvaultlabs/mintvault/ledger"
)

const (
	// defaultNodeURL is the default ledger node address.
	defaultNodeURL = "http://localhost"

	// defaultNodePort is the default algod REST port.
	defaultNodePort = 4001

	// defaultLogLevel is the default logging verbosity.
	defaultLogLevel = "info"
)

// Config holds the user-configurable settings of the vault.
type Config struct {
	NodeURL   string `long:"nodeurl" description:"Base URL of the ledger node's REST endpoint"`
	NodePort  uint16 `long:"nodeport" description:"Port of the ledger node's REST endpoint, zero if the URL already carries one"`
	NodeToken string `long:"nodetoken" description:"API token of the ledger node"`

	FundingPhrase     string `long:"fundingphrase" description:"Recovery phrase of the funding account"`
	FundingPhraseFile string `long:"fundingphrasefile" description:"File holding the recovery phrase of the funding account"`

	DappName      string `long:"dappname" description:"ARC-2 dApp name attached to transaction notes"`
	MaxWaitRounds uint64 `long:"maxwaitrounds" description:"Rounds to observe before a confirmation wait times out"`

	LogLevel string `long:"loglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		NodeURL:       defaultNodeURL,
		NodePort:      defaultNodePort,
		DappName:      "",
		MaxWaitRounds: ledger.DefaultMaxWaitRounds,
		LogLevel:      defaultLogLevel,
	}
}

// LoadConfig initializes and parses the config using command line options,
// then validates the result.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if _, err := flags.Parse(&cfg); err != nil {
		return nil, err
	}

	return ValidateConfig(cfg)
}

// ValidateConfig checks the given config for sanity and fills in derived
// values.
func ValidateConfig(cfg Config) (*Config, error) {
	if cfg.FundingPhraseFile != "" {
		phrase, err := os.ReadFile(cfg.FundingPhraseFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read funding "+
				"phrase file: %w", err)
		}
		cfg.FundingPhrase = strings.TrimSpace(string(phrase))
	}
	if cfg.FundingPhrase == "" {
		return nil, fmt.Errorf("no funding phrase configured, set " +
			"--fundingphrase or --fundingphrasefile")
	}

	if cfg.NodeURL == "" {
		return nil, fmt.Errorf("no ledger node URL configured")
	}

	if _, ok := btclog.LevelFromString(cfg.LogLevel); !ok {
		return nil, fmt.Errorf("invalid log level: %v", cfg.LogLevel)
	}

	return &cfg, nil
}

// NewVault wires a validated config into a ready-to-use Vault, setting up
// logging along the way.
func NewVault(cfg *Config) (*mintvault.Vault, error) {
	level, _ := btclog.LevelFromString(cfg.LogLevel)
	backend := btclog.NewBackend(os.Stdout)
	mintvault.SetupLoggers(backend, level)

	bridge, err := ledger.NewAlgodBridge(&ledger.AlgodConfig{
		URL:   cfg.NodeURL,
		Port:  cfg.NodePort,
		Token: cfg.NodeToken,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to connect ledger bridge: %w",
			err)
	}

	return mintvault.NewVault(&mintvault.Config{
		Bridge:        bridge,
		FundingPhrase: cfg.FundingPhrase,
		DappName:      cfg.DappName,
		MaxWaitRounds: cfg.MaxWaitRounds,
	})
}
