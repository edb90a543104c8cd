// Package config loads the hub daemon's settings from the command line
// and an INI-style config file, in the same jessevdk/go-flags style the
// teacher's cmd/dropwtxmgr/main.go parses its own flags struct, but scaled
// up to flags.NewParser's default+ini-file behavior befitting a long-running
// daemon rather than a one-shot CLI tool.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gcash/bchd/chaincfg"
	"github.com/gcash/bchutil"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "mpchub.conf"
	defaultDataDirname     = "data"
	defaultAsset           = "XCP"
	defaultFee             = 10000
	defaultDustSize        = 5430
	defaultBroadcastRetry  = 10 * time.Second
	defaultBroadcastLimit  = 10 * time.Minute
)

var defaultAppDataDir = bchutil.AppDataDir("mpchub", false)

// Config holds every setting the hub daemon needs to construct its
// collaborators: which network, how to reach the asset node and chain
// node, the local signing key and sweep destination, and the channel
// controller's fee/dust/retry tuning.
type Config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"Directory to store channel snapshots"`

	TestNet3 bool `long:"testnet" description:"Use the test network"`
	RegTest  bool `long:"regtest" description:"Use the regression test network"`

	AssetNodeRPCConnect string `long:"assetrpcconnect" description:"Asset node JSON-RPC endpoint URL"`
	AssetNodeRPCUser    string `long:"assetrpcuser" description:"Asset node JSON-RPC username"`
	AssetNodeRPCPass    string `long:"assetrpcpass" description:"Asset node JSON-RPC password" json:"-"`

	ChainRPCConnect string `long:"chainrpcconnect" description:"bchd RPC host:port"`
	ChainRPCUser    string `long:"chainrpcuser" description:"bchd RPC username"`
	ChainRPCPass    string `long:"chainrpcpass" description:"bchd RPC password" json:"-"`
	ChainRPCCert    string `long:"chainrpccert" description:"Path to bchd's rpc.cert file"`

	Asset        string        `long:"asset" description:"Counterparty asset this hub settles channels in"`
	LocalWIF     string        `long:"wif" description:"WIF-encoded private key the hub signs with" json:"-"`
	SweepAddress string        `long:"sweepaddress" description:"Address recovered funds are swept to"`
	Fee          *AmountFlag   `long:"fee" description:"Transaction fee for every channel spend"`
	DustSize     *AmountFlag   `long:"dustsize" description:"Minimum non-dust output value"`

	BroadcastRetryInterval time.Duration `long:"broadcastretry" description:"How often to retry a failed broadcast"`
	BroadcastDeadline      time.Duration `long:"broadcastdeadline" description:"How long to keep retrying a broadcast before giving up"`

	Params *chaincfg.Params `no-flag:"true"`
}

// defaults returns a Config seeded with every default value, mirroring the
// teacher's pattern of assigning defaults directly into the flags struct
// literal before calling flags.Parse.
func defaults() *Config {
	return &Config{
		ConfigFile:             filepath.Join(defaultAppDataDir, defaultConfigFilename),
		DataDir:                filepath.Join(defaultAppDataDir, defaultDataDirname),
		Asset:                  defaultAsset,
		Fee:                    NewAmountFlag(defaultFee),
		DustSize:               NewAmountFlag(defaultDustSize),
		BroadcastRetryInterval: defaultBroadcastRetry,
		BroadcastDeadline:      defaultBroadcastLimit,
		Params:                 &chaincfg.MainNetParams,
	}
}

// Load parses args (typically os.Args[1:]) into a Config, first reading
// ConfigFile if it exists and then letting command-line flags override it,
// the same two-pass precedence jessevdk/go-flags' IniParse + Parse gives
// the teacher's wallet config loader.
func Load(args []string) (*Config, error) {
	cfg := defaults()

	preCfg := *cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := preParser.ParseArgs(args); err != nil {
		return nil, err
	}
	if preCfg.ConfigFile != "" {
		if _, err := os.Stat(preCfg.ConfigFile); err == nil {
			iniParser := flags.NewIniParser(flags.NewParser(cfg, flags.Default))
			if err := iniParser.ParseFile(preCfg.ConfigFile); err != nil {
				return nil, err
			}
		}
	}

	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if cfg.RegTest {
		cfg.Params = &chaincfg.RegressionNetParams
	} else if cfg.TestNet3 {
		cfg.Params = &chaincfg.TestNet3Params
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, err
	}
	return cfg, nil
}
