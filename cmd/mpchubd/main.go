// Package main runs mpchubd, a daemon that loads a Config, wires an asset
// node and chain client to a hub.Hub, and drives every registered
// channel's recovery paths forward on a timer until asked to stop.
// Grounded on the teacher's bchwallet.go/boot.WalletMain for the minimal
// GOMAXPROCS-then-run shape, and boot/signalsigterm.go for signal
// handling.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gcash/bchlog"

	"github.com/picopayments/mpchub/assetnode"
	"github.com/picopayments/mpchub/chainclient"
	"github.com/picopayments/mpchub/config"
	"github.com/picopayments/mpchub/hub"
	"github.com/picopayments/mpchub/keytoolkit"
	"github.com/picopayments/mpchub/scripttoolkit"
)

// shutdownSignals is populated by an init() in a platform-specific file
// (signals.go or signalwindows.go).
var shutdownSignals []os.Signal

var log = bchlog.Disabled

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("mpchubd: load config: %w", err)
	}

	var rpcCert []byte
	if cfg.ChainRPCCert != "" {
		rpcCert, err = os.ReadFile(cfg.ChainRPCCert)
		if err != nil {
			return fmt.Errorf("mpchubd: read chain rpc cert: %w", err)
		}
	}
	chain, err := chainclient.New(chainclient.Config{
		RPCConnect: cfg.ChainRPCConnect,
		RPCUser:    cfg.ChainRPCUser,
		RPCPass:    cfg.ChainRPCPass,
		RPCCert:    string(rpcCert),
	})
	if err != nil {
		return fmt.Errorf("mpchubd: connect to chain node: %w", err)
	}
	defer chain.Shutdown()

	node := assetnode.New(assetnode.Config{
		RPCConnect: cfg.AssetNodeRPCConnect,
		RPCUser:    cfg.AssetNodeRPCUser,
		RPCPass:    cfg.AssetNodeRPCPass,
	})

	h := hub.New(hub.Config{
		Asset:                  cfg.Asset,
		AssetNode:              node,
		Chain:                  chain,
		Scripts:                scripttoolkit.New(cfg.Params),
		Keys:                   keytoolkit.New(cfg.Params),
		LocalWIF:               cfg.LocalWIF,
		SweepAddress:           cfg.SweepAddress,
		Params:                 cfg.Params,
		Fee:                    int64(cfg.Fee.Amount),
		DustSize:               int64(cfg.DustSize.Amount),
		BroadcastRetryInterval: cfg.BroadcastRetryInterval,
		BroadcastDeadline:      cfg.BroadcastDeadline,
	})

	snapshotPath := filepath.Join(cfg.DataDir, "channels.snapshot")
	if err := loadSnapshot(h, snapshotPath); err != nil {
		return fmt.Errorf("mpchubd: load snapshot: %w", err)
	}

	interruptChan := make(chan os.Signal, 1)
	signal.Notify(interruptChan, shutdownSignals...)

	ticker := time.NewTicker(cfg.BroadcastRetryInterval)
	defer ticker.Stop()

	log.Infof("mpchubd started, asset %s, data dir %s", cfg.Asset, cfg.DataDir)
	for {
		select {
		case <-ticker.C:
			for _, err := range h.UpdateAll() {
				log.Warnf("channel update: %v", err)
			}
		case <-interruptChan:
			log.Infof("shutting down")
			if err := saveSnapshot(h, snapshotPath); err != nil {
				return fmt.Errorf("mpchubd: save snapshot: %w", err)
			}
			return nil
		}
	}
}
