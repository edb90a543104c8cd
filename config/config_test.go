package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gcash/bchd/chaincfg"
	"github.com/gcash/bchutil"
)

func TestAmountFlagRoundTrip(t *testing.T) {
	a := NewAmountFlag(10000)
	s, err := a.MarshalFlag()
	if err != nil {
		t.Fatalf("MarshalFlag: %v", err)
	}

	b := NewAmountFlag(0)
	if err := b.UnmarshalFlag(s); err != nil {
		t.Fatalf("UnmarshalFlag(%q): %v", s, err)
	}
	if b.Amount != a.Amount {
		t.Errorf("round trip = %v, want %v", b.Amount, a.Amount)
	}
}

func TestAmountFlagUnmarshalBCHSuffix(t *testing.T) {
	a := NewAmountFlag(0)
	if err := a.UnmarshalFlag("0.0001 BCH"); err != nil {
		t.Fatalf("UnmarshalFlag: %v", err)
	}
	want, err := bchutil.NewAmount(0.0001)
	if err != nil {
		t.Fatalf("NewAmount: %v", err)
	}
	if a.Amount != want {
		t.Errorf("Amount = %v, want %v", a.Amount, want)
	}
}

func TestAmountFlagUnmarshalRejectsGarbage(t *testing.T) {
	a := NewAmountFlag(0)
	if err := a.UnmarshalFlag("not-a-number"); err == nil {
		t.Fatal("expected error for a non-numeric amount")
	}
}

func TestLoadDefaultsAndRegtestParams(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	cfg, err := Load([]string{"--datadir", dataDir, "--regtest"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Params != &chaincfg.RegressionNetParams {
		t.Errorf("Params = %v, want RegressionNetParams", cfg.Params)
	}
	if cfg.Asset != defaultAsset {
		t.Errorf("Asset = %q, want default %q", cfg.Asset, defaultAsset)
	}
	if int64(cfg.Fee.Amount) != defaultFee {
		t.Errorf("Fee = %v, want %d", cfg.Fee.Amount, defaultFee)
	}
	if _, err := os.Stat(dataDir); err != nil {
		t.Errorf("Load did not create DataDir: %v", err)
	}
}

func TestLoadConfigFileFlagsOverrideIni(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	confPath := filepath.Join(dir, "mpchub.conf")
	iniBody := "[Application Options]\nasset = BTC\nsweepaddress = bchreg:qqfromini\n"
	if err := os.WriteFile(confPath, []byte(iniBody), 0600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load([]string{"-C", confPath, "--datadir", dataDir, "--asset", "XCP"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Asset != "XCP" {
		t.Errorf("Asset = %q, want flag override %q", cfg.Asset, "XCP")
	}
	if cfg.SweepAddress != "bchreg:qqfromini" {
		t.Errorf("SweepAddress = %q, want value from config file", cfg.SweepAddress)
	}
}
