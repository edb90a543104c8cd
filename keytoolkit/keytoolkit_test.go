package keytoolkit

import (
	"bytes"
	"testing"

	"github.com/gcash/bchd/bchec"
	"github.com/gcash/bchd/chaincfg"
	"github.com/gcash/bchutil"
)

func testParams() *chaincfg.Params { return &chaincfg.RegressionNetParams }

func genWIF(t *testing.T, compressed bool) (*bchutil.WIF, *bchec.PrivateKey) {
	t.Helper()
	priv, err := bchec.NewPrivateKey(bchec.S256())
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	wif, err := bchutil.NewWIF(priv, testParams(), compressed)
	if err != nil {
		t.Fatalf("NewWIF: %v", err)
	}
	return wif, priv
}

func TestWIFToPubKeyCompressed(t *testing.T) {
	wif, priv := genWIF(t, true)
	tk := New(testParams())

	got, err := tk.WIFToPubKey(wif.String())
	if err != nil {
		t.Fatalf("WIFToPubKey: %v", err)
	}
	want := priv.PubKey().SerializeCompressed()
	if !bytes.Equal(got, want) {
		t.Errorf("WIFToPubKey = %x, want %x", got, want)
	}
}

func TestWIFToPubKeyUncompressed(t *testing.T) {
	wif, priv := genWIF(t, false)
	tk := New(testParams())

	got, err := tk.WIFToPubKey(wif.String())
	if err != nil {
		t.Fatalf("WIFToPubKey: %v", err)
	}
	want := priv.PubKey().SerializeUncompressed()
	if !bytes.Equal(got, want) {
		t.Errorf("WIFToPubKey = %x, want %x", got, want)
	}
}

func TestWIFToPrivKeyRoundTrip(t *testing.T) {
	wif, priv := genWIF(t, true)
	tk := New(testParams())

	got, err := tk.WIFToPrivKey(wif.String())
	if err != nil {
		t.Fatalf("WIFToPrivKey: %v", err)
	}
	if !bytes.Equal(got.Serialize(), priv.Serialize()) {
		t.Error("WIFToPrivKey did not round-trip the private scalar")
	}
}

func TestWIFToAddressMatchesPubKeyToAddress(t *testing.T) {
	wif, _ := genWIF(t, true)
	tk := New(testParams())

	fromWIF, err := tk.WIFToAddress(wif.String())
	if err != nil {
		t.Fatalf("WIFToAddress: %v", err)
	}
	pubKey, err := tk.WIFToPubKey(wif.String())
	if err != nil {
		t.Fatalf("WIFToPubKey: %v", err)
	}
	fromPubKey, err := tk.PubKeyToAddress(pubKey)
	if err != nil {
		t.Fatalf("PubKeyToAddress: %v", err)
	}
	if fromWIF.EncodeAddress() != fromPubKey.EncodeAddress() {
		t.Errorf("WIFToAddress = %s, PubKeyToAddress = %s", fromWIF.EncodeAddress(), fromPubKey.EncodeAddress())
	}
}

func TestHash160(t *testing.T) {
	tk := New(testParams())
	data := []byte("payment channel spend secret")
	got := tk.Hash160(data)
	want := bchutil.Hash160(data)
	if !bytes.Equal(got, want) {
		t.Errorf("Hash160 = %x, want %x", got, want)
	}
	if len(got) != 20 {
		t.Errorf("Hash160 length = %d, want 20", len(got))
	}
}

func TestWIFToPubKeyRejectsGarbage(t *testing.T) {
	tk := New(testParams())
	if _, err := tk.WIFToPubKey("not-a-wif"); err == nil {
		t.Fatal("expected error decoding a malformed WIF")
	}
}
