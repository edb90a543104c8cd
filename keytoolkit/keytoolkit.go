// Package keytoolkit provides the pure key/address helper functions the
// channel controller needs: turning a WIF private key into the public key,
// hash160 or address a script expects, and hashing raw data the same way
// the chain does.
package keytoolkit

import (
	"github.com/gcash/bchd/bchec"
	"github.com/gcash/bchd/chaincfg"
	"github.com/gcash/bchutil"
)

// KeyToolkit is implemented against chaincfg.Params so the same toolkit
// works for mainnet, testnet and regtest.
type KeyToolkit interface {
	WIFToPubKey(wif string) ([]byte, error)
	WIFToPrivKey(wif string) (*bchec.PrivateKey, error)
	WIFToAddress(wif string) (bchutil.Address, error)
	PubKeyToAddress(pubKey []byte) (bchutil.Address, error)
	Hash160(data []byte) []byte
}

type toolkit struct {
	params *chaincfg.Params
}

// New returns a KeyToolkit bound to the given network parameters.
func New(params *chaincfg.Params) KeyToolkit {
	return &toolkit{params: params}
}

func (t *toolkit) decode(wifStr string) (*bchutil.WIF, error) {
	return bchutil.DecodeWIF(wifStr)
}

// WIFToPubKey mirrors picopayments' util.wif2pubkey: decode the WIF,
// serialize the public key in compressed or uncompressed form to match
// how the key was encoded.
func (t *toolkit) WIFToPubKey(wifStr string) ([]byte, error) {
	wif, err := t.decode(wifStr)
	if err != nil {
		return nil, err
	}
	if wif.CompressPubKey {
		return wif.SerializePubKey(), nil
	}
	return wif.PrivKey.PubKey().SerializeUncompressed(), nil
}

// WIFToPrivKey mirrors util.wif2secretexponent, returning the underlying
// EC private key rather than just the raw scalar bytes.
func (t *toolkit) WIFToPrivKey(wifStr string) (*bchec.PrivateKey, error) {
	wif, err := t.decode(wifStr)
	if err != nil {
		return nil, err
	}
	return wif.PrivKey, nil
}

// WIFToAddress mirrors util.wif2address.
func (t *toolkit) WIFToAddress(wifStr string) (bchutil.Address, error) {
	wif, err := t.decode(wifStr)
	if err != nil {
		return nil, err
	}
	pubKeyBytes := wif.SerializePubKey()
	if !wif.CompressPubKey {
		pubKeyBytes = wif.PrivKey.PubKey().SerializeUncompressed()
	}
	return t.PubKeyToAddress(pubKeyBytes)
}

// PubKeyToAddress mirrors util.sec2address.
func (t *toolkit) PubKeyToAddress(pubKey []byte) (bchutil.Address, error) {
	return bchutil.NewAddressPubKeyHash(bchutil.Hash160(pubKey), t.params)
}

// Hash160 exposes the RIPEMD160(SHA256(x)) digest used throughout the
// deposit/commit scripts for spend-secret and revoke-secret hashes.
func (t *toolkit) Hash160(data []byte) []byte {
	return bchutil.Hash160(data)
}
