package channel

import (
	"github.com/gcash/bchd/bchec"
	"github.com/gcash/bchd/wire"

	"github.com/picopayments/mpchub/scripttoolkit"
)

// AssetNode is the subset of a Counterparty-style asset node the
// controller needs. Defined here (not in the assetnode package) so
// Controller depends only on the shape it uses, the same way the
// teacher's paymentchannels package defines its own WalletBackend rather
// than importing the wallet package's full interface.
type AssetNode interface {
	// CreateSend builds an unsigned raw transaction moving quantity of
	// asset from source to destination. extraBTC carries additional bare
	// BTC dust into the same transaction, for a deposit's own future
	// recovery-branch spends (the recovery branches pay their own fees
	// out of that carried amount rather than asking the asset node to
	// fund them later).
	CreateSend(source, destination, asset string, quantity, extraBTC int64) (rawtx []byte, err error)
	// GetBalance returns the confirmed balance of asset at address.
	GetBalance(address, asset string) (int64, error)
	// Unpack decodes an asset-layer OP_RETURN/data payload embedded in a
	// transaction, returning the transferred quantity of asset. It is a
	// fatal (non-recoverable) error if the payload isn't a plain
	// asset-send message or moves a different asset.
	Unpack(rawtx []byte, asset string) (quantity int64, err error)
}

// UTXO is a single spendable bare-BTC output, as reported by a
// ChainClient's RetrieveUTXOs.
type UTXO struct {
	TxID  string
	Vout  uint32
	Value int64
}

// ChainClient is the subset of a bitcoind-style chain client the
// controller needs.
type ChainClient interface {
	// GetTransactions returns every txid that has ever touched address.
	GetTransactions(address string) ([]string, error)
	// Confirms returns the confirmation count of txid, or nil if unknown
	// to the node.
	Confirms(txid string) (*int64, error)
	// RetrieveTx fetches and decodes a previously broadcast transaction.
	RetrieveTx(txid string) (*wire.MsgTx, error)
	// RetrieveUTXOs lists address's spendable bare-BTC outputs, used to
	// confirm the payer carries enough BTC to fund a deposit plus its
	// recovery-branch fees before asking the asset node to build one.
	RetrieveUTXOs(address string) ([]UTXO, error)
	// SignTx signs rawtx's ordinary P2PKH inputs with the given WIFs,
	// the way an asset node's unsigned create_send output is normally
	// completed by its owning wallet.
	SignTx(rawtx []byte, wifs []string) ([]byte, error)
	// SendRawTransaction broadcasts tx and returns its txid.
	SendRawTransaction(tx *wire.MsgTx) (txid string, err error)
}

// KeyToolkit is the subset of keytoolkit.KeyToolkit's WIF-bound helpers the
// controller uses at signing time; keytoolkit.New's result satisfies it.
type KeyToolkit interface {
	WIFToPrivKey(wif string) (*bchec.PrivateKey, error)
	WIFToPubKey(wif string) ([]byte, error)
}

// ScriptToolkit is re-exported so callers constructing a Controller can
// name the script helper type without importing scripttoolkit directly.
type ScriptToolkit = scripttoolkit.ScriptToolkit
