// Package chainclient wraps a bchd RPC connection to implement the
// channel.ChainClient interface the controller needs: watching a P2SH
// address for spends, reading confirmation depth, retrieving and signing
// raw transactions, and broadcasting. Grounded on the teacher's
// chain.Interface (chain/interface.go), trimmed to the narrow read/sign/
// broadcast surface this daemon actually needs instead of the wallet's
// full rescan/notification machinery.
package chainclient

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gcash/bchd/chaincfg/chainhash"
	"github.com/gcash/bchd/rpcclient"
	"github.com/gcash/bchd/wire"

	"github.com/picopayments/mpchub/channel"
)

// Config holds the connection parameters for a bchd RPC endpoint, in the
// same shape boot/walletsetup.go assembles an rpcclient.ConnConfig from.
type Config struct {
	RPCConnect string
	RPCUser    string
	RPCPass    string
	RPCCert    string // PEM contents of the server's TLS certificate; empty disables TLS
}

// Client implements channel.ChainClient against a live bchd node.
type Client struct {
	rpc *rpcclient.Client
}

var _ channel.ChainClient = (*Client)(nil)

// New dials the bchd RPC endpoint described by cfg. No asynchronous
// notifications are requested: this client only ever issues request/
// response calls, polled by the controller's Update methods.
func New(cfg Config) (*Client, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.RPCConnect,
		User:         cfg.RPCUser,
		Pass:         cfg.RPCPass,
		HTTPPostMode: true,
		DisableTLS:   cfg.RPCCert == "",
		Certificates: []byte(cfg.RPCCert),
	}
	rpc, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("chainclient: dial %s: %w", cfg.RPCConnect, err)
	}
	return &Client{rpc: rpc}, nil
}

// Shutdown disconnects from the node.
func (c *Client) Shutdown() {
	c.rpc.Shutdown()
}

// rawAddressResult mirrors the subset of bchd's searchrawtransactions
// verbose reply this client reads.
type rawAddressResult struct {
	TxID string `json:"txid"`
}

// GetTransactions returns every txid that has ever touched address, via
// bchd's address-index-backed searchrawtransactions call. RawRequest is
// rpcclient's documented escape hatch for RPCs with no typed wrapper.
func (c *Client) GetTransactions(address string) ([]string, error) {
	params, err := json.Marshal([]interface{}{address, 1, 0, 1000000, true, false})
	if err != nil {
		return nil, err
	}
	raw, err := c.rpc.RawRequest("searchrawtransactions", []json.RawMessage{params})
	if err != nil {
		return nil, fmt.Errorf("chainclient: searchrawtransactions %s: %w", address, err)
	}
	var results []rawAddressResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("chainclient: decode searchrawtransactions reply: %w", err)
	}
	seen := make(map[string]bool, len(results))
	var txids []string
	for _, r := range results {
		if seen[r.TxID] {
			continue
		}
		seen[r.TxID] = true
		txids = append(txids, r.TxID)
	}
	return txids, nil
}

// Confirms returns txid's confirmation count, or nil if the node doesn't
// know about it (unconfirmed-and-unseen, or never broadcast).
func (c *Client) Confirms(txid string) (*int64, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, fmt.Errorf("chainclient: bad txid %q: %w", txid, err)
	}
	result, err := c.rpc.GetRawTransactionVerbose(hash)
	if err != nil {
		return nil, nil
	}
	confs := int64(result.Confirmations)
	return &confs, nil
}

// RetrieveTx fetches and decodes a previously broadcast transaction.
func (c *Client) RetrieveTx(txid string) (*wire.MsgTx, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, fmt.Errorf("chainclient: bad txid %q: %w", txid, err)
	}
	tx, err := c.rpc.GetRawTransaction(hash)
	if err != nil {
		return nil, fmt.Errorf("chainclient: getrawtransaction %s: %w", txid, err)
	}
	return tx.MsgTx(), nil
}

// rawUTXOResult mirrors the subset of bchd's getaddressutxos reply this
// client reads.
type rawUTXOResult struct {
	TxID    string `json:"txid"`
	OutIdx  uint32 `json:"outputIndex"`
	Satoshi int64  `json:"satoshis"`
}

// RetrieveUTXOs lists address's spendable bare-BTC outputs, via bchd's
// address-index-backed getaddressutxos call.
func (c *Client) RetrieveUTXOs(address string) ([]channel.UTXO, error) {
	params, err := json.Marshal([]interface{}{map[string]interface{}{"addresses": []string{address}}})
	if err != nil {
		return nil, err
	}
	raw, err := c.rpc.RawRequest("getaddressutxos", []json.RawMessage{params})
	if err != nil {
		return nil, fmt.Errorf("chainclient: getaddressutxos %s: %w", address, err)
	}
	var results []rawUTXOResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("chainclient: decode getaddressutxos reply: %w", err)
	}
	utxos := make([]channel.UTXO, len(results))
	for i, r := range results {
		utxos[i] = channel.UTXO{TxID: r.TxID, Vout: r.OutIdx, Value: r.Satoshi}
	}
	return utxos, nil
}

// SignTx signs rawtx's ordinary P2PKH inputs with the given WIFs, the way
// an asset node's unsigned create_send output is normally completed by its
// owning wallet, via bchd's signrawtransaction RPC with the keys passed in.
func (c *Client) SignTx(rawtx []byte, wifs []string) ([]byte, error) {
	tx, err := decodeTx(rawtx)
	if err != nil {
		return nil, err
	}
	signed, complete, err := c.rpc.SignRawTransaction3(tx, nil, wifs)
	if err != nil {
		return nil, fmt.Errorf("chainclient: signrawtransaction: %w", err)
	}
	if !complete {
		return nil, fmt.Errorf("chainclient: transaction not fully signed with the given keys")
	}
	return encodeTx(signed)
}

// SendRawTransaction broadcasts tx and returns its txid.
func (c *Client) SendRawTransaction(tx *wire.MsgTx) (string, error) {
	hash, err := c.rpc.SendRawTransaction(tx, false)
	if err != nil {
		return "", fmt.Errorf("chainclient: sendrawtransaction: %w", err)
	}
	return hash.String(), nil
}

func decodeTx(rawtx []byte) (*wire.MsgTx, error) {
	tx := &wire.MsgTx{}
	if err := tx.BchDecode(bytes.NewReader(rawtx), 0, wire.BaseEncoding); err != nil {
		return nil, err
	}
	return tx, nil
}

func encodeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.BchEncode(&buf, 0, wire.BaseEncoding); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
