package channel

import (
	"encoding/binary"

	"github.com/gcash/bchd/chaincfg"
	"github.com/gcash/bchd/txscript"
	"github.com/gcash/bchd/wire"
	"github.com/gcash/bchutil"
	"github.com/go-errors/errors"
)

// mockAssetNode is a minimal in-memory stand-in for a Counterparty-style
// asset node: GetBalance reads from a plain map, and CreateSend builds a
// real transaction carrying bare BTC (well over extraBTC, see below) into
// destination plus an OP_RETURN output encoding quantity, the way a real create_send
// response embeds its asset-transfer message in the transaction itself
// rather than in a side channel. Embedding it in an output (instead of
// keying a lookup table by txid) means Unpack keeps reading the same
// quantity back even after the caller rewrites the funding input and
// signs — exactly as it would for a real rawtx, since signing an input
// never touches another output's script.
type mockAssetNode struct {
	params   *chaincfg.Params
	balances map[string]int64
	nextVout uint32
}

func newMockAssetNode(params *chaincfg.Params) *mockAssetNode {
	return &mockAssetNode{
		params:   params,
		balances: make(map[string]int64),
	}
}

func (m *mockAssetNode) GetBalance(address, asset string) (int64, error) {
	return m.balances[address], nil
}

func (m *mockAssetNode) CreateSend(source, destination, asset string, quantity, extraBTC int64) ([]byte, error) {
	addr, err := bchutil.DecodeAddress(destination, m.params)
	if err != nil {
		return nil, err
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: m.nextVout}, Sequence: wire.MaxTxInSequenceNum})
	m.nextVout++
	// Carry comfortably more than extraBTC so every downstream fee
	// deduction (commit, then a recovery sweep) still clears dust.
	tx.AddTxOut(&wire.TxOut{Value: extraBTC*20 + 1_000_000, PkScript: pkScript})
	tx.AddTxOut(&wire.TxOut{Value: 0, PkScript: quantityMarkerScript(quantity)})
	rawtx, err := encodeTx(tx)
	if err != nil {
		return nil, err
	}
	// This mock credits quantity to destination as soon as the
	// transaction is composed, whether or not it is ever broadcast, and
	// never debits source; mockChainClient.SendRawTransaction does not
	// touch balances either.
	m.balances[destination] += quantity
	return rawtx, nil
}

// Unpack scans rawtx for the quantity marker CreateSend embedded, the
// same round-trip a real asset node's get_tx_info+unpack pair would
// answer for a transaction it or its counterpart composed.
func (m *mockAssetNode) Unpack(rawtx []byte, asset string) (int64, error) {
	tx, err := decodeTx(rawtx)
	if err != nil {
		return 0, err
	}
	for _, out := range tx.TxOut {
		if quantity, ok := parseQuantityMarkerScript(out.PkScript); ok {
			return quantity, nil
		}
	}
	return 0, nil
}

// quantityMarkerScript builds a minimal OP_RETURN output script carrying
// quantity as an 8-byte big-endian push, standing in for the data encoding
// a real Counterparty send embeds in its transaction.
func quantityMarkerScript(quantity int64) []byte {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, uint64(quantity))
	script := make([]byte, 0, len(data)+2)
	script = append(script, txscript.OP_RETURN, byte(len(data)))
	return append(script, data...)
}

func parseQuantityMarkerScript(pkScript []byte) (int64, bool) {
	if len(pkScript) != 10 || pkScript[0] != txscript.OP_RETURN || pkScript[1] != 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(pkScript[2:])), true
}

// mockChainClient is an in-memory stand-in for a bchd RPC client. It
// performs no script validation on broadcast (matching what a real node
// would separately reject at the mempool layer, which is out of scope for
// exercising the controller's own bookkeeping): SendRawTransaction simply
// records the transaction and indexes its outputs by address, the same
// shape chainclient.Client's searchrawtransactions/getaddressutxos-backed
// methods expose to the controller.
type mockChainClient struct {
	params    *chaincfg.Params
	txs       map[string]*wire.MsgTx
	txsByAddr map[string][]string
	confs     map[string]int64
	utxos     map[string][]UTXO
}

func newMockChainClient(params *chaincfg.Params) *mockChainClient {
	return &mockChainClient{
		params:    params,
		txs:       make(map[string]*wire.MsgTx),
		txsByAddr: make(map[string][]string),
		confs:     make(map[string]int64),
		utxos:     make(map[string][]UTXO),
	}
}

func (m *mockChainClient) GetTransactions(address string) ([]string, error) {
	return m.txsByAddr[address], nil
}

func (m *mockChainClient) Confirms(txid string) (*int64, error) {
	n, ok := m.confs[txid]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (m *mockChainClient) RetrieveTx(txid string) (*wire.MsgTx, error) {
	tx, ok := m.txs[txid]
	if !ok {
		return nil, errors.New("mockChainClient: unknown txid " + txid)
	}
	return tx, nil
}

func (m *mockChainClient) RetrieveUTXOs(address string) ([]UTXO, error) {
	return m.utxos[address], nil
}

func (m *mockChainClient) SignTx(rawtx []byte, wifs []string) ([]byte, error) {
	return rawtx, nil
}

func (m *mockChainClient) SendRawTransaction(tx *wire.MsgTx) (string, error) {
	txid := tx.TxHash().String()
	m.txs[txid] = tx
	for _, out := range tx.TxOut {
		_, addrs, _, err := txscript.ExtractPkScriptAddrs(out.PkScript, m.params)
		if err != nil || len(addrs) == 0 {
			continue
		}
		addr := addrs[0].EncodeAddress()
		m.txsByAddr[addr] = append(m.txsByAddr[addr], txid)
	}
	if _, ok := m.confs[txid]; !ok {
		m.confs[txid] = 0
	}
	return txid, nil
}

func (m *mockChainClient) setConfirms(txid string, n int64) {
	m.confs[txid] = n
}
