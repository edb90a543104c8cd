// Package assetnode talks to a Counterparty-style asset node's JSON-RPC
// 2.0 API: create_send, get_balances, get_tx_info and the asset layer's
// data-payload unpacker. Grounded on original_source/picopayments/api.py's
// _add_counterparty_call passthrough (every one of those calls is a bare
// JSON-RPC method forwarded verbatim to the node) and on the teacher's
// pymtproto.PaymentProtocolClient for the net/http client shape. No
// JSON-RPC client library appears anywhere in the retrieved examples, so
// this dispatches requests by hand over net/http + encoding/json rather
// than reaching for an unexercised dependency.
package assetnode

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/picopayments/mpchub/channel"
)

// Config holds the connection parameters for a Counterparty-style JSON-RPC
// endpoint.
type Config struct {
	RPCConnect string
	RPCUser    string
	RPCPass    string
}

// Client implements channel.AssetNode against a live asset node.
type Client struct {
	endpoint   string
	user, pass string
	httpClient *http.Client
}

var _ channel.AssetNode = (*Client)(nil)

// New returns a Client for the asset node at cfg.RPCConnect.
func New(cfg Config) *Client {
	return &Client{
		endpoint:   cfg.RPCConnect,
		user:       cfg.RPCUser,
		pass:       cfg.RPCPass,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("assetnode: rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call issues a single JSON-RPC 2.0 request and unmarshals its result into
// out (which may be nil to discard it).
func (c *Client) call(method string, params interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("assetnode: %s: %w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("assetnode: %s: decode response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// createSendParams mirrors create_send's keyword arguments as accepted by
// the asset node's JSON-RPC dispatcher.
type createSendParams struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Asset       string `json:"asset"`
	Quantity    int64  `json:"quantity"`
	RegularDust int64  `json:"regular_dust_size,omitempty"`
}

// CreateSend builds an unsigned raw transaction moving quantity of asset
// from source to destination, carrying an extra extraBTC of bare BTC
// dust into the same transaction for the deposit's own future
// recovery-branch spends.
func (c *Client) CreateSend(source, destination, asset string, quantity, extraBTC int64) ([]byte, error) {
	var hexResult string
	err := c.call("create_send", createSendParams{
		Source:      source,
		Destination: destination,
		Asset:       asset,
		Quantity:    quantity,
		RegularDust: extraBTC,
	}, &hexResult)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(hexResult)
}

type balancesParams struct {
	Filters []balanceFilter `json:"filters"`
}

type balanceFilter struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value string `json:"value"`
}

type balanceRow struct {
	Quantity int64 `json:"quantity"`
}

// GetBalance returns the confirmed balance of asset at address, via
// get_balances filtered to (address, asset).
func (c *Client) GetBalance(address, asset string) (int64, error) {
	var rows []balanceRow
	err := c.call("get_balances", balancesParams{Filters: []balanceFilter{
		{Field: "address", Op: "==", Value: address},
		{Field: "asset", Op: "==", Value: asset},
	}}, &rows)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, r := range rows {
		total += r.Quantity
	}
	return total, nil
}

type txInfoParams struct {
	TxHex string `json:"tx_hex"`
}

// txInfoResult mirrors get_tx_info's (src, dest, btc, fee, data_hex)
// tuple; only the data payload matters here, the rest is the asset node's
// own business.
type txInfoResult struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	BTCAmount   int64  `json:"btc_amount"`
	Fee         int64  `json:"fee"`
	Data        string `json:"data"`
}

type unpackParams struct {
	DataHex string `json:"data_hex"`
}

// unpackResult mirrors unpack's (message_type_id, {asset, quantity, ...})
// pair.
type unpackResult struct {
	MessageTypeID int64 `json:"message_type_id"`
	Message       struct {
		Asset    string `json:"asset"`
		Quantity int64  `json:"quantity"`
	} `json:"message"`
}

// ErrNotAssetSend reports that a transaction's embedded data payload is
// not a plain asset-send message (message_type_id != 0). Per spec.md §6
// this is fatal: the caller has no way to recover a quantity from it.
type ErrNotAssetSend struct {
	MessageTypeID int64
}

func (e *ErrNotAssetSend) Error() string {
	return fmt.Sprintf("assetnode: tx data is message type %d, want 0 (asset send)", e.MessageTypeID)
}

// Unpack recovers the transferred quantity from rawtx's embedded
// asset-layer data payload, via get_tx_info followed by unpack, mirroring
// original_source/picopayments/api.py's _get_quantity two-step call and
// its message_type_id==0 / asset-match assertions. wantAsset is the asset
// the caller expects this payload to move; a mismatch is returned as an
// error. The controller calls this both on transactions its own asset node
// composed and on deposit and commit transactions the payer supplied.
func (c *Client) Unpack(rawtx []byte, wantAsset string) (int64, error) {
	var info txInfoResult
	if err := c.call("get_tx_info", txInfoParams{TxHex: hex.EncodeToString(rawtx)}, &info); err != nil {
		return 0, err
	}
	var unpacked unpackResult
	if err := c.call("unpack", unpackParams{DataHex: info.Data}, &unpacked); err != nil {
		return 0, err
	}
	if unpacked.MessageTypeID != 0 {
		return 0, &ErrNotAssetSend{MessageTypeID: unpacked.MessageTypeID}
	}
	if unpacked.Message.Asset != wantAsset {
		return 0, fmt.Errorf("assetnode: unpacked asset %q, want %q", unpacked.Message.Asset, wantAsset)
	}
	return unpacked.Message.Quantity, nil
}
