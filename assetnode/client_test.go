package assetnode

import (
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
)

func TestClientGetBalance(t *testing.T) {
	c := New(Config{RPCConnect: "http://counterparty.example:4000/api/"})
	httpmock.ActivateNonDefault(c.httpClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", c.endpoint, httpmock.NewStringResponder(200,
		`{"jsonrpc":"2.0","id":1,"result":[{"quantity":5000}]}`))

	balance, err := c.GetBalance("bitcoincash:qzpayeeaddr", "XCP")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance != 5000 {
		t.Fatalf("balance = %d, want 5000", balance)
	}
}

func TestClientCreateSend(t *testing.T) {
	c := New(Config{RPCConnect: "http://counterparty.example:4000/api/"})
	httpmock.ActivateNonDefault(c.httpClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", c.endpoint, httpmock.NewStringResponder(200,
		`{"jsonrpc":"2.0","id":1,"result":"deadbeef"}`))

	rawtx, err := c.CreateSend("source", "dest", "XCP", 1000, 20000)
	if err != nil {
		t.Fatalf("CreateSend: %v", err)
	}
	if string(rawtx) != "\xde\xad\xbe\xef" {
		t.Fatalf("rawtx = %x, want deadbeef", rawtx)
	}
}

func TestClientUnpack(t *testing.T) {
	c := New(Config{RPCConnect: "http://counterparty.example:4000/api/"})
	httpmock.ActivateNonDefault(c.httpClient)
	defer httpmock.DeactivateAndReset()

	calls := 0
	httpmock.RegisterResponder("POST", c.endpoint, func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return httpmock.NewStringResponse(200,
				`{"jsonrpc":"2.0","id":1,"result":{"data":"deadbeef"}}`), nil
		}
		return httpmock.NewStringResponse(200,
			`{"jsonrpc":"2.0","id":1,"result":{"message_type_id":0,"message":{"asset":"XCP","quantity":1000}}}`), nil
	})

	quantity, err := c.Unpack([]byte{0x01}, "XCP")
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if quantity != 1000 {
		t.Fatalf("quantity = %d, want 1000", quantity)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (get_tx_info then unpack)", calls)
	}
}

func TestClientUnpackRejectsNonAssetSend(t *testing.T) {
	c := New(Config{RPCConnect: "http://counterparty.example:4000/api/"})
	httpmock.ActivateNonDefault(c.httpClient)
	defer httpmock.DeactivateAndReset()

	calls := 0
	httpmock.RegisterResponder("POST", c.endpoint, func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return httpmock.NewStringResponse(200,
				`{"jsonrpc":"2.0","id":1,"result":{"data":"deadbeef"}}`), nil
		}
		return httpmock.NewStringResponse(200,
			`{"jsonrpc":"2.0","id":1,"result":{"message_type_id":22,"message":{}}}`), nil
	})

	_, err := c.Unpack([]byte{0x01}, "XCP")
	if err == nil {
		t.Fatal("expected Unpack to reject a non-asset-send message type")
	}
	if _, ok := err.(*ErrNotAssetSend); !ok {
		t.Errorf("error type = %T, want *ErrNotAssetSend", err)
	}
}

func TestClientRPCError(t *testing.T) {
	c := New(Config{RPCConnect: "http://counterparty.example:4000/api/"})
	httpmock.ActivateNonDefault(c.httpClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", c.endpoint, httpmock.NewStringResponder(200,
		`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"insufficient funds"}}`))

	if _, err := c.GetBalance("addr", "XCP"); err == nil {
		t.Fatal("expected an error, got nil")
	}
}
