package chainclient

import (
	"bytes"
	"testing"

	"github.com/gcash/bchd/wire"
)

// buildTx returns a small, deterministic transaction exercising the
// decodeTx/encodeTx round trip the rest of this package's RPC wrappers
// depend on.
func buildTx() *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: 1},
		SignatureScript:  []byte{0x51, 0x52},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(&wire.TxOut{Value: 54321, PkScript: []byte{0x76, 0xa9, 0x14}})
	return tx
}

func TestEncodeDecodeTxRoundTrip(t *testing.T) {
	want := buildTx()

	raw, err := encodeTx(want)
	if err != nil {
		t.Fatalf("encodeTx: %v", err)
	}

	got, err := decodeTx(raw)
	if err != nil {
		t.Fatalf("decodeTx: %v", err)
	}

	if got.TxHash() != want.TxHash() {
		t.Errorf("decodeTx round trip produced a different hash: got %s, want %s", got.TxHash(), want.TxHash())
	}
	if len(got.TxOut) != 1 || got.TxOut[0].Value != 54321 {
		t.Errorf("decodeTx did not round-trip the output: %+v", got.TxOut)
	}
}

func TestDecodeTxRejectsGarbage(t *testing.T) {
	if _, err := decodeTx([]byte{0xff, 0xff}); err == nil {
		t.Fatal("expected decodeTx to reject a truncated/invalid payload")
	}
}

func TestEncodeTxDeterministic(t *testing.T) {
	tx := buildTx()
	a, err := encodeTx(tx)
	if err != nil {
		t.Fatalf("encodeTx: %v", err)
	}
	b, err := encodeTx(tx)
	if err != nil {
		t.Fatalf("encodeTx: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("encodeTx is not deterministic for the same transaction")
	}
}
