// Package scripttoolkit compiles and inspects the P2SH redeem scripts the
// channel controller locks deposits and commits under, and produces the
// scriptSigs for every redemption branch. Everything here is a pure
// function of its arguments: no network or disk I/O, matching the "script
// compilation helpers are pure functions" framing the controller assumes
// of its collaborators.
package scripttoolkit

import (
	"bytes"

	"github.com/gcash/bchd/bchec"
	"github.com/gcash/bchd/chaincfg"
	"github.com/gcash/bchd/txscript"
	"github.com/gcash/bchd/wire"
	"github.com/gcash/bchutil"
	"github.com/go-errors/errors"
)

// RedemptionBranch tags which spend path a signed transaction exercises.
// Each branch has a distinct required-secret shape, enforced by which
// Sign* method the caller must use rather than by a single stringly-typed
// entrypoint.
type RedemptionBranch int

const (
	BranchCreateCommit RedemptionBranch = iota
	BranchFinalizeCommit
	BranchExpire
	BranchChange
	BranchPayout
	BranchRevoke
)

var trueSelector = []byte{0x01}
var falseSelector = []byte{}

// DepositFields are the values compiled into a deposit script, recoverable
// from the script bytes alone.
type DepositFields struct {
	PayerPubKey     []byte
	PayeePubKey     []byte
	SpendSecretHash []byte
	ExpireTime      int64
}

// CommitFields are the values compiled into a commit script. The payout
// branch checks the payee's signature (the payee's ordinary cash-out path,
// after the delay elapses); the revoke branch checks the payer's signature
// (the payer's own punishment path against itself, should it ever
// broadcast a commit a newer one has since superseded).
type CommitFields struct {
	PayerPubKey      []byte
	PayeePubKey      []byte
	SpendSecretHash  []byte
	DelayTime        int64
	RevokeSecretHash []byte
}

// ScriptToolkit builds and inspects deposit/commit scripts and produces
// scriptSigs for each redemption branch.
type ScriptToolkit interface {
	CompileDepositScript(payerPubKey, payeePubKey, spendSecretHash []byte, expireTime int64) ([]byte, error)
	CompileCommitScript(payerPubKey, payeePubKey, spendSecretHash, revokeSecretHash []byte, delayTime int64) ([]byte, error)

	ExtractDeposit(script []byte) (*DepositFields, error)
	ExtractCommit(script []byte) (*CommitFields, error)

	ScriptAddress(script []byte) (bchutil.Address, error)

	SignDepositMultisig(tx *wire.MsgTx, idx int, redeemScript []byte, amount int64, privKey *bchec.PrivateKey, counterpartySig []byte) ([]byte, error)
	SignChangeSpend(tx *wire.MsgTx, idx int, redeemScript []byte, amount int64, privKey *bchec.PrivateKey, spendSecret []byte) ([]byte, error)
	SignExpireSpend(tx *wire.MsgTx, idx int, redeemScript []byte, amount int64, privKey *bchec.PrivateKey) ([]byte, error)
	SignPayout(tx *wire.MsgTx, idx int, redeemScript []byte, amount int64, privKey *bchec.PrivateKey, spendSecret []byte) ([]byte, error)
	SignRevoke(tx *wire.MsgTx, idx int, redeemScript []byte, amount int64, privKey *bchec.PrivateKey, revokeSecret []byte) ([]byte, error)

	RawSignature(tx *wire.MsgTx, idx int, redeemScript []byte, amount int64, privKey *bchec.PrivateKey) ([]byte, error)

	VerifyPayerHalfSignature(tx *wire.MsgTx, idx int, expectedScript []byte, payerPubKey []byte, amount int64) error
	ExtractCooperativeSignature(tx *wire.MsgTx, idx int) ([]byte, error)
	IsComplete(tx *wire.MsgTx, idx int, prevScript []byte, amount int64) bool
	ExtractSpendSecret(tx *wire.MsgTx, idx int) ([]byte, bool)
	ExtractRevokeSecret(tx *wire.MsgTx, idx int) ([]byte, bool)
}

type toolkit struct {
	params *chaincfg.Params
}

// New returns a ScriptToolkit bound to the given network parameters.
func New(params *chaincfg.Params) ScriptToolkit {
	return &toolkit{params: params}
}

// CompileDepositScript builds:
//
//	OP_IF
//	  2 <payerPubKey> <payeePubKey> 2 OP_CHECKMULTISIG
//	OP_ELSE
//	  OP_IF
//	    OP_HASH160 <spendSecretHash> OP_EQUALVERIFY <payerPubKey> OP_CHECKSIG
//	  OP_ELSE
//	    <expireTime> OP_CHECKSEQUENCEVERIFY OP_DROP <payerPubKey> OP_CHECKSIG
//	  OP_ENDIF
//	OP_ENDIF
//
// grounded on the teacher's buildP2SHAddress/buildBreachRemedyAddress
// nested-branch style in paymentchannels/channel.go.
func (t *toolkit) CompileDepositScript(payerPubKey, payeePubKey, spendSecretHash []byte, expireTime int64) ([]byte, error) {
	if len(spendSecretHash) != 20 {
		return nil, errors.New("scripttoolkit: spend secret hash must be 20 bytes")
	}

	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_IF)
	b.AddOp(txscript.OP_2)
	b.AddData(payerPubKey)
	b.AddData(payeePubKey)
	b.AddOp(txscript.OP_2)
	b.AddOp(txscript.OP_CHECKMULTISIG)
	b.AddOp(txscript.OP_ELSE)
	b.AddOp(txscript.OP_IF)
	b.AddOp(txscript.OP_HASH160)
	b.AddData(spendSecretHash)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddData(payerPubKey)
	b.AddOp(txscript.OP_CHECKSIG)
	b.AddOp(txscript.OP_ELSE)
	b.AddData(encodeScriptNum(expireTime))
	b.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	b.AddOp(txscript.OP_DROP)
	b.AddData(payerPubKey)
	b.AddOp(txscript.OP_CHECKSIG)
	b.AddOp(txscript.OP_ENDIF)
	b.AddOp(txscript.OP_ENDIF)
	return b.Script()
}

// CompileCommitScript builds:
//
//	OP_IF
//	  OP_HASH160 <spendSecretHash> OP_EQUALVERIFY <delayTime> OP_CHECKSEQUENCEVERIFY OP_DROP <payeePubKey> OP_CHECKSIG
//	OP_ELSE
//	  OP_HASH160 <revokeSecretHash> OP_EQUALVERIFY <payerPubKey> OP_CHECKSIG
//	OP_ENDIF
//
// The payout branch checks the payee's key; the revoke branch checks the
// payer's key, so the payer itself is the one who can claim the full
// committed amount immediately if it ever broadcasts a commit a newer one
// has since superseded.
func (t *toolkit) CompileCommitScript(payerPubKey, payeePubKey, spendSecretHash, revokeSecretHash []byte, delayTime int64) ([]byte, error) {
	if len(spendSecretHash) != 20 || len(revokeSecretHash) != 20 {
		return nil, errors.New("scripttoolkit: secret hashes must be 20 bytes")
	}

	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_IF)
	b.AddOp(txscript.OP_HASH160)
	b.AddData(spendSecretHash)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddData(encodeScriptNum(delayTime))
	b.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	b.AddOp(txscript.OP_DROP)
	b.AddData(payeePubKey)
	b.AddOp(txscript.OP_CHECKSIG)
	b.AddOp(txscript.OP_ELSE)
	b.AddOp(txscript.OP_HASH160)
	b.AddData(revokeSecretHash)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddData(payerPubKey)
	b.AddOp(txscript.OP_CHECKSIG)
	b.AddOp(txscript.OP_ENDIF)
	return b.Script()
}

// ExtractDeposit recovers the fields compiled into a deposit script by
// their known fixed position in the push sequence
// [payerPubKey, payeePubKey, spendSecretHash, payerPubKey(dup), expireTime, payerPubKey(dup)].
func (t *toolkit) ExtractDeposit(script []byte) (*DepositFields, error) {
	pushes, err := extractPushes(script)
	if err != nil {
		return nil, err
	}
	if len(pushes) < 6 {
		return nil, errors.New("scripttoolkit: not a deposit script")
	}
	return &DepositFields{
		PayerPubKey:     pushes[0],
		PayeePubKey:     pushes[1],
		SpendSecretHash: pushes[2],
		ExpireTime:      decodeScriptNum(pushes[4]),
	}, nil
}

// ExtractCommit recovers the fields compiled into a commit script, in the
// known push order
// [spendSecretHash, delayTime, payeePubKey, revokeSecretHash, payerPubKey].
func (t *toolkit) ExtractCommit(script []byte) (*CommitFields, error) {
	pushes, err := extractPushes(script)
	if err != nil {
		return nil, err
	}
	if len(pushes) < 5 {
		return nil, errors.New("scripttoolkit: not a commit script")
	}
	return &CommitFields{
		SpendSecretHash:  pushes[0],
		DelayTime:        decodeScriptNum(pushes[1]),
		PayeePubKey:      pushes[2],
		RevokeSecretHash: pushes[3],
		PayerPubKey:      pushes[4],
	}, nil
}

// ScriptAddress returns the P2SH address the given redeem script locks
// funds under.
func (t *toolkit) ScriptAddress(script []byte) (bchutil.Address, error) {
	return bchutil.NewAddressScriptHash(script, t.params)
}

func p2shScriptSig(parts [][]byte, redeemScript []byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	for _, p := range parts {
		b.AddData(p)
	}
	b.AddData(redeemScript)
	return b.Script()
}

// RawSignature returns a single raw signature over tx's input idx under
// redeemScript, exactly as the teacher's buildCommitmentScriptSig produces
// signatures via txscript.RawTxInSignature.
func (t *toolkit) RawSignature(tx *wire.MsgTx, idx int, redeemScript []byte, amount int64, privKey *bchec.PrivateKey) ([]byte, error) {
	return txscript.RawTxInSignature(tx, idx, redeemScript, txscript.SigHashAll, privKey, amount)
}

// SignDepositMultisig fills in the 2-of-2 cooperative branch's scriptSig.
// counterpartySig may be nil/empty when only the local signature is
// available yet (the create_commit half-signed state); the scriptSig is
// still well-formed, just not yet spendable.
func (t *toolkit) SignDepositMultisig(tx *wire.MsgTx, idx int, redeemScript []byte, amount int64, privKey *bchec.PrivateKey, counterpartySig []byte) ([]byte, error) {
	sig, err := t.RawSignature(tx, idx, redeemScript, amount, privKey)
	if err != nil {
		return nil, err
	}
	// payerSig must come before payeeSig to match the pubkey order
	// (payer, payee) compiled into the redeem script.
	var payerSig, payeeSig []byte
	if isPayerKey(redeemScript, privKey) {
		payerSig, payeeSig = sig, counterpartySig
	} else {
		payerSig, payeeSig = counterpartySig, sig
	}
	return p2shScriptSig([][]byte{{}, orEmpty(payerSig), orEmpty(payeeSig), trueSelector}, redeemScript)
}

func orEmpty(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// isPayerKey reports whether privKey's pubkey matches the payer slot of
// the deposit redeem script.
func isPayerKey(redeemScript []byte, privKey *bchec.PrivateKey) bool {
	pushes, err := extractPushes(redeemScript)
	if err != nil || len(pushes) == 0 {
		return true
	}
	return bytes.Equal(pushes[0], privKey.PubKey().SerializeCompressed())
}

// SignChangeSpend signs the deposit's change-recover branch: payer reveals
// the spend secret embedded by a later commit to reclaim unassigned funds.
func (t *toolkit) SignChangeSpend(tx *wire.MsgTx, idx int, redeemScript []byte, amount int64, privKey *bchec.PrivateKey, spendSecret []byte) ([]byte, error) {
	sig, err := t.RawSignature(tx, idx, redeemScript, amount, privKey)
	if err != nil {
		return nil, err
	}
	return p2shScriptSig([][]byte{sig, spendSecret, trueSelector, falseSelector}, redeemScript)
}

// SignExpireSpend signs the deposit's expire-recover branch: payer reclaims
// the deposit once the relative timelock has elapsed.
func (t *toolkit) SignExpireSpend(tx *wire.MsgTx, idx int, redeemScript []byte, amount int64, privKey *bchec.PrivateKey) ([]byte, error) {
	sig, err := t.RawSignature(tx, idx, redeemScript, amount, privKey)
	if err != nil {
		return nil, err
	}
	return p2shScriptSig([][]byte{sig, falseSelector, falseSelector}, redeemScript)
}

// SignPayout signs the commit's payout branch: payee claims the committed
// amount by revealing the spend secret after the commit delay elapses.
func (t *toolkit) SignPayout(tx *wire.MsgTx, idx int, redeemScript []byte, amount int64, privKey *bchec.PrivateKey, spendSecret []byte) ([]byte, error) {
	sig, err := t.RawSignature(tx, idx, redeemScript, amount, privKey)
	if err != nil {
		return nil, err
	}
	return p2shScriptSig([][]byte{sig, spendSecret, trueSelector}, redeemScript)
}

// SignRevoke signs the commit's revoke (breach-remedy/justice) branch:
// payer claims the full committed amount immediately, using a revoke
// secret the payee disclosed once this commit was superseded, punishing
// itself for broadcasting a stale commit anyway.
func (t *toolkit) SignRevoke(tx *wire.MsgTx, idx int, redeemScript []byte, amount int64, privKey *bchec.PrivateKey, revokeSecret []byte) ([]byte, error) {
	sig, err := t.RawSignature(tx, idx, redeemScript, amount, privKey)
	if err != nil {
		return nil, err
	}
	return p2shScriptSig([][]byte{sig, revokeSecret, falseSelector}, redeemScript)
}

// VerifyPayerHalfSignature implements the checks spec.md's
// _validate_payer_deposit/_validate_payer_commit TODOs left unfinished:
// the scriptSig must (1) embed exactly expectedScript as its redeem
// script, (2) select the 2-of-2 cooperative branch, (3) carry exactly one
// non-empty signature, in the payer's slot, and (4) that signature must
// verify against payerPubKey for this input's sighash.
func (t *toolkit) VerifyPayerHalfSignature(tx *wire.MsgTx, idx int, expectedScript []byte, payerPubKey []byte, amount int64) error {
	if idx < 0 || idx >= len(tx.TxIn) {
		return errors.New("scripttoolkit: input index out of range")
	}
	pushes, err := extractPushes(tx.TxIn[idx].SignatureScript)
	if err != nil {
		return err
	}
	if len(pushes) != 4 {
		return errors.New("scripttoolkit: malformed scriptSig shape")
	}
	dummy, sigA, sigB, selector := pushes[0], pushes[1], pushes[2], pushes[3]
	if len(dummy) != 0 {
		return errors.New("scripttoolkit: missing CHECKMULTISIG dummy element")
	}
	if !bytes.Equal(selector, trueSelector) {
		return errors.New("scripttoolkit: scriptSig does not select the cooperative branch")
	}
	embeddedScript := tx.TxIn[idx].SignatureScript[len(tx.TxIn[idx].SignatureScript)-len(expectedScript):]
	if !bytes.Equal(embeddedScript, expectedScript) {
		return errors.New("scripttoolkit: scriptSig's redeem script does not match the expected script")
	}

	var payerSig []byte
	switch {
	case len(sigA) > 0 && len(sigB) == 0:
		payerSig = sigA
	default:
		return errors.New("scripttoolkit: expected exactly one signature present, in the payer's slot")
	}

	sigHash, err := txscript.CalcSignatureHash(expectedScript, txscript.SigHashAll, tx, idx, amount)
	if err != nil {
		return err
	}
	if len(payerSig) == 0 {
		return errors.New("scripttoolkit: empty signature")
	}
	parsedSig, err := bchec.ParseDERSignature(payerSig[:len(payerSig)-1], bchec.S256())
	if err != nil {
		return err
	}
	pubKey, err := bchec.ParsePubKey(payerPubKey, bchec.S256())
	if err != nil {
		return err
	}
	if !parsedSig.Verify(sigHash, pubKey) {
		return errors.New("scripttoolkit: payer signature does not verify")
	}
	return nil
}

// ExtractCooperativeSignature pulls the lone signature out of a
// half-signed deposit-multisig scriptSig, so the other party can complete
// it via SignDepositMultisig's counterpartySig argument.
func (t *toolkit) ExtractCooperativeSignature(tx *wire.MsgTx, idx int) ([]byte, error) {
	if idx < 0 || idx >= len(tx.TxIn) {
		return nil, errors.New("scripttoolkit: input index out of range")
	}
	pushes, err := extractPushes(tx.TxIn[idx].SignatureScript)
	if err != nil {
		return nil, err
	}
	if len(pushes) != 4 {
		return nil, errors.New("scripttoolkit: malformed scriptSig shape")
	}
	sigA, sigB := pushes[1], pushes[2]
	switch {
	case len(sigA) > 0 && len(sigB) == 0:
		return sigA, nil
	case len(sigB) > 0 && len(sigA) == 0:
		return sigB, nil
	default:
		return nil, errors.New("scripttoolkit: expected exactly one signature present")
	}
}

// IsComplete reports whether tx's input idx fully satisfies prevScript,
// mirroring the teacher's validateCommitmentSignature: build an engine and
// execute it. prevScript is the redeem script, not the output's actual
// pkScript, so it's wrapped back into its P2SH form first — NewEngine
// needs the real previous output script to drive BIP16's two-pass
// evaluation (hash check, then the redeem script against the stack below
// it), not the bare redeem script on its own.
func (t *toolkit) IsComplete(tx *wire.MsgTx, idx int, prevScript []byte, amount int64) bool {
	addr, err := t.ScriptAddress(prevScript)
	if err != nil {
		return false
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return false
	}
	engine, err := txscript.NewEngine(pkScript, tx, idx, txscript.StandardVerifyFlags, nil, nil, amount)
	if err != nil {
		return false
	}
	return engine.Execute() == nil
}

// ExtractSpendSecret pulls the revealed spend secret out of a broadcast
// change or payout scriptSig, if present. The spend secret is the data
// push immediately before the branch selectors in the change/payout
// scriptSig shapes this toolkit produces; expire scriptSigs carry none.
func (t *toolkit) ExtractSpendSecret(tx *wire.MsgTx, idx int) ([]byte, bool) {
	if idx < 0 || idx >= len(tx.TxIn) {
		return nil, false
	}
	pushes, err := extractPushes(tx.TxIn[idx].SignatureScript)
	if err != nil {
		return nil, false
	}
	// change: [sig, secret, true, false, redeemScript] -> 5 pushes
	// payout: [sig, secret, true, redeemScript] -> 4 pushes
	switch len(pushes) {
	case 5:
		if bytes.Equal(pushes[2], trueSelector) && bytes.Equal(pushes[3], falseSelector) {
			return pushes[1], true
		}
	case 4:
		if bytes.Equal(pushes[2], trueSelector) {
			return pushes[1], true
		}
	}
	return nil, false
}

// ExtractRevokeSecret pulls the revealed revoke secret out of a broadcast
// revoke (justice) scriptSig, if present.
func (t *toolkit) ExtractRevokeSecret(tx *wire.MsgTx, idx int) ([]byte, bool) {
	if idx < 0 || idx >= len(tx.TxIn) {
		return nil, false
	}
	pushes, err := extractPushes(tx.TxIn[idx].SignatureScript)
	if err != nil {
		return nil, false
	}
	// revoke: [sig, secret, false, redeemScript] -> 4 pushes
	if len(pushes) == 4 && len(pushes[2]) == 0 {
		return pushes[1], true
	}
	return nil, false
}
