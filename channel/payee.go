package channel

import (
	"bytes"
	"fmt"

	"github.com/gcash/bchd/txscript"
	"github.com/gcash/bchd/wire"
	"github.com/gcash/bchutil"
	"github.com/go-errors/errors"
)

// Setup initializes a fresh channel on the payee side: it generates the
// spend secret shared between every commit's payout branch and the
// deposit's change-recover branch, and returns the payee's own pubkey
// (derived from the local WIF) plus the secret's hash for the payer to
// compile into a deposit script. The spend secret itself is withheld from
// the payer until a commit payout broadcast by PayeeUpdate reveals it.
func (c *Controller) Setup() (payeePubKey, spendSecretHash []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setupLocked()
}

func (c *Controller) setupLocked() ([]byte, []byte, error) {
	if c.state.DepositAddress != "" {
		return nil, nil, ErrHasDeposit
	}

	payeePubKey, err := c.keys.WIFToPubKey(c.localWIF)
	if err != nil {
		return nil, nil, err
	}
	spendSecret, spendSecretHash, err := newSecret()
	if err != nil {
		return nil, nil, err
	}

	c.clearLocked()
	c.state.PayeePubKey = payeePubKey
	c.state.SpendSecret = spendSecret
	c.state.SpendSecretHash = spendSecretHash

	log.Infof("channel: payee set up with spend secret hash %x", spendSecretHash)
	return payeePubKey, spendSecretHash, nil
}

// SetDeposit records the deposit transaction and script the payer
// broadcast, as observed independently on chain (the sync protocol that
// hands these across is out of scope here). It validates that the script
// embeds this payee's own pubkey and spend secret hash before accepting
// it, deriving the payer's pubkey and the deposit's expire time from the
// script itself.
func (c *Controller) SetDeposit(rawtx, script []byte, quantity int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setDepositLocked(rawtx, script, quantity)
}

func (c *Controller) setDepositLocked(rawtx, script []byte, quantity int64) error {
	if len(c.state.DepositRawTx) != 0 {
		return ErrHasDeposit
	}
	if err := validatePositive("quantity", quantity); err != nil {
		return err
	}

	fields, err := c.scripts.ExtractDeposit(script)
	if err != nil {
		return &MismatchError{What: "deposit script", Expected: "decodable deposit script", Got: err.Error()}
	}
	if !bytes.Equal(fields.PayeePubKey, c.state.PayeePubKey) {
		return &MismatchError{What: "deposit payeePubKey", Expected: string(c.state.PayeePubKey), Got: string(fields.PayeePubKey)}
	}
	if !bytes.Equal(fields.SpendSecretHash, c.state.SpendSecretHash) {
		return &MismatchError{What: "deposit spendSecretHash", Expected: string(c.state.SpendSecretHash), Got: string(fields.SpendSecretHash)}
	}

	depositAddr, err := scriptAddressFor(c.scripts, script)
	if err != nil {
		return err
	}
	if _, _, err := depositOutputForScript(c.scripts, script, rawtx); err != nil {
		return &MismatchError{What: "deposit rawtx", Expected: "an output paying the deposit address", Got: err.Error()}
	}

	gotQuantity, err := c.assetNode.Unpack(rawtx, c.asset)
	if err != nil {
		return &TransportError{Op: "Unpack", Err: err}
	}
	if gotQuantity != quantity {
		return &MismatchError{What: "deposit quantity", Expected: fmt.Sprintf("%d", quantity), Got: fmt.Sprintf("%d", gotQuantity)}
	}

	c.state.PayerPubKey = fields.PayerPubKey
	c.state.ExpireTime = fields.ExpireTime
	c.state.DepositScript = script
	c.state.DepositAddress = depositAddr
	c.state.DepositRawTx = rawtx
	c.state.Amount = quantity
	return nil
}

func scriptAddressFor(scripts ScriptToolkit, script []byte) (string, error) {
	addr, err := scripts.ScriptAddress(script)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

func depositOutputForScript(scripts ScriptToolkit, script, rawtx []byte) (*wire.OutPoint, int64, error) {
	tx, err := decodeTx(rawtx)
	if err != nil {
		return nil, 0, err
	}
	depositAddr, err := scripts.ScriptAddress(script)
	if err != nil {
		return nil, 0, err
	}
	wantScript, err := txscript.PayToAddrScript(depositAddr)
	if err != nil {
		return nil, 0, err
	}
	for i, out := range tx.TxOut {
		if bytes.Equal(out.PkScript, wantScript) {
			return &wire.OutPoint{Hash: tx.TxHash(), Index: uint32(i)}, out.Value, nil
		}
	}
	return nil, 0, errors.New("channel: transaction has no output paying the deposit address")
}

// RequestCommit asks the payer (over the sync protocol) to reassign
// quantity toward the payee. It generates a fresh revoke secret for this
// commit, records it under Requested, and returns only its hash: the
// payer embeds the hash in the commit script via CreateCommit, and never
// learns the secret itself until RevokeUntil/RevokeAll later discloses it.
func (c *Controller) RequestCommit(quantity int64) (revokeSecretHash []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestCommitLocked(quantity)
}

func (c *Controller) requestCommitLocked(quantity int64) ([]byte, error) {
	if len(c.state.DepositRawTx) == 0 {
		return nil, ErrNoDeposit
	}
	if err := validatePositive("quantity", quantity); err != nil {
		return nil, err
	}
	if quantity > c.state.Amount {
		return nil, &InvalidQuantityError{Quantity: quantity, Total: c.state.Amount}
	}
	if quantity <= c.transferredAmountLocked() {
		return nil, &InvalidQuantityError{Quantity: quantity, Total: c.state.Amount}
	}

	revokeSecret, revokeSecretHash, err := newSecret()
	if err != nil {
		return nil, err
	}
	c.state.Requested = append(c.state.Requested, &Commit{
		Quantity:         quantity,
		RevokeSecretHash: revokeSecretHash,
		RevokeSecret:     revokeSecret,
	})
	return revokeSecretHash, nil
}

// SetCommit accepts the payer's half-signed commit transaction, validates
// the payer's half of the 2-of-2 cooperative signature and the script's
// bindings against this channel's terms, and — only if it matches an
// outstanding RequestCommit by revoke secret hash — appends it to Active
// and returns the channel's new transferred amount. It does not complete
// or broadcast the transaction: that happens only once, at CloseChannel
// time. If no matching request is found, it is a no-op returning zero.
func (c *Controller) SetCommit(rawtx, script []byte, quantity int64) (transferred int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setCommitLocked(rawtx, script, quantity)
}

func (c *Controller) setCommitLocked(rawtx, script []byte, quantity int64) (int64, error) {
	if len(c.state.DepositRawTx) == 0 {
		return 0, ErrNoDeposit
	}
	fields, err := c.scripts.ExtractCommit(script)
	if err != nil {
		return 0, err
	}
	if !bytes.Equal(fields.PayerPubKey, c.state.PayerPubKey) {
		return 0, &MismatchError{What: "commit payerPubKey", Expected: string(c.state.PayerPubKey), Got: string(fields.PayerPubKey)}
	}
	if !bytes.Equal(fields.PayeePubKey, c.state.PayeePubKey) {
		return 0, &MismatchError{What: "commit payeePubKey", Expected: string(c.state.PayeePubKey), Got: string(fields.PayeePubKey)}
	}
	if !bytes.Equal(fields.SpendSecretHash, c.state.SpendSecretHash) {
		return 0, &MismatchError{What: "commit spendSecretHash", Expected: string(c.state.SpendSecretHash), Got: string(fields.SpendSecretHash)}
	}
	if err := validatePositive("commit delayTime", fields.DelayTime); err != nil {
		return 0, err
	}

	tx, err := decodeTx(rawtx)
	if err != nil {
		return 0, &MismatchError{What: "commit rawtx", Expected: "decodable transaction", Got: err.Error()}
	}
	_, depositValue, err := c.depositOutput()
	if err != nil {
		return 0, err
	}
	if err := c.scripts.VerifyPayerHalfSignature(tx, 0, c.state.DepositScript, c.state.PayerPubKey, depositValue); err != nil {
		return 0, &ValidationError{Field: "commit payer signature", Reason: err.Error()}
	}

	gotQuantity, err := c.assetNode.Unpack(rawtx, c.asset)
	if err != nil {
		return 0, &TransportError{Op: "Unpack", Err: err}
	}
	if gotQuantity != quantity {
		return 0, &MismatchError{What: "commit quantity", Expected: fmt.Sprintf("%d", quantity), Got: fmt.Sprintf("%d", gotQuantity)}
	}

	idx := -1
	for i, req := range c.state.Requested {
		if bytes.Equal(req.RevokeSecretHash, fields.RevokeSecretHash) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return 0, nil
	}
	requested := c.state.Requested[idx]
	c.state.Requested = append(c.state.Requested[:idx], c.state.Requested[idx+1:]...)

	addr, err := c.scripts.ScriptAddress(script)
	if err != nil {
		return 0, err
	}
	c.state.Active = append(c.state.Active, &Commit{
		Quantity:         quantity,
		RevokeSecretHash: fields.RevokeSecretHash,
		RevokeSecret:     requested.RevokeSecret,
		DelayTime:        fields.DelayTime,
		Script:           script,
		Address:          addr.EncodeAddress(),
		RawTx:            rawtx,
	})
	orderActive(c.state.Active)

	log.Infof("channel: commit accepted for %d of %s at %s", quantity, c.asset, addr.EncodeAddress())
	return c.state.Active[len(c.state.Active)-1].Quantity, nil
}

// RevokeUntil discloses every revoke secret for active commits whose
// quantity strictly exceeds quantity, the cutoff the payee is settling down
// to, and moves them into Revoked via revokeAllLocked, returning the
// disclosed secrets so the payer can punish any of them broadcast after the
// fact.
func (c *Controller) RevokeUntil(quantity int64) (secrets [][]byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revokeUntilLocked(quantity)
}

func (c *Controller) revokeUntilLocked(quantity int64) ([][]byte, error) {
	orderActive(c.state.Active)
	var secrets [][]byte
	for i := len(c.state.Active) - 1; i >= 0; i-- {
		commit := c.state.Active[i]
		if commit.Quantity <= quantity {
			break
		}
		secrets = append(secrets, commit.RevokeSecret)
	}
	if err := c.revokeAllLocked(secrets); err != nil {
		return nil, err
	}
	return secrets, nil
}

// RevokeAll moves every Active commit whose revoke secret hash matches one
// of secrets into Revoked, recording the now-disclosed secret against it.
// Secrets matching no Active commit are silently ignored.
func (c *Controller) RevokeAll(secrets [][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revokeAllLocked(secrets)
}

func (c *Controller) revokeAllLocked(secrets [][]byte) error {
	for _, secret := range secrets {
		hash := bchutil.Hash160(secret)
		var remaining []*Commit
		for _, commit := range c.state.Active {
			if bytes.Equal(commit.RevokeSecretHash, hash) {
				commit.RevokeSecret = secret
				c.state.Revoked = append(c.state.Revoked, commit)
			} else {
				remaining = append(remaining, commit)
			}
		}
		c.state.Active = remaining
	}
	return nil
}

// CloseChannel is the payee's ordinary, cooperative close: it finalizes
// the highest-quantity Active commit's half-signed deposit-spend by
// co-signing the cooperative 2-of-2 branch, then broadcasts it. This is
// the only point at which a commit transaction becomes fully signed and
// spendable — SetCommit only ever stores it half-signed.
func (c *Controller) CloseChannel() (txid string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeChannelLocked()
}

func (c *Controller) closeChannelLocked() (string, error) {
	if len(c.state.Active) == 0 {
		return "", &ProtocolError{Op: "CloseChannel", Reason: "no active commit to close with"}
	}
	commit := c.state.Active[len(c.state.Active)-1]

	tx, err := decodeTx(commit.RawTx)
	if err != nil {
		return "", &MismatchError{What: "commit rawtx", Expected: "decodable transaction", Got: err.Error()}
	}
	_, depositValue, err := c.depositOutput()
	if err != nil {
		return "", err
	}
	payerSig, err := c.scripts.ExtractCooperativeSignature(tx, 0)
	if err != nil {
		return "", err
	}
	privKey, err := c.keys.WIFToPrivKey(c.localWIF)
	if err != nil {
		return "", err
	}
	scriptSig, err := c.scripts.SignDepositMultisig(tx, 0, c.state.DepositScript, depositValue, privKey, payerSig)
	if err != nil {
		return "", err
	}
	tx.TxIn[0].SignatureScript = scriptSig
	if !c.scripts.IsComplete(tx, 0, c.state.DepositScript, depositValue) {
		return "", &ValidationError{Field: "commit scriptSig", Reason: "does not satisfy the deposit script after co-signing"}
	}

	txid, err := c.broadcast(tx)
	if err != nil {
		return "", err
	}
	finalRawtx, err := encodeTx(tx)
	if err != nil {
		return "", err
	}
	commit.RawTx = finalRawtx

	log.Infof("channel: closed channel via txid %s", txid)
	return txid, nil
}

// PayeeUpdate is the payee side's periodic maintenance tick: once a
// commit's delay has elapsed and it is still spendable, it claims the
// committed amount via the commit's payout branch, revealing the shared
// spend secret so the payer can in turn recover the deposit's unassigned
// change. It runs over every commit still known — Active and Revoked
// alike — since a revoked commit the payer never actually broadcast is
// still, from the payee's side, a payout waiting to be claimed.
func (c *Controller) PayeeUpdate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, commit := range append(append([]*Commit{}, c.state.Active...), c.state.Revoked...) {
		if commit.RawTx == nil {
			continue
		}
		spent, err := c.commitSpent(commit)
		if err != nil {
			return err
		}
		if spent {
			continue
		}
		spendable, err := c.spendableLocked(commit.Address)
		if err != nil {
			return err
		}
		if !spendable {
			continue
		}
		confs, err := c.chain.Confirms(mustTxID(commit.RawTx))
		if err != nil {
			return &TransportError{Op: "Confirms", Err: err}
		}
		if confs == nil || *confs < commit.DelayTime {
			continue
		}
		if _, err := c.recoverCommitPayoutLocked(commit); err != nil {
			return err
		}
	}
	return nil
}

func mustTxID(rawtx []byte) string {
	tx, err := decodeTx(rawtx)
	if err != nil {
		return ""
	}
	return tx.TxHash().String()
}
