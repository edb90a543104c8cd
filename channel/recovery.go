package channel

import (
	"crypto/rand"

	"github.com/gcash/bchd/chaincfg/chainhash"
	"github.com/gcash/bchd/txscript"
	"github.com/gcash/bchd/wire"
	"github.com/gcash/bchutil"
	"github.com/go-errors/errors"
)

// newSecret generates a fresh 32-byte secret and its hash160, used for
// both spend secrets and revoke secrets.
func newSecret() (secret, hash []byte, err error) {
	secret = make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, nil, err
	}
	return secret, bchutil.Hash160(secret), nil
}

// decodeAddress parses addr under the controller's configured network.
func (c *Controller) decodeAddress(addr string) (bchutil.Address, error) {
	return bchutil.DecodeAddress(addr, c.params)
}

// spendableLocked reports whether address carries a nonzero asset balance
// and the first txid GetTransactions returns for it has at least one
// confirmation — the condition PayerUpdate's revoke-punish and change
// passes and PayeeUpdate's payout pass gate on before attempting a spend.
func (c *Controller) spendableLocked(address string) (bool, error) {
	balance, err := c.assetNode.GetBalance(address, c.asset)
	if err != nil {
		return false, &TransportError{Op: "GetBalance", Err: err}
	}
	if balance == 0 {
		return false, nil
	}
	txids, err := c.chain.GetTransactions(address)
	if err != nil {
		return false, &TransportError{Op: "GetTransactions", Err: err}
	}
	if len(txids) == 0 {
		return false, nil
	}
	confs, err := c.chain.Confirms(txids[0])
	if err != nil {
		return false, &TransportError{Op: "Confirms", Err: err}
	}
	return confs != nil && *confs > 0, nil
}

// commitSpent reports whether commit is spent on chain: some transaction
// in this side's own PayoutRawTxs, RevokeRawTxs, ChangeRawTxs, or
// ExpireRawTxs has an input whose previous outpoint is commit's own txid.
// Both update loops skip spent commits, which is what makes a repeated
// call against an unchanged chain snapshot a no-op instead of resubmitting
// the same recovery transaction.
func (c *Controller) commitSpent(commit *Commit) (bool, error) {
	if commit.RawTx == nil {
		return false, nil
	}
	tx, err := decodeTx(commit.RawTx)
	if err != nil {
		return false, err
	}
	return c.txidSpentLocked(tx.TxHash())
}

func (c *Controller) txidSpentLocked(txid chainhash.Hash) (bool, error) {
	for _, rawtxs := range [][][]byte{
		c.state.PayoutRawTxs, c.state.RevokeRawTxs, c.state.ChangeRawTxs, c.state.ExpireRawTxs,
	} {
		for _, rawtx := range rawtxs {
			tx, err := decodeTx(rawtx)
			if err != nil {
				return false, err
			}
			for _, in := range tx.TxIn {
				if in.PreviousOutPoint.Hash == txid {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// depositExpiredLocked reports whether the deposit transaction has at least
// ExpireTime confirmations; it does not look at commits. The
// same "confirmations elapsed" reading is used both as the recovery
// readiness gate and as the relative-sequence value compiled into the
// expire branch, so there is no divergence between the two (open question
// #3 in SPEC_FULL.md §9).
func (c *Controller) depositExpiredLocked() (bool, error) {
	confirmed, err := c.isConfirmedLocked(c.state.DepositRawTx, 1)
	if err != nil || !confirmed {
		return false, err
	}
	tx, err := decodeTx(c.state.DepositRawTx)
	if err != nil {
		return false, err
	}
	confs, err := c.chain.Confirms(tx.TxHash().String())
	if err != nil {
		return false, &TransportError{Op: "Confirms", Err: err}
	}
	return confs != nil && *confs >= c.state.ExpireTime, nil
}

// recoverExpireLocked reclaims the full deposit via the expire-recover
// branch once depositExpiredLocked is true.
func (c *Controller) recoverExpireLocked() (string, error) {
	outpoint, value, err := c.depositOutput()
	if err != nil {
		return "", err
	}
	tx, err := c.buildSweepTx(*outpoint, value, uint32(c.state.ExpireTime))
	if err != nil {
		return "", err
	}

	privKey, err := c.keys.WIFToPrivKey(c.localWIF)
	if err != nil {
		return "", err
	}
	scriptSig, err := c.scripts.SignExpireSpend(tx, 0, c.state.DepositScript, value, privKey)
	if err != nil {
		return "", err
	}
	tx.TxIn[0].SignatureScript = scriptSig

	txid, err := c.broadcast(tx)
	if err != nil {
		return "", err
	}
	rawtx, err := encodeTx(tx)
	if err != nil {
		return "", err
	}
	c.state.ExpireRawTxs = append(c.state.ExpireRawTxs, rawtx)
	log.Infof("channel: recovered expired deposit via txid %s", txid)
	return txid, nil
}

// findRevealedSpendSecretLocked looks for the payee's spend secret among
// every commit address ever created for this channel — Active and
// Revoked alike — extracting it from whichever payout scriptSig has been
// broadcast.
func (c *Controller) findRevealedSpendSecretLocked() ([]byte, bool, error) {
	for _, commit := range append(append([]*Commit{}, c.state.Active...), c.state.Revoked...) {
		txids, err := c.chain.GetTransactions(commit.Address)
		if err != nil {
			return nil, false, &TransportError{Op: "GetTransactions", Err: err}
		}
		for _, txid := range txids {
			tx, err := c.chain.RetrieveTx(txid)
			if err != nil {
				continue
			}
			for i := range tx.TxIn {
				if secret, ok := c.scripts.ExtractSpendSecret(tx, i); ok {
					return secret, true, nil
				}
			}
		}
	}
	return nil, false, nil
}

// recoverChangeLocked reclaims the deposit's unassigned change once the
// payee's spend secret has surfaced on chain.
func (c *Controller) recoverChangeLocked(spendSecret []byte) (string, error) {
	outpoint, value, err := c.depositOutput()
	if err != nil {
		return "", err
	}
	tx, err := c.buildSweepTx(*outpoint, value, 0)
	if err != nil {
		return "", err
	}

	privKey, err := c.keys.WIFToPrivKey(c.localWIF)
	if err != nil {
		return "", err
	}
	scriptSig, err := c.scripts.SignChangeSpend(tx, 0, c.state.DepositScript, value, privKey, spendSecret)
	if err != nil {
		return "", err
	}
	tx.TxIn[0].SignatureScript = scriptSig

	txid, err := c.broadcast(tx)
	if err != nil {
		return "", err
	}
	rawtx, err := encodeTx(tx)
	if err != nil {
		return "", err
	}
	c.state.SpendSecret = spendSecret
	c.state.ChangeRawTxs = append(c.state.ChangeRawTxs, rawtx)
	log.Infof("channel: recovered deposit change via txid %s", txid)
	return txid, nil
}

// recoverCommitPayoutLocked is the payee's ordinary cash-out for one
// commit: spend its payout branch, revealing the channel's shared spend
// secret so the payer can in turn recover the deposit's unassigned change.
func (c *Controller) recoverCommitPayoutLocked(commit *Commit) (string, error) {
	outpoint, value, err := c.commitOutput(commit)
	if err != nil {
		return "", err
	}
	tx, err := c.buildSweepTx(*outpoint, value, uint32(commit.DelayTime))
	if err != nil {
		return "", err
	}

	privKey, err := c.keys.WIFToPrivKey(c.localWIF)
	if err != nil {
		return "", err
	}
	scriptSig, err := c.scripts.SignPayout(tx, 0, commit.Script, value, privKey, c.state.SpendSecret)
	if err != nil {
		return "", err
	}
	tx.TxIn[0].SignatureScript = scriptSig

	txid, err := c.broadcast(tx)
	if err != nil {
		return "", err
	}
	rawtx, err := encodeTx(tx)
	if err != nil {
		return "", err
	}
	c.state.PayoutRawTxs = append(c.state.PayoutRawTxs, rawtx)
	log.Infof("channel: claimed commit payout via txid %s", txid)
	return txid, nil
}

// recoverRevokeLocked punishes a payer who has broadcast a superseded
// commit, claiming its full quantity immediately.
func (c *Controller) recoverRevokeLocked(commit *Commit) (string, error) {
	if commit.RevokeSecret == nil {
		return "", &ProtocolError{Op: "RecoverRevoke", Reason: "revoke secret not yet disclosed for this commit"}
	}
	outpoint, value, err := c.commitOutput(commit)
	if err != nil {
		return "", err
	}
	tx, err := c.buildSweepTx(*outpoint, value, 0)
	if err != nil {
		return "", err
	}

	privKey, err := c.keys.WIFToPrivKey(c.localWIF)
	if err != nil {
		return "", err
	}
	scriptSig, err := c.scripts.SignRevoke(tx, 0, commit.Script, value, privKey, commit.RevokeSecret)
	if err != nil {
		return "", err
	}
	tx.TxIn[0].SignatureScript = scriptSig

	txid, err := c.broadcast(tx)
	if err != nil {
		return "", err
	}
	rawtx, err := encodeTx(tx)
	if err != nil {
		return "", err
	}
	c.state.RevokeRawTxs = append(c.state.RevokeRawTxs, rawtx)
	log.Infof("channel: punished stale commit broadcast via txid %s", txid)
	return txid, nil
}

// commitOutput returns output 0 of commit's own stored transaction (its
// outpoint and value), decoded from commit.RawTx without a chain lookup.
func (c *Controller) commitOutput(commit *Commit) (*wire.OutPoint, int64, error) {
	if commit.RawTx == nil {
		return nil, 0, errors.New("channel: commit has no broadcastable transaction")
	}
	tx, err := decodeTx(commit.RawTx)
	if err != nil {
		return nil, 0, err
	}
	if len(tx.TxOut) == 0 {
		return nil, 0, errors.New("channel: commit transaction has no outputs")
	}
	return &wire.OutPoint{Hash: tx.TxHash(), Index: 0}, tx.TxOut[0].Value, nil
}

// buildSweepTx constructs a one-input, one-output transaction spending
// outpoint (worth inputValue) to the controller's configured sweep
// address, minus the configured fee.
func (c *Controller) buildSweepTx(outpoint wire.OutPoint, inputValue int64, sequence uint32) (*wire.MsgTx, error) {
	if c.sweepAddress == "" {
		return nil, &ProtocolError{Op: "recovery", Reason: "no sweep address configured"}
	}
	outValue := inputValue - c.fee
	if outValue < c.dust {
		return nil, &InsufficientFundsError{Required: c.fee + c.dust, Available: inputValue}
	}

	addr, err := c.decodeAddress(c.sweepAddress)
	if err != nil {
		return nil, err
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	in := &wire.TxIn{PreviousOutPoint: outpoint}
	if sequence != 0 {
		in.Sequence = sequence
	} else {
		in.Sequence = wire.MaxTxInSequenceNum
	}
	tx.AddTxIn(in)
	tx.AddTxOut(&wire.TxOut{Value: outValue, PkScript: pkScript})
	return tx, nil
}
