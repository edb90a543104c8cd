package channel

import (
	"github.com/gcash/bchd/txscript"
	"github.com/gcash/bchd/wire"
	"github.com/go-errors/errors"
)

// Deposit compiles the deposit script for a fresh channel to payeePubKey,
// checks the channel address has never been used before and that source
// carries enough asset and bare-BTC balance, then builds, signs and
// broadcasts the transaction locking quantity of the channel's asset into
// it. source is the payer's own asset-node address; the payer's BCH key is
// the one configured via WithLocalWIF.
func (c *Controller) Deposit(source string, payeePubKey, spendSecretHash []byte, expireTime, quantity int64) (txid string, rawtx, script []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.depositLocked(source, payeePubKey, spendSecretHash, expireTime, quantity)
}

func (c *Controller) depositLocked(source string, payeePubKey, spendSecretHash []byte, expireTime, quantity int64) (string, []byte, []byte, error) {
	if err := validatePubKey("payeePubKey", payeePubKey); err != nil {
		return "", nil, nil, err
	}
	if err := validateHash160("spendSecretHash", spendSecretHash); err != nil {
		return "", nil, nil, err
	}
	if err := validatePositive("expireTime", expireTime); err != nil {
		return "", nil, nil, err
	}
	if err := validatePositive("quantity", quantity); err != nil {
		return "", nil, nil, err
	}
	if len(c.state.DepositRawTx) != 0 {
		return "", nil, nil, ErrHasDeposit
	}

	payerPubKey, err := c.keys.WIFToPubKey(c.localWIF)
	if err != nil {
		return "", nil, nil, err
	}
	script, err := c.scripts.CompileDepositScript(payerPubKey, payeePubKey, spendSecretHash, expireTime)
	if err != nil {
		return "", nil, nil, err
	}
	addr, err := c.scripts.ScriptAddress(script)
	if err != nil {
		return "", nil, nil, err
	}
	depositAddress := addr.EncodeAddress()

	txids, err := c.chain.GetTransactions(depositAddress)
	if err != nil {
		return "", nil, nil, &TransportError{Op: "GetTransactions", Err: err}
	}
	if len(txids) != 0 {
		return "", nil, nil, &ChannelAlreadyUsedError{Address: depositAddress, TxIDs: txids}
	}

	balance, err := c.assetNode.GetBalance(source, c.asset)
	if err != nil {
		return "", nil, nil, &TransportError{Op: "GetBalance", Err: err}
	}
	if balance < quantity {
		return "", nil, nil, &InsufficientFundsError{Required: quantity, Available: balance}
	}

	// Carries enough bare BTC into the deposit output to fund three future
	// spends (a commit, then its payout or revoke, then the deposit's
	// change or expire recovery) without depending on the payer's wallet
	// having spendable change left by the time one of them is needed.
	extraBTC := 3 * (c.fee + c.dust)
	utxos, err := c.chain.RetrieveUTXOs(source)
	if err != nil {
		return "", nil, nil, &TransportError{Op: "RetrieveUTXOs", Err: err}
	}
	var btcAvailable int64
	for _, u := range utxos {
		btcAvailable += u.Value
	}
	if btcAvailable < extraBTC {
		return "", nil, nil, &InsufficientFundsError{Required: extraBTC, Available: btcAvailable}
	}

	unsigned, err := c.assetNode.CreateSend(source, depositAddress, c.asset, quantity, extraBTC)
	if err != nil {
		return "", nil, nil, &TransportError{Op: "CreateSend", Err: err}
	}
	signed, err := c.chain.SignTx(unsigned, []string{c.localWIF})
	if err != nil {
		return "", nil, nil, &TransportError{Op: "SignTx", Err: err}
	}
	tx, err := decodeTx(signed)
	if err != nil {
		return "", nil, nil, &MismatchError{What: "deposit rawtx", Expected: "decodable transaction", Got: err.Error()}
	}

	// Mirrors the original's assert(_get_quantity(rawtx) == quantity):
	// the asset node composed this transaction itself, so a mismatch here
	// is the asset node (or our own request to it) misbehaving, not
	// counterparty input to validate.
	gotQuantity, err := c.assetNode.Unpack(signed, c.asset)
	if err != nil {
		return "", nil, nil, &TransportError{Op: "Unpack", Err: err}
	}
	if gotQuantity != quantity {
		return "", nil, nil, &AssertionError{What: "deposit quantity round-trip", Expected: quantity, Got: gotQuantity}
	}

	txid, err := c.broadcast(tx)
	if err != nil {
		return "", nil, nil, err
	}

	c.clearLocked()
	c.state.PayerPubKey = payerPubKey
	c.state.PayeePubKey = payeePubKey
	c.state.SpendSecretHash = spendSecretHash
	c.state.ExpireTime = expireTime
	c.state.DepositScript = script
	c.state.DepositAddress = depositAddress
	c.state.DepositRawTx = signed
	c.state.Amount = quantity

	log.Infof("channel: deposit %s broadcast for %d of %s to %s", txid, quantity, c.asset, depositAddress)
	return txid, signed, script, nil
}

// depositOutput finds the output of the deposit transaction that pays the
// deposit P2SH address, returning its outpoint and value.
func (c *Controller) depositOutput() (*wire.OutPoint, int64, error) {
	tx, err := decodeTx(c.state.DepositRawTx)
	if err != nil {
		return nil, 0, err
	}
	depositAddr, err := c.scripts.ScriptAddress(c.state.DepositScript)
	if err != nil {
		return nil, 0, err
	}
	wantScript, err := txscript.PayToAddrScript(depositAddr)
	if err != nil {
		return nil, 0, err
	}
	for i, out := range tx.TxOut {
		if string(out.PkScript) == string(wantScript) {
			return &wire.OutPoint{Hash: tx.TxHash(), Index: uint32(i)}, out.Value, nil
		}
	}
	return nil, 0, errors.New("channel: deposit transaction has no output paying the deposit address")
}

// CreateCommit builds and half-signs a new commit transaction reassigning
// quantity of the deposit toward the payee, answering a revokeSecretHash
// the payee generated and disclosed via RequestCommit. delayTime is this
// commit's own payout-branch relative timelock (in confirmations), chosen
// by the payer at commit-creation time and embedded in the commit script
// itself, matching the source's create_commit(quantity, revoke_secret_hash,
// delay_time) signature. The payer never learns the revoke secret itself;
// only its hash is embedded in the commit script, so the payer cannot
// punish its own stale commit broadcasts until the payee later discloses
// the secret via RevokeUntil/RevokeAll.
func (c *Controller) CreateCommit(quantity int64, revokeSecretHash []byte, delayTime int64) (rawtx []byte, script []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createCommitLocked(quantity, revokeSecretHash, delayTime)
}

func (c *Controller) createCommitLocked(quantity int64, revokeSecretHash []byte, delayTime int64) ([]byte, []byte, error) {
	if err := validatePositive("quantity", quantity); err != nil {
		return nil, nil, err
	}
	if err := validateHash160("revokeSecretHash", revokeSecretHash); err != nil {
		return nil, nil, err
	}
	if err := validatePositive("delayTime", delayTime); err != nil {
		return nil, nil, err
	}
	if len(c.state.DepositRawTx) == 0 {
		return nil, nil, ErrNoDeposit
	}
	if quantity > c.state.Amount {
		return nil, nil, &InvalidQuantityError{Quantity: quantity, Total: c.state.Amount}
	}
	if quantity <= c.transferredAmountLocked() {
		return nil, nil, &InvalidQuantityError{Quantity: quantity, Total: c.state.Amount}
	}

	script, err := c.scripts.CompileCommitScript(c.state.PayerPubKey, c.state.PayeePubKey, c.state.SpendSecretHash, revokeSecretHash, delayTime)
	if err != nil {
		return nil, nil, err
	}
	commitAddr, err := c.scripts.ScriptAddress(script)
	if err != nil {
		return nil, nil, err
	}

	outpoint, depositValue, err := c.depositOutput()
	if err != nil {
		return nil, nil, err
	}

	// Mirrors the original's extra_btc branching in _create_commit: once
	// quantity assigns the deposit's entire balance to the payee there is
	// no asset change left to carry, so every satoshi past the fee can go
	// into the commit output; otherwise the commit only needs enough
	// extra BTC to fund its own eventual payout or revoke spend.
	assetBalance, err := c.assetNode.GetBalance(c.state.DepositAddress, c.asset)
	if err != nil {
		return nil, nil, &TransportError{Op: "GetBalance", Err: err}
	}
	var extraBTC int64
	if quantity == assetBalance {
		extraBTC = depositValue - c.fee
	} else {
		extraBTC = c.fee + c.dust
	}
	if extraBTC < c.dust {
		return nil, nil, &InsufficientFundsError{Required: c.fee + c.dust, Available: depositValue}
	}

	unsigned, err := c.assetNode.CreateSend(c.state.DepositAddress, commitAddr.EncodeAddress(), c.asset, quantity, extraBTC)
	if err != nil {
		return nil, nil, &TransportError{Op: "CreateSend", Err: err}
	}

	// Mirrors the original's assert(_get_quantity(rawtx) == quantity)
	// inside _create_tx: the asset node composed this transaction itself,
	// so a mismatch here is the asset node (or our own request to it)
	// misbehaving, not counterparty input to validate.
	gotQuantity, err := c.assetNode.Unpack(unsigned, c.asset)
	if err != nil {
		return nil, nil, &TransportError{Op: "Unpack", Err: err}
	}
	if gotQuantity != quantity {
		return nil, nil, &AssertionError{What: "commit quantity round-trip", Expected: quantity, Got: gotQuantity}
	}

	tx, err := decodeTx(unsigned)
	if err != nil {
		return nil, nil, &MismatchError{What: "commit rawtx", Expected: "decodable transaction", Got: err.Error()}
	}
	if len(tx.TxIn) == 0 || len(tx.TxOut) == 0 {
		return nil, nil, errors.New("channel: commit transaction template has no inputs or outputs")
	}
	// The deposit's own P2SH output is this commit's only spendable
	// input; pin it explicitly rather than trusting the asset node's
	// general UTXO selection to have located the right one under a
	// custom script address it has no visibility into.
	tx.TxIn[0].PreviousOutPoint = *outpoint
	tx.TxIn[0].Sequence = wire.MaxTxInSequenceNum

	if tx.TxOut[0].Value < c.dust {
		return nil, nil, &InsufficientFundsError{Required: c.dust, Available: tx.TxOut[0].Value}
	}

	privKey, err := c.keys.WIFToPrivKey(c.localWIF)
	if err != nil {
		return nil, nil, err
	}
	scriptSig, err := c.scripts.SignDepositMultisig(tx, 0, c.state.DepositScript, depositValue, privKey, nil)
	if err != nil {
		return nil, nil, err
	}
	tx.TxIn[0].SignatureScript = scriptSig

	rawtx, err := encodeTx(tx)
	if err != nil {
		return nil, nil, err
	}

	c.state.Active = append(c.state.Active, &Commit{
		Quantity:         quantity,
		RevokeSecretHash: revokeSecretHash,
		DelayTime:        delayTime,
		Script:           script,
		Address:          commitAddr.EncodeAddress(),
		RawTx:            rawtx,
	})
	orderActive(c.state.Active)

	log.Infof("channel: half-signed commit for %d of %s at %s", quantity, c.asset, commitAddr.EncodeAddress())
	return rawtx, script, nil
}

// PayerUpdate is the payer side's periodic maintenance tick. It punishes
// any revoked commit it observes broadcast on chain (claiming the full
// quantity via the revoke branch with a secret the payee has since
// disclosed), recovers the deposit's unassigned change once the payee's
// spend secret surfaces on chain, and otherwise reclaims the whole deposit
// via the expire branch once the deposit has ExpireTime confirmations and
// no change or expire recovery has been broadcast yet.
func (c *Controller) PayerUpdate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.state.DepositRawTx) == 0 {
		return nil
	}

	for _, commit := range c.state.Revoked {
		if commit.RevokeSecret == nil {
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
		if _, err := c.recoverRevokeLocked(commit); err != nil {
			return err
		}
	}

	if len(c.state.ChangeRawTxs) == 0 && len(c.state.ExpireRawTxs) == 0 {
		spendable, err := c.spendableLocked(c.state.DepositAddress)
		if err != nil {
			return err
		}
		if spendable {
			if secret, ok, err := c.findRevealedSpendSecretLocked(); err != nil {
				return err
			} else if ok {
				if _, err := c.recoverChangeLocked(secret); err != nil {
					return err
				}
			}
		}
	}

	if len(c.state.ChangeRawTxs) == 0 && len(c.state.ExpireRawTxs) == 0 {
		expired, err := c.depositExpiredLocked()
		if err != nil {
			return err
		}
		if expired {
			if _, err := c.recoverExpireLocked(); err != nil {
				return err
			}
		}
	}
	return nil
}
