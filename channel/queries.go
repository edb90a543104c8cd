package channel

// GetTransferredAmount returns the quantity currently reassigned toward
// the payee under the highest-quantity Active commit, or zero if there is
// no Active commit.
func (c *Controller) GetTransferredAmount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transferredAmountLocked()
}

func (c *Controller) transferredAmountLocked() int64 {
	if len(c.state.Active) == 0 {
		return 0
	}
	return c.state.Active[len(c.state.Active)-1].Quantity
}

// IsDepositConfirmed reports whether the deposit address still carries a
// nonzero asset balance and its funding transaction has at least
// minConfirms confirmations. A zero balance means the deposit has already
// moved on (recovered or settled), so it can never be considered confirmed
// again regardless of how the original funding tx now reads.
func (c *Controller) IsDepositConfirmed(minConfirms int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.state.DepositRawTx) == 0 {
		return false, nil
	}
	balance, err := c.assetNode.GetBalance(c.state.DepositAddress, c.asset)
	if err != nil {
		return false, &TransportError{Op: "GetBalance", Err: err}
	}
	if balance == 0 {
		return false, nil
	}
	return c.isConfirmedLocked(c.state.DepositRawTx, minConfirms)
}

// PayoutConfirmed reports whether every broadcast payout transaction has
// at least minConfirms confirmations. It is false while no payout has ever
// been broadcast.
func (c *Controller) PayoutConfirmed(minConfirms int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allConfirmedLocked(c.state.PayoutRawTxs, minConfirms)
}

// ChangeConfirmed reports whether every broadcast change-recovery
// transaction has at least minConfirms confirmations. It is false while no
// change-recovery has ever been broadcast.
func (c *Controller) ChangeConfirmed(minConfirms int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allConfirmedLocked(c.state.ChangeRawTxs, minConfirms)
}

func (c *Controller) allConfirmedLocked(rawtxs [][]byte, minConfirms int64) (bool, error) {
	if len(rawtxs) == 0 {
		return false, nil
	}
	for _, rawtx := range rawtxs {
		confirmed, err := c.isConfirmedLocked(rawtx, minConfirms)
		if err != nil {
			return false, err
		}
		if !confirmed {
			return false, nil
		}
	}
	return true, nil
}

func (c *Controller) isConfirmedLocked(rawtx []byte, minConfirms int64) (bool, error) {
	if len(rawtx) == 0 {
		return false, nil
	}
	tx, err := decodeTx(rawtx)
	if err != nil {
		return false, err
	}
	confs, err := c.chain.Confirms(tx.TxHash().String())
	if err != nil {
		return false, &TransportError{Op: "Confirms", Err: err}
	}
	return confs != nil && *confs >= minConfirms, nil
}
