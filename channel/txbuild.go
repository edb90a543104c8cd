package channel

import (
	"bytes"
	"context"
	"time"

	"github.com/gcash/bchd/wire"
	"github.com/go-errors/errors"
)

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

// broadcastWithRetry resolves the unbounded-retry open question: it polls
// on a ticker (same shape as the teacher's bootstrap.go reconnect loop)
// until the broadcast succeeds or ctx's deadline elapses.
func (c *Controller) broadcastWithRetry(ctx context.Context, tx *wire.MsgTx) (string, error) {
	ticker := time.NewTicker(c.broadcastRetryInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		txid, err := c.chain.SendRawTransaction(tx)
		if err == nil {
			return txid, nil
		}
		lastErr = err
		log.Debugf("broadcast attempt failed, will retry: %v", err)

		select {
		case <-ctx.Done():
			return "", &TransportError{Op: "SendRawTransaction", Err: errors.New("broadcast deadline exceeded: " + lastErr.Error())}
		case <-ticker.C:
		}
	}
}

// broadcast publishes tx as given (it does not sign it), retrying until
// c.broadcastDeadline elapses.
func (c *Controller) broadcast(tx *wire.MsgTx) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.broadcastDeadline)
	defer cancel()
	return c.broadcastWithRetry(ctx, tx)
}
