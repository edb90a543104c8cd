// Package channel implements the payment channel controller: the
// in-memory state machine tracking a single payer/payee channel's deposit
// and commit lifecycle, its commit ordering and revocation bookkeeping,
// and the four recovery paths (payout, revoke-punish, change, expire).
package channel

import (
	"sync"
	"time"

	"github.com/gcash/bchd/chaincfg"
	"github.com/go-errors/errors"
)

// Sentinel errors for controller construction and lifecycle, in the same
// style as the teacher's wallet/loader.go ErrLoaded/ErrNotLoaded.
var (
	ErrNoDeposit  = errors.New("channel: no deposit set up yet")
	ErrHasDeposit = errors.New("channel: deposit already set up")
)

const (
	defaultFee                    = 10000
	defaultDustSize                = 5430
	defaultBroadcastRetryInterval = 10 * time.Second
	defaultBroadcastDeadline      = 10 * time.Minute
)

// Controller is one channel's state machine. All exported methods lock c.mu
// once and delegate to an unexported *Locked counterpart; RevokeUntil calls
// revokeAllLocked directly rather than re-entering RevokeAll, which is how
// this controller gets away with a plain sync.Mutex instead of a reentrant
// lock (see SPEC_FULL.md §4.1).
type Controller struct {
	mu sync.Mutex

	state *State

	assetNode AssetNode
	chain     ChainClient
	scripts   ScriptToolkit
	keys      KeyToolkit

	asset string
	fee   int64
	dust  int64

	localWIF     string
	sweepAddress string
	params       *chaincfg.Params

	broadcastRetryInterval time.Duration
	broadcastDeadline      time.Duration
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithLocalWIF sets the private key this controller signs with. Which
// role (payer or payee) that key plays is determined by which of the
// payer-side/payee-side methods the embedder calls, not by anything
// recorded here.
func WithLocalWIF(wif string) Option {
	return func(c *Controller) { c.localWIF = wif }
}

// WithSweepAddress sets the address recovered funds (change, expired
// deposit, payout, revoke-punish proceeds) are swept to.
func WithSweepAddress(addr string) Option {
	return func(c *Controller) { c.sweepAddress = addr }
}

// WithParams sets the network parameters addresses are decoded/encoded
// under. Defaults to mainnet if never set.
func WithParams(params *chaincfg.Params) Option {
	return func(c *Controller) { c.params = params }
}

// WithFee overrides the default transaction fee (in satoshis).
func WithFee(fee int64) Option {
	return func(c *Controller) { c.fee = fee }
}

// WithDustSize overrides the default dust threshold (in satoshis).
func WithDustSize(dust int64) Option {
	return func(c *Controller) { c.dust = dust }
}

// WithBroadcastRetryInterval overrides how often a failed broadcast is
// retried.
func WithBroadcastRetryInterval(d time.Duration) Option {
	return func(c *Controller) { c.broadcastRetryInterval = d }
}

// WithBroadcastDeadline bounds how long broadcastWithRetry keeps retrying
// before giving up, resolving the unbounded-retry-loop open question.
func WithBroadcastDeadline(d time.Duration) Option {
	return func(c *Controller) { c.broadcastDeadline = d }
}

// New constructs a Controller for the given asset over the given
// collaborators.
func New(asset string, assetNode AssetNode, chain ChainClient, scripts ScriptToolkit, keys KeyToolkit, opts ...Option) *Controller {
	c := &Controller{
		state:                  &State{Asset: asset},
		assetNode:              assetNode,
		chain:                  chain,
		scripts:                scripts,
		keys:                   keys,
		asset:                  asset,
		fee:                    defaultFee,
		dust:                   defaultDustSize,
		params:                 &chaincfg.MainNetParams,
		broadcastRetryInterval: defaultBroadcastRetryInterval,
		broadcastDeadline:      defaultBroadcastDeadline,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
