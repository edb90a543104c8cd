package hub

import (
	"fmt"
	"sync"
	"time"

	"github.com/gcash/bchd/chaincfg"

	"github.com/picopayments/mpchub/channel"
)

// Config bundles the collaborators every channel.Controller a Hub opens is
// constructed with. One Hub serves one asset/signing-key/sweep-address
// combination; operating several assets side by side means running
// several Hubs.
type Config struct {
	Asset        string
	AssetNode    channel.AssetNode
	Chain        channel.ChainClient
	Scripts      channel.ScriptToolkit
	Keys         channel.KeyToolkit
	LocalWIF     string
	SweepAddress string
	Params       *chaincfg.Params
	Fee          int64
	DustSize     int64

	BroadcastRetryInterval time.Duration
	BroadcastDeadline      time.Duration
}

// Hub is a multi-channel supervisor: it owns one channel.Controller per
// channel key (typically its deposit address), and serializes concurrent
// access to a given channel behind a keyed lock, so two goroutines racing
// on the same channel key never run its state machine concurrently while
// unrelated channels stay fully parallel. Where the channel's state lives
// on disk is the embedder's decision: Hub only ever hands back or accepts
// opaque Export/Import blobs, never touching a database itself. Grounded
// on paymentchannels.PaymentChannelNode, trimmed to the registry/locking
// responsibilities and stripped of its libp2p overlay networking, which
// this daemon has no use for.
type Hub struct {
	cfg  Config
	lock Kmutex

	mu       sync.Mutex
	channels map[string]*channel.Controller
}

// New returns an empty Hub. Use Import to populate it from previously
// exported channel state.
func New(cfg Config) *Hub {
	return &Hub{
		cfg:      cfg,
		lock:     NewKmutex(),
		channels: make(map[string]*channel.Controller),
	}
}

func (h *Hub) newController() *channel.Controller {
	opts := []channel.Option{
		channel.WithLocalWIF(h.cfg.LocalWIF),
		channel.WithSweepAddress(h.cfg.SweepAddress),
		channel.WithParams(h.cfg.Params),
		channel.WithFee(h.cfg.Fee),
		channel.WithDustSize(h.cfg.DustSize),
	}
	if h.cfg.BroadcastRetryInterval > 0 {
		opts = append(opts, channel.WithBroadcastRetryInterval(h.cfg.BroadcastRetryInterval))
	}
	if h.cfg.BroadcastDeadline > 0 {
		opts = append(opts, channel.WithBroadcastDeadline(h.cfg.BroadcastDeadline))
	}
	return channel.New(h.cfg.Asset, h.cfg.AssetNode, h.cfg.Chain, h.cfg.Scripts, h.cfg.Keys, opts...)
}

// Channel returns the Controller for key, creating a fresh one wired to
// this hub's collaborators if key has never been seen before. The caller
// should hold key's lock (Lock/Unlock) across any sequence of calls that
// must appear atomic to a concurrent request for the same channel.
func (h *Hub) Channel(key string) *channel.Controller {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.channels[key]
	if !ok {
		c = h.newController()
		h.channels[key] = c
	}
	return c
}

// Forget removes a channel from the registry, once it has fully settled
// and the embedder no longer needs to keep it around.
func (h *Hub) Forget(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.channels, key)
}

// Keys returns every channel key currently registered.
func (h *Hub) Keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]string, 0, len(h.channels))
	for key := range h.channels {
		keys = append(keys, key)
	}
	return keys
}

// Lock serializes access to the channel keyed by key. Callers must pair
// every Lock with an Unlock, typically via defer.
func (h *Hub) Lock(key string) {
	h.lock.Lock(key)
}

// Unlock releases a lock taken by Lock.
func (h *Hub) Unlock(key string) {
	h.lock.Unlock(key)
}

// Export gob-encodes key's current channel state for the embedder to
// persist however it likes.
func (h *Hub) Export(key string) ([]byte, error) {
	h.mu.Lock()
	c, ok := h.channels[key]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("hub: export: unknown channel %s", key)
	}
	return serializeState(c.Save())
}

// Import registers key with state decoded from a blob previously produced
// by Export, replacing any in-memory controller already registered for
// key. Use this to restore a hub's registry from the embedder's own
// persistence at startup.
func (h *Hub) Import(key string, blob []byte) error {
	state, err := deserializeState(blob)
	if err != nil {
		return fmt.Errorf("hub: import %s: %w", key, err)
	}
	c := h.newController()
	c.Load(state)

	h.mu.Lock()
	h.channels[key] = c
	h.mu.Unlock()
	return nil
}

// ExportAll gob-encodes every registered channel's state, keyed by channel
// key, for bulk snapshotting.
func (h *Hub) ExportAll() (map[string][]byte, error) {
	out := make(map[string][]byte)
	for _, key := range h.Keys() {
		blob, err := h.Export(key)
		if err != nil {
			return nil, err
		}
		out[key] = blob
	}
	return out, nil
}

// UpdateAll runs both sides of PayerUpdate/PayeeUpdate across every
// registered channel, driving expired deposits, revealed spend secrets,
// and stale revoked commits toward recovery without a client having to
// ask. Intended to be called on a ticker; safe to call concurrently with
// client-driven channel operations since each channel stays serialized
// behind its own key.
func (h *Hub) UpdateAll() []error {
	var errs []error
	for _, key := range h.Keys() {
		h.Lock(key)
		err := h.updateOneLocked(key)
		h.Unlock(key)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (h *Hub) updateOneLocked(key string) error {
	c := h.Channel(key)
	if err := c.PayerUpdate(); err != nil {
		return fmt.Errorf("hub: channel %s: payer update: %w", key, err)
	}
	if err := c.PayeeUpdate(); err != nil {
		return fmt.Errorf("hub: channel %s: payee update: %w", key, err)
	}
	return nil
}
