package channel

import "sort"

// Commit describes one commit transaction: a reassignment of some
// quantity of the deposited asset from the deposit output toward the
// payee, under a script with a payout branch (spend secret + payee, after
// a relative delay) and a revoke branch (revoke secret + payer, any time).
//
// RevokeSecret is nil until the commit has been superseded by a newer one
// and the owning side has learned the secret that retires it (generated,
// on the payee side, at RequestCommit time; disclosed by the payee and
// recorded via RevokeAll, on the payer side).
type Commit struct {
	Quantity         int64
	RevokeSecretHash []byte
	RevokeSecret     []byte
	DelayTime        int64 // this commit's own payout-branch relative timelock
	Script           []byte
	Address          string
	RawTx            []byte // nil until CreateCommit/SetCommit has recorded it
}

func (c *Commit) clone() *Commit {
	if c == nil {
		return nil
	}
	cp := *c
	cp.RevokeSecretHash = cloneBytes(c.RevokeSecretHash)
	cp.RevokeSecret = cloneBytes(c.RevokeSecret)
	cp.Script = cloneBytes(c.Script)
	cp.RawTx = cloneBytes(c.RawTx)
	return &cp
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}

func cloneCommits(in []*Commit) []*Commit {
	out := make([]*Commit, len(in))
	for i, c := range in {
		out[i] = c.clone()
	}
	return out
}

func cloneRawTxList(in [][]byte) [][]byte {
	out := make([][]byte, len(in))
	for i, b := range in {
		out[i] = cloneBytes(b)
	}
	return out
}

// State is the full, opaque channel record a Controller operates over.
// Save/Load exchange deep copies of State with an embedder's own
// persistence layer (spec.md leaves the persistence backend itself out of
// scope).
type State struct {
	Asset  string
	Amount int64 // total quantity locked into the deposit

	PayerPubKey []byte
	PayeePubKey []byte

	// SpendSecretHash/SpendSecret are shared between the deposit's
	// change-recover branch and every commit's payout branch: once the
	// payee reveals SpendSecret by broadcasting a payout, the payer can
	// use the very same secret to recover the deposit's unassigned
	// change. SpendSecret is nil until the owning side has generated or
	// observed it.
	SpendSecretHash []byte
	SpendSecret     []byte

	ExpireTime int64 // deposit's relative timelock (payer expire-recover branch)

	DepositScript  []byte
	DepositAddress string
	DepositRawTx   []byte

	// Requested holds commits the payee has asked for: a quantity plus
	// the revoke secret the payee itself generated for it (only its
	// hash is ever handed to the payer, via RequestCommit's return
	// value), awaiting a matching CreateCommit/SetCommit round-trip.
	Requested []*Commit

	// Active holds every non-revoked commit, kept sorted ascending by
	// Quantity; the last entry is the channel's current settlement
	// value. Lower entries remain here, not yet superseded-and-revoked,
	// mirroring the source's commits_active list exactly: it is not
	// pruned to a single "current" commit, RevokeUntil/RevokeAll is
	// what retires the ones below a new settlement point.
	Active []*Commit

	// Revoked holds every commit whose RevokeSecret is known, letting
	// whichever side holds that commit's revoke branch key punish a
	// stale broadcast of it immediately.
	Revoked []*Commit

	ExpireRawTxs [][]byte
	ChangeRawTxs [][]byte
	RevokeRawTxs [][]byte
	PayoutRawTxs [][]byte
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	cp := *s
	cp.PayerPubKey = cloneBytes(s.PayerPubKey)
	cp.PayeePubKey = cloneBytes(s.PayeePubKey)
	cp.SpendSecretHash = cloneBytes(s.SpendSecretHash)
	cp.SpendSecret = cloneBytes(s.SpendSecret)
	cp.DepositScript = cloneBytes(s.DepositScript)
	cp.DepositRawTx = cloneBytes(s.DepositRawTx)
	cp.Requested = cloneCommits(s.Requested)
	cp.Active = cloneCommits(s.Active)
	cp.Revoked = cloneCommits(s.Revoked)
	cp.ExpireRawTxs = cloneRawTxList(s.ExpireRawTxs)
	cp.ChangeRawTxs = cloneRawTxList(s.ChangeRawTxs)
	cp.RevokeRawTxs = cloneRawTxList(s.RevokeRawTxs)
	cp.PayoutRawTxs = cloneRawTxList(s.PayoutRawTxs)
	return &cp
}

// orderActive restores invariant 2 (commits_active sorted ascending by
// quantity), mirroring the source's _order_active, which re-sorts before
// every append to or read from the list that depends on order.
func orderActive(commits []*Commit) {
	sort.SliceStable(commits, func(i, j int) bool {
		return commits[i].Quantity < commits[j].Quantity
	})
}

// Save returns a deep copy of the controller's current state, first
// normalizing commits_active ordering exactly as the source's save() does.
func (c *Controller) Save() *State {
	c.mu.Lock()
	defer c.mu.Unlock()
	orderActive(c.state.Active)
	return c.state.Clone()
}

// Load replaces the controller's state with a deep copy of s.
func (c *Controller) Load(s *State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s.Clone()
}

// Clear resets the controller to an empty channel.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *Controller) clearLocked() {
	c.state = &State{Asset: c.asset}
}
