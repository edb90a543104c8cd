package channel

import "github.com/gcash/bchlog"

// log is a package-wide logger, disabled until UseLogger is called, in the
// same shape as the teacher's rpc/legacyrpc/log.go.
var log = bchlog.Disabled

// UseLogger plugs in a logger so channel's state transitions and recovery
// decisions can be observed by an embedder.
func UseLogger(logger bchlog.Logger) {
	log = logger
}
