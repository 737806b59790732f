package channeld

import "github.com/btcsuite/btclog"

// log is the package-level logger used throughout channeld. It defaults to
// the disabled logger so that the package is silent until the daemon wires
// in a real backend via UseLogger.
var log btclog.Logger

func init() {
	UseLogger(btclog.Disabled)
}

// UseLogger uses a specified Logger to output package logging info. This
// should be used in preference to SetLogWriter if the caller is also using
// btclog.
func UseLogger(logger btclog.Logger) {
	log = logger
}
