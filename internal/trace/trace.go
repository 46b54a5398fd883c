// Package trace is the process-wide debug trace switch for the compiler
// passes. Tracing is off unless the ANVIL_DBG environment variable is set
// to something other than "0"; when off, trace calls cost one atomic load.
package trace

import (
	"os"
	"sync/atomic"

	"github.com/tliron/commonlog"
)

const envVar = "ANVIL_DBG"

// state: 0 unknown, 1 enabled, -1 disabled.
var state atomic.Int32

var log = commonlog.GetLogger("anvil.trace")

// Enabled reports whether debug tracing is on.
func Enabled() bool {
	switch state.Load() {
	case 0:
		return initialize()
	case 1:
		return true
	}
	return false
}

func initialize() bool {
	enable := false
	if v, ok := os.LookupEnv(envVar); ok && v != "0" {
		enable = true
	}
	if enable {
		state.Store(1)
	} else {
		state.Store(-1)
	}
	return enable
}

// Printf writes one trace line when tracing is enabled.
func Printf(format string, args ...any) {
	if !Enabled() {
		return
	}
	log.Debugf(format, args...)
}
