package mintvault

import (
	"github.com/btcsuite/btclog"

	"github.com/mintvaultlabs/mintvault/ledger"
	"github.com/mintvaultlabs/mintvault/mintgarden"
)

// Subsystem defines the logging code for this subsystem.
const Subsystem = "VALT"

// log is a logger that is initialized with no output filters. This means
// the package will not perform any logging by default until the caller
// requests it.
var log = btclog.Disabled

// DisableLog disables all library log output. Logging output is disabled by
// default until UseLogger is called.
func DisableLog() {
	UseLogger(btclog.Disabled)
}

// UseLogger uses a specified Logger to output package logging info. This
// should be used in preference to SetLogWriter if the caller is also using
// btclog.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// SetupLoggers initializes all package loggers from the same backend, one
// subsystem tag per package.
func SetupLoggers(backend *btclog.Backend, level btclog.Level) {
	for subsystem, use := range map[string]func(btclog.Logger){
		Subsystem:            UseLogger,
		ledger.Subsystem:     ledger.UseLogger,
		mintgarden.Subsystem: mintgarden.UseLogger,
	} {
		logger := backend.Logger(subsystem)
		logger.SetLevel(level)
		use(logger)
	}
}
