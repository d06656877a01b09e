// Package pep defines the Policy Enforcement Point callback contract and a
// logging reference implementation, grounded on the action/obligation
// callback shape actually used downstream in
// original_source/plugins/pep/{can,print,wallet}.
package pep

import (
	"log/slog"

	"accessd/pdp"
)

// Callback executes the side effect a PDP decision mandates: the action
// named by the decision, plus whatever obligation accompanies it.
type Callback interface {
	Execute(decision pdp.Decision) error
}

// Logger is a Callback that only logs; it stands in for
// original_source/plugins/pep/print, the reference PEP plugin that proves
// the contract out rather than driving real hardware or a wallet.
type Logger struct {
	logger *slog.Logger
}

// NewLogger wraps logger as a Callback.
func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

// Execute implements Callback.
func (l *Logger) Execute(decision pdp.Decision) error {
	if l.logger == nil {
		return nil
	}
	l.logger.Info("pep executed decision",
		"code", decision.Code,
		"action", decision.Action.Value,
		"obligation", decision.Obligation,
		"start_time", decision.Action.StartTime,
		"stop_time", decision.Action.StopTime,
	)
	return nil
}
