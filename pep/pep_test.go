package pep

import (
	"testing"

	"github.com/stretchr/testify/require"

	"accessd/pdp"
)

func TestLoggerExecuteNilLoggerIsNoop(t *testing.T) {
	l := NewLogger(nil)
	err := l.Execute(pdp.Decision{Code: pdp.CodeGrant, Action: pdp.Action{Value: "open_door"}})
	require.NoError(t, err)
}
