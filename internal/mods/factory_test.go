package mods

import (
	"testing"

	"github.com/openagents/network/internal/mods/echo"
	"github.com/stretchr/testify/require"
)

func TestFactoryConstructsKnownMod(t *testing.T) {
	m, err := Factory(echo.Name, nil)
	require.NoError(t, err)
	require.Equal(t, echo.Name, m.Name())
}

func TestFactoryRejectsUnknownPath(t *testing.T) {
	_, err := Factory("nonexistent.mod", nil)
	require.Error(t, err)
}
