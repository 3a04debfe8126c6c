package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsConfigErrors(t *testing.T) {
	t.Run("unknown cluster", func(t *testing.T) {
		t.Setenv("TAPCHAIN_CLUSTER", "moonnet")
		err := run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown cluster "moonnet"`)
	})

	t.Run("bad program id", func(t *testing.T) {
		t.Setenv("TAPCHAIN_CLUSTER", "localnet")
		t.Setenv("TAPCHAIN_PROGRAM_ID", "not-base58!")
		err := run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "program id")
	})
}
