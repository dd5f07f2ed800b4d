package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/BetSync/internal/pkg/testutil"
)

func TestFactory_ReturnsSameRepositories(t *testing.T) {
	f := NewFactory(testutil.NewSourceDB(t), testutil.NewDestinationDB(t), 10)

	first := f.GetRepositories()
	assert.Same(t, first, f.GetRepositories())
	assert.Equal(t, first.SourceBet, f.GetSourceBetRepository())
	assert.Equal(t, first.Bet, f.GetBetRepository())

	require.NoError(t, f.GetSourceBetRepository().Ping(context.Background()))
	require.NoError(t, f.GetBetRepository().Ping(context.Background()))
}
