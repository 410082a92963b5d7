package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iurnickita/cashback/internal/storage/config"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "campaigns/c1/uploads/u1/vendas.xlsx", Key("c1", "u1", "vendas.xlsx"))
	assert.Equal(t, "campaigns/c1/uploads/u1/vendas.xlsx", Key("c1", "u1", `C:\temp\vendas.xlsx`))
	assert.Equal(t, "campaigns/c1/uploads/u1/passwd", Key("c1", "u1", "../../etc/passwd"))
}

func TestNoopStorage(t *testing.T) {
	ctx := context.Background()
	s, err := NewStorage(config.Config{}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))

	key := Key("c1", "u1", "vendas.csv")
	require.NoError(t, s.Upload(ctx, key, strings.NewReader("id;valor"), "text/csv"))

	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = s.Download(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, s.Upload(ctx, "", strings.NewReader(""), "text/csv"), ErrEmptyKey)
	require.ErrorIs(t, s.Delete(ctx, "campaigns/../x"), ErrInvalidKey)
}

func TestNewStorageBadConnectionString(t *testing.T) {
	_, err := NewStorage(config.Config{ConnectionString: "not a connection string"}, zap.NewNop())
	require.Error(t, err)
}
