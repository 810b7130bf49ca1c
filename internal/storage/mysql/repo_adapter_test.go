package mysql

import (
	"testing"

	"meshjoin/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDSN(t *testing.T) {
	t.Parallel()

	cfg, err := ParseDSN("etl:secret@tcp(db:3306)/datasource")
	require.NoError(t, err)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, "datasource", cfg.DBName)
	assert.Equal(t, "db:3306", cfg.Addr)

	_, err = ParseDSN("etl:secret@tcp(db:3306")
	assert.Error(t, err)
}

func TestRegistered(t *testing.T) {
	t.Parallel()
	assert.Contains(t, storage.ListKinds(), "mysql")
}
