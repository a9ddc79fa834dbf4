package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclens/sentrydb/pkg/logger"
)

func TestStoreOpen(t *testing.T) {
	dataDir := t.TempDir()
	backupDir := t.TempDir()

	s, err := Open(dataDir, backupDir, WithLogger(logger.Nop()))
	require.NoError(t, err)

	for _, cf := range ColumnFamilies {
		assert.True(t, s.DB().HasColumnFamily(cf), "missing column family %q", cf)
	}

	customers := s.Customers()
	id, err := customers.Put(&Customer{
		Name:         "acme",
		Description:  "test tenant",
		CreationTime: time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, s.Close())

	t.Run("data survives reopen", func(t *testing.T) {
		s, err := Open(dataDir, backupDir, WithLogger(logger.Nop()))
		require.NoError(t, err)
		defer s.Close()

		got, err := s.Customers().GetByID(id)
		require.NoError(t, err)
		assert.Equal(t, "acme", got.Name)
	})
}

func TestStoreLabelDBValidation(t *testing.T) {
	t.Run("missing version rejected", func(t *testing.T) {
		l := &LabelDb{ID: 1, Name: "feed"}
		assert.Error(t, l.Validate())
	})
	t.Run("missing name rejected", func(t *testing.T) {
		l := &LabelDb{ID: 1, Name: "  ", Version: "1"}
		assert.Error(t, l.Validate())
	})
	t.Run("complete entry accepted", func(t *testing.T) {
		l := &LabelDb{ID: 1, Name: "feed", Version: "2026-08"}
		assert.NoError(t, l.Validate())
	})
}
