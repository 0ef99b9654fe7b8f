package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quillread/peersync-go/internal/database"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Connect(":memory:")
	require.NoError(t, err)

	require.NoError(t, db.Migrate(context.Background()))
	return db
}
