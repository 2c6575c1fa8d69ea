package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDSNForcesFlags(t *testing.T) {
	dsn, err := NormalizeDSN("user:pass@tcp(db:3306)/genstudio")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(dsn, "user:pass@tcp(db:3306)/genstudio?"))
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "clientFoundRows=true")
	assert.Contains(t, dsn, "multiStatements=true")
}

func TestNormalizeDSNRejectsGarbage(t *testing.T) {
	_, err := NormalizeDSN("not a dsn")
	assert.Error(t, err)
}

func TestMigrationsAreEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	var ups, downs int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Greater(t, ups, 0)
	assert.Equal(t, ups, downs)
}
