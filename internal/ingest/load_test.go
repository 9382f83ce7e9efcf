package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advodash/pkg/models"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadUnrecognizedHeadersUsesFirstColumn(t *testing.T) {
	path := writeFile(t, "firms.csv", "Listing,Locality\nAcme Law,austin\n,Pune\n")

	res, err := Load(context.Background(), path, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Columns.Name)
	assert.Equal(t, []models.Record{
		{Name: "Acme Law", Owner: models.Unknown, City: models.Unknown, State: models.Unknown},
	}, res.Records)
	assert.Equal(t, 1, res.Diagnostics.Rejected)
}

func TestLoadStripsBOM(t *testing.T) {
	path := writeFile(t, "bom.csv", "\ufeffBusiness Name,City\nAcme,Goa\n")

	res, err := Load(context.Background(), path, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Goa", res.Records[0].City)
}

func TestLoadCancelledContext(t *testing.T) {
	path := writeFile(t, "advocates.csv", "Business Name\nAcme\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Load(ctx, path, DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrSourceUnreadable))
}

func TestLoadUnsupportedFile(t *testing.T) {
	path := writeFile(t, "advocates.pdf", "%PDF")
	_, err := Load(context.Background(), path, DefaultOptions())
	assert.True(t, errors.Is(err, ErrSourceUnreadable))
}
