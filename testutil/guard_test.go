package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerOnlyImport(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"foodpantry/internal/blob", true},
		{"foodpantry/internal/blob/core", true},
		{"foodpantry/internal/infra/blob/s3", true},
		{"github.com/aws/aws-sdk-go-v2/service/s3", true},
		{"github.com/prometheus/client_golang/prometheus", true},
		{"foodpantry/internal/dataset", false},
		{"foodpantry/internal/widget", false},
		{"github.com/tidwall/gjson", false},
		{"net/http", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ServerOnlyImport(c.in), c.in)
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n\nimport _ \"foodpantry/internal/ledger\"\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_test.go"), []byte("package a\n\nimport _ \"foodpantry/internal/blob\"\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.go"), []byte("package a\n\nimport _ \"strings\"\n"), 0o600))

	viols, err := directImportViolations(dir, ServerOnlyImport)
	require.NoError(t, err)
	assert.Equal(t, []string{"foodpantry/internal/ledger (in a.go)"}, viols)

	var f recordingFatal
	failIfDirectViolations(&f, "widget", viols)
	assert.Contains(t, f.msg, "forbidden direct imports detected (widget)")

	f = recordingFatal{}
	failIfDirectViolations(&f, "widget", nil)
	assert.Empty(t, f.msg)

	_, err = directImportViolations(filepath.Join(dir, "missing"), ServerOnlyImport)
	assert.Error(t, err)
}
