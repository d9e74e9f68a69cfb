package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovvlad/residence-go/cmd/internal/testutil"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestTemplateCmd(t *testing.T) {
	t.Run("csv to stdout", func(t *testing.T) {
		out, err := runCmd(t, "template")

		require.NoError(t, err)
		header := strings.SplitN(out, "\n", 2)[0]
		assert.Equal(t, strings.Join(testutil.StudentHeader, ","), strings.TrimSpace(header))
	})

	t.Run("xlsx to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "template.xlsx")

		_, err := runCmd(t, "template", "--format", "xlsx", "--out", path)

		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "PK", string(data[:2]))
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := runCmd(t, "template", "--format", "ods")

		testutil.AssertErrorContains(t, err, "invalid --format")
	})
}

func TestValidateCmd_CleanFile(t *testing.T) {
	path := writeFile(t, "students.csv", testutil.StudentCSV(
		testutil.StudentRow(testutil.IDNumber1980),
		testutil.StudentRow(testutil.IDNumber1992),
	))

	out, err := runCmd(t, "validate", "--json", path)

	require.NoError(t, err)
	var report validateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.TotalRows)
	assert.Equal(t, 2, report.ValidCount)
	assert.Empty(t, report.Errors)
}

func TestValidateCmd_InvalidRowsFail(t *testing.T) {
	// GIVEN: the second row has an unknown province
	path := writeFile(t, "students.csv", testutil.StudentCSV(
		testutil.StudentRow(testutil.IDNumber1980),
		testutil.With(testutil.StudentRow(testutil.IDNumber1992), "province", "Atlantis"),
	))

	// WHEN
	out, err := runCmd(t, "validate", path)

	// THEN: the text report names the line and the command fails
	testutil.AssertErrorContains(t, err, "1 of 2 rows are invalid")
	assert.Contains(t, out, "1 valid, 1 invalid")
	assert.Contains(t, out, "row 3")
	assert.Contains(t, out, "Atlantis")
}

func TestValidateCmd_MissingFile(t *testing.T) {
	_, err := runCmd(t, "validate", filepath.Join(t.TempDir(), "nope.csv"))

	require.Error(t, err)
}

func TestImportCmd_RequiresTenant(t *testing.T) {
	path := writeFile(t, "students.csv", testutil.StudentCSV(testutil.StudentRow(testutil.IDNumber1980)))

	_, err := runCmd(t, "import", path)

	testutil.AssertErrorContains(t, err, "tenant")
}
