//go:build !free

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	licerr "cicadagallery/internal/errors"
	"cicadagallery/internal/license"
)

var publicKeyLine = regexp.MustCompile(`Public key: ([0-9a-f]{64})`)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// keygen creates a key in a temp dir and returns its path and public key.
func keygen(t *testing.T) (string, string) {
	t.Helper()
	t.Setenv(passphraseEnv, "correct horse battery staple")
	path := filepath.Join(t.TempDir(), "signing.key")

	out, err := run(t, "keygen", "--key", path)
	require.NoError(t, err)
	m := publicKeyLine.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	return path, m[1]
}

func findSubcommand(root *cobra.Command, name string) *cobra.Command {
	for _, c := range root.Commands() {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"keygen", "pubkey", "issue", "batch", "inspect"} {
		cmd := findSubcommand(root, name)
		require.NotNil(t, cmd, name)
		assert.NotEmpty(t, cmd.Short, name)
	}
}

func TestKeygen(t *testing.T) {
	path, pub := keygen(t)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, err := run(t, "pubkey", "--key", path)
	require.NoError(t, err)
	assert.Equal(t, pub, strings.TrimSpace(out))

	_, err = run(t, "keygen", "--key", path)
	assert.Error(t, err, "existing key must not be overwritten")
}

func TestIssueAndInspect(t *testing.T) {
	path, pub := keygen(t)

	out, err := run(t, "issue", "--key", path, "--order", "ORD-1", "--email", "buyer@example.com")
	require.NoError(t, err)
	licenseString := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(licenseString, license.VersionTag+"."))

	out, err = run(t, "inspect", licenseString, "--pubkey", pub)
	require.NoError(t, err)
	assert.Contains(t, out, "ORD-1")
	assert.Contains(t, out, "Expires:  never")
	assert.Contains(t, out, "Status: VALID")

	_, otherPub := keygen(t)
	out, err = run(t, "inspect", licenseString, "--pubkey", otherPub)
	assert.ErrorIs(t, err, licerr.ErrSignatureMismatch)
	assert.Contains(t, out, "INVALID")

	_, err = run(t, "inspect", licenseString, "--pubkey", pub, "--product", "OtherProduct")
	assert.ErrorIs(t, err, licerr.ErrWrongProduct)
}

func TestIssue_Expiry(t *testing.T) {
	path, pub := keygen(t)

	out, err := run(t, "issue", "--key", path, "--order", "ORD-2", "--email", "trial@example.com", "--expiry-days", "30")
	require.NoError(t, err)

	rec, err := license.Decode(strings.TrimSpace(out))
	require.NoError(t, err)
	require.NotNil(t, rec.ExpiresAt)
	assert.InDelta(t, 30*24, rec.ExpiresAt.Sub(rec.IssuedAt).Hours(), 0.01)

	key, err := license.ParsePublicKey(pub)
	require.NoError(t, err)
	assert.NoError(t, license.Verify(rec, key, license.ProductID))
}

func TestIssue_Errors(t *testing.T) {
	path, _ := keygen(t)

	tests := []struct {
		name string
		args []string
		env  string
	}{
		{"missing order", []string{"issue", "--key", path, "--email", "a@example.com"}, ""},
		{"missing email", []string{"issue", "--key", path, "--order", "ORD-1"}, ""},
		{"negative expiry", []string{"issue", "--key", path, "--order", "ORD-1", "--email", "a@example.com", "--expiry-days", "-1"}, ""},
		{"wrong passphrase", []string{"issue", "--key", path, "--order", "ORD-1", "--email", "a@example.com"}, "wrong"},
		{"missing key file", []string{"issue", "--key", path + ".missing", "--order", "ORD-1", "--email", "a@example.com"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.env != "" {
				t.Setenv(passphraseEnv, tt.env)
			}
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestBatch_Text(t *testing.T) {
	path, pub := keygen(t)
	file := filepath.Join(t.TempDir(), "licenses.txt")

	out, err := run(t, "batch", "--key", path, "--count", "3", "--prefix", "PROMO", "--email", "promo@example.com", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 3 licenses")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)

	key, err := license.ParsePublicKey(pub)
	require.NoError(t, err)
	for i, line := range lines[1:] {
		fields := strings.Fields(line)
		require.Len(t, fields, 4)
		assert.Equal(t, []string{"PROMO-0001", "PROMO-0002", "PROMO-0003"}[i], fields[0])

		rec, err := license.Decode(fields[3])
		require.NoError(t, err)
		assert.NoError(t, license.Verify(rec, key, license.ProductID))
	}
}

func TestBatch_XLSX(t *testing.T) {
	path, _ := keygen(t)
	file := filepath.Join(t.TempDir(), "licenses.xlsx")

	_, err := run(t, "batch", "--key", path, "--count", "2", "--prefix", "EVT", "--email", "event@example.com", "--expiry-days", "7", "--file", file)
	require.NoError(t, err)

	f, err := excelize.OpenFile(file)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(licenseSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Order", "Email", "Expires", "License"}, rows[0])
	assert.Equal(t, "EVT-0002", rows[2][0])
	assert.NotEqual(t, "never", rows[1][2])
}

func TestBatch_CountBounds(t *testing.T) {
	path, _ := keygen(t)
	file := filepath.Join(t.TempDir(), "out.txt")

	for _, count := range []string{"0", "101"} {
		_, err := run(t, "batch", "--key", path, "--count", count, "--prefix", "X", "--email", "x@example.com", "--file", file)
		assert.Error(t, err, count)
	}
	_, err := os.Stat(file)
	assert.True(t, os.IsNotExist(err))
}

func TestInspect_Malformed(t *testing.T) {
	_, err := run(t, "inspect", "CG1.nope")
	assert.ErrorIs(t, err, licerr.ErrMalformedFormat)
}
