package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bullseye/crypto"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.RPCAddress)
	require.Equal(t, "bullseye-local", cfg.NetworkName)
	require.NotEmpty(t, cfg.OperatorKeystorePath)

	_, err = os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(cfg.OperatorKeystorePath)
	require.NoError(t, err)

	// The generated keystore must decrypt with the empty passphrase.
	_, err = crypto.LoadFromKeystore(cfg.OperatorKeystorePath, "")
	require.NoError(t, err)
}

func TestLoadExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	treasury := key.PubKey().Address().String()

	contents := `RPCAddress = ":9090"
DataDir = "/var/lib/bullseye"
NetworkName = "bullseye-test"
TreasuryAddress = "` + treasury + `"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.RPCAddress)
	require.Equal(t, "/var/lib/bullseye", cfg.DataDir)
	require.Equal(t, "bullseye-test", cfg.NetworkName)

	decoded, err := cfg.Treasury()
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().Bytes(), decoded[:])

	// A keystore path is filled in and persisted back to the file.
	require.NotEmpty(t, cfg.OperatorKeystorePath)
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.OperatorKeystorePath, reloaded.OperatorKeystorePath)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("BogusField = true\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "BogusField")
}

func TestLoadRejectsBadTreasury(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`TreasuryAddress = "not-an-address"`+"\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestTreasuryDefaultsToZero(t *testing.T) {
	cfg := &Config{}
	addr, err := cfg.Treasury()
	require.NoError(t, err)
	require.Equal(t, [20]byte{}, addr)
}
