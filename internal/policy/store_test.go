package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFileRules(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.AddFileRule(FileRule{Kind: KindPathPrefix, Pattern: "/srv/secret/", Reason: "secrets"}))
	require.NoError(t, s.AddFileRule(FileRule{Kind: KindProcess, Pattern: "nc"}))
	assert.ErrorIs(t, s.AddFileRule(FileRule{Kind: "glob", Pattern: "*"}), ErrUnknownKind)
	assert.Error(t, s.AddFileRule(FileRule{Kind: KindProcess}))

	rules, err := s.FileRules()
	require.NoError(t, err)
	assert.Equal(t, []FileRule{
		{Kind: KindPathPrefix, Pattern: "/srv/secret/", Reason: "secrets"},
		{Kind: KindProcess, Pattern: "nc"},
	}, rules)

	tests := []struct {
		path, proc string
		denied     bool
		reason     string
	}{
		{"/srv/secret/key.pem", "cat", true, "secrets"},
		{"/srv/secret", "cat", true, "secrets"},
		{"/srv/secretive", "cat", false, ""},
		{"/tmp/x", "nc", true, "process nc"},
		{"/tmp/x", "cat", false, ""},
	}
	for _, tt := range tests {
		denied, reason, err := s.MatchFile(tt.path, tt.proc)
		require.NoError(t, err)
		assert.Equal(t, tt.denied, denied, "%s by %s", tt.path, tt.proc)
		assert.Equal(t, tt.reason, reason, "%s by %s", tt.path, tt.proc)
	}

	removed, err := s.RemoveFileRule(KindProcess, "nc")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.RemoveFileRule(KindProcess, "nc")
	require.NoError(t, err)
	assert.False(t, removed)

	denied, _, err := s.MatchFile("/tmp/x", "nc")
	require.NoError(t, err)
	assert.False(t, denied)
}

func TestDeviceRules(t *testing.T) {
	s := openStore(t)

	blocked, reason := s.IsDeviceBlocked("0781", "5567", "")
	assert.True(t, blocked)
	assert.Equal(t, "Unknown or empty serial number", reason)

	blocked, _ = s.IsDeviceBlocked("0781", "5567", "AA01")
	assert.False(t, blocked)

	require.NoError(t, s.AddDeviceRule("0781", "5567", "AA01", "lost stick"))
	require.NoError(t, s.AddDeviceRule("0781", "5567", "AA01", "duplicate ignored"))
	blocked, reason = s.IsDeviceBlocked("0781", "5567", "AA01")
	assert.True(t, blocked)
	assert.Equal(t, "lost stick", reason)
}

func TestStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.AddFileRule(FileRule{Kind: KindProcess, Pattern: "dd"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	rules, err := s.FileRules()
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestBlockDevice(t *testing.T) {
	dir := t.TempDir()
	old := USBDevicesDir
	USBDevicesDir = dir
	defer func() { USBDevicesDir = old }()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "1-1.2"), 0o755))
	require.NoError(t, BlockDevice("1-1.2"))
	b, err := os.ReadFile(filepath.Join(dir, "1-1.2", "authorized"))
	require.NoError(t, err)
	assert.Equal(t, "0", string(b))

	assert.Error(t, BlockDevice("../1-1.2"))
	assert.Error(t, BlockDevice("9-9"))
}

func TestMatchFileTracksRuleChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.db")
	agent, err := Open(path)
	require.NoError(t, err)
	defer agent.Close()

	denied, _, err := agent.MatchFile("/srv/a", "cat")
	require.NoError(t, err)
	assert.False(t, denied)

	require.NoError(t, agent.AddFileRule(FileRule{Kind: KindPathPrefix, Pattern: "/srv"}))
	denied, _, err = agent.MatchFile("/srv/a", "cat")
	require.NoError(t, err)
	assert.True(t, denied)

	// A rule added through another connection, as the CLI does.
	cli, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, cli.AddFileRule(FileRule{Kind: KindProcess, Pattern: "dd", Reason: "no dd"}))
	require.NoError(t, cli.Close())

	denied, reason, err := agent.MatchFile("/tmp/x", "dd")
	require.NoError(t, err)
	assert.True(t, denied)
	assert.Equal(t, "no dd", reason)

	removed, err := agent.RemoveFileRule(KindPathPrefix, "/srv")
	require.NoError(t, err)
	assert.True(t, removed)
	denied, _, err = agent.MatchFile("/srv/a", "cat")
	require.NoError(t, err)
	assert.False(t, denied)
}
