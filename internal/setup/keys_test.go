package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconlab/recon/internal/errors"
)

func TestInferKeyType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/home/user/.ssh/id_ed25519", "ed25519"},
		{"/home/user/.ssh/id_rsa", "rsa"},
		{"/home/user/.ssh/id_ecdsa", "ecdsa"},
		{"/home/user/.ssh/mystery_key", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, inferKeyType(tt.path), tt.path)
	}
}

func TestFindLocalKeys(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	sshDir := filepath.Join(home, ".ssh")
	require.NoError(t, os.MkdirAll(sshDir, 0700))

	require.NoError(t, os.WriteFile(filepath.Join(sshDir, "id_rsa"), []byte("private"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(sshDir, "id_ed25519"), []byte("private"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(sshDir, "id_ed25519.pub"), []byte("ssh-ed25519 AAAA"), 0644))

	keys := FindLocalKeys()
	require.Len(t, keys, 2)

	preferred := PreferredKey()
	require.NotNil(t, preferred)
	assert.Equal(t, "ed25519", preferred.Type)
	assert.True(t, preferred.HasPublic)
}

func TestPreferredKey_NoKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	assert.Nil(t, PreferredKey())
}

func TestGenerateKey_InvalidType(t *testing.T) {
	err := GenerateKey(filepath.Join(t.TempDir(), "key"), "dsa")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestGenerateKey_ExistingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, []byte("private"), 0600))

	err := GenerateKey(path, "ed25519")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestReadPublicKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_ed25519.pub")
	require.NoError(t, os.WriteFile(path, []byte("ssh-ed25519 AAAA comment\n"), 0644))

	key, err := ReadPublicKey(path)
	require.NoError(t, err)
	assert.Equal(t, "ssh-ed25519 AAAA comment", key, "trailing newline is trimmed")
}

func TestReadPublicKey_Missing(t *testing.T) {
	_, err := ReadPublicKey(filepath.Join(t.TempDir(), "nope.pub"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}
