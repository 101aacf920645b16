package keygen_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/lightd/auth"
	"github.com/temoto/lightd/cmd/lightd/keygen"
)

func TestGenerate(t *testing.T) {
	t.Parallel()
	dir, err := ioutil.TempDir("", "lightd-keygen-")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "light-1")
	priv, pub, err := keygen.Generate(prefix)
	require.NoError(t, err)
	assert.Equal(t, prefix+".pem", priv)
	assert.Equal(t, prefix+".pub.pem", pub)

	info, err := os.Stat(priv)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	k, err := auth.LoadPrivateKeyFile(priv)
	require.NoError(t, err)
	p, err := auth.LoadPublicKeyFile(pub)
	require.NoError(t, err)
	assert.Equal(t, k.PublicKey.X, p.X)
	assert.Equal(t, k.PublicKey.Y, p.Y)

	_, _, err = keygen.Generate(prefix)
	assert.Error(t, err, "must not overwrite")
}
