package subcmd_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/lightd/cmd/lightd/subcmd"
)

func TestParse(t *testing.T) {
	t.Parallel()
	mods := []subcmd.Mod{{Name: "run"}, {Name: "keygen", SkipConfig: true}}

	m, err := subcmd.Parse("keygen", mods)
	require.NoError(t, err)
	assert.Equal(t, "keygen", m.Name)
	assert.True(t, m.SkipConfig)

	_, err = subcmd.Parse("", mods)
	assert.EqualError(t, err, "empty command")
	_, err = subcmd.Parse("fly", mods)
	assert.EqualError(t, err, "unknown command='fly'")
	assert.Panics(t, func() { _, _ = subcmd.Parse("x", []subcmd.Mod{{}}) })
}
