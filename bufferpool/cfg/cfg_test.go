package cfg_test

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/bufferpool/cfg"
)

func TestValidate(t *testing.T) {
	require.NoError(t, cfg.NewDefaultConfig().Validate())

	c := cfg.NewDefaultConfig()
	c.MinSlabSize = c.MaxSlabSize * 2
	require.Error(t, c.Validate())

	c = cfg.NewDefaultConfig()
	c.MaxSlabSize = c.PageSize*4 + 1
	require.Error(t, c.Validate(), "slab sizes must be page multiples")

	c = cfg.NewDefaultConfig()
	c.PageSize = 0
	require.Error(t, c.Validate())
}

func TestDefineFlags(t *testing.T) {
	c := &cfg.Config{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.DefineFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"--bufferpool-max-size=1048576",
		"--bufferpool-page-size=256",
	}))
	require.Equal(t, int64(1<<20), c.MaxPoolSize)
	require.Equal(t, int64(256), c.PageSize)
	require.Equal(t, int64(cfg.DefaultMaxSlabSize), c.MaxSlabSize, "unset flags keep their defaults")
	require.NoError(t, c.Validate())
}
