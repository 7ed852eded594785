package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/munch/compiler/back"
	"github.com/slowlang/munch/compiler/samples"
)

func TestTargets(t *testing.T) {
	assert.Equal(t, []string{"amd64", "arm64"}, Targets())

	_, err := NewTarget("z80", nil)
	assert.ErrorIs(t, err, ErrUnknownTarget)
}

func TestCompileSamples(t *testing.T) {
	ctx := context.Background()

	for _, arch := range Targets() {
		for _, s := range samples.All {
			res, err := CompileSample(ctx, arch, s.Name, back.Config{})
			require.NoError(t, err, "%v/%v", arch, s.Name)

			assert.Equal(t, arch, res.Target)
			assert.NotEmpty(t, res.Append(nil))
		}
	}

	_, err := CompileSample(ctx, "amd64", "nope", back.Config{})
	assert.ErrorIs(t, err, ErrUnknownSample)

	_, err = CompileSample(ctx, "z80", "fib", back.Config{})
	assert.ErrorIs(t, err, ErrUnknownTarget)
}
