package requestctx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnotate(t *testing.T) {
	ctx, info := New(context.Background(), "req-1", time.Now())

	assert.Equal(t, "req-1", RequestID(ctx))
	require.Same(t, info, From(ctx))

	Annotate(ctx, "hello", "")
	Annotate(ctx, "", "inv-1")

	assert.Equal(t, "hello", info.Function())
	assert.Equal(t, "inv-1", info.InvocationID())
}

func TestWithoutInfo(t *testing.T) {
	ctx := context.Background()

	assert.Nil(t, From(ctx))
	assert.Empty(t, RequestID(ctx))
	Annotate(ctx, "hello", "inv-1")
}
