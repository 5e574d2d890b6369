package s3

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodpantry/internal/blob/core"
)

func TestPrefixIsHiddenFromKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests("pantries/")
	_, err := store.Put(ctx, "nv_food_pantries.json", bytes.NewReader([]byte("[]")), core.PutOptions{ContentType: "application/json"})
	require.NoError(t, err)

	list, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "nv_food_pantries.json", list[0].Key)
	assert.NotEmpty(t, list[0].ETag)
}

func TestPresignGet(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests("")
	u, err := store.PresignURL(ctx, "nv_food_pantries.json", core.SignedURLOptions{Expiry: time.Minute})
	require.NoError(t, err)
	assert.Contains(t, u, "mock-bucket/nv_food_pantries.json")
	assert.Contains(t, u, "X-Amz-Expires=60")

	_, err = store.PresignURL(ctx, "nv_food_pantries.json", core.SignedURLOptions{Method: "PUT"})
	assert.ErrorIs(t, err, core.ErrUnsupported)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}
