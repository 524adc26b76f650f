package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/metadata"
)

func TestWithUser(t *testing.T) {
	ctx := WithUser(context.Background(), UserContext{UserID: "u-1", MerchantID: "m-1"})

	assert.Equal(t, "u-1", GetUserID(ctx))
	assert.Equal(t, "m-1", GetMerchantID(ctx))
}

func TestMetadataFallback(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(HeaderUserID, "u-2"))

	assert.Equal(t, "u-2", GetUserID(ctx))
	assert.Empty(t, GetMerchantID(ctx))
	assert.Empty(t, GetUserID(context.Background()))
}
