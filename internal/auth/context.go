package auth

import (
	"context"

	"google.golang.org/grpc/metadata"
)

const (
	HeaderUserID     = "x-user-id"
	HeaderMerchantID = "x-merchant-id"
)

type ctxKey string

const (
	userIDKey     ctxKey = "user_id"
	merchantIDKey ctxKey = "merchant_id"
)

type UserContext struct {
	MerchantID string
	UserID     string
	Role       string
}

// WithUser scopes ctx to the signed-in cashier.
func WithUser(ctx context.Context, u UserContext) context.Context {
	ctx = context.WithValue(ctx, userIDKey, u.UserID)
	return context.WithValue(ctx, merchantIDKey, u.MerchantID)
}

func GetUserID(ctx context.Context) string {
	return lookup(ctx, userIDKey, HeaderUserID)
}

func GetMerchantID(ctx context.Context) string {
	return lookup(ctx, merchantIDKey, HeaderMerchantID)
}

// lookup prefers a value set with WithUser and falls back to incoming grpc metadata.
func lookup(ctx context.Context, key ctxKey, header string) string {
	if val, ok := ctx.Value(key).(string); ok && val != "" {
		return val
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if val := md.Get(header); len(val) > 0 {
			return val[0]
		}
	}
	return ""
}
