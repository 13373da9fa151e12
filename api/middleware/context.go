package middleware

import "context"

type principalKey struct{}

// Principal is the authenticated caller as read from the access token.
type Principal struct {
	UserID string
	Role   string
	Wallet string
}

// WithPrincipal replaces the caller bound to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the zero Principal for anonymous requests.
func PrincipalFromContext(ctx context.Context) Principal {
	if ctx == nil {
		return Principal{}
	}
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}

func UserIDFromContext(ctx context.Context) string { return PrincipalFromContext(ctx).UserID }

func RoleFromContext(ctx context.Context) string { return PrincipalFromContext(ctx).Role }

func WalletFromContext(ctx context.Context) string { return PrincipalFromContext(ctx).Wallet }

// WithUserID and WithRole amend a single field, mostly for handler tests.
func WithUserID(ctx context.Context, userID string) context.Context {
	p := PrincipalFromContext(ctx)
	p.UserID = userID
	return WithPrincipal(ctx, p)
}

func WithRole(ctx context.Context, role string) context.Context {
	p := PrincipalFromContext(ctx)
	p.Role = role
	return WithPrincipal(ctx, p)
}
