package httpapi

import (
	"context"

	"github.com/session-hub/session-hub/internal/domain/account"
)

type authContextKey string

const principalKey authContextKey = "principal"

func withPrincipal(ctx context.Context, p account.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func principalFromContext(ctx context.Context) (account.Principal, bool) {
	p, ok := ctx.Value(principalKey).(account.Principal)
	return p, ok
}
