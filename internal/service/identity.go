package service

import "context"

type ctxKey string

const ctxIdentityKey ctxKey = "identity"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity 已验证的调用方身份
type Identity struct {
	UserID string
	Role   Role
	Email  string
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// CanAccess 资源所有者或管理员
func (i Identity) CanAccess(ownerID string) bool {
	return i.IsAdmin() || i.UserID == ownerID
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxIdentityKey).(Identity)
	return v, ok && v.UserID != ""
}

func requireIdentity(ctx context.Context) (Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return Identity{}, ErrUnauthorized
	}
	return id, nil
}

func requireAdmin(ctx context.Context) (Identity, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return Identity{}, err
	}
	if !id.IsAdmin() {
		return Identity{}, ErrForbidden
	}
	return id, nil
}
