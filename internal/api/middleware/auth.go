package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/d60-Lab/food-order/internal/service"
	"github.com/d60-Lab/food-order/pkg/response"
)

const CtxUserID = "user_id"

// Claims 访问令牌载荷，sub 为用户 ID
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer 使用 HS256 签发与校验令牌
type TokenIssuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenIssuer(secret, issuer string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue 签发令牌，cli 与测试使用
func (t *TokenIssuer) Issue(id service.Identity, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		Role:  string(id.Role),
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse 校验签名、签发方与有效期
func (t *TokenIssuer) Parse(token string) (service.Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(t.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return service.Identity{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return service.Identity{}, errors.New("token has no subject")
	}
	role := service.Role(claims.Role)
	if role != service.RoleAdmin {
		role = service.RoleUser
	}
	return service.Identity{UserID: claims.Subject, Role: role, Email: claims.Email}, nil
}

// Auth 校验 Bearer 令牌，并把身份写入 request context 供服务层读取
func Auth(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := ExtractBearerToken(c.GetHeader("Authorization"))
		if !ok || token == "" {
			response.Unauthorized(c, "missing bearer token")
			return
		}
		id, err := issuer.Parse(token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		c.Set(CtxUserID, id.UserID)
		c.Request = c.Request.WithContext(service.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// RequireAdmin 必须挂在 Auth 之后
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := service.IdentityFromContext(c.Request.Context())
		if !ok || !id.IsAdmin() {
			response.Forbidden(c, "admin role required")
			return
		}
		c.Next()
	}
}

// ExtractBearerToken 解析 "Bearer <token>"，容忍首尾引号
func ExtractBearerToken(authz string) (string, bool) {
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.Trim(strings.TrimSpace(parts[1]), `"'`), true
}
