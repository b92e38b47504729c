package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

const (
	revokedKeyPrefix = "todolist:auth:revoked:"

	ctxUserID = "userID"
	ctxClaims = "tokenClaims"
)

var (
	// ErrInvalidToken 令牌签名、格式或有效期不合法。
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked 令牌已注销。
	ErrTokenRevoked = errors.New("token revoked")
)

// Claims 访问令牌载荷。Subject 为用户 ID，ID(jti) 用于注销。
type Claims struct {
	jwt.RegisteredClaims
}

// UserID 解析 Subject。
func (c *Claims) UserID() (uint, error) {
	uid, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || uid == 0 {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return uint(uid), nil
}

// Tokens 负责签发、校验与注销 JWT。
//
// rdb 为 nil 时注销不生效，令牌只能等待过期。
type Tokens struct {
	secret []byte
	ttl    time.Duration
	rdb    *redis.Client
	now    func() time.Time
}

// NewTokens 创建令牌管理器。
func NewTokens(secret string, ttl time.Duration, rdb *redis.Client) *Tokens {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, rdb: rdb, now: time.Now}
}

// Issue 为用户签发新令牌。
func (t *Tokens) Issue(userID uint) (string, error) {
	jti, err := randomID()
	if err != nil {
		return "", err
	}
	now := t.now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        jti,
		Subject:   strconv.FormatUint(uint64(userID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse 校验令牌并检查注销列表。
func (t *Tokens) Parse(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	revoked, err := t.revoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Revoke 把令牌加入注销列表，记录保留到令牌过期。
func (t *Tokens) Revoke(ctx context.Context, claims *Claims) error {
	if t.rdb == nil || claims == nil || claims.ID == "" {
		return nil
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if left := claims.ExpiresAt.Sub(t.now()); left > 0 {
			ttl = left
		}
	}
	if err := t.rdb.Set(ctx, revokedKeyPrefix+claims.ID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (t *Tokens) revoked(ctx context.Context, jti string) (bool, error) {
	if t.rdb == nil || jti == "" {
		return false, nil
	}
	n, err := t.rdb.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}

// SetIdentity 把已校验的身份写入请求上下文。
func SetIdentity(c *gin.Context, claims *Claims) {
	uid, _ := claims.UserID()
	c.Set(ctxUserID, uid)
	c.Set(ctxClaims, claims)
}

// UserID 返回当前请求的用户 ID，未登录为 0。
func UserID(c *gin.Context) uint {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return 0
	}
	uid, _ := v.(uint)
	return uid
}

// CurrentClaims 返回当前请求的令牌载荷。
func CurrentClaims(c *gin.Context) *Claims {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}

func randomID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
