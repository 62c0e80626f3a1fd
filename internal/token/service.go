// Package token は署名付きトークンの発行と検証を提供する。
// トークンはサーバー側に保存されないステートレスなセッション表明であり、
// 失効リストは持たない。漏洩したトークンは有効期限まで使用可能である。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/taskman/internal/model"
)

// defaultTTL はTTL未指定時のトークン有効期間。
const defaultTTL = 24 * time.Hour

// secretMinLen は署名シークレットの最小バイト長。
const secretMinLen = 32

// ErrInvalidToken は署名不正・改ざん・期限切れなど、検証に失敗した
// あらゆるトークンを表す。失敗理由は呼び出し側に区別させない。
var ErrInvalidToken = errors.New("invalid token")

// Subject は検証済みトークンから解決された認証主体を表す。
// リクエスト処理中はこの型で明示的に受け渡し、クレーム名での再参照は行わない。
type Subject struct {
	UserID string
	Email  string
	Name   string
}

// claims はJWTペイロードの内部表現。
type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"userName"`
}

// Config はServiceの設定。
type Config struct {
	// Secret はHMAC署名シークレット。secretMinLenバイト以上が必須。
	Secret []byte
	// TTL はトークンの有効期間。ゼロ値の場合はdefaultTTL（24時間）。
	TTL time.Duration
	// Now は現在時刻の取得関数。テスト用。nilの場合はtime.Now。
	Now func() time.Time
}

// Service はHS256署名のトークンを発行・検証する。
// シークレットは構築時に注入され、グローバルな参照は存在しない。
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService はServiceを生成する。
// シークレットが短すぎる場合はエラーを返す。デフォルト値へのフォールバックは行わない。
func NewService(cfg Config) (*Service, error) {
	if len(cfg.Secret) < secretMinLen {
		return nil, fmt.Errorf("token secret must be at least %d bytes", secretMinLen)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{secret: cfg.Secret, ttl: ttl, now: now}, nil
}

// Issue はユーザーのトークンを発行する。
// Subjectにユーザーリポジトリ上のIDを、カスタムクレームにメールアドレスと表示名を含める。
func (s *Service) Issue(user *model.User) (string, error) {
	now := s.now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Email: user.Email,
		Name:  user.Name,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Verify はトークンを検証し、認証主体を返す。
// 署名不正・改ざん・期限切れ・署名方式の不一致はいずれもErrInvalidTokenになる。
func (s *Service) Verify(tokenString string) (*Subject, error) {
	var parsed claims
	_, err := jwt.ParseWithClaims(tokenString, &parsed, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if parsed.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Subject{
		UserID: parsed.Subject,
		Email:  parsed.Email,
		Name:   parsed.Name,
	}, nil
}
