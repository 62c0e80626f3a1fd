// Package auth はユーザー登録とログインのドメインロジックを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// passwordMinLen はパスワードの最小文字数。
const passwordMinLen = 8

// TokenIssuer はトークン発行のインターフェース。
// token.Serviceの部分集合として定義する。
type TokenIssuer interface {
	Issue(user *model.User) (string, error)
}

// Result は登録・ログイン成功時の結果を表す。
type Result struct {
	Token string
	User  *model.User
}

// Service は認証のサービス層。
type Service struct {
	userRepo repository.UserRepository
	tokens   TokenIssuer
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, tokens TokenIssuer) *Service {
	return &Service{userRepo: userRepo, tokens: tokens}
}

// Signup は新規ユーザーを登録し、即座に使用可能なトークンを発行する。
// メールアドレスが既に登録されている場合はEmailTakenエラーを返す。
func (s *Service) Signup(ctx context.Context, email, name, password string) (*Result, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)

	if fields := validateSignup(email, name, password); len(fields) > 0 {
		return nil, model.NewValidationFailedError(fields)
	}

	// 事前チェック。同時登録のすり抜けはCreate時のユニーク制約で検出する。
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	tokenString, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("user signed up", slog.String("user_id", user.ID))

	return &Result{Token: tokenString, User: user}, nil
}

// Login はメールアドレスとパスワードでユーザーを認証し、トークンを発行する。
// ユーザー不存在とパスワード不一致はいずれもInvalidCredentialsになり、区別できない。
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	tokenString, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))

	return &Result{Token: tokenString, User: user}, nil
}

// validateSignup は登録入力を検証し、フィールド単位のエラーを集約して返す。
// 最初のエラーで打ち切らず、全フィールドを検証する。
func validateSignup(email, name, password string) []model.FieldError {
	var fields []model.FieldError

	if email == "" {
		fields = append(fields, model.FieldError{Field: "email", Message: "メールアドレスは必須です。"})
	} else if _, err := mail.ParseAddress(email); err != nil {
		fields = append(fields, model.FieldError{Field: "email", Message: "メールアドレスの形式が正しくありません。"})
	}

	if name == "" {
		fields = append(fields, model.FieldError{Field: "userName", Message: "ユーザー名は必須です。"})
	}

	if len(password) < passwordMinLen {
		fields = append(fields, model.FieldError{
			Field:   "password",
			Message: fmt.Sprintf("パスワードは%d文字以上で入力してください。", passwordMinLen),
		})
	}

	return fields
}
