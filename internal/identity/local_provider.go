package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// assertionTTL はローカルプロバイダーが発行するアサーションの有効期間。
// 短命であることが前提のトークンなので、交換のたびに取り直す。
const assertionTTL = time.Hour

const localIssuer = "negocio-local-identity"

// localClaims はローカルアサーションのJWTクレーム。
type localClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	NewUser bool   `json:"new_user"`
	jwt.RegisteredClaims
}

// LocalProvider はDBバックエンドの開発用IDプロバイダー。
// bcryptで資格情報を保存し、自身で検証可能なHS256アサーションを発行する。
// 外部プロバイダーなしでフロントエンドの開発環境を動かすためのもの。
type LocalProvider struct {
	db     *sql.DB
	secret []byte
}

// NewLocalProvider はLocalProviderを生成する。
func NewLocalProvider(db *sql.DB, secret string) *LocalProvider {
	return &LocalProvider{db: db, secret: []byte(secret)}
}

// CreateAccount はbcryptハッシュとともにアカウントを作成し、UIDを返す。
func (p *LocalProvider) CreateAccount(ctx context.Context, email, password, displayName string) (string, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM local_credentials WHERE email = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("failed to check existing credential: %w", err)
	}
	if exists {
		return "", ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	uid := uuid.New().String()
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO local_credentials (uid, email, display_name, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uid, email, displayName, string(hash), time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert credential: %w", err)
	}

	return uid, nil
}

// SignIn はメール・パスワードを検証し、IDアサーションを発行する。
// ローカルモードでクライアントSDKのサインインエンドポイントを支える。
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (string, error) {
	var uid, name, hash string
	err := p.db.QueryRowContext(ctx,
		`SELECT uid, display_name, password_hash FROM local_credentials WHERE email = $1`, email,
	).Scan(&uid, &name, &hash)
	if err == sql.ErrNoRows {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("failed to find credential: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return p.mintAssertion(uid, email, name, false)
}

// IssueAssertion は作成直後のアカウント用にnew_userフラグ付きアサーションを発行する。
func (p *LocalProvider) IssueAssertion(ctx context.Context, uid string) (string, error) {
	var email, name string
	err := p.db.QueryRowContext(ctx,
		`SELECT email, display_name FROM local_credentials WHERE uid = $1`, uid,
	).Scan(&email, &name)
	if err == sql.ErrNoRows {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("failed to find credential: %w", err)
	}

	return p.mintAssertion(uid, email, name, true)
}

// VerifyAssertion は自身が発行したHS256アサーションを検証する。
func (p *LocalProvider) VerifyAssertion(ctx context.Context, assertion string) (*Identity, error) {
	if assertion == "" {
		return nil, ErrAssertionInvalid
	}

	parsed, err := jwt.ParseWithClaims(assertion, &localClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrAssertionInvalid
		}
		return p.secret, nil
	}, jwt.WithIssuer(localIssuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssertionInvalid, err)
	}

	claims, ok := parsed.Claims.(*localClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrAssertionInvalid
	}

	return &Identity{
		UID:       claims.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		IsNewUser: claims.NewUser,
	}, nil
}

// mintAssertion は短命のHS256アサーションを発行する。
func (p *LocalProvider) mintAssertion(uid, email, name string, newUser bool) (string, error) {
	now := time.Now()
	claims := localClaims{
		Email:   email,
		Name:    name,
		NewUser: newUser,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    localIssuer,
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(assertionTTL)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}
	return signed, nil
}

// IsCredentialError は資格情報系の失敗（認証情報不一致・重複メール）かを判定する。
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrEmailExists)
}

// compile-time interface check
var _ Provider = (*LocalProvider)(nil)
