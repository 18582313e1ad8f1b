package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong username or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
	// ErrWrongLogin signals an account using the other role's login.
	ErrWrongLogin = errors.New("auth: use the login for your account type")
	// ErrInvalidProfile signals malformed sign-up profile fields.
	ErrInvalidProfile = errors.New("auth: invalid profile")
	// ErrPermissionDenied signals a caller without the role an operation requires.
	ErrPermissionDenied = errors.New("auth: permission denied")
)

const tokenTTL = 24 * time.Hour

// Service handles authentication business logic.
type Service struct {
	repo      Repository
	jwtSecret []byte
	now       func() time.Time
}

// LoginResult bundles the token and domain user returned after a successful login.
type LoginResult struct {
	Token string
	User  User
}

func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register creates a regular user account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	return s.create(ctx, req, RoleUser)
}

// CreateAdmin provisions an administrator. It is reachable from the operator
// CLI only.
func (s *Service) CreateAdmin(ctx context.Context, req RegisterRequest) (*User, error) {
	return s.create(ctx, req, RoleAdmin)
}

func (s *Service) create(ctx context.Context, req RegisterRequest, role Role) (*User, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidProfile)
	}
	middle := strings.TrimSpace(req.MiddleInitial)
	if utf8.RuneCountInString(middle) > 1 {
		return nil, fmt.Errorf("%w: middle initial must be a single character", ErrInvalidProfile)
	}
	if req.Age != nil && *req.Age <= 0 {
		return nil, fmt.Errorf("%w: age must be positive", ErrInvalidProfile)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Username:      username,
		FirstName:     strings.TrimSpace(req.FirstName),
		LastName:      strings.TrimSpace(req.LastName),
		MiddleInitial: strings.ToUpper(middle),
		Address:       strings.TrimSpace(req.Address),
		Age:           req.Age,
		PasswordHash:  string(passwordHash),
		Role:          role,
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login authenticates a regular user. Administrators are sent to LoginAdmin.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	return s.login(ctx, req, RoleUser)
}

// LoginAdmin authenticates an administrator.
func (s *Service) LoginAdmin(ctx context.Context, req LoginRequest) (LoginResult, error) {
	return s.login(ctx, req, RoleAdmin)
}

func (s *Service) login(ctx context.Context, req LoginRequest, want Role) (LoginResult, error) {
	user, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	// Checked after the password so the role of an account is not revealed
	// to someone who cannot log in to it.
	if user.Role != want {
		return LoginResult{}, ErrWrongLogin
	}

	token, err := s.generateToken(user.ID, user.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}
	return LoginResult{Token: token, User: user}, nil
}

func (s *Service) GetUserByID(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifyToken validates a JWT and returns the caller's principal.
func (s *Service) VerifyToken(tokenString string) (Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return Principal{}, fmt.Errorf("auth: parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Principal{}, fmt.Errorf("auth: invalid token")
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return Principal{}, fmt.Errorf("auth: invalid user_id in token")
	}
	roleStr, ok := claims["role"].(string)
	if !ok {
		return Principal{}, fmt.Errorf("auth: invalid role in token")
	}
	role := Role(roleStr)
	if !isValidRole(role) {
		return Principal{}, fmt.Errorf("auth: invalid role %q in token", roleStr)
	}
	return Principal{UserID: userID, IsAdmin: role == RoleAdmin}, nil
}

func (s *Service) generateToken(userID string, role Role) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     now.Add(tokenTTL).Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// RequireAdmin gates administrative operations.
func RequireAdmin(p Principal) error {
	if p.UserID == "" || !p.IsAdmin {
		return ErrPermissionDenied
	}
	return nil
}

// RequireUser gates operations reserved for regular users, such as filing
// claim, adoption and capture requests.
func RequireUser(p Principal) error {
	if p.UserID == "" || p.IsAdmin {
		return ErrPermissionDenied
	}
	return nil
}

func isValidRole(role Role) bool {
	switch role {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}
