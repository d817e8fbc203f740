package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"messenger-service/internal/chat"
	"messenger-service/internal/models"

	"golang.org/x/crypto/bcrypt"
)

// Custom errors
var (
	ErrUserNotFound       = chat.ErrUserNotFound
	ErrUserAlreadyExists  = chat.ErrUserAlreadyExists
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRequest     = errors.New("invalid request")
)

// UserRepository is the account storage the service needs; sqlstore and badgerstore both provide it
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

type UserService struct {
	repo       UserRepository
	jwt        *JWTManager
	bcryptCost int
	logger     *slog.Logger
}

func NewUserService(repo UserRepository, jwt *JWTManager, logger *slog.Logger) *UserService {
	return &UserService{
		repo:       repo,
		jwt:        jwt,
		bcryptCost: bcrypt.DefaultCost,
		logger:     logger,
	}
}

// WithBcryptCost lowers the hashing cost, used by tests and seeding
func (s *UserService) WithBcryptCost(cost int) *UserService {
	s.bcryptCost = cost
	return s
}

// Register creates the account and signs the user in
func (s *UserService) Register(ctx context.Context, req *models.RegisterRequest) (*models.LoginResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, ErrInvalidRequest
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{Username: username, Password: string(hash)}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserAlreadyExists) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.logger.Info("User registered", "userID", user.ID, "username", user.Username)

	return s.issue(user)
}

// Login checks the password and returns a fresh token
func (s *UserService) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, ErrInvalidRequest
	}

	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(user)
}

// Authenticate turns a bearer token into the identity of a chat connection
func (s *UserService) Authenticate(token string) (chat.Identity, error) {
	claims, err := s.jwt.Validate(token)
	if err != nil {
		return chat.Identity{}, err
	}
	return chat.Identity{Username: claims.Username}, nil
}

func (s *UserService) issue(user *models.User) (*models.LoginResponse, error) {
	token, err := s.jwt.Generate(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &models.LoginResponse{Token: token, User: user.ToResponse()}, nil
}
