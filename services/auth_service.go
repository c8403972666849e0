package services

import (
	"chat-relay/auth"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/repositories"
	"fmt"
	"strings"
)

type IAuthService interface {
	Login(email, password string) (Session, error)
	Register(req auth.RegisterRequest) (Session, error)
}

type Token string

// Session is what a client needs after login: the token for REST and WebSocket
// calls and its own profile.
type Session struct {
	Token Token
	User  chat.Profile
}

type AuthService struct {
	userRepository repositories.IUserRepository
	signer         auth.Signer
}

func NewAuthService(repo repositories.IUserRepository, signer auth.Signer) IAuthService {
	return &AuthService{userRepository: repo, signer: signer}
}

func (s *AuthService) Register(req auth.RegisterRequest) (Session, error) {
	req.Email = strings.TrimSpace(req.Email)

	// Business rules are checked before any expensive cryptographic operation
	if err := auth.ValidateRegister(req); err != nil {
		if errors.Is(err, errors.ErrInvalidPassword) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return Session{}, fmt.Errorf("hashing failed: %w", err)
	}

	userID, err := s.userRepository.CreateUser(req.Email, hashedPassword, repositories.Profile{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Color:     req.Color,
	})
	if err != nil {
		return Session{}, storageError(err) // ErrUserAlreadyExists when the email is taken
	}

	token, err := s.signer.GenerateToken(userID, []string{"user"})
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token: Token(token),
		User: chat.Profile{
			ID:        chat.UserID(userID),
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Color:     req.Color,
		},
	}, nil
}

func (s *AuthService) Login(email, password string) (Session, error) {
	user, err := s.userRepository.GetUserByEmail(strings.TrimSpace(email))
	if err != nil {
		// Same error whatever the reason, to prevent user enumeration
		return Session{}, errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return Session{}, errors.ErrInvalidCredentials
	}

	token, err := s.signer.GenerateToken(user.ID, []string{"user"})
	if err != nil {
		return Session{}, err
	}

	return Session{Token: Token(token), User: toUser(user).Profile()}, nil
}
