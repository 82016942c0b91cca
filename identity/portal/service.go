// Package portal is an identity service for account-portal logins. The
// credential id is the portal account id and the token is a signed JWT whose
// "aid" claim names that account and whose subject is the user id.
package portal

import (
	"context"
	"errors"
	"sync"

	"github.com/MrEthical07/loginbridge"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Completion error texts published by the service.
const (
	ErrTextAlreadyLoggedIn    = loginbridge.AlreadyLoggedInError
	ErrTextInvalidCredentials = "InvalidCredentials"
	ErrTextTokenExpired       = "TokenExpired"
)

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service implements loginbridge.IdentityService over a Verifier. Bound
// sessions are kept in process.
type Service struct {
	verifier *Verifier
	logger   *zap.Logger
	stream   loginbridge.CompletionStream

	mu       sync.Mutex
	sessions map[int]string

	wg sync.WaitGroup
}

func NewService(v *Verifier, opts ...Option) *Service {
	s := &Service{
		verifier: v,
		logger:   zap.NewNop(),
		sessions: make(map[int]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = s.logger.Named("portal")
	return s
}

func (s *Service) Login(_ context.Context, userIndex int, creds loginbridge.Credentials) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.stream.Publish(s.verify(userIndex, creds))
	}()
	return nil
}

func (s *Service) verify(userIndex int, creds loginbridge.Credentials) loginbridge.Completion {
	done := loginbridge.Completion{UserIndex: userIndex}

	s.mu.Lock()
	bound, ok := s.sessions[userIndex]
	s.mu.Unlock()
	if ok {
		done.UserID = bound
		done.Error = ErrTextAlreadyLoggedIn
		return done
	}

	claims, err := s.verifier.Parse(creds.Token)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		done.Error = ErrTextTokenExpired
		return done
	case err != nil:
		s.logger.Debug("portal token rejected", zap.Int("user_index", userIndex), zap.Error(err))
		done.Error = ErrTextInvalidCredentials
		return done
	case claims.AccountID != creds.ID:
		s.logger.Debug("portal token issued for another account", zap.Int("user_index", userIndex))
		done.Error = ErrTextInvalidCredentials
		return done
	}

	s.mu.Lock()
	if existing, ok := s.sessions[userIndex]; ok {
		s.mu.Unlock()
		done.UserID = existing
		done.Error = ErrTextAlreadyLoggedIn
		return done
	}
	s.sessions[userIndex] = claims.Subject
	s.mu.Unlock()

	done.Success = true
	done.UserID = claims.Subject
	return done
}

func (s *Service) OnLoginComplete(handler loginbridge.CompletionHandler) loginbridge.Subscription {
	return s.stream.Subscribe(handler)
}

func (s *Service) UserID(userIndex int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[userIndex]
}

// Logout unbinds userIndex.
func (s *Service) Logout(userIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userIndex)
}

// Wait blocks until every in-flight verification has published.
func (s *Service) Wait() {
	s.wg.Wait()
}
