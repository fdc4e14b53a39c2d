package core

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"clinicore/internal/audit"
	"clinicore/pkg/domain"
)

const bcryptCost = 12

// HashPassword returns the bcrypt hash stored on User.PasswordHash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CreateUser stores a staff account. A non-empty password is hashed.
func (s *Service) CreateUser(ctx context.Context, sess *Session, user domain.User, password string) (domain.User, Result, error) {
	if password != "" {
		hash, err := HashPassword(password)
		if err != nil {
			return domain.User{}, Result{}, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}
	return createRecord(ctx, s, sess, userOps, user)
}

// SetPassword replaces the user's password hash.
func (s *Service) SetPassword(ctx context.Context, sess *Session, userID, password string) (bool, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	_, ok, err := s.UpdateUser(ctx, sess, userID, func(u *domain.User) error {
		u.PasswordHash = hash
		return nil
	})
	return ok, err
}

// SessionFor builds the actor context of user.
func SessionFor(user domain.User) *Session {
	return &Session{
		ActorID:        user.ID,
		ActorName:      user.Name,
		Role:           user.Role,
		OrganizationID: user.OrganizationID,
		FacilityID:     user.FacilityID,
	}
}

// Login checks credentials and returns the actor session. A locked account
// is rejected before the password is looked at. Every attempt is audited.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	var sess *Session
	var loginErr error
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		tx.SetOrigin(domain.OriginSystem)
		user, ok := tx.FindUserByEmail(email)
		if !ok {
			loginErr = domain.ErrInvalidCredentials
			s.audit.Record(tx, &Session{ActorID: email, ActorName: email}, audit.Entry{
				Action:      domain.AuditLoginFailed,
				EntityType:  domain.EntityUser,
				Description: "unknown account",
			})
			return nil
		}
		now := tx.Now()
		actor := SessionFor(user)
		failed := func(description string) {
			s.audit.Record(tx, actor, audit.Entry{
				Action:      domain.AuditLoginFailed,
				EntityType:  domain.EntityUser,
				EntityID:    user.ID,
				EntityName:  user.Name,
				Description: description,
			})
		}
		if err := s.lockout.Check(user, now); err != nil {
			loginErr = err
			failed("account locked")
			return nil
		}
		if !user.Active || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
			var lockedNow bool
			updated, err := tx.UpdateUser(user.ID, func(u *domain.User) error {
				lockedNow = s.lockout.RegisterFailure(u, now)
				return nil
			})
			if err != nil {
				return err
			}
			loginErr = domain.ErrInvalidCredentials
			failed(fmt.Sprintf("invalid credentials (attempt %d)", updated.FailedLoginAttempts))
			if lockedNow {
				s.metrics.Lockout()
				s.log.Warn("account locked", zap.String("user", user.ID), zap.Int("attempts", updated.FailedLoginAttempts))
			}
			return nil
		}
		if _, err := tx.UpdateUser(user.ID, func(u *domain.User) error {
			s.lockout.RegisterSuccess(u, now)
			return nil
		}); err != nil {
			return err
		}
		s.audit.Record(tx, actor, audit.Entry{
			Action:     domain.AuditLogin,
			EntityType: domain.EntityUser,
			EntityID:   user.ID,
			EntityName: user.Name,
		})
		sess = actor
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if loginErr != nil {
		if !errors.Is(loginErr, domain.ErrAccountLocked) {
			s.log.Info("login failed", zap.String("email", email))
		}
		return nil, loginErr
	}
	return sess, nil
}

// Logout records the end of sess.
func (s *Service) Logout(ctx context.Context, sess *Session) {
	if !sess.Valid() {
		return
	}
	s.audit.Log(ctx, sess, audit.Entry{
		Action:     domain.AuditLogout,
		EntityType: domain.EntityUser,
		EntityID:   sess.ActorID,
		EntityName: sess.ActorName,
	})
}
