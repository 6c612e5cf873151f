// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/tvarchive/internal/dbinterface"
	"github.com/autobrr/tvarchive/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("unable to log in with provided credentials")
	ErrInactive           = errors.New("user account is not active")
	ErrAlreadyActive      = errors.New("user account is already active")
	ErrStaleToken         = errors.New("token is no longer valid for this account")
	// ErrWrongPassword is matched by validation errors raised for a password
	// that did not verify, so callers can count them as failed logins.
	ErrWrongPassword = errors.New("wrong password")

	ErrSelfDelegation   = errors.New("a user cannot be their own master")
	ErrMasterIsSlave    = errors.New("a slave account cannot have slaves")
	ErrSlaveHasSlaves   = errors.New("an account with slaves cannot become a slave")
	ErrAlreadyHasMaster = errors.New("account already has a master")
	ErrNotSlave         = errors.New("account is not a slave of this master")
)

type wrongPasswordError struct {
	*models.ValidationError
}

func (e wrongPasswordError) Unwrap() []error {
	return []error{e.ValidationError, ErrWrongPassword}
}

func wrongPassword(field, format string, args ...any) error {
	return wrongPasswordError{models.FieldError(field, format, args...)}
}

// Notifier delivers account emails. Implementations are expected to queue
// and return quickly.
type Notifier interface {
	SendActivation(ctx context.Context, user *models.User, token string) error
	SendConfirmation(ctx context.Context, user *models.User) error
	SendPasswordReset(ctx context.Context, user *models.User, token string) error
	SendPasswordChanged(ctx context.Context, user *models.User) error
}

type nopNotifier struct{}

func (nopNotifier) SendActivation(context.Context, *models.User, string) error    { return nil }
func (nopNotifier) SendConfirmation(context.Context, *models.User) error          { return nil }
func (nopNotifier) SendPasswordReset(context.Context, *models.User, string) error { return nil }
func (nopNotifier) SendPasswordChanged(context.Context, *models.User) error       { return nil }

// Credentials identify another account by username and password, used when
// attaching master or slave accounts.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Country  string `json:"country"`
}

type TokenPair struct {
	Access         string    `json:"access"`
	Refresh        string    `json:"refresh"`
	AccessExpires  time.Time `json:"access_expires"`
	RefreshExpires time.Time `json:"refresh_expires"`
}

type Service struct {
	db       dbinterface.TxBeginner
	users    *models.UserStore
	tokens   *TokenIssuer
	notifier Notifier
}

func NewService(db dbinterface.TxBeginner, tokens *TokenIssuer, notifier Notifier) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		db:       db,
		users:    models.NewUserStore(db),
		tokens:   tokens,
		notifier: notifier,
	}
}

func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}

func (s *Service) GetUser(ctx context.Context, id int) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) GetUserIncludingDeleted(ctx context.Context, id int) (*models.User, error) {
	return s.users.GetByIDIncludingDeleted(ctx, id)
}

func (s *Service) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.users.GetByUsername(ctx, username)
}

func (s *Service) ListUsers(ctx context.Context, opts models.UserListOptions) ([]*models.User, int, error) {
	return s.users.List(ctx, opts)
}

func (s *Service) createUser(ctx context.Context, username, email, password string, active, staff bool) (*models.User, error) {
	v := models.NewValidationError()

	username, err := ValidateUsername(username)
	mergeValidation(v, err)
	email, err = ValidateEmail(email)
	mergeValidation(v, err)
	mergeValidation(v, ValidatePassword("password", password, username, email))

	if err := v.OrNil(); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var user *models.User
	err = s.db.WithTx(ctx, nil, func(tx dbinterface.TxQuerier) error {
		var err error
		user, err = s.users.Tx(tx).Create(ctx, models.UserCreate{
			Username:     username,
			Email:        email,
			PasswordHash: hash,
			IsActive:     active,
			IsStaff:      staff,
			IsSuperuser:  staff,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Register creates an inactive account and sends its activation email.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	country, err := ValidateCountry(input.Country)
	if err != nil {
		return nil, err
	}

	user, err := s.createUser(ctx, input.Username, input.Email, input.Password, false, false)
	if err != nil {
		return nil, err
	}

	if country != "" {
		if err := s.users.UpdateProfile(ctx, user.ID, models.UserProfileUpdate{Country: &country}); err != nil {
			return nil, err
		}
		user.Country = country
	}

	if err := s.sendActivation(ctx, user); err != nil {
		log.Warn().Err(err).Int("userID", user.ID).Msg("failed to queue activation email")
	}

	log.Info().Str("username", user.Username).Msg("user registered")
	return user, nil
}

// CreateUser creates an already active account, used by the CLI.
func (s *Service) CreateUser(ctx context.Context, username, email, password string, staff bool) (*models.User, error) {
	return s.createUser(ctx, username, email, password, true, staff)
}

func (s *Service) sendActivation(ctx context.Context, user *models.User) error {
	token, _, err := s.tokens.Issue(user, PurposeActivation)
	if err != nil {
		return err
	}
	return s.notifier.SendActivation(ctx, user, token)
}

// userFromToken resolves a one-time token to its user and checks that the
// account has not changed since the token was issued.
func (s *Service) userFromToken(ctx context.Context, token string, purpose Purpose) (*models.User, error) {
	claims, err := s.tokens.Parse(token, purpose)
	if err != nil {
		return nil, err
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if purpose == PurposeActivation && user.IsActive {
		return nil, ErrAlreadyActive
	}
	if claims.Fingerprint != Fingerprint(user) {
		return nil, ErrStaleToken
	}
	return user, nil
}

func (s *Service) Activate(ctx context.Context, token string) (*models.User, error) {
	user, err := s.userFromToken(ctx, token, PurposeActivation)
	if err != nil {
		return nil, err
	}

	if err := s.users.SetActive(ctx, user.ID, true); err != nil {
		return nil, err
	}
	user.IsActive = true

	if err := s.notifier.SendConfirmation(ctx, user); err != nil {
		log.Warn().Err(err).Int("userID", user.ID).Msg("failed to queue confirmation email")
	}
	return user, nil
}

// ResendActivation is silent for unknown or already active addresses.
func (s *Service) ResendActivation(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil
		}
		return err
	}
	if user.IsActive {
		return nil
	}
	return s.sendActivation(ctx, user)
}

// RequestPasswordReset is silent for unknown or inactive addresses.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil
		}
		return err
	}
	if !user.IsActive {
		return nil
	}

	token, _, err := s.tokens.Issue(user, PurposeReset)
	if err != nil {
		return err
	}
	return s.notifier.SendPasswordReset(ctx, user, token)
}

func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	user, err := s.userFromToken(ctx, token, PurposeReset)
	if err != nil {
		return err
	}
	return s.setPassword(ctx, user, "new_password", newPassword)
}

func (s *Service) setPassword(ctx context.Context, user *models.User, field, password string) error {
	if err := ValidatePassword(field, password, user.Username, user.Email); err != nil {
		return err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	user.PasswordHash = hash

	if err := s.notifier.SendPasswordChanged(ctx, user); err != nil {
		log.Warn().Err(err).Int("userID", user.ID).Msg("failed to queue password changed email")
	}
	return nil
}

// Login checks credentials. Inactive accounts are reported only after the
// password matched.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			burnVerify(password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	valid, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !valid {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactive
	}

	if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
		log.Warn().Err(err).Int("userID", user.ID).Msg("failed to update last login")
	}
	return user, nil
}

func (s *Service) checkPassword(ctx context.Context, userID int, password string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	valid, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !valid {
		return nil, wrongPassword("current_password", "invalid password")
	}
	return user, nil
}

func (s *Service) SetPassword(ctx context.Context, userID int, currentPassword, newPassword string) error {
	user, err := s.checkPassword(ctx, userID, currentPassword)
	if err != nil {
		return err
	}
	return s.setPassword(ctx, user, "new_password", newPassword)
}

// ChangePasswordByUsername resets a password without the current one, for
// the CLI.
func (s *Service) ChangePasswordByUsername(ctx context.Context, username, newPassword string) error {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	return s.setPassword(ctx, user, "password", newPassword)
}

func (s *Service) SetUsername(ctx context.Context, userID int, currentPassword, newUsername string) (*models.User, error) {
	if _, err := s.checkPassword(ctx, userID, currentPassword); err != nil {
		return nil, err
	}
	username, err := ValidateUsername(newUsername)
	if err != nil {
		return nil, renameField(err, "username", "new_username")
	}
	if err := s.users.UpdateUsername(ctx, userID, username); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, userID)
}

func (s *Service) SetEmail(ctx context.Context, userID int, currentPassword, newEmail string) (*models.User, error) {
	if _, err := s.checkPassword(ctx, userID, currentPassword); err != nil {
		return nil, err
	}
	email, err := ValidateEmail(newEmail)
	if err != nil {
		return nil, renameField(err, "email", "new_email")
	}
	if err := s.users.UpdateEmail(ctx, userID, email); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, userID)
}

func (s *Service) UpdateProfile(ctx context.Context, userID int, update models.UserProfileUpdate) (*models.User, error) {
	if update.Country != nil {
		country, err := ValidateCountry(*update.Country)
		if err != nil {
			return nil, err
		}
		update.Country = &country
	}
	if err := s.users.UpdateProfile(ctx, userID, update); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, userID)
}

// DeleteAccount soft-deletes the account after checking its password.
func (s *Service) DeleteAccount(ctx context.Context, userID int, currentPassword string) error {
	if _, err := s.checkPassword(ctx, userID, currentPassword); err != nil {
		return err
	}
	err := s.db.WithTx(ctx, nil, func(tx dbinterface.TxQuerier) error {
		return s.users.Tx(tx).SoftDelete(ctx, userID)
	})
	if err != nil {
		return err
	}
	log.Info().Int("userID", userID).Msg("user account deleted")
	return nil
}

func (s *Service) Undelete(ctx context.Context, userID int) (*models.User, error) {
	if err := s.users.Undelete(ctx, userID); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, userID)
}

// authenticateOther verifies the credentials of another account.
func (s *Service) authenticateOther(ctx context.Context, field string, creds Credentials) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			burnVerify(creds.Password)
			return nil, wrongPassword(field, "invalid credentials for %q", creds.Username)
		}
		return nil, err
	}
	valid, err := VerifyPassword(creds.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !valid {
		return nil, wrongPassword(field, "invalid credentials for %q", creds.Username)
	}
	return user, nil
}

// SetSlaves replaces the slaves of masterID with the given accounts. Every
// slave proves consent with its own password.
func (s *Service) SetSlaves(ctx context.Context, masterID int, slaves []Credentials) ([]*models.User, error) {
	slaveIDs := make([]int, 0, len(slaves))
	seen := make(map[int]struct{}, len(slaves))
	for _, creds := range slaves {
		slave, err := s.authenticateOther(ctx, "slaves", creds)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[slave.ID]; ok {
			continue
		}
		seen[slave.ID] = struct{}{}
		slaveIDs = append(slaveIDs, slave.ID)
	}

	err := s.db.WithTx(ctx, nil, func(tx dbinterface.TxQuerier) error {
		users := s.users.Tx(tx)

		master, err := users.GetByID(ctx, masterID)
		if err != nil {
			return err
		}
		if master.IsSlave() && len(slaveIDs) > 0 {
			return ErrMasterIsSlave
		}

		current, err := users.ListSlaves(ctx, masterID)
		if err != nil {
			return err
		}
		for _, slave := range current {
			if _, keep := seen[slave.ID]; !keep {
				if err := users.SetMaster(ctx, slave.ID, nil); err != nil {
					return err
				}
			}
		}

		for _, id := range slaveIDs {
			if id == masterID {
				return ErrSelfDelegation
			}
			slave, err := users.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if slave.MasterID != nil && *slave.MasterID != masterID {
				return fmt.Errorf("%w: %s", ErrAlreadyHasMaster, slave.Username)
			}
			count, err := users.CountSlaves(ctx, id)
			if err != nil {
				return err
			}
			if count > 0 {
				return fmt.Errorf("%w: %s", ErrSlaveHasSlaves, slave.Username)
			}
			if err := users.SetMaster(ctx, id, &masterID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.users.ListSlaves(ctx, masterID)
}

// SetMaster attaches slaveID to the account identified by creds.
func (s *Service) SetMaster(ctx context.Context, slaveID int, creds Credentials) (*models.User, error) {
	master, err := s.authenticateOther(ctx, "master", creds)
	if err != nil {
		return nil, err
	}
	if master.ID == slaveID {
		return nil, ErrSelfDelegation
	}

	err = s.db.WithTx(ctx, nil, func(tx dbinterface.TxQuerier) error {
		users := s.users.Tx(tx)

		master, err := users.GetByID(ctx, master.ID)
		if err != nil {
			return err
		}
		if master.IsSlave() {
			return ErrMasterIsSlave
		}

		slave, err := users.GetByID(ctx, slaveID)
		if err != nil {
			return err
		}
		if slave.MasterID != nil && *slave.MasterID != master.ID {
			return ErrAlreadyHasMaster
		}
		count, err := users.CountSlaves(ctx, slaveID)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrSlaveHasSlaves
		}
		return users.SetMaster(ctx, slaveID, &master.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, slaveID)
}

func (s *Service) DetachSlave(ctx context.Context, masterID, slaveID int) error {
	slave, err := s.users.GetByID(ctx, slaveID)
	if err != nil {
		return err
	}
	if slave.MasterID == nil || *slave.MasterID != masterID {
		return ErrNotSlave
	}
	return s.users.SetMaster(ctx, slaveID, nil)
}

func (s *Service) DetachFromMaster(ctx context.Context, slaveID int) error {
	slave, err := s.users.GetByID(ctx, slaveID)
	if err != nil {
		return err
	}
	if slave.MasterID == nil {
		return ErrNotSlave
	}
	return s.users.SetMaster(ctx, slaveID, nil)
}

func (s *Service) ListSlaves(ctx context.Context, masterID int) ([]*models.User, error) {
	return s.users.ListSlaves(ctx, masterID)
}

func (s *Service) IssueTokenPair(user *models.User) (*TokenPair, error) {
	access, accessExp, err := s.tokens.Issue(user, PurposeAccess)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.tokens.Issue(user, PurposeRefresh)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		Access:         access,
		Refresh:        refresh,
		AccessExpires:  accessExp,
		RefreshExpires: refreshExp,
	}, nil
}

// Refresh exchanges a refresh token for a new access token. Refresh tokens
// stop working once the password changes.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	user, err := s.userFromToken(ctx, refreshToken, PurposeRefresh)
	if err != nil {
		return "", time.Time{}, err
	}
	if !user.IsActive {
		return "", time.Time{}, ErrInactive
	}
	return s.tokens.Issue(user, PurposeAccess)
}

// VerifyAccess resolves an access token to an active user.
func (s *Service) VerifyAccess(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := s.tokens.Parse(accessToken, PurposeAccess)
	if err != nil {
		return nil, err
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactive
	}
	return user, nil
}

func mergeValidation(dst *models.ValidationError, err error) {
	var v *models.ValidationError
	if !errors.As(err, &v) {
		return
	}
	for field, messages := range v.Fields {
		for _, m := range messages {
			dst.Add(field, m)
		}
	}
}

// renameField moves validation messages reported on from to to.
func renameField(err error, from, to string) error {
	var v *models.ValidationError
	if !errors.As(err, &v) {
		return err
	}
	out := models.NewValidationError()
	for field, messages := range v.Fields {
		if field == from {
			field = to
		}
		for _, m := range messages {
			out.Add(field, m)
		}
	}
	return out
}
