package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/authflow/internal/events"
	"github.com/congo-pay/authflow/internal/notification"
)

const (
	subjectVerification = "Your Verification Code"
	subjectReset        = "Reset Password"
)

// Settings tunes the account lifecycle.
type Settings struct {
	CodeTTL            time.Duration
	ResetTTL           time.Duration
	MaxPendingAttempts int
	// ResetURLBase is the frontend origin reset links point at.
	ResetURLBase  string
	NotifyTimeout time.Duration
}

// DefaultSettings mirrors the production defaults.
func DefaultSettings() Settings {
	return Settings{
		CodeTTL:            10 * time.Minute,
		ResetTTL:           15 * time.Minute,
		MaxPendingAttempts: 3,
		ResetURLBase:       "http://localhost:5173",
		NotifyTimeout:      15 * time.Second,
	}
}

// Service manages the account lifecycle: registration, verification,
// login and password recovery.
type Service struct {
	repo     Repository
	email    notification.Notifier
	voice    notification.Notifier
	events   events.Publisher
	logger   *slog.Logger
	settings Settings
	now      func() time.Time
}

// NewService creates a new identity service. Email and voice are the two
// delivery channels for one-time codes.
func NewService(repo Repository, email, voice notification.Notifier, settings Settings) *Service {
	return &Service{
		repo:     repo,
		email:    email,
		voice:    voice,
		events:   events.Nop{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		settings: settings,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithLogger sets the logger used for delivery and event failures.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithEvents sets the lifecycle event publisher.
func (s *Service) WithEvents(publisher events.Publisher) *Service {
	if publisher != nil {
		s.events = publisher
	}
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Register creates an unverified account and sends it a one-time code over
// the requested channel. It returns the message to show the caller.
//
// The user record is created before the method is validated and before
// delivery, so a failed delivery leaves a pending record behind.
func (s *Service) Register(ctx context.Context, req Registration) (string, error) {
	if blank(req.Name, req.Email, req.Phone, req.Password, string(req.Method)) {
		return "", ErrMissingFields
	}
	if !ValidPhone(req.Phone) {
		return "", ErrInvalidPhone
	}

	_, err := s.repo.FindVerified(ctx, req.Email, req.Phone)
	switch {
	case err == nil:
		return "", ErrAlreadyInUse
	case !errors.Is(err, ErrNotFound):
		return "", fmt.Errorf("lookup verified user: %w", err)
	}

	attempts, err := s.repo.CountUnverified(ctx, req.Email, req.Phone)
	if err != nil {
		return "", err
	}
	if attempts > s.settings.MaxPendingAttempts {
		return "", ErrTooManyAttempts
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return "", err
	}
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	now := s.now()
	expire := now.Add(s.settings.CodeTTL)
	user := User{
		ID:                     uuid.New().String(),
		Name:                   req.Name,
		Email:                  req.Email,
		Phone:                  req.Phone,
		PasswordHash:           hash,
		VerificationCode:       &code,
		VerificationCodeExpire: &expire,
		CreatedAt:              now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	s.publish(ctx, events.TypeRegistered, user, string(req.Method))

	return s.dispatch(ctx, req.Method, user, code)
}

// dispatch delivers code over the chosen channel.
func (s *Service) dispatch(ctx context.Context, method VerificationMethod, user User, code int) (string, error) {
	var (
		notifier notification.Notifier
		msg      notification.Message
		reply    string
	)
	switch method {
	case MethodEmail:
		body, err := notification.VerificationEmail(code, s.settings.CodeTTL)
		if err != nil {
			return "", err
		}
		notifier = s.email
		msg = notification.Message{
			Kind:        notification.KindVerificationEmail,
			Destination: user.Email,
			Subject:     subjectVerification,
			Body:        body,
		}
		reply = "Verification email sent to " + user.Email
	case MethodPhone:
		notifier = s.voice
		msg = notification.Message{
			Kind:        notification.KindVerificationCall,
			Destination: user.Phone,
			Body:        notification.VoiceScript(code),
		}
		reply = "OTP sent successfully."
	default:
		return "", ErrInvalidMethod
	}

	if err := s.send(ctx, notifier, msg); err != nil {
		s.logger.Error("verification delivery failed",
			slog.String("user_id", user.ID),
			slog.String("method", string(method)),
			slog.Any("error", err),
		)
		return "", ErrDelivery.wrap(err)
	}
	return reply, nil
}

// VerifyOTP marks the newest pending registration for the email or phone as
// verified when the code matches and has not expired.
func (s *Service) VerifyOTP(ctx context.Context, req Verification) (User, error) {
	if !ValidPhone(req.Phone) {
		return User{}, ErrInvalidPhone
	}

	user, err := s.repo.LatestUnverified(ctx, req.Email, req.Phone)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}

	otp, err := strconv.Atoi(strings.TrimSpace(req.OTP))
	if err != nil || user.VerificationCode == nil || *user.VerificationCode != otp {
		return User{}, ErrInvalidOTP
	}
	if user.VerificationCodeExpire == nil || s.now().After(*user.VerificationCodeExpire) {
		return User{}, ErrOTPExpired
	}

	user.AccountVerified = true
	user.VerificationCode = nil
	user.VerificationCodeExpire = nil
	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return User{}, ErrAlreadyInUse.wrap(err)
		}
		return User{}, fmt.Errorf("verify user: %w", err)
	}
	s.publish(ctx, events.TypeVerified, user, "")
	return user, nil
}

// Login checks credentials against verified accounts only.
func (s *Service) Login(ctx context.Context, creds Credentials) (User, error) {
	if creds.Email == "" || creds.Password == "" {
		return User{}, ErrMissingCredentials
	}
	user, err := s.repo.FindVerifiedByEmail(ctx, creds.Email)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if !CheckPassword(user.PasswordHash, creds.Password) {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrUserNotFound
	}
	return user, err
}

// ForgotPassword stores a fresh reset token for a verified account and emails
// the reset link. The reset fields stay stored when the email fails.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.repo.FindVerifiedByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}

	token, hash, err := generateResetToken()
	if err != nil {
		return err
	}
	if err := s.repo.SetResetToken(ctx, user.ID, hash, s.now().Add(s.settings.ResetTTL)); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	body, err := notification.PasswordResetEmail(s.ResetURL(token))
	if err != nil {
		return err
	}
	err = s.send(ctx, s.email, notification.Message{
		Kind:        notification.KindPasswordReset,
		Destination: user.Email,
		Subject:     subjectReset,
		Body:        body,
	})
	if err != nil {
		s.logger.Error("password reset delivery failed", slog.String("user_id", user.ID), slog.Any("error", err))
		return ErrResetDelivery.wrap(err)
	}
	return nil
}

// ResetURL builds the frontend link carrying a plaintext reset token.
func (s *Service) ResetURL(token string) string {
	return strings.TrimRight(s.settings.ResetURLBase, "/") + "/password/reset/" + token
}

// ResetPassword replaces the password of the account owning an unexpired
// reset token and clears the token.
func (s *Service) ResetPassword(ctx context.Context, req PasswordReset) (User, error) {
	user, err := s.repo.FindByResetToken(ctx, HashResetToken(req.Token), s.now())
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidResetToken
	}
	if err != nil {
		return User{}, err
	}
	if blank(req.Password) {
		return User{}, ErrMissingFields
	}
	if req.Password != req.ConfirmPassword {
		return User{}, ErrPasswordMismatch
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return User{}, err
	}
	user.PasswordHash = hash
	user.ResetPasswordToken = nil
	user.ResetPasswordExpire = nil
	if err := s.repo.Update(ctx, user); err != nil {
		return User{}, fmt.Errorf("reset password: %w", err)
	}
	s.publish(ctx, events.TypePasswordReset, user, "")
	return user, nil
}

func (s *Service) send(ctx context.Context, notifier notification.Notifier, msg notification.Message) error {
	if notifier == nil {
		return errors.New("no notifier configured")
	}
	if s.settings.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.NotifyTimeout)
		defer cancel()
	}
	return notifier.Send(ctx, msg)
}

func (s *Service) publish(ctx context.Context, kind string, user User, channel string) {
	err := s.events.Publish(ctx, events.Event{
		Type:       kind,
		UserID:     user.ID,
		Email:      user.Email,
		Channel:    channel,
		OccurredAt: s.now(),
	})
	if err != nil {
		s.logger.Warn("publish account event", slog.String("type", kind), slog.Any("error", err))
	}
}

func blank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}
