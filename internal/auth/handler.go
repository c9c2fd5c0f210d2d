package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/authflow/internal/identity"
)

// LocalsUser is the fiber locals key under which the session middleware
// stores the caller's identity.Profile.
const LocalsUser = "user"

// CookieSettings controls the session cookie.
type CookieSettings struct {
	TTL    time.Duration
	Secure bool
}

// Handler exposes the account endpoints.
type Handler struct {
	ids    *identity.Service
	svc    *Service
	cookie CookieSettings
	logger *slog.Logger
}

// NewHandler builds the account HTTP handler.
func NewHandler(ids *identity.Service, svc *Service, cookie CookieSettings, logger *slog.Logger) *Handler {
	return &Handler{ids: ids, svc: svc, cookie: cookie, logger: logger}
}

type registerRequest struct {
	Name               string `json:"name"`
	Email              string `json:"email"`
	Phone              string `json:"phone"`
	Password           string `json:"password"`
	VerificationMethod string `json:"verificationMethod"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
	OTP   any    `json:"otp"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type sessionResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	User    identity.Profile `json:"user"`
	Token   string           `json:"token"`
}

type userResponse struct {
	Success bool             `json:"success"`
	User    identity.Profile `json:"user"`
}

var errBadBody = fiber.NewError(http.StatusBadRequest, "Invalid request body.")

// Register creates a pending account and sends its verification code.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return errBadBody
	}
	msg, err := h.ids.Register(c.UserContext(), identity.Registration{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Method:   identity.VerificationMethod(req.VerificationMethod),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(messageResponse{Success: true, Message: msg})
}

// VerifyOTP verifies a pending account and starts a session.
func (h *Handler) VerifyOTP(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return errBadBody
	}
	user, err := h.ids.VerifyOTP(c.UserContext(), identity.Verification{
		Email: req.Email,
		Phone: req.Phone,
		OTP:   otpString(req.OTP),
	})
	if err != nil {
		return err
	}
	return h.startSession(c, user, "Account verified successfully.")
}

// Login starts a session for a verified account.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return errBadBody
	}
	user, err := h.ids.Login(c.UserContext(), identity.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		return err
	}
	return h.startSession(c, user, "Login successful.")
}

// Logout expires the session cookie and revokes the session when one is presented.
func (h *Handler) Logout(c *fiber.Ctx) error {
	if err := h.svc.Logout(c.UserContext(), TokenFromRequest(c)); err != nil {
		h.logger.Warn("session revocation failed", slog.Any("error", err))
	}
	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    "",
		Expires:  time.Now(),
		HTTPOnly: true,
		Secure:   h.cookie.Secure,
	})
	return c.Status(http.StatusOK).JSON(messageResponse{Success: true, Message: "Logged out successfully."})
}

// Me echoes the authenticated caller.
func (h *Handler) Me(c *fiber.Ctx) error {
	profile, ok := c.Locals(LocalsUser).(identity.Profile)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "User is not authenticated.")
	}
	return c.Status(http.StatusOK).JSON(userResponse{Success: true, User: profile})
}

// ForgotPassword emails a reset link to a verified account.
func (h *Handler) ForgotPassword(c *fiber.Ctx) error {
	var req forgotRequest
	if err := c.BodyParser(&req); err != nil {
		return errBadBody
	}
	if err := h.ids.ForgotPassword(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(messageResponse{Success: true, Message: "Password reset email sent."})
}

// ResetPassword sets a new password from an emailed token and starts a session.
func (h *Handler) ResetPassword(c *fiber.Ctx) error {
	var req resetRequest
	if err := c.BodyParser(&req); err != nil {
		return errBadBody
	}
	user, err := h.ids.ResetPassword(c.UserContext(), identity.PasswordReset{
		Token:           c.Params("token"),
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		return err
	}
	return h.startSession(c, user, "Password reset successful.")
}

func (h *Handler) startSession(c *fiber.Ctx, user identity.User, message string) error {
	session, err := h.svc.Issue(user)
	if err != nil {
		return err
	}
	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    session.Token,
		Expires:  time.Now().Add(h.cookie.TTL),
		HTTPOnly: true,
		Secure:   h.cookie.Secure,
	})
	return c.Status(http.StatusOK).JSON(sessionResponse{
		Success: true,
		Message: message,
		User:    user.Profile(),
		Token:   session.Token,
	})
}

// otpString accepts the code as a JSON string or number.
func otpString(v any) string {
	switch otp := v.(type) {
	case string:
		return otp
	case float64:
		return strconv.FormatFloat(otp, 'f', -1, 64)
	default:
		return ""
	}
}
