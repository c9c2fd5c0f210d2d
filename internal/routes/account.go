package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/authflow/internal/auth"
)

// AccountGuards are the middlewares placed in front of account endpoints.
type AccountGuards struct {
	Session fiber.Handler
	Login   fiber.Handler
	Verify  fiber.Handler
	// Replay serves repeated Idempotency-Key requests. It is only mounted on
	// routes that never issue a session.
	Replay fiber.Handler
}

// RegisterAccountRoutes wires registration, verification, session and
// password recovery endpoints under /user.
func RegisterAccountRoutes(r fiber.Router, h *auth.Handler, g AccountGuards) {
	group := r.Group("/user")
	group.Post("/register", with(g.Replay, h.Register)...)
	group.Post("/otp-verification", with(g.Verify, h.VerifyOTP)...)
	group.Post("/login", with(g.Login, h.Login)...)
	group.Get("/logout", h.Logout)
	group.Get("/me", with(g.Session, h.Me)...)
	group.Post("/password/forgot", with(g.Replay, h.ForgotPassword)...)
	group.Put("/password/reset/:token", h.ResetPassword)
}

func with(guard, h fiber.Handler) []fiber.Handler {
	if guard == nil {
		return []fiber.Handler{h}
	}
	return []fiber.Handler{guard, h}
}
