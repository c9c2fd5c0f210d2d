package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"strconv"
	"strings"
	"time"
)

var verificationEmailTmpl = template.Must(template.New("verification").Parse(`
  <div style="font-family: Arial; padding: 20px;">
    <h2>Email Verification</h2>
    <p>Your verification code is:</p>
    <h1>{{.Code}}</h1>
    <p>This code expires in {{.Minutes}} minutes.</p>
  </div>`))

var resetEmailTmpl = template.Must(template.New("reset").Parse(`
  <div style="font-family: Arial; padding: 20px;">
    <h2>Reset Password</h2>
    <p>Reset your password here: <a href="{{.URL}}">{{.URL}}</a></p>
    <p>If you did not request this, you can ignore this email.</p>
  </div>`))

// VerificationEmail renders the HTML body carrying an OTP valid for ttl.
func VerificationEmail(code int, ttl time.Duration) (string, error) {
	var buf bytes.Buffer
	err := verificationEmailTmpl.Execute(&buf, struct {
		Code    int
		Minutes int
	}{Code: code, Minutes: int(math.Ceil(ttl.Minutes()))})
	if err != nil {
		return "", fmt.Errorf("render verification email: %w", err)
	}
	return buf.String(), nil
}

// PasswordResetEmail renders the HTML body carrying a reset link.
func PasswordResetEmail(resetURL string) (string, error) {
	var buf bytes.Buffer
	if err := resetEmailTmpl.Execute(&buf, struct{ URL string }{URL: resetURL}); err != nil {
		return "", fmt.Errorf("render reset email: %w", err)
	}
	return buf.String(), nil
}

// SpacedDigits spells a code digit by digit so speech synthesis reads "1 2 3"
// rather than "one hundred twenty-three".
func SpacedDigits(code int) string {
	return strings.Join(strings.Split(strconv.Itoa(code), ""), " ")
}

// VoiceScript returns the TwiML read out on a verification call. The code is
// spoken twice.
func VoiceScript(code int) string {
	spaced := SpacedDigits(code)
	return fmt.Sprintf("<Response><Say>Your verification code is %s. Repeat: %s.</Say></Response>", spaced, spaced)
}
