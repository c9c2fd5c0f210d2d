package identity

import "time"

// VerificationMethod names the channel an OTP is delivered through.
type VerificationMethod string

const (
	MethodEmail VerificationMethod = "email"
	MethodPhone VerificationMethod = "phone"
)

// User is an account record. Verification and reset fields are nil when
// no code or reset is pending.
type User struct {
	ID                     string     `bson:"_id"`
	Name                   string     `bson:"name"`
	Email                  string     `bson:"email"`
	Phone                  string     `bson:"phone"`
	PasswordHash           []byte     `bson:"password"`
	AccountVerified        bool       `bson:"accountVerified"`
	VerificationCode       *int       `bson:"verificationCode"`
	VerificationCodeExpire *time.Time `bson:"verificationCodeExpire"`
	ResetPasswordToken     *string    `bson:"resetPasswordToken"`
	ResetPasswordExpire    *time.Time `bson:"resetPasswordExpire"`
	CreatedAt              time.Time  `bson:"createdAt"`
}

// Profile is the public view of a user returned to clients.
type Profile struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	AccountVerified bool      `json:"accountVerified"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Profile strips credentials and pending secrets from the record.
func (u User) Profile() Profile {
	return Profile{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		Phone:           u.Phone,
		AccountVerified: u.AccountVerified,
		CreatedAt:       u.CreatedAt,
	}
}

// Registration is the signup request.
type Registration struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Method   VerificationMethod
}

// Verification is an OTP submission.
type Verification struct {
	Email string
	Phone string
	OTP   string
}

// Credentials request structure.
type Credentials struct {
	Email    string
	Password string
}

// PasswordReset carries the emailed token and the new password.
type PasswordReset struct {
	Token           string
	Password        string
	ConfirmPassword string
}
