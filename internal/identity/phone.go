package identity

import "regexp"

// Indian mobile numbers: +91 followed by ten digits, the first in 6-9.
var indianPhone = regexp.MustCompile(`^\+91[6-9]\d{9}$`)

// ValidPhone reports whether phone is an Indian mobile number in E.164 form.
func ValidPhone(phone string) bool {
	return indianPhone.MatchString(phone)
}
