package model

import "unicode"

type UserSession struct {
	Email         string `json:"email"`
	DisplayName   string `json:"name"`
	Authenticated bool   `json:"isLoggedIn"`
}

// Initial returns the upper-cased first letter of the display name, used for the avatar.
func (u UserSession) Initial() string {
	for _, r := range u.DisplayName {
		return string(unicode.ToUpper(r))
	}
	return ""
}
