package watcher

import "regexp"

// Users and communities opt in to generated descriptions by placing this
// marker (optionally inside an HTML comment) in their profile or about text.
var optInPattern = regexp.MustCompile(`(?i)<!--\s*altbot:opt-?in\s*-->|altbot:opt-?in`)

// Consent is the result of checking a post's author and community for the
// opt-in marker.
type Consent struct {
	User      bool
	Community bool
}

// HasOptIn reports whether the given profile text contains the opt-in marker.
func HasOptIn(text string) bool {
	return optInPattern.MatchString(text)
}

// CheckConsent evaluates both sides of the opt-in policy for a post.
func CheckConsent(userAbout, communityAbout string) Consent {
	return Consent{
		User:      HasOptIn(userAbout),
		Community: HasOptIn(communityAbout),
	}
}
