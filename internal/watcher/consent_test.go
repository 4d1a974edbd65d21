package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasOptIn(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected bool
	}{
		{
			name:     "HTML comment marker",
			text:     "hi, i post cat pictures <!-- altbot:opt-in -->",
			expected: true,
		},
		{
			name:     "bare marker",
			text:     "altbot:opt-in",
			expected: true,
		},
		{
			name:     "marker without hyphen",
			text:     "altbot:optin somewhere in a bio",
			expected: true,
		},
		{
			name:     "mixed case",
			text:     "AltBot:Opt-In",
			expected: true,
		},
		{
			name:     "no marker",
			text:     "just a regular about text",
			expected: false,
		},
		{
			name:     "empty",
			text:     "",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HasOptIn(tt.text))
		})
	}
}

func TestCheckConsent(t *testing.T) {
	consent := CheckConsent("altbot:opt-in", "nothing here")
	assert.True(t, consent.User)
	assert.False(t, consent.Community)

	consent = CheckConsent("", "<!-- altbot:optin -->")
	assert.False(t, consent.User)
	assert.True(t, consent.Community)
}
