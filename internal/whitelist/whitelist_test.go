package whitelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestIsTrusted(t *testing.T) {
	checker := NewChecker([]string{"@google.com", " @GitHub.com ", ""}, zaptest.NewLogger(t))

	tests := []struct {
		name   string
		sender string
		want   bool
	}{
		{"exact address", "billing@google.com", true},
		{"display name form", "Google <billing@google.com>", true},
		{"case insensitive", "NoReply@GITHUB.COM", true},
		{"untrusted", "promo@unknown-shop.biz", false},
		{"substring over-match", "x@google.com.evil.biz", true},
		{"empty sender", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checker.IsTrusted(tt.sender))
		})
	}
}

func TestBlankEntriesDropped(t *testing.T) {
	checker := NewChecker([]string{"", "   "}, nil)

	assert.Empty(t, checker.Domains())
	assert.False(t, checker.IsTrusted("anyone@anywhere.org"))
}

func TestNilChecker(t *testing.T) {
	var checker *Checker
	assert.False(t, checker.IsTrusted("billing@google.com"))
}
