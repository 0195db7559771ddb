package telegramreader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/panwatch/panwatch/internal/core/domain"
)

func TestIsInviteHash(t *testing.T) {
	tests := []struct {
		name     string
		username string
		want     bool
	}{
		{name: "invite hash", username: "+AbCdEf123456", want: true},
		{name: "hash with dash and underscore", username: "+aB-cD_eF1234", want: true},
		{name: "public handle", username: "somechannel", want: false},
		{name: "too short", username: "+abc123", want: false},
		{name: "invalid rune", username: "+abcdef123456!", want: false},
		{name: "empty", username: "", want: false},
		{name: "bare plus", username: "+", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isInviteHash(tt.username))
		})
	}
}

func TestMergeChannels(t *testing.T) {
	stored := []domain.Channel{
		{Username: "beta"},
		{Username: "alpha"},
	}

	merged := mergeChannels(stored, []string{" alpha ", "gamma", "", "beta"})

	assert.Equal(t, []string{"alpha", "beta", "gamma"}, merged)
}

func TestMergeChannels_Empty(t *testing.T) {
	assert.Empty(t, mergeChannels(nil, nil))
}

func TestMessageTime(t *testing.T) {
	// 2024-01-02 03:04:05 UTC becomes 11:04:05 Beijing time.
	got := messageTime(int(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Unix()))

	assert.Equal(t, time.Date(2024, 1, 2, 11, 4, 5, 0, time.UTC), got)
}

func TestTextPrefix(t *testing.T) {
	assert.Equal(t, "short", textPrefix("short", 200))
	assert.Equal(t, "世界世", textPrefix("世界世界", 3))
}

func TestSanitizePhone(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  string
	}{
		{name: "plain", phone: "8613800138000", want: "8613800138000"},
		{name: "plus kept", phone: "+86 138 0013 8000", want: "+8613800138000"},
		{name: "punctuation stripped", phone: "+86-138 (0013) 8000", want: "+8613800138000"},
		{name: "whitespace trimmed", phone: "  +8613800138000\n", want: "+8613800138000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizePhone(tt.phone))
		})
	}
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "+86****00", maskPhone("+8613800138000"))
	assert.Equal(t, "****", maskPhone("123456"))
}
