package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatPhoneNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"15551234567", "15551234567@c.us"},
		{"+1 (555) 123-4567", "15551234567@c.us"},
		{"08123456789", "628123456789@c.us"},
		{"628123456789@c.us", "628123456789@c.us"},
		{"120363025@g.us", "120363025@g.us"},
		{"  15551234567 ", "15551234567@c.us"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatPhoneNumber(tt.in))
		})
	}
}

func TestIsGroupID(t *testing.T) {
	assert.True(t, IsGroupID("1203@g.us"))
	assert.False(t, IsGroupID("1555@c.us"))
}
