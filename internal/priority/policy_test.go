// ABOUTME: Tests for the priority policy
// ABOUTME: Covers level resolution, creator precedence, and outranking

package priority

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Rank(t *testing.T) {
	p := NewPolicy("@creator:example.org", []string{"@admin:example.org", " ", "@creator:example.org"})

	tests := []struct {
		name   string
		userID string
		want   Level
	}{
		{"creator", "@creator:example.org", Creator},
		{"admin", "@admin:example.org", Admin},
		{"stranger", "@someone:example.org", Standard},
		{"empty", "", Standard},
		{"blank admin entry ignored", " ", Standard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Rank(tt.userID))
		})
	}
}

func TestPolicy_NoCreatorConfigured(t *testing.T) {
	p := NewPolicy("", nil)
	assert.Equal(t, Standard, p.Rank(""))
	assert.Equal(t, Standard, p.Rank("@anyone:example.org"))
}

func TestPolicy_Outranks(t *testing.T) {
	p := NewPolicy("c", []string{"a1", "a2"})

	assert.True(t, p.Outranks("c", "a1"))
	assert.True(t, p.Outranks("a1", "u"))
	assert.False(t, p.Outranks("a1", "a2"), "equal rank never outranks")
	assert.False(t, p.Outranks("u", "a1"))
	assert.False(t, p.Outranks("c", "c"))
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "creator", Creator.String())
	assert.Equal(t, "admin", Admin.String())
	assert.Equal(t, "standard", Standard.String())
	assert.True(t, Admin.Privileged())
	assert.False(t, Standard.Privileged())
}
