package rewards

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActivityKeyIsDeterministic(t *testing.T) {
	key := ActivityKey("basics", "greetings", "step-3", "quiz")
	assert.Equal(t, "basics:greetings:step-3:quiz", key)
	assert.Equal(t, key, ActivityKey("basics", "greetings", "step-3", "quiz"))
}

func TestValidateActivityKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"well formed", "basics:greetings:step-3:quiz", false},
		{"single segment", "streak-bonus", false},
		{"empty", "", true},
		{"empty segment", "basics::step-3:quiz", true},
		{"whitespace segment", "basics: :step-3:quiz", true},
		{"trailing colon", "basics:greetings:step-3:", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateActivityKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
