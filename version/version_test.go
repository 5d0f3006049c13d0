package version

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/avscheduler/errors"
)

func TestInfoString(t *testing.T) {
	info := Info{Version: "dev", CommitHash: "abcdef123", BuildTime: "now"}
	assert.Equal(t, "avsched dev (commit abcdef123, built now)", info.String())
	assert.Equal(t, "abcdef1", info.Short())

	info.Version = "0.4.1"
	assert.Equal(t, "avsched 0.4.1 (commit abcdef123, built now)", info.String())
}

func TestSatisfies(t *testing.T) {
	tests := []struct {
		name       string
		version    string
		constraint string
		wantErr    bool
	}{
		{"empty constraint", "0.1.0", "", false},
		{"dev build", "dev", ">= 9.0", false},
		{"satisfied", "0.4.1", ">= 0.4", false},
		{"too old", "0.3.0", ">= 0.4", true},
		{"bad constraint", "0.4.0", "not a constraint", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Satisfies(tt.version, tt.constraint)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
