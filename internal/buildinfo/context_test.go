package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_Getters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  *Context
		want [3]string
	}{
		{"nil context", nil, [3]string{UnknownValue, UnknownValue, UnknownValue}},
		{"all empty", NewContext("", "", ""), [3]string{UnknownValue, UnknownValue, UnknownValue}},
		{"populated", NewContext("1.2.3", "2024-05-01T12:00:00Z", "ABCD-EF01-2345"), [3]string{"1.2.3", "2024-05-01T12:00:00Z", "ABCD-EF01-2345"}},
		{"pre-release", NewContext("1.0.0-beta.1", "", ""), [3]string{"1.0.0-beta.1", UnknownValue, UnknownValue}},
		{"whitespace kept", NewContext(" ", "\t", "\n"), [3]string{" ", "\t", "\n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want[0], tt.ctx.Version())
			assert.Equal(t, tt.want[1], tt.ctx.BuildDate())
			assert.Equal(t, tt.want[2], tt.ctx.SystemID())
		})
	}
}

func TestContext_WithSystemID(t *testing.T) {
	t.Parallel()

	base := NewContext("1.0.0", "2024-05-01", "")
	withID := base.WithSystemID("ABCD-EF01-2345")

	assert.Equal(t, UnknownValue, base.SystemID(), "original unchanged")
	assert.Equal(t, "ABCD-EF01-2345", withID.SystemID())
	assert.Equal(t, "1.0.0", withID.Version())

	var nilCtx *Context
	assert.Equal(t, "X", nilCtx.WithSystemID("X").SystemID())
}

func TestContext_ImplementsBuildInfo(t *testing.T) {
	t.Parallel()

	var info BuildInfo = NewContext("1.0.0", "2024-05-01", "id")
	assert.Equal(t, "1.0.0", info.Version())
}
