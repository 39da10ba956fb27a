package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datakite/mysqlcdc/internal/errs"
)

func TestParseSecureConnectionMode(t *testing.T) {
	tests := []struct {
		in   string
		want SecureConnectionMode
	}{
		{"", SSLModeDisabled},
		{"disabled", SSLModeDisabled},
		{"preferred", SSLModePreferred},
		{"required", SSLModeRequired},
		{"verify_ca", SSLModeVerifyCA},
		{"verify_identity", SSLModeVerifyIdentity},
		{" Required ", SSLModeRequired},
		{"VERIFY_CA", SSLModeVerifyCA},
	}
	for _, tt := range tests {
		t.Run("literal "+tt.in, func(t *testing.T) {
			got, err := ParseSecureConnectionMode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSecureConnectionMode_Unknown(t *testing.T) {
	_, err := ParseSecureConnectionMode("mandatory")
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestSecureConnectionMode_Enabled(t *testing.T) {
	assert.False(t, SSLModeDisabled.Enabled())
	assert.True(t, SSLModePreferred.Enabled())
	assert.True(t, SSLModeRequired.Enabled())
	assert.True(t, SSLModeVerifyCA.Enabled())
	assert.True(t, SSLModeVerifyIdentity.Enabled())
}

func TestParseFailureHandlingMode(t *testing.T) {
	assert.Equal(t, FailureHandlingFail, ParseFailureHandlingMode(""))
	assert.Equal(t, FailureHandlingFail, ParseFailureHandlingMode("fail"))
	assert.Equal(t, FailureHandlingWarn, ParseFailureHandlingMode("warn"))
	assert.Equal(t, FailureHandlingSkip, ParseFailureHandlingMode("skip"))
	assert.Equal(t, FailureHandlingWarn, ParseFailureHandlingMode(" WARN "))

	// unknown literals stop the connector rather than drop data
	assert.Equal(t, FailureHandlingFail, ParseFailureHandlingMode("ignore"))
}
