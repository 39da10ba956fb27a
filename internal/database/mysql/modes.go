package mysql

import (
	"strconv"
	"strings"

	"github.com/datakite/mysqlcdc/internal/errs"
)

// SecureConnectionMode is the database.ssl.mode setting. The string
// literals are an external contract shared with existing deployments.
type SecureConnectionMode int

const (
	SSLModeDisabled SecureConnectionMode = iota
	SSLModePreferred
	SSLModeRequired
	SSLModeVerifyCA
	SSLModeVerifyIdentity
)

func (m SecureConnectionMode) String() string {
	switch m {
	case SSLModePreferred:
		return "preferred"
	case SSLModeRequired:
		return "required"
	case SSLModeVerifyCA:
		return "verify_ca"
	case SSLModeVerifyIdentity:
		return "verify_identity"
	default:
		return "disabled"
	}
}

// Enabled reports whether the mode requests TLS at all.
func (m SecureConnectionMode) Enabled() bool {
	return m != SSLModeDisabled
}

// ParseSecureConnectionMode parses a configured TLS mode. An absent value
// defaults to disabled; an unrecognised literal is an error rather than a
// silent downgrade to plaintext.
func ParseSecureConnectionMode(s string) (SecureConnectionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "disabled":
		return SSLModeDisabled, nil
	case "preferred":
		return SSLModePreferred, nil
	case "required":
		return SSLModeRequired, nil
	case "verify_ca":
		return SSLModeVerifyCA, nil
	case "verify_identity":
		return SSLModeVerifyIdentity, nil
	default:
		return SSLModeDisabled, errs.New(errs.ErrKindInvalidInput,
			"unknown ssl mode "+strconv.Quote(s))
	}
}

// FailureHandlingMode controls how the pipeline reacts to event
// deserialization failures and to binlog events that do not match the
// known schema.
type FailureHandlingMode int

const (
	FailureHandlingFail FailureHandlingMode = iota
	FailureHandlingWarn
	FailureHandlingSkip
)

func (m FailureHandlingMode) String() string {
	switch m {
	case FailureHandlingWarn:
		return "warn"
	case FailureHandlingSkip:
		return "skip"
	default:
		return "fail"
	}
}

// ParseFailureHandlingMode parses a configured failure-handling mode.
// Absent or unrecognised values fall back to fail: when in doubt the
// connector stops rather than drops data.
func ParseFailureHandlingMode(s string) FailureHandlingMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "warn":
		return FailureHandlingWarn
	case "skip":
		return FailureHandlingSkip
	default:
		return FailureHandlingFail
	}
}
