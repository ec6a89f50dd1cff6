package disclosure

import (
	"errors"
	"fmt"

	"carbon-scribe/ghg-disclosure-backend/internal/disclosure/xbrl"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/uncertainty"
)

// ErrInvalidRequest marks input rejected before the pipeline runs
var ErrInvalidRequest = errors.New("invalid request")

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// IsValidationFailure reports whether err is a pipeline-detected problem with
// the data (as opposed to an infrastructure failure)
func IsValidationFailure(err error) bool {
	for _, target := range []error{
		emissions.ErrFactorNotFound,
		emissions.ErrSectorUnresolved,
		emissions.ErrUnrecognizedScope,
		uncertainty.ErrIntervalInvalid,
		xbrl.ErrStructuralInvariant,
		xbrl.ErrRollupMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// missingFactor reports whether a resolution error falls under the
// missing-factor policy
func missingFactor(err error) bool {
	return errors.Is(err, emissions.ErrFactorNotFound) || errors.Is(err, emissions.ErrSectorUnresolved)
}

// ErrorCode returns the stable code of a pipeline error, or "" for others
func ErrorCode(err error) string {
	if code := emissions.CodeOf(err); code != "" {
		return code
	}
	if errors.Is(err, uncertainty.ErrIntervalInvalid) {
		return "INTERVAL_INVALID"
	}
	if errors.Is(err, ErrInvalidRequest) {
		return "INVALID_REQUEST"
	}
	return ""
}
