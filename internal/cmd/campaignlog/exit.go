package campaignlog

import (
	"fmt"
	"net/http"

	apperrors "github.com/louisbranch/campaignlog/internal/platform/errors"
)

// Exit statuses. Usage errors and failures without a domain code exit 1.
const (
	ExitFailure     = 1
	ExitInvalid     = 3
	ExitNotFound    = 4
	ExitConflict    = 5
	ExitUnavailable = 6
	ExitInternal    = 7
)

// ExitStatus maps a command error to the process exit status by the HTTP
// class of its domain code.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeUnknown {
		return ExitFailure
	}
	switch code.HTTPStatus() {
	case http.StatusBadRequest:
		return ExitInvalid
	case http.StatusNotFound:
		return ExitNotFound
	case http.StatusConflict:
		return ExitConflict
	case http.StatusServiceUnavailable:
		return ExitUnavailable
	default:
		return ExitInternal
	}
}

// Describe renders err for stderr. Domain errors are suffixed with their
// code and gRPC status, e.g. "campaign c1 not found (CAMPAIGN_NOT_FOUND, NotFound)".
func Describe(err error) string {
	if err == nil {
		return ""
	}
	st := apperrors.StatusOf(err)
	info, ok := apperrors.ErrorInfo(st)
	if !ok {
		return err.Error()
	}
	return fmt.Sprintf("%s (%s, %s)", err.Error(), info.GetReason(), st.Code())
}
