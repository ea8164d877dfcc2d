// Package errors provides structured error handling for campaign log services.
package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Campaign errors
	CodeCampaignNotFound                Code = "CAMPAIGN_NOT_FOUND"
	CodeCampaignNameEmpty               Code = "CAMPAIGN_NAME_EMPTY"
	CodeCampaignSeedEmpty               Code = "CAMPAIGN_SEED_EMPTY"
	CodeCampaignNotActive               Code = "CAMPAIGN_NOT_ACTIVE"
	CodeCampaignInvalidStatusTransition Code = "CAMPAIGN_INVALID_STATUS_TRANSITION"

	// Branch errors
	CodeInvalidBranchPoint Code = "INVALID_BRANCH_POINT"

	// Event log errors
	CodeAppendConflict   Code = "APPEND_CONFLICT"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	CodeInvalidState     Code = "INVALID_STATE"

	// Snapshot errors
	CodeSnapshotWriteFailed Code = "SNAPSHOT_WRITE_FAILED"
	CodeInvalidSnapshotSeq  Code = "INVALID_SNAPSHOT_SEQ"

	// Integrity errors
	CodeIntegrityMismatch Code = "INTEGRITY_MISMATCH"

	// Storage errors
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeCampaignNameEmpty,
		CodeCampaignSeedEmpty,
		CodeInvalidBranchPoint,
		CodeInvalidSnapshotSeq,
		CodeInvalidState:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeCampaignNotActive,
		CodeCampaignInvalidStatusTransition:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeCampaignNotFound:
		return codes.NotFound

	case CodeAlreadyExists:
		return codes.AlreadyExists

	case CodeAppendConflict:
		return codes.Aborted

	case CodeStoreUnavailable:
		return codes.Unavailable

	case CodeIntegrityMismatch:
		return codes.DataLoss

	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to the HTTP status an API layer should surface.
func (c Code) HTTPStatus() int {
	switch c.GRPCCode() {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition, codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
