package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDiscovery               = errors.New("discovery failed")
	ErrSiteInvalid             = errors.New("site invalid")
	ErrCredentialsUnavailable  = errors.New("credentials unavailable")
	ErrDumpFailed              = errors.New("database dump failed")
	ErrArchiveFailed           = errors.New("file archive failed")
	ErrUploadFailed            = errors.New("upload failed")
	ErrDownloadFailed          = errors.New("download failed")
	ErrDeleteFailed            = errors.New("delete failed")
	ErrPromotionFailed         = errors.New("promotion failed")
	ErrRestoreStepFailed       = errors.New("restore step failed")
	ErrInconsistentArtifactSet = errors.New("inconsistent artifact set")
	ErrConsentRequired         = errors.New("destructive restore requires explicit consent")
	ErrUnreachable             = errors.New("remote host unreachable")
	ErrTransferFailed          = errors.New("transfer failed")
	ErrInvalidArtifactName     = errors.New("invalid artifact name")
)

// Restore steps, in execution order.
const (
	StepResolve     = "resolve artifact set"
	StepFetch       = "fetch artifacts"
	StepExtract     = "extract files"
	StepCredentials = "read credentials"
	StepDatabase    = "provision database"
	StepFiles       = "materialize files"
	StepOwnership   = "reconcile ownership"
)

// RestoreStepError names the restore step that failed. It matches
// ErrRestoreStepFailed and whatever error it wraps.
type RestoreStepError struct {
	Step string
	Err  error
}

func (e *RestoreStepError) Error() string {
	return fmt.Sprintf("restore failed at %q: %v", e.Step, e.Err)
}

func (e *RestoreStepError) Unwrap() []error {
	return []error{ErrRestoreStepFailed, e.Err}
}
