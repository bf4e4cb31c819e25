package generation

import (
	"errors"
	"fmt"

	"github.com/irfan-workspace/kakistorychannel/pkg/models"
)

var (
	ErrScriptTooShort = errors.New("script is too short")
	ErrScriptTooLong  = errors.New("script is too long")
	// ErrRateLimited means the caller exceeded the submission quota. No job
	// was created and no quota was consumed.
	ErrRateLimited = errors.New("submission rate limit exceeded")
	// ErrUnparsableResponse means the collaborator answered, but not with a
	// scene list we can extract. Fatal: a malformed-but-received response is
	// not assumed to self-correct on retry.
	ErrUnparsableResponse = errors.New("could not parse scenes from model output")
)

// ConflictError reports that the caller already has a non-terminal job.
// Not a failure: it carries the existing job so the caller can attach to it.
type ConflictError struct {
	Job *models.GenerationJob
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("a generation job is already active: %s (%s)", e.Job.ID, e.Job.Status)
}
