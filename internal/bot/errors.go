package bot

import (
	"errors"
	"fmt"

	"github.com/italolelis/filebot/internal/files"
	"github.com/italolelis/filebot/internal/transfer"
)

// reportedError marks a failure the handler already told the user about.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string {
	return e.err.Error()
}

func (e *reportedError) Unwrap() error {
	return e.err
}

// formatError renders err as a one-line chat reply.
func formatError(err error) string {
	var (
		validationErr *transfer.ValidationError
		submissionErr *transfer.SubmissionError
		indexErr      *transfer.IndexNotFoundError
		actionErr     *transfer.ActionError
	)

	switch {
	case errors.As(err, &validationErr):
		return "❌ Invalid input: " + validationErr.Reason
	case errors.As(err, &submissionErr):
		return "❌ Failed to add download: " + submissionErr.Error()
	case errors.As(err, &indexErr):
		return fmt.Sprintf("❌ No download #%d in the last listing. Send /status to refresh it.", indexErr.Index)
	case errors.As(err, &actionErr):
		return fmt.Sprintf("❌ Failed to %s #%d: %s", actionErr.Action, actionErr.Index, actionErr.Error())
	case errors.Is(err, files.ErrInvalidName):
		return "Invalid filename."
	default:
		return "❌ Error: " + err.Error()
	}
}
