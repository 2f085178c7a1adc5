package ads

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrAdNotFound      = errors.New("advertisement not found")
	ErrUndoExpired     = errors.New("nothing to undo")
	ErrImagePermission = errors.New("image storage permission denied")
	ErrImageUpload     = errors.New("image upload failed")
)

// ValidationError is returned before any write when the submitted advertisement
// or its rotation plan is incomplete. AdID is set when the problem belongs to a
// sibling advertisement rather than the one being saved.
type ValidationError struct {
	Field   string
	AdID    *uuid.UUID
	Message string
}

func (e *ValidationError) Error() string {
	if e.AdID != nil {
		return fmt.Sprintf("%s (ad %s): %s", e.Field, e.AdID, e.Message)
	}
	return e.Field + ": " + e.Message
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

// PartialSaveError reports a failure after earlier steps of a save already
// reached the store. Nothing is rolled back.
type PartialSaveError struct {
	Step string
	Err  error
}

func (e *PartialSaveError) Error() string {
	return "save failed at " + e.Step + ": " + e.Err.Error()
}

func (e *PartialSaveError) Unwrap() error { return e.Err }

func partial(step string, err error) error {
	return &PartialSaveError{Step: step, Err: err}
}

// UserMessage turns any error from this package into text an editor can act on.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		if ve.Field == "runtime_seconds" {
			return "Rotation is required: " + ve.Message
		}
		return ve.Message
	}
	var pe *PartialSaveError
	switch {
	case errors.Is(err, ErrImagePermission):
		return "Image storage rejected the upload. Check the storage bucket permissions and credentials."
	case errors.Is(err, ErrImageUpload):
		return "Failed to upload image. Please try again."
	case errors.Is(err, ErrAdNotFound):
		return "Advertisement not found."
	case errors.Is(err, ErrUndoExpired):
		return "Nothing to undo."
	case errors.As(err, &pe):
		return "Failed to save advertisement (" + pe.Step + "). Some changes may have been applied; review the ad and save again."
	}
	return "Something went wrong. Please try again."
}
