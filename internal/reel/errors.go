package reel

import "errors"

// ValidationError is a user-correctable input problem. Msg is shown verbatim.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Invalid builds a ValidationError.
func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

var (
	ErrNotEnoughImages  = Invalid("images", "Please add at least 2 images")
	ErrNoVideo          = Invalid("video", "Please select a video first")
	ErrVideoTooLong     = Invalid("video", "Video must be 30 seconds or less")
	ErrVideoTooLarge    = Invalid("video", "Video must be 100MB or less")
	ErrVideoType        = Invalid("video", "Please select a valid video file")
	ErrVideoUnreadable  = Invalid("video", "Could not read video duration")
	ErrImageType        = Invalid("images", "Only image files can be added")
	ErrIndexOutOfRange  = Invalid("images", "Image index out of range")
	ErrBusy             = errors.New("a reel is already being generated")
	ErrUnsupportedCodec = errors.New("encoder does not support the requested codec")
	ErrEncoder          = errors.New("encoder failure")
	ErrStalled          = errors.New("generation stalled")
	ErrCanceled         = errors.New("generation canceled")
)
