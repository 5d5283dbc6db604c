package analyzer

import (
	"errors"
	"fmt"

	"github.com/zombar/promptscore/internal/models"
)

// ErrInvalidArgument is returned when input is missing or a media type is not recognized
var ErrInvalidArgument = errors.New("invalid argument")

// InvalidArgument wraps ErrInvalidArgument with a description of the bad input
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func checkMediaType(mediaType models.MediaType) error {
	if !mediaType.Valid() {
		return InvalidArgument("unknown media type %q", string(mediaType))
	}
	return nil
}
