package model

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidID is returned for player or room ids the public API refuses
var ErrInvalidID = errors.New("invalid id")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,20}$`)

// ValidateID checks an id is 1 to 20 letters, digits or dashes
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
