package ml

import (
	"errors"
	"fmt"
	"os"
)

var ErrArtifactNotFound = errors.New("model artifact not found")

type NotFoundError struct {
	Searched []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("model file not found, searched in: %q", e.Searched)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrArtifactNotFound
}

// LocateFunc resolves the artifact path or fails with ErrArtifactNotFound.
type LocateFunc func() (string, error)

// SearchPaths returns the first existing regular file among paths(), checked in order.
// paths is called on every lookup so the candidate list can change at runtime.
func SearchPaths(paths func() []string) LocateFunc {
	return func() (string, error) {
		candidates := paths()
		for _, path := range candidates {
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}
			return path, nil
		}
		return "", &NotFoundError{Searched: append([]string(nil), candidates...)}
	}
}
