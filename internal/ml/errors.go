package ml

import "fmt"

// ArtifactLoadError is returned when a model artifact cannot be located,
// read or validated. It is fatal at startup.
type ArtifactLoadError struct {
	Artifact string
	Location string
	Err      error
}

func (e *ArtifactLoadError) Error() string {
	return fmt.Sprintf("load %s artifact from %s: %v", e.Artifact, e.Location, e.Err)
}

func (e *ArtifactLoadError) Unwrap() error { return e.Err }
