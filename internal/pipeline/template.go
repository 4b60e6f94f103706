package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Template placeholders.
const (
	GoalPlaceholder     = "{goal}"
	ArtifactPlaceholder = "{artifact}"
)

// ErrInvalidTemplate is returned for templates without exactly one upstream
// substitution point.
var ErrInvalidTemplate = errors.New("invalid stage template")

func validateTemplate(index int, tmpl string) error {
	goals := strings.Count(tmpl, GoalPlaceholder)
	artifacts := strings.Count(tmpl, ArtifactPlaceholder)

	if index == 0 {
		if goals+artifacts != 1 {
			return fmt.Errorf("%w: first stage needs exactly one of %s or %s, found %d", ErrInvalidTemplate, GoalPlaceholder, ArtifactPlaceholder, goals+artifacts)
		}
		return nil
	}
	if goals > 0 {
		return fmt.Errorf("%w: only the first stage may reference %s", ErrInvalidTemplate, GoalPlaceholder)
	}
	if artifacts != 1 {
		return fmt.Errorf("%w: needs exactly one %s, found %d", ErrInvalidTemplate, ArtifactPlaceholder, artifacts)
	}
	return nil
}

// Render substitutes goal and artifact into tmpl in a single pass, so text
// coming from the model is never re-expanded.
func Render(tmpl, goal, artifact string) string {
	return strings.NewReplacer(GoalPlaceholder, goal, ArtifactPlaceholder, artifact).Replace(tmpl)
}
