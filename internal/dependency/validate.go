package dependency

import (
	"depwait/internal/apperrors"
	"fmt"
	"regexp"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Validate checks every spec and rejects duplicates.
func Validate(specs []Spec) error {
	seen := make(map[string]int, len(specs))
	for i, s := range specs {
		if err := validateOne(i, s); err != nil {
			return err
		}
		if prev, ok := seen[s.Name]; ok {
			return apperrors.Validation(fmt.Sprintf("dependencies[%d].dependency", i),
				fmt.Sprintf("dependency[%d]: %q duplicates dependency[%d]", i, s.Name, prev))
		}
		seen[s.Name] = i
	}
	return nil
}

func validateOne(i int, s Spec) error {
	field := fmt.Sprintf("dependencies[%d]", i)

	if s.Name == "" {
		return apperrors.Validation(field+".dependency", fmt.Sprintf("dependency[%d]: name is required", i))
	}
	if !namePattern.MatchString(s.Name) {
		return apperrors.Validation(field+".dependency",
			fmt.Sprintf("dependency[%d]: name %q must match %s", i, s.Name, namePattern.String()))
	}
	if s.Timeout < 0 {
		return apperrors.Validation(field+".timeout", fmt.Sprintf("dependency[%d]: timeout must not be negative", i))
	}
	if s.Timeout > MaxTimeout {
		return apperrors.Validation(field+".timeout",
			fmt.Sprintf("dependency[%d]: timeout %s exceeds maximum %s", i, s.Timeout, MaxTimeout))
	}
	return nil
}
