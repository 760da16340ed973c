package artifact

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	keyRoot    = "artifacts"
	archiveExt = ".zip"
)

// Prefix returns the key prefix shared by every artifact in the scope,
// without a trailing slash:
//
//	artifacts/<owner>/<repository>/<runID>
//	artifacts/<repository>/<runID>          (no owner)
func (s Scope) Prefix() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	parts := make([]string, 0, 4)
	parts = append(parts, keyRoot)
	if s.Owner != "" {
		parts = append(parts, s.Owner)
	}
	parts = append(parts, s.Repository, s.RunID)
	return strings.Join(parts, "/"), nil
}

// Key returns the object key of the artifact called name in the scope.
func (s Scope) Key(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	prefix, err := s.Prefix()
	if err != nil {
		return "", err
	}
	return prefix + "/" + name + archiveExt, nil
}

// Validate checks the addressing fields. Repository and RunID are
// required; RunID must be a non-negative integer. No field may contain a
// path separator, so every scope maps to a distinct prefix.
func (s Scope) Validate() error {
	if s.Repository == "" {
		return invalidArgument("scope", fmt.Errorf("repository is required"))
	}
	if s.RunID == "" {
		return invalidArgument("scope", fmt.Errorf("run id is required"))
	}
	if _, err := strconv.ParseUint(s.RunID, 10, 64); err != nil {
		return invalidArgument("scope", fmt.Errorf("run id %q is not a non-negative integer", s.RunID))
	}
	if err := validateSegment(s.Owner); err != nil {
		return invalidArgument("scope", fmt.Errorf("owner %q: %w", s.Owner, err))
	}
	if err := validateSegment(s.Repository); err != nil {
		return invalidArgument("scope", fmt.Errorf("repository %q: %w", s.Repository, err))
	}
	return nil
}

func (s Scope) String() string {
	if s.Owner == "" {
		return s.Repository + "#" + s.RunID
	}
	return s.Owner + "/" + s.Repository + "#" + s.RunID
}

func validateSegment(v string) error {
	switch {
	case v == ".", v == "..":
		return fmt.Errorf("reserved path segment")
	case strings.ContainsAny(v, `/\`):
		return fmt.Errorf("contains a path separator")
	}
	return nil
}

// nameFromKey maps a listed key back to an artifact name. It reports false
// for keys that are not archives stored directly under prefix.
func nameFromKey(prefix, key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, prefix+"/")
	if !ok {
		return "", false
	}
	name, ok := strings.CutSuffix(rest, archiveExt)
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
