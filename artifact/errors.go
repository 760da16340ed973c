package artifact

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by Client matches exactly one of these
// through errors.Is, except context cancellation which is returned as is.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNoFilesFound      = errors.New("no files found")
	ErrArtifactNotFound  = errors.New("artifact not found")
	ErrAlreadyExists     = errors.New("artifact already exists")
	ErrStoreClientFault  = errors.New("object store client fault")
	ErrStoreServerFault  = errors.New("object store server fault")
	ErrUnclassifiedFault = errors.New("unclassified fault")
	ErrConfig            = errors.New("configuration error")
)

const (
	retryHint = "Errors can be temporary, so please try again and optionally run with debug logging enabled for more information. " +
		"If the error persists, please check whether the object store is operating normally."
	notFoundHint = "Please ensure that the artifact has not expired and was uploaded under this name by a compatible client."
)

// Error is the error type returned by Client operations.
type Error struct {
	// Kind is one of the Err* sentinels above.
	Kind error
	Op   string
	Err  error
	// RequestID and StatusCode are set for store server faults.
	RequestID  string
	StatusCode int
	// Hint is remediation text appended to the message.
	Hint string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Hint != "" {
		b.WriteString("\n")
		b.WriteString(e.Hint)
	}
	return b.String()
}

// Is reports whether target is the error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func invalidArgument(op string, err error) error {
	return &Error{Kind: ErrInvalidArgument, Op: op, Err: err}
}

func notFound(op, name string, err error) error {
	if err == nil {
		err = fmt.Errorf("no artifact named %q", name)
	}
	return &Error{Kind: ErrArtifactNotFound, Op: op, Err: err, Hint: notFoundHint}
}

func configError(op string, err error) error {
	return &Error{Kind: ErrConfig, Op: op, Err: err}
}
