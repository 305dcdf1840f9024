package jobspec

import "fmt"

type Kind int

const (
	MissingFile Kind = iota
	MalformedXML
	MissingField
)

func (k Kind) String() string {
	switch k {
	case MissingFile:
		return "missing file"
	case MalformedXML:
		return "malformed xml"
	case MissingField:
		return "missing field"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseError is returned for any structural problem with an input document.
// It is fatal before any rank is started.
type ParseError struct {
	Kind Kind
	File string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.File, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DataError reports a dataset or noise file that cannot be read. Every rank
// must fit identical data, so it fails the whole job.
type DataError struct {
	File string
	Err  error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data file %s unreadable: %s", e.File, e.Err)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// ValidationError reports a configuration the job cannot run with:
// overlapping buckets, conflicting analysis options, or a grid too large for
// the pool.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
