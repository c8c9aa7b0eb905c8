package domain

import "fmt"

// FetchError reports a GET that could not be sent, read, or was refused.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MissingLengthError reports a document response without Content-Length.
type MissingLengthError struct {
	URL string
}

func (e *MissingLengthError) Error() string {
	return fmt.Sprintf("no content length in response from %s", e.URL)
}

// MalformedPageError reports an index page missing structure we rely on.
type MalformedPageError struct {
	URL    string
	Reason string
}

func (e *MalformedPageError) Error() string {
	return fmt.Sprintf("malformed page %s: %s", e.URL, e.Reason)
}

// IOError reports a failed directory or file operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// YearError attaches the failing year and URL to an error from a year task.
type YearError struct {
	Year Year
	URL  string
	Err  error
}

func (e *YearError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("year %d (%s): %v", int(e.Year), e.Year.Label(), e.Err)
	}
	return fmt.Sprintf("year %d (%s): %s: %v", int(e.Year), e.Year.Label(), e.URL, e.Err)
}

func (e *YearError) Unwrap() error { return e.Err }
