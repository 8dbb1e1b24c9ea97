package types

import (
	"fmt"
	"strings"
)

// Severity orders status entries: OK < Info < Warning < Error < Fatal.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityFatal
)

// String returns the string representation of Severity
func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "OK"
	case SeverityInfo:
		return "Info"
	case SeverityWarning:
		return "Warning"
	case SeverityError:
		return "Error"
	case SeverityFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// MarshalText renders the severity by name in JSON and YAML output.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// UnmarshalText parses a severity name written by MarshalText.
func (s *Severity) UnmarshalText(text []byte) error {
	for sev := SeverityOK; sev <= SeverityFatal; sev++ {
		if strings.EqualFold(string(text), sev.String()) {
			*s = sev
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", text)
}

// StatusEntry is one diagnostic of a refactoring.
type StatusEntry struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
}

func (e StatusEntry) String() string {
	if e.File != "" && e.Line > 0 {
		return fmt.Sprintf("%s: %s:%d:%d: %s", e.Severity, e.File, e.Line, e.Column, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s", e.Severity, e.File, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Severity, e.Message)
}

// Location is an optional source position attached to a status entry.
type Location struct {
	File   string
	Line   int
	Column int
}

// RefactoringStatus collects the diagnostics of one refactoring transaction.
// The zero value is an OK status.
type RefactoringStatus struct {
	Entries   []StatusEntry `json:"entries"`
	cancelled bool
}

// NewStatus returns an empty (OK) status.
func NewStatus() *RefactoringStatus {
	return &RefactoringStatus{}
}

// FatalStatus returns a status holding a single fatal entry.
func FatalStatus(msg string, loc ...Location) *RefactoringStatus {
	s := NewStatus()
	s.AddFatal(msg, loc...)
	return s
}

// CancelledStatus returns the terminal status of a cancelled transaction.
func CancelledStatus() *RefactoringStatus {
	return &RefactoringStatus{cancelled: true}
}

func (s *RefactoringStatus) add(sev Severity, msg string, loc []Location) {
	entry := StatusEntry{Severity: sev, Message: msg}
	if len(loc) > 0 {
		entry.File = loc[0].File
		entry.Line = loc[0].Line
		entry.Column = loc[0].Column
	}
	s.Entries = append(s.Entries, entry)
}

func (s *RefactoringStatus) AddInfo(msg string, loc ...Location)    { s.add(SeverityInfo, msg, loc) }
func (s *RefactoringStatus) AddWarning(msg string, loc ...Location) { s.add(SeverityWarning, msg, loc) }
func (s *RefactoringStatus) AddError(msg string, loc ...Location)   { s.add(SeverityError, msg, loc) }
func (s *RefactoringStatus) AddFatal(msg string, loc ...Location)   { s.add(SeverityFatal, msg, loc) }

// Merge appends the entries of other. The resulting severity is the maximum
// of both; a cancelled status stays cancelled.
func (s *RefactoringStatus) Merge(other *RefactoringStatus) {
	if other == nil {
		return
	}
	s.Entries = append(s.Entries, other.Entries...)
	if other.cancelled {
		s.cancelled = true
	}
}

// Severity returns the highest severity of all entries.
func (s *RefactoringStatus) Severity() Severity {
	if s == nil {
		return SeverityOK
	}
	max := SeverityOK
	for _, e := range s.Entries {
		if e.Severity > max {
			max = e.Severity
		}
	}
	return max
}

// IsOK reports whether the status holds nothing above Info.
func (s *RefactoringStatus) IsOK() bool {
	return s.Severity() <= SeverityInfo && !s.Cancelled()
}

// HasFatal reports whether a fatal entry is present.
func (s *RefactoringStatus) HasFatal() bool {
	return s.Severity() == SeverityFatal
}

// HasError reports whether an Error or Fatal entry is present.
func (s *RefactoringStatus) HasError() bool {
	return s.Severity() >= SeverityError
}

// Cancelled reports whether the transaction ended by caller cancellation.
func (s *RefactoringStatus) Cancelled() bool {
	return s != nil && s.cancelled
}

// MarkCancelled moves the status into the cancelled terminal state.
func (s *RefactoringStatus) MarkCancelled() {
	s.cancelled = true
}

// EntriesFor returns the entries attached to file.
func (s *RefactoringStatus) EntriesFor(file string) []StatusEntry {
	var out []StatusEntry
	for _, e := range s.Entries {
		if e.File == file {
			out = append(out, e)
		}
	}
	return out
}

// EntriesWith returns the entries of exactly the given severity.
func (s *RefactoringStatus) EntriesWith(sev Severity) []StatusEntry {
	var out []StatusEntry
	for _, e := range s.Entries {
		if e.Severity == sev {
			out = append(out, e)
		}
	}
	return out
}

func (s *RefactoringStatus) String() string {
	if s.Cancelled() {
		return "Cancelled"
	}
	if len(s.Entries) == 0 {
		return "OK"
	}
	lines := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		lines = append(lines, e.String())
	}
	return strings.Join(lines, "\n")
}
