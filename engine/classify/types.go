// Package classify maps raw FiveM crash-log text to a structured diagnosis.
// Classification is strategy-based: a remote model-backed analyzer is tried
// first and an ordered local rule table serves as the always-available
// fallback.
package classify

import "errors"

// CrashType distinguishes where the fault lies.
type CrashType string

const (
	CrashClient   CrashType = "client"   // the player's machine
	CrashResource CrashType = "resource" // a server-side script/asset bundle
	CrashUnknown  CrashType = "unknown"
)

// ValidCrashTypes is the set of recognised crash types.
var ValidCrashTypes = map[CrashType]bool{
	CrashClient: true, CrashResource: true, CrashUnknown: true,
}

// Severity grades how disruptive a crash is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ValidSeverities is the set of recognised severities.
var ValidSeverities = map[Severity]bool{
	SeverityLow: true, SeverityMedium: true, SeverityHigh: true,
}

// DefaultSeverity is assigned whenever a strategy does not grade the crash
// itself (the local rule table never does).
const DefaultSeverity = SeverityMedium

// Analysis is the structured result of classifying one crash log.
type Analysis struct {
	CrashType    CrashType `json:"crash_type"`
	ResourceName string    `json:"resource_name,omitempty"`
	Cause        string    `json:"cause"`
	Description  string    `json:"description"`
	Solutions    []string  `json:"solutions"`
	Severity     Severity  `json:"severity"`
	AutoReported bool      `json:"auto_reported"`

	// Diagnostics, never the primary result.
	RawMatch    string `json:"raw_match,omitempty"`
	RawResponse string `json:"raw_response,omitempty"`
}

// ShouldReport reports whether this analysis names a server resource that
// belongs in the issue ledger.
func (a Analysis) ShouldReport() bool {
	return a.CrashType == CrashResource && a.ResourceName != ""
}

// Sentinel errors.
var (
	// ErrEmptyLog means the caller supplied no log text. This is an input
	// error, rejected before any strategy runs.
	ErrEmptyLog = errors.New("classify: empty crash log")

	// ErrNoStrategies means the classifier was built without strategies.
	ErrNoStrategies = errors.New("classify: no strategies configured")
)

// genericSolutions pads strategies that return an empty solution list so the
// user always leaves with something actionable.
var genericSolutions = []string{
	"Clear your FiveM cache (AppData/Local/FiveM/FiveM.app/cache)",
	"Verify your GTA V game files",
	"If the issue persists, contact server staff with this crash log",
}

// normalize enforces the Analysis invariants on strategy output: crash type
// and severity fall back to safe defaults, the solution list is never empty,
// and a resource name is only kept on resource crashes.
func normalize(a Analysis) Analysis {
	if !ValidCrashTypes[a.CrashType] {
		a.CrashType = CrashUnknown
	}
	if !ValidSeverities[a.Severity] {
		a.Severity = DefaultSeverity
	}
	if a.CrashType != CrashResource {
		a.ResourceName = ""
	}
	if len(a.Solutions) == 0 {
		a.Solutions = append([]string(nil), genericSolutions...)
	}
	return a
}
