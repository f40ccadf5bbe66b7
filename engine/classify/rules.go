package classify

import (
	"context"
	"regexp"
)

// Rule pairs a crash-log pattern with a fixed diagnosis. Rules are evaluated
// in table order and the first match wins; crash signatures are
// near-mutually-exclusive substrings so no scoring is needed.
type Rule struct {
	Pattern         *regexp.Regexp
	CrashType       CrashType
	Cause           string
	Description     string
	Solutions       []string
	ExtractResource bool
}

// Resource-name extraction patterns, tried in order. First hit wins.
var resourcePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[(\w+[-_]?\w*)\]`),
	regexp.MustCompile(`(?i)resources?[/\\](\w+[-_]?\w*)`),
	regexp.MustCompile(`(?i)(\w+[-_]?\w*)\.lua`),
}

// DefaultRules is the curated FiveM crash knowledge base.
var DefaultRules = []Rule{
	{
		Pattern:     regexp.MustCompile(`(?i)GTA5_b\d+\.exe.*EXCEPTION_ACCESS_VIOLATION`),
		CrashType:   CrashClient,
		Cause:       "Memory Access Violation",
		Description: "The game tried to access memory it shouldn't. This is often caused by corrupted game files or mod conflicts.",
		Solutions: []string{
			"Verify your GTA V game files through Steam/Epic/Rockstar Launcher",
			"Clear your FiveM cache (AppData/Local/FiveM/FiveM.app/cache)",
			"Update your graphics drivers",
			"Disable any overlay software (Discord, GeForce Experience)",
		},
	},
	{
		Pattern:     regexp.MustCompile(`(?i)citizen-resources.*lua.*error`),
		CrashType:   CrashResource,
		Cause:       "Lua Script Error",
		Description: "A server resource encountered a Lua scripting error.",
		Solutions: []string{
			"This is a server-side resource issue",
			"The error has been logged for our development team",
			"Try reconnecting to the server",
			"If the issue persists, contact server staff",
		},
	},
	{
		Pattern:         regexp.MustCompile(`(?i)(\w+[-_]?\w*)\.lua:\d+:`),
		CrashType:       CrashResource,
		Cause:           "Resource Script Error",
		Description:     "A specific resource script crashed.",
		ExtractResource: true,
		Solutions: []string{
			"This resource has been flagged for review",
			"Our dev team will investigate and fix the issue",
			"Try reconnecting to the server",
		},
	},
	{
		Pattern:     regexp.MustCompile(`(?i)out of memory|memory allocation failed`),
		CrashType:   CrashClient,
		Cause:       "Out of Memory",
		Description: "Your system ran out of available memory while running FiveM.",
		Solutions: []string{
			"Close other applications to free up RAM",
			"Increase your Windows virtual memory/page file",
			"Consider upgrading your RAM if this happens frequently",
			"Lower your graphics settings in-game",
		},
	},
	{
		Pattern:     regexp.MustCompile(`(?i)nvwgf2umx\.dll|nvidia`),
		CrashType:   CrashClient,
		Cause:       "NVIDIA Graphics Driver Crash",
		Description: "Your NVIDIA graphics driver crashed.",
		Solutions: []string{
			"Update to the latest NVIDIA drivers from nvidia.com",
			"Try rolling back to a previous driver version if recently updated",
			"Disable any NVIDIA overlay features",
			"Check your GPU temperatures for overheating",
		},
	},
	{
		Pattern:     regexp.MustCompile(`(?i)atixxxx\.dll|amd|radeon`),
		CrashType:   CrashClient,
		Cause:       "AMD Graphics Driver Crash",
		Description: "Your AMD graphics driver crashed.",
		Solutions: []string{
			"Update to the latest AMD Adrenalin drivers",
			"Disable AMD ReLive and other overlay features",
			"Check your GPU temperatures",
			"Try disabling hardware acceleration in Discord",
		},
	},
	{
		Pattern:     regexp.MustCompile(`(?i)citizen-server-impl|server.*crash`),
		CrashType:   CrashResource,
		Cause:       "Server-Side Crash",
		Description: "The server experienced an issue that caused your disconnect.",
		Solutions: []string{
			"This is a server-side issue, not your fault",
			"Wait a moment and try reconnecting",
			"The issue has been logged for investigation",
		},
	},
	{
		Pattern:     regexp.MustCompile(`(?i)streaming.*failed|txd.*error|yft.*error|ydr.*error`),
		CrashType:   CrashResource,
		Cause:       "Asset Streaming Error",
		Description: "Failed to load a game asset (texture, model, etc.)",
		Solutions: []string{
			"Clear your FiveM cache",
			"This may be a corrupted server asset",
			"The issue has been reported to the dev team",
		},
	},
	{
		Pattern:     regexp.MustCompile(`(?i)weapon.*invalid|weapon.*error`),
		CrashType:   CrashResource,
		Cause:       "Weapon Resource Error",
		Description: "A custom weapon resource caused a crash.",
		Solutions: []string{
			"The weapon addon has been flagged for review",
			"Try reconnecting to the server",
			"Avoid using the problematic weapon until fixed",
		},
	},
	{
		Pattern:     regexp.MustCompile(`(?i)vehicle.*crash|handling.*error`),
		CrashType:   CrashResource,
		Cause:       "Vehicle Resource Error",
		Description: "A custom vehicle resource caused a crash.",
		Solutions: []string{
			"The vehicle addon has been flagged for review",
			"Avoid spawning the problematic vehicle until fixed",
			"Try reconnecting to the server",
		},
	},
	{
		Pattern:     regexp.MustCompile(`(?i)esx|qbcore|vorp`),
		CrashType:   CrashResource,
		Cause:       "Framework Error",
		Description: "The server framework encountered an error.",
		Solutions: []string{
			"This is a server configuration issue",
			"The framework error has been logged",
			"Try reconnecting in a few minutes",
		},
	},
	{
		Pattern:     regexp.MustCompile(`(?i)natives.*invalid|native.*not.*found`),
		CrashType:   CrashResource,
		Cause:       "Invalid Native Call",
		Description: "A script tried to call an invalid game function.",
		Solutions: []string{
			"This is a scripting error on the server",
			"The issue has been logged for our developers",
			"Try reconnecting to the server",
		},
	},
}

// unknownAnalysis is returned when no rule matches.
var unknownAnalysis = Analysis{
	CrashType:   CrashUnknown,
	Cause:       "Unknown Crash",
	Description: "The crash log doesn't match any known patterns.",
	Solutions: []string{
		"Clear your FiveM cache (AppData/Local/FiveM/FiveM.app/cache)",
		"Verify your GTA V game files",
		"Update your graphics drivers",
		"Try restarting your computer",
		"If the issue persists, contact server staff with this crash log",
	},
	Severity: DefaultSeverity,
}

// RuleStrategy classifies with a linear scan over an ordered rule table.
// It never fails, so it terminates any strategy chain.
type RuleStrategy struct {
	rules []Rule
}

// NewRuleStrategy creates a rule-table strategy over the given table.
// Production wiring passes DefaultRules.
func NewRuleStrategy(rules []Rule) *RuleStrategy {
	return &RuleStrategy{rules: rules}
}

func (s *RuleStrategy) Name() string { return "rules" }

// Analyze scans the table in order and returns the first matching rule's
// diagnosis, or the unknown default when nothing matches.
func (s *RuleStrategy) Analyze(_ context.Context, logText string) (Analysis, error) {
	for _, rule := range s.rules {
		m := rule.Pattern.FindString(logText)
		if m == "" {
			continue
		}
		a := Analysis{
			CrashType:   rule.CrashType,
			Cause:       rule.Cause,
			Description: rule.Description,
			Solutions:   append([]string(nil), rule.Solutions...),
			Severity:    DefaultSeverity,
			RawMatch:    m,
		}
		if rule.ExtractResource || rule.CrashType == CrashResource {
			a.ResourceName = ExtractResourceName(logText)
		}
		return a, nil
	}
	return unknownAnalysis, nil
}

// ExtractResourceName pulls a resource name out of raw log text by trying, in
// order: a bracketed token, a path segment under resources/, and a .lua file
// stem. Returns "" when none hit.
func ExtractResourceName(logText string) string {
	for _, p := range resourcePatterns {
		if m := p.FindStringSubmatch(logText); m != nil {
			return m[1]
		}
	}
	return ""
}
