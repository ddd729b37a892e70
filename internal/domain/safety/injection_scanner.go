package safety

import (
	"strings"
	"sync/atomic"
)

// injectionFamily is a named group of keyword patterns that together
// signal one class of prompt-injection attempt.
type injectionFamily struct {
	name     string
	keywords []string
}

// injectionFamilies are advisory only: a match never blocks a tool call, it
// only annotates the loop's trace so an operator can review it later.
var injectionFamilies = []injectionFamily{
	{
		name: "role_override",
		keywords: []string{
			"ignore previous instructions", "ignore all previous", "disregard your instructions",
			"you are now", "new system prompt", "act as if you have no restrictions",
		},
	},
	{
		name: "jailbreak",
		keywords: []string{
			"dan mode", "developer mode", "jailbreak", "no restrictions apply", "without any filters",
		},
	},
	{
		name: "data_exfiltration",
		keywords: []string{
			"reveal your system prompt", "print your instructions", "dump your configuration",
			"show me your api key", "what is your secret",
		},
	},
	{
		name: "command_injection",
		keywords: []string{
			"rm -rf", "curl | sh", "wget | bash", "; drop table", "' or '1'='1",
		},
	},
	{
		name: "prompt_leak",
		keywords: []string{
			"repeat everything above", "output the text above verbatim", "what were you told before this",
		},
	},
	{
		name: "encoding_bypass",
		keywords: []string{
			"base64 decode and run", "rot13", "reverse this string and execute",
		},
	},
}

// ScanResult reports which families matched a piece of text.
type ScanResult struct {
	Matched      bool
	FamilyNames  []string
}

// InjectionScanner performs advisory keyword scanning over tool inputs and
// model outputs. Stateful counters follow guardrails.go's CostGuard idiom:
// atomic.Int64 fields updated without an external mutex.
type InjectionScanner struct {
	scans     atomic.Int64
	detections atomic.Int64
}

// NewInjectionScanner constructs a scanner with its counters at zero.
func NewInjectionScanner() *InjectionScanner {
	return &InjectionScanner{}
}

// Scan checks text against every known family and returns the union of
// matches. It never returns an error and never suppresses the caller's
// action — detection is advisory only.
func (s *InjectionScanner) Scan(text string) ScanResult {
	s.scans.Add(1)
	lower := strings.ToLower(text)

	var matched []string
	for _, fam := range injectionFamilies {
		for _, kw := range fam.keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, fam.name)
				break
			}
		}
	}

	if len(matched) > 0 {
		s.detections.Add(1)
	}

	return ScanResult{Matched: len(matched) > 0, FamilyNames: matched}
}

// Scans returns the total number of texts scanned so far.
func (s *InjectionScanner) Scans() int64 {
	return s.scans.Load()
}

// Detections returns the total number of scans that matched at least one
// family.
func (s *InjectionScanner) Detections() int64 {
	return s.detections.Load()
}
