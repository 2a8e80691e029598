package pipeline

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Hold reasons surfaced to reviewers alongside held items.
const (
	HoldReasonRisk       = "risk"
	HoldReasonSimilarity = "similarity"
	HoldReasonSensitive  = "sensitive-keyword"
	HoldReasonLowQuality = "low-quality"

	GateVerdictPublish = "publish"
)

var sensitiveKeywords = regexp.MustCompile(`\b(hack|scam|exploit|regulation|sec|lawsuit)\b`)

// GateInput is everything the gate looks at. The gate is a pure function
// of this struct and GateConfig: no clock, no randomness, no external
// calls.
type GateInput struct {
	RiskLevel       string
	SimilarityScore float32
	RewrittenText   string
	HasHeadline     bool
}

type GateConfig struct {
	DuplicateThreshold float32
	MinRewriteLength   int
}

// GateDecision carries the verdict plus every rule that fired, so a
// reviewer can act without re-deriving the reasoning. The verdict comes
// from the first matching rule.
type GateDecision struct {
	Publish bool
	Reasons []string
}

// EvaluateGate decides whether an item may publish automatically or must
// wait for human review. Rules are evaluated in a fixed order; all
// matches are collected.
func EvaluateGate(in GateInput, cfg GateConfig) GateDecision {
	var reasons []string

	if in.RiskLevel == RiskHigh {
		reasons = append(reasons, HoldReasonRisk)
	}

	if in.SimilarityScore > cfg.DuplicateThreshold {
		reasons = append(reasons, HoldReasonSimilarity)
	}

	if sensitiveKeywords.MatchString(strings.ToLower(in.RewrittenText)) {
		reasons = append(reasons, HoldReasonSensitive)
	}

	if utf8.RuneCountInString(in.RewrittenText) < cfg.MinRewriteLength || !in.HasHeadline {
		reasons = append(reasons, HoldReasonLowQuality)
	}

	return GateDecision{Publish: len(reasons) == 0, Reasons: reasons}
}
