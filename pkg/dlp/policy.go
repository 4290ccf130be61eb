package dlp

import "fmt"

// Action is the policy engine's verdict for a submitted request.
type Action string

const (
	ActionAllow  Action = "ALLOW"
	ActionRedact Action = "REDACT"
	ActionBlock  Action = "BLOCK"
)

// RuleConfig is the configuration for one named action (currently only
// ai.cloudProcessing is defined by the request surface this DLP engine
// serves).
type RuleConfig struct {
	MaxAllowed             Level
	AllowRestrictedContent bool
	RedactDisallowed       bool
}

// Policy is the pure, versioned rule set evaluated per request.
type Policy struct {
	Version                int
	AllowDocumentOverrides  bool
	Rules                   map[string]RuleConfig
}

// DefaultPolicy returns a conservative starting policy: AI cloud
// processing permitted up to Internal, with disallowed content
// redacted rather than blocked outright.
func DefaultPolicy() Policy {
	return Policy{
		Version:                1,
		AllowDocumentOverrides: false,
		Rules: map[string]RuleConfig{
			"ai.cloudProcessing": {
				MaxAllowed:       Internal,
				RedactDisallowed: true,
			},
		},
	}
}

// EvaluationOptions carries caller-supplied overrides for one request.
type EvaluationOptions struct {
	// RestrictedAllowed opts into restricted content when the policy's
	// AllowRestrictedContent permits it.
	RestrictedAllowed bool
}

// EvaluationRequest is submitted to EvaluatePolicy.
type EvaluationRequest struct {
	Action         string
	Classification Classification
	Policy         Policy
	Options        EvaluationOptions
}

// EvaluationResult is the policy engine's verdict.
type EvaluationResult struct {
	Decision   Action
	MaxAllowed Level
}

// EvaluatePolicy is a pure function from a classified request to a
// decision. ALLOW when the classification is within the configured
// ceiling (or the caller explicitly opted into restricted content and
// the rule allows it); REDACT when the rule specifies redaction of
// disallowed content; otherwise BLOCK.
func EvaluatePolicy(req EvaluationRequest) (EvaluationResult, error) {
	rule, ok := req.Policy.Rules[req.Action]
	if !ok {
		return EvaluationResult{}, fmt.Errorf("dlp: no rule configured for action %q", req.Action)
	}

	ceiling := rule.MaxAllowed
	if req.Options.RestrictedAllowed && rule.AllowRestrictedContent {
		ceiling = Restricted
	}

	if req.Classification.Level <= ceiling {
		return EvaluationResult{Decision: ActionAllow, MaxAllowed: ceiling}, nil
	}
	if rule.RedactDisallowed {
		return EvaluationResult{Decision: ActionRedact, MaxAllowed: ceiling}, nil
	}
	return EvaluationResult{Decision: ActionBlock, MaxAllowed: ceiling}, nil
}
