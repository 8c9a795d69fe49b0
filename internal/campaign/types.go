package campaign

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	apierrors "github.com/zhengjr9/kolony/internal/errors"
)

// Agent names the stage of the orchestration that produced a thought.
type Agent string

const (
	AgentPlanner    Agent = "planner"
	AgentResearcher Agent = "researcher"
	AgentCreative   Agent = "creative"
	AgentAuditor    Agent = "auditor"
)

// Citation is a grounding source quoted by the researcher.
type Citation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Thought is one progress update of an orchestration run.
type Thought struct {
	Agent     Agent          `json:"agent"`
	Action    string         `json:"action"`
	Details   string         `json:"details,omitempty"`
	Citations []Citation     `json:"citations,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp,omitempty"`
}

func (t Thought) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", t.Agent, t.Action)
	if t.Details != "" {
		sb.WriteString(": ")
		sb.WriteString(t.Details)
	}
	return sb.String()
}

// Request starts a campaign orchestration.
type Request struct {
	Prompt         string `json:"prompt"`
	BrandImage     string `json:"brandImage,omitempty"`
	Location       string `json:"location,omitempty"`
	TargetAudience string `json:"targetAudience,omitempty"`
}

// Validate rejects a request the orchestrator function would refuse.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: campaign prompt is required", apierrors.ErrInvalidRequest)
	}
	return nil
}

type AdCopy struct {
	Headline     string `json:"headline"`
	Subheadline  string `json:"subheadline"`
	Body         string `json:"body"`
	CallToAction string `json:"callToAction"`
}

type BrandAnalysis struct {
	PrimaryColor     string   `json:"primaryColor"`
	SecondaryColor   string   `json:"secondaryColor"`
	FontVibe         string   `json:"fontVibe"`
	BrandArchetype   string   `json:"brandArchetype"`
	CanadianElements StringList `json:"canadianElements"`
}

// StringList decodes from either a JSON array of strings or a single string.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var s string
	if json.Unmarshal(data, &s) == nil {
		if s == "" {
			*l = nil
		} else {
			*l = StringList{s}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*l = list
	return nil
}

type Targeting struct {
	Location     string   `json:"location"`
	Demographics []string `json:"demographics"`
	Interests    []string `json:"interests"`
}

type Compliance struct {
	CanadianStandards  bool    `json:"canadianStandards"`
	LegalClearance     bool    `json:"legalClearance"`
	AccessibilityScore float64 `json:"accessibilityScore"`
}

// UnmarshalJSON accepts booleans and the score as strings too ("true", "92").
func (c *Compliance) UnmarshalJSON(data []byte) error {
	var raw struct {
		CanadianStandards  json.RawMessage `json:"canadianStandards"`
		LegalClearance     json.RawMessage `json:"legalClearance"`
		AccessibilityScore json.RawMessage `json:"accessibilityScore"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var err error
	if c.CanadianStandards, err = looseBool(raw.CanadianStandards); err != nil {
		return fmt.Errorf("canadianStandards: %w", err)
	}
	if c.LegalClearance, err = looseBool(raw.LegalClearance); err != nil {
		return fmt.Errorf("legalClearance: %w", err)
	}
	if c.AccessibilityScore, err = looseFloat(raw.AccessibilityScore); err != nil {
		return fmt.Errorf("accessibilityScore: %w", err)
	}
	return nil
}

func looseBool(raw json.RawMessage) (bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, err
	}
	return strconv.ParseBool(strings.TrimSpace(s))
}

func looseFloat(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
}

type VisualAssets struct {
	HeroImage   string   `json:"heroImage"`
	BrandColors []string `json:"brandColors"`
	Typography  string   `json:"typography"`
}

// Result is the terminal output of a successful run.
type Result struct {
	ResearchSummary string        `json:"researchSummary"`
	AdCopy          AdCopy        `json:"adCopy"`
	BrandAnalysis   BrandAnalysis `json:"brandAnalysis"`
	Targeting       Targeting     `json:"targeting"`
	Compliance      Compliance    `json:"compliance"`
	VisualAssets    *VisualAssets `json:"visualAssets,omitempty"`
}

// Summary renders the result as plain text for chat-style consumers.
func (r *Result) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n%s\n\n%s\n\n%s\n", r.AdCopy.Headline, r.AdCopy.Subheadline, r.AdCopy.Body, r.AdCopy.CallToAction)
	if r.ResearchSummary != "" {
		fmt.Fprintf(&sb, "\nResearch: %s\n", r.ResearchSummary)
	}
	if r.Targeting.Location != "" || len(r.Targeting.Demographics) > 0 {
		fmt.Fprintf(&sb, "Targeting: %s; %s\n", r.Targeting.Location, strings.Join(r.Targeting.Demographics, ", "))
	}
	fmt.Fprintf(&sb, "Brand: %s, %s / %s\n", r.BrandAnalysis.BrandArchetype, r.BrandAnalysis.PrimaryColor, r.BrandAnalysis.SecondaryColor)
	fmt.Fprintf(&sb, "Compliance: canadian standards %t, legal clearance %t, accessibility %.0f\n",
		r.Compliance.CanadianStandards, r.Compliance.LegalClearance, r.Compliance.AccessibilityScore)
	return sb.String()
}
