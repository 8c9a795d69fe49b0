package campaign

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/zhengjr9/kolony/internal/errors"
	"github.com/zhengjr9/kolony/internal/sse"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		kind    Kind
		wantErr bool
	}{
		{"thought", `{"thought":{"agent":"planner","action":"plan","timestamp":1700000000000}}`, KindThought, false},
		{"result", `{"result":{"researchSummary":"s","adCopy":{"headline":"h"}}}`, KindResult, false},
		{"error string", `{"error":"boom"}`, KindError, false},
		{"error object", `{"error":{"message":"boom"}}`, KindError, false},
		{"null siblings ignored", `{"thought":null,"result":{"researchSummary":"s"}}`, KindResult, false},
		{"empty", `{}`, 0, true},
		{"two variants", `{"thought":{"agent":"planner"},"error":"x"}`, 0, true},
		{"bad thought shape", `{"thought":"text"}`, 0, true},
		{"bad result shape", `{"result":{"adCopy":"text"}}`, 0, true},
		{"not an object", `"hello"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent(sse.Payload(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ev.Kind)
			switch ev.Kind {
			case KindThought:
				require.NotNil(t, ev.Thought)
				assert.Equal(t, AgentPlanner, ev.Thought.Agent)
				assert.Equal(t, int64(1700000000000), ev.Thought.Timestamp)
			case KindResult:
				require.NotNil(t, ev.Result)
				assert.Equal(t, "s", ev.Result.ResearchSummary)
			case KindError:
				assert.Equal(t, "boom", ev.Message)
			}
		})
	}
}

func TestDecodeEventResultErrors(t *testing.T) {
	_, err := DecodeEvent(sse.Payload(`{"result":{"adCopy":"text"}}`))
	assert.ErrorIs(t, err, apierrors.ErrBadResult)

	_, err = DecodeEvent(sse.Payload(`{"thought":"text"}`))
	assert.NotErrorIs(t, err, apierrors.ErrBadResult)
}

func TestDecodeEventLooseResultValues(t *testing.T) {
	ev, err := DecodeEvent(sse.Payload(`{"result":{
		"brandAnalysis":{"canadianElements":"maple leaf"},
		"compliance":{"canadianStandards":"true","legalClearance":false,"accessibilityScore":"92%"}}}`))
	require.NoError(t, err)
	assert.Equal(t, StringList{"maple leaf"}, ev.Result.BrandAnalysis.CanadianElements)
	assert.True(t, ev.Result.Compliance.CanadianStandards)
	assert.False(t, ev.Result.Compliance.LegalClearance)
	assert.Equal(t, 92.0, ev.Result.Compliance.AccessibilityScore)

	_, err = DecodeEvent(sse.Payload(`{"result":{"compliance":{"accessibilityScore":"high"}}}`))
	assert.ErrorIs(t, err, apierrors.ErrBadResult)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "thought", KindThought.String())
	assert.Equal(t, "result", KindResult.String())
	assert.Equal(t, "error", KindError.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}

func TestThoughtString(t *testing.T) {
	assert.Equal(t, "[planner] Analyzing", Thought{Agent: AgentPlanner, Action: "Analyzing"}.String())
	assert.Equal(t, "[auditor] Validating: CRTC standards",
		Thought{Agent: AgentAuditor, Action: "Validating", Details: "CRTC standards"}.String())
}

func TestResultSummary(t *testing.T) {
	r := &Result{
		ResearchSummary: "Demand is growing",
		AdCopy:          AdCopy{Headline: "H", Subheadline: "S", Body: "B", CallToAction: "Buy"},
		Targeting:       Targeting{Location: "Toronto", Demographics: []string{"25-34"}},
		Compliance:      Compliance{CanadianStandards: true, AccessibilityScore: 92},
	}
	s := r.Summary()
	assert.Contains(t, s, "H\nS\n\nB\n\nBuy")
	assert.Contains(t, s, "Research: Demand is growing")
	assert.Contains(t, s, "Targeting: Toronto; 25-34")
	assert.Contains(t, s, "accessibility 92")
}
