package gemini

// GenerateContentRequest mirrors the Gemini generateContent request body.
// Both spellings of the system instruction field are accepted.
type GenerateContentRequest struct {
	Contents               []Content          `json:"contents"`
	SystemInstruction      *SystemInstruction `json:"system_instruction,omitempty"`
	SystemInstructionCamel *SystemInstruction `json:"systemInstruction,omitempty"`
}

// Content is a single turn in a Gemini conversation.
type Content struct {
	Role  string `json:"role"` // "user" | "model"
	Parts []Part `json:"parts"`
}

// Part carries text content.
type Part struct {
	Text string `json:"text"`
}

// SystemInstruction carries the system prompt.
type SystemInstruction struct {
	Parts []Part `json:"parts"`
}

// GenerateContentResponse is the Gemini response format, used for both the
// blocking body and each streamed chunk.
type GenerateContentResponse struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
}

// Candidate is one response candidate.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
	Index        int     `json:"index"`
}

// UsageMetadata carries token counts.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// ErrorResponse is the Gemini error envelope, also sent in-stream.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}
