package a2a

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/zhengjr9/kolony/internal/campaign"
)

// AgentConfig holds the configuration for the campaign A2A agent.
type AgentConfig struct {
	// Name is the agent name exposed via A2A AgentCard.
	Name string
	// Description is exposed via A2A AgentCard.
	Description string
	// Orchestrator runs the campaigns. Its session provider decides whose
	// token is used; the server installs the caller's token in the request
	// context.
	Orchestrator *campaign.Orchestrator
}

// New returns an agent.Agent whose Run drives one campaign orchestration per
// invocation: the user text is the campaign prompt, every thought becomes a
// partial event and the result a final event.
func New(cfg AgentConfig) (agent.Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("a2a agent: Name must not be empty")
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("a2a agent: Orchestrator must not be nil")
	}

	return agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		Run:         runFunc(cfg),
	})
}

// runFunc returns the Run closure that drives one agent invocation.
func runFunc(cfg AgentConfig) func(agent.InvocationContext) iter.Seq2[*session.Event, error] {
	return func(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
		return func(yield func(*session.Event, error) bool) {
			newEvent := func(text string, partial bool) *session.Event {
				ev := session.NewEvent(ctx.InvocationID())
				ev.Author = cfg.Name
				ev.Branch = ctx.Branch()
				ev.LLMResponse = model.LLMResponse{
					Content: textContent(text),
					Partial: partial,
				}
				return ev
			}

			prompt := extractQuery(ctx.UserContent())
			if prompt == "" {
				yield(newEvent("(empty input)", false), nil)
				return
			}

			err := streamCampaign(ctx, cfg.Orchestrator, campaign.Request{Prompt: prompt}, func(text string, partial bool) bool {
				return yield(newEvent(text, partial), nil)
			})
			if err != nil {
				yield(nil, fmt.Errorf("campaign orchestration failed: %w", err))
			}
		}
	}
}

// streamCampaign runs req and hands each thought, then the rendered result,
// to emit on the calling goroutine. When emit returns false the run is
// cancelled and streamCampaign returns nil.
func streamCampaign(ctx context.Context, orch *campaign.Orchestrator, req campaign.Request, emit func(text string, partial bool) bool) error {
	thoughts := make(chan campaign.Thought)
	stop := make(chan struct{})

	run := orch.Start(ctx, req, func(t campaign.Thought) {
		select {
		case thoughts <- t:
		case <-stop:
		}
	})
	defer func() {
		// Release an observer blocked on the thoughts channel.
		close(stop)
		run.Cancel()
		<-run.Done()
	}()

	for {
		select {
		case t := <-thoughts:
			if !emit(t.String()+"\n", true) {
				return nil
			}
		case <-run.Done():
			result, err := run.Wait()
			if err != nil {
				return err
			}
			emit(result.Summary(), false)
			return nil
		}
	}
}

// extractQuery pulls the plain-text content from the genai.Content that ADK
// puts in the InvocationContext when the caller sends a message.
func extractQuery(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

// textContent is a small helper that wraps a string into a *genai.Content.
func textContent(text string) *genai.Content {
	return &genai.Content{
		Role:  genai.RoleModel,
		Parts: []*genai.Part{{Text: text}},
	}
}
