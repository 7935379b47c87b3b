package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docscout/docscout/internal/contextgen"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(&mcp.Prompt{
		Name:        "explain_code",
		Description: "Explain a piece of code using the indexed project documentation as grounding.",
		Arguments: []*mcp.PromptArgument{
			{Name: "code", Description: "the code to explain", Required: true},
			{Name: "language", Description: "programming language of the code"},
		},
	}, s.handleExplainCodePrompt)

	s.mcp.AddPrompt(&mcp.Prompt{
		Name:        "write_documentation",
		Description: "Draft documentation for a topic, consistent with the existing indexed docs.",
		Arguments: []*mcp.PromptArgument{
			{Name: "topic", Description: "what to document", Required: true},
			{Name: "audience", Description: "intended audience, e.g. end users, contributors"},
		},
	}, s.handleWriteDocumentationPrompt)

	s.mcp.AddPrompt(&mcp.Prompt{
		Name:        "code_example",
		Description: "Produce a working code example for a task, grounded in the indexed documentation.",
		Arguments: []*mcp.PromptArgument{
			{Name: "task", Description: "the task the example should demonstrate", Required: true},
			{Name: "language", Description: "programming language for the example"},
		},
	}, s.handleCodeExamplePrompt)
}

func (s *Server) handleExplainCodePrompt(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	code := promptArg(req, "code")
	if code == "" {
		return nil, NewInvalidParamsError("code argument is required")
	}
	language := promptArg(req, "language")

	docs := s.promptContext(ctx, "explain this code: "+firstLine(code), language)

	var b strings.Builder
	b.WriteString("Explain the following code")
	if language != "" {
		fmt.Fprintf(&b, " (%s)", language)
	}
	b.WriteString(". Cover what it does, how it works, and any non-obvious behavior.\n\n")
	fmt.Fprintf(&b, "```%s\n%s\n```\n", language, code)
	if docs != "" {
		b.WriteString("\nRelevant project documentation:\n\n")
		b.WriteString(docs)
	}

	return promptResult("Explain code with documentation grounding", b.String()), nil
}

func (s *Server) handleWriteDocumentationPrompt(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	topic := promptArg(req, "topic")
	if topic == "" {
		return nil, NewInvalidParamsError("topic argument is required")
	}
	audience := promptArg(req, "audience")

	docs := s.promptContext(ctx, "documentation about "+topic, "")

	var b strings.Builder
	fmt.Fprintf(&b, "Write documentation for: %s\n", topic)
	if audience != "" {
		fmt.Fprintf(&b, "Audience: %s\n", audience)
	}
	b.WriteString("\nMatch the structure, tone, and terminology of the existing documentation.\n")
	if docs != "" {
		b.WriteString("\nExisting documentation on related topics:\n\n")
		b.WriteString(docs)
	}

	return promptResult("Draft documentation consistent with existing docs", b.String()), nil
}

func (s *Server) handleCodeExamplePrompt(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	task := promptArg(req, "task")
	if task == "" {
		return nil, NewInvalidParamsError("task argument is required")
	}
	language := promptArg(req, "language")

	docs := s.promptContext(ctx, "code example: "+task, language)

	var b strings.Builder
	fmt.Fprintf(&b, "Write a complete, working code example that demonstrates: %s\n", task)
	if language != "" {
		fmt.Fprintf(&b, "Language: %s\n", language)
	}
	b.WriteString("\nFollow the APIs and conventions shown in the documentation. Include brief comments on the key steps.\n")
	if docs != "" {
		b.WriteString("\nRelevant documentation:\n\n")
		b.WriteString(docs)
	}

	return promptResult("Code example grounded in documentation", b.String()), nil
}

// promptContext retrieves a compact documentation context for a prompt.
// Failures return empty: a prompt without grounding is still usable.
func (s *Server) promptContext(ctx context.Context, task, language string) string {
	result, err := s.svc.Generator().GenerateProgressive(ctx, &contextgen.Query{
		Task:     task,
		Language: language,
	}, contextgen.LevelDetailed)
	if err != nil || result.Metadata.TotalChunks == 0 {
		return ""
	}
	return result.Content
}

func promptArg(req *mcp.GetPromptRequest, name string) string {
	if req == nil || req.Params == nil {
		return ""
	}
	return strings.TrimSpace(req.Params.Arguments[name])
}

func promptResult(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: text},
			},
		},
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
