// Package functions declares the operations the model may call and runs
// them. Every handler resolves to a Result; failures never escape as errors.
package functions

import (
	"context"
	"fmt"
	"strings"

	"github.com/knolabs/daela/pkg/llm"
)

// EscalationSentinel is the function result that asks the orchestrator to
// bring a human agent into the room.
const EscalationSentinel = "call_human_agent"

type Outcome int

const (
	// OutcomeText is an ordinary answer fed back to the model.
	OutcomeText Outcome = iota
	// OutcomeEscalate carries EscalationSentinel.
	OutcomeEscalate
	// OutcomeAnalyzeImage asks for Text to be resubmitted with the latest frame.
	OutcomeAnalyzeImage
	// OutcomeError means the function produced no result.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeText:
		return "text"
	case OutcomeEscalate:
		return "escalate"
	case OutcomeAnalyzeImage:
		return "analyze_image"
	case OutcomeError:
		return "error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type Result struct {
	Outcome Outcome
	Text    string
	// FollowUpEmail is set when a booking status re-check should be
	// scheduled for this address.
	FollowUpEmail string
}

func Text(s string) Result { return Result{Outcome: OutcomeText, Text: s} }

func Escalate() Result { return Result{Outcome: OutcomeEscalate, Text: EscalationSentinel} }

func Failed(reason string) Result { return Result{Outcome: OutcomeError, Text: reason} }

// Args are the decoded call arguments.
type Args map[string]any

// String returns the trimmed string value of name, or "".
func (a Args) String(name string) string {
	switch v := a[name].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

type Parameter struct {
	Name        string
	Type        string
	Description string
	Enum        []string
	Optional    bool
}

type Handler func(ctx context.Context, args Args) Result

type Definition struct {
	Name        string
	Description string
	Parameters  []Parameter
	Handler     Handler
}

func (d Definition) schema() map[string]any {
	props := make(map[string]any, len(d.Parameters))
	required := make([]string, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		prop := map[string]any{"type": typ, "description": p.Description}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
		if !p.Optional {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Registry is an ordered table of definitions.
type Registry struct {
	defs   []Definition
	byName map[string]int
}

func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{byName: make(map[string]int, len(defs))}
	for _, d := range defs {
		if _, dup := r.byName[d.Name]; dup {
			continue
		}
		r.byName[d.Name] = len(r.defs)
		r.defs = append(r.defs, d)
	}
	return r
}

// Tools describes every definition for the model.
func (r *Registry) Tools() []llm.Tool {
	out := make([]llm.Tool, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, llm.Tool{Name: d.Name, Description: d.Description, Schema: d.schema()})
	}
	return out
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d.Name)
	}
	return out
}

func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Call runs one function call. Unknown names resolve to OutcomeError.
// Argument checks belong to the handlers, which answer bad input with
// user-facing text.
func (r *Registry) Call(ctx context.Context, call llm.ToolCall) Result {
	idx, ok := r.byName[call.Name]
	if !ok {
		return Failed("unknown function " + call.Name)
	}
	return r.defs[idx].Handler(ctx, Args(call.Arguments))
}

// FirstCall picks the call to dispatch from a model response. Only the
// first call is ever processed; the rest are discarded.
func FirstCall(calls []llm.ToolCall) (llm.ToolCall, bool) {
	if len(calls) == 0 {
		return llm.ToolCall{}, false
	}
	return calls[0], true
}
