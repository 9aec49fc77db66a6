package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"ltl/internal/domain"
)

const (
	maxParallelTools = 4
	partialResultMax = 500
)

// runChat drives the text backend and the tool loop. Each backend response
// that asks for tools counts as one iteration; once MaxToolIterations have
// run, the loop stops without another backend call and returns the best
// partial answer it has.
func (s *Session) runChat(ctx context.Context, text string, res *TurnResult) error {
	msgs := s.opts.Prompt.BuildMessages(ctx, s.history.Turns(), text)
	defs := s.opts.Tools.Definitions()
	model := s.opts.Models[domain.ResourceTextGeneration]

	var lastContent string
	for iteration := 1; ; iteration++ {
		if s.opts.Throttle != nil {
			if err := s.opts.Throttle.Wait(ctx); err != nil {
				return err
			}
		}
		resp, err := s.opts.Generator.Generate(ctx, domain.GenerateRequest{
			Model:       model,
			Messages:    msgs,
			Tools:       defs,
			Temperature: s.opts.Temperature,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("text backend failed", "iteration", iteration, "error", err)
			res.Degraded = true
			res.Text = backendFailureReply
			if lastContent != "" {
				res.Text = lastContent
			}
			return nil
		}

		if !resp.HasToolCalls() && resp.Content != "" {
			if extracted := toolCallsFromContent(resp.Content); len(extracted) > 0 {
				s.logger.Info("extracted tool calls from content", "count", len(extracted))
				resp.ToolCalls = extracted
				resp.Content = ""
			}
		}

		if !resp.HasToolCalls() {
			res.Text = strings.TrimSpace(stripRolePrefix(resp.Content))
			if res.Text == "" {
				res.Text = lastContent
			}
			if res.Text == "" {
				res.Text = "Done."
			}
			return nil
		}

		s.setState(StateToolLoop)
		if c := strings.TrimSpace(resp.Content); c != "" {
			lastContent = c
		}
		for i := range resp.ToolCalls {
			if resp.ToolCalls[i].ID == "" {
				resp.ToolCalls[i].ID = "call_" + uuid.NewString()
			}
		}
		msgs = append(msgs, domain.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})

		runs := s.executeCalls(ctx, resp.ToolCalls)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res.ToolCalls = append(res.ToolCalls, runs...)
		for _, r := range runs {
			msgs = append(msgs, domain.Message{
				Role:       "tool",
				Content:    toolMessage(r.Result),
				ToolCallID: r.Call.ID,
				ToolName:   r.Call.Name,
			})
		}

		if iteration >= s.opts.MaxToolIterations {
			s.logger.Warn("tool iteration ceiling reached", "iterations", iteration)
			res.Truncated = true
			res.Text = partialAnswer(lastContent, runs[len(runs)-1], iteration)
			return nil
		}
	}
}

// executeCalls runs the calls of one backend response concurrently and
// returns the results in call order.
func (s *Session) executeCalls(ctx context.Context, calls []domain.ToolCall) []ToolRun {
	runs := make([]ToolRun, len(calls))
	sem := make(chan struct{}, maxParallelTools)
	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if tc.ArgumentsError != "" {
				runs[i] = ToolRun{Call: tc, Result: domain.ToolResult{Error: "invalid arguments for " + tc.Name + ": " + tc.ArgumentsError}}
				return
			}
			s.logger.Debug("executing tool", "tool", tc.Name, "id", tc.ID)
			runs[i] = ToolRun{Call: tc, Result: s.opts.Tools.Execute(ctx, tc.Name, tc.Arguments)}
		}()
	}
	wg.Wait()
	return runs
}

// toolMessage is the JSON form of a result handed back to the backend.
func toolMessage(r domain.ToolResult) string {
	b, err := json.Marshal(r)
	if err != nil {
		b, _ = json.Marshal(domain.ToolResult{Success: r.Success, Data: fmt.Sprint(r.Data), Error: r.Error})
	}
	return string(b)
}

func partialAnswer(lastContent string, last ToolRun, iterations int) string {
	if lastContent != "" {
		return lastContent
	}
	var outcome string
	if last.Result.Success {
		outcome = FormatData(last.Result.Data)
	} else {
		outcome = "error: " + last.Result.Error
	}
	if r := []rune(outcome); len(r) > partialResultMax {
		outcome = string(r[:partialResultMax]) + "..."
	}
	return fmt.Sprintf("I stopped after %d tool steps without reaching a final answer. The last step (%s) returned:\n%s",
		iterations, last.Call.Name, outcome)
}

// FormatData renders tool output for people: strings as-is, anything else
// as indented JSON.
func FormatData(v any) string {
	switch d := v.(type) {
	case nil:
		return "Done."
	case string:
		return d
	case fmt.Stringer:
		return d.String()
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
