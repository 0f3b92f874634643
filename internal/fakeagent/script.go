// ABOUTME: Canned agent behaviours and the frames-to-legacy-result conversion.
// ABOUTME: The echo script mimics a ReAct turn: one tool call, its result, then a streamed answer.

package fakeagent

import (
	"fmt"
	"strings"

	"github.com/2389/agentchat/internal/frame"
)

// EchoScript answers every task by "calling" an echo tool and streaming the
// reply word by word.
func EchoScript(req frame.TaskRequest) []frame.Frame {
	frames := []frame.Frame{
		{Type: frame.TypeToolCall, Data: fmt.Sprintf("echo(%q)", req.Task)},
		{Type: frame.TypeToolResult, Data: req.Task},
	}

	words := strings.Fields("You said: " + req.Task)
	for i, word := range words {
		if i > 0 {
			word = " " + word
		}
		frames = append(frames, frame.Content(word))
	}
	return frames
}

// Fixed returns a script that always answers with frames.
func Fixed(frames ...frame.Frame) Script {
	return func(frame.TaskRequest) []frame.Frame {
		out := make([]frame.Frame, len(frames))
		copy(out, frames)
		return out
	}
}

// BuildResult folds scripted frames into the legacy execute response shape.
func BuildResult(frames []frame.Frame, task string) frame.Result {
	var (
		answer strings.Builder
		steps  []frame.Step
		errMsg string
	)

	for _, f := range frames {
		switch f.Type {
		case frame.TypeContent:
			answer.WriteString(f.Data)
		case frame.TypeToolCall:
			steps = append(steps, frame.Step{StepType: "ACTION", Content: f.Data})
		case frame.TypeToolResult:
			steps = append(steps, frame.Step{StepType: "OBSERVATION", Content: f.Data})
		case frame.TypeError:
			errMsg = f.Data
		}
	}

	input := len(strings.Fields(task))
	output := len(strings.Fields(answer.String()))
	result := frame.Result{
		ThoughtSteps: steps,
		TokenStats: &frame.TokenStats{
			TotalTokens:  input + output,
			InputTokens:  input,
			OutputTokens: output,
		},
	}

	if errMsg != "" {
		result.ErrorMessage = errMsg
		return result
	}
	result.FinalAnswer = answer.String()
	result.Success = result.FinalAnswer != ""
	return result
}
