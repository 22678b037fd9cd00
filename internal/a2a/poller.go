package a2a

import (
	"context"
	"fmt"
	"time"
)

// PollPolicy bounds the task polling loop. The default mirrors the
// historical behavior: one-second fixed interval, thirty attempts.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPollPolicy returns the 1s x 30 policy.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: time.Second, MaxAttempts: 30}
}

func (p PollPolicy) normalized() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = time.Second
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 30
	}
	return p
}

// PollTask queries tasks/get until the task reaches a terminal state or the
// policy's attempt budget runs out. Transient request errors are swallowed
// and retried; only terminal task failure, budget exhaustion, or context
// cancellation end the loop early.
func (c *Client) PollTask(ctx context.Context, agentURL, taskID string) (string, error) {
	policy := c.Poll.normalized()
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", newError(KindTimeout, fmt.Sprintf("polling task %s canceled", taskID), ctx.Err())
		case <-time.After(policy.Interval):
		}

		task, err := c.GetTask(ctx, agentURL, taskID)
		if err != nil {
			// Transient poll errors do not abort the loop.
			c.logger().Warn("task status check failed", "task_id", taskID, "error", err)
			continue
		}
		switch task.Status.State {
		case TaskStateCompleted:
			return firstArtifactText(task), nil
		case TaskStateFailed:
			msg := task.Status.Message
			if msg == "" {
				msg = "task failed"
			}
			return "", newError(KindRemoteFailure, msg, nil)
		}
		// submitted or working: keep polling.
	}
	return "", newError(KindTimeout, fmt.Sprintf("task %s did not complete within %d attempts", taskID, policy.MaxAttempts), nil)
}

// firstArtifactText returns the first text part of the first artifact.
func firstArtifactText(task Task) string {
	for _, artifact := range task.Artifacts {
		for _, part := range artifact.Parts {
			if part.IsText() && part.Text != "" {
				return part.Text
			}
		}
	}
	return "Task completed but no response found"
}
