// Package agentwatch provides in-process drift detection for Go agent
// frameworks. A Watcher records the agent's actions (tool calls, model
// requests, state transitions), learns a per-agent behavioral baseline
// over calibration runs, and flags action loops, goal drift, and
// resource spikes as they happen.
//
// Usage:
//
//	w, err := agentwatch.Watch("billing-agent",
//	    agentwatch.WithGoal("reconcile monthly invoices"),
//	    agentwatch.WithEmbedder(embedFn),
//	)
//	runID := w.StartRun("", "reconcile invoices for March")
//	incidents, err := w.RecordToolCall(ctx, "search_db", agentwatch.Tokens(120))
//	err = w.EndRun(ctx, runID)
//
// The SDK links directly against internal packages for zero-subprocess
// overhead. External users import github.com/Tanmay-24/agentwatch/sdk/go/agentwatch.
package agentwatch
