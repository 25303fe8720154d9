// Package critique asks a model to review human feedback written about a
// conversation transcript, and renders the markdown reply as safe HTML.
//
// Usage:
//
//	client := anthropic.NewClient()
//	critic, err := critique.New(&client, critique.WithMaxTokens(1024))
//	messages, _ := session.ListMessages(ctx)
//	reply, err := critic.Critique(ctx, feedback, messages)
//	html, err := critique.RenderHTML(reply)
package critique
