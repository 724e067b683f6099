// Package llm turns a discriminated provider configuration into a uniform
// text-generation capability with optional tool calling.
//
// Invariants:
// - Callers only see Model; provider-specific fields never leave this package.
// - Shared tuning (temperature, max tokens, top-p) is applied when set and
//   left to the provider default otherwise.
// - A missing API key falls back to the provider's environment variable.
//
// Usage:
//
//	model, _ := llm.New(llm.Config{Provider: llm.ProviderAnthropic, Model: "claude-sonnet-4"})
//	resp, _ := model.Generate(ctx, llm.UserThread("hello"), nil)
//	_ = resp.Text
package llm
