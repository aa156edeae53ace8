package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultGuidelines are the summarization rules used when none are configured.
var DefaultGuidelines = []string{
	"focus on information that is valuable to the group, for example updates on ongoing developments or action steps members should take",
	"disregard any message that is purely emotional venting or bickering with other users",
	"format your summary as bullet-points",
	"each bullet-point must be substantiated with quotes from the original extract",
	"always refer to users by their names, never by generic \"a user\" or \"another user\"",
}

// SetDefaults registers the default of every key.
func SetDefaults(v *viper.Viper) {
	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	// Storage
	v.SetDefault("storage.path", "~/.chatdigest/data.db")

	// Source
	v.SetDefault("source.chat_id", "")
	v.SetDefault("source.page_size", 100)
	v.SetDefault("source.fetch_cap", 5000)
	v.SetDefault("source.inbox_dir", "")

	// Model
	v.SetDefault("model.provider", "ollama")
	v.SetDefault("model.endpoint", "http://localhost:11434")
	v.SetDefault("model.model", "llama3.2")
	v.SetDefault("model.timeout", 5*time.Minute)
	v.SetDefault("model.keep_alive", "5m")
	v.SetDefault("model.stream", false)
	v.SetDefault("model.temperature", 0.0)

	// Summary
	v.SetDefault("summary.token_budget", 3000)
	v.SetDefault("summary.context", "Here's an extract of a group chat thread.")
	v.SetDefault("summary.guidelines", DefaultGuidelines)
	v.SetDefault("summary.render_upstream", true)
	v.SetDefault("summary.include_sender_name", true)
	v.SetDefault("summary.exclude_self_generated", true)
	v.SetDefault("summary.replace_urls", true)
	v.SetDefault("summary.start_marker", "Chat digest")
	v.SetDefault("summary.disclaimer", "This digest was generated automatically and may contain mistakes.")
	v.SetDefault("summary.timezone", "Local")

	// Cache
	v.SetDefault("cache.kind", "file")
	v.SetDefault("cache.shards", []string{"~/.chatdigest/summaries.json"})
	v.SetDefault("cache.output", "~/.chatdigest/summaries.json")
	v.SetDefault("cache.concurrency", 4)

	// Delivery
	v.SetDefault("delivery.kind", "stdout")
	v.SetDefault("delivery.api_base", "https://api.telegram.org")
	v.SetDefault("delivery.bot_token", "")
	v.SetDefault("delivery.chat_id", "")

	// Schedule
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.cron", "0 0 8 * * *")
	v.SetDefault("schedule.span", 24*time.Hour)
	v.SetDefault("schedule.lag", 0)
	v.SetDefault("schedule.retry.max_attempts", 3)
	v.SetDefault("schedule.retry.initial_delay", 30*time.Second)
	v.SetDefault("schedule.retry.max_delay", 10*time.Minute)

	// Gateway
	v.SetDefault("gateway.enabled", false)
	v.SetDefault("gateway.host", "127.0.0.1")
	v.SetDefault("gateway.port", 8787)
}
