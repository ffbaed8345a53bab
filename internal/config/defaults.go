package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/ernop/gpt-webdiff/internal/fetch"
)

// SetDefaults registers every default with v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("registry_file", ".gptcron")
	v.SetDefault("backup_dir", "gptcron_backups")
	v.SetDefault("data_dir", "data")
	v.SetDefault("state_file", "job_metadata.json")
	v.SetDefault("responses_dir", "openai_responses")
	v.SetDefault("emails_dir", "emails")
	v.SetDefault("log_file", "gpt_diff.log")
	v.SetDefault("lock_file", ".gptcron.lock")
	v.SetDefault("templates_file", "")
	v.SetDefault("threshold", 5)
	v.SetDefault("context_budget", 20000)
	v.SetDefault("fatal_on_parse_failure", false)

	v.SetDefault("oracle.provider", "openai")
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.model", "") // backend default
	v.SetDefault("oracle.base_url", "")
	v.SetDefault("oracle.max_tokens", 3500)
	v.SetDefault("oracle.timeout", 2*time.Minute)

	v.SetDefault("fetch.user_agent", fetch.DefaultUserAgent)
	v.SetDefault("fetch.timeout", 60*time.Second)
	v.SetDefault("fetch.max_bytes", fetch.DefaultMaxBytes)

	v.SetDefault("email.to", "")
	v.SetDefault("email.from", "")
	v.SetDefault("email.login", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.smtp_host", "smtp.gmail.com")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.enabled", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("watch.schedule", "@every 1m")
}
