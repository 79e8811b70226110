package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Supabase
	redact(&out.Supabase.DSN)
	redact(&out.Supabase.Password)

	// Redis
	redact(&out.Redis.Password)

	// S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Run.Dates = cloneStrings(cfg.Run.Dates)
	out.Notify.Events = cloneStrings(cfg.Notify.Events)
	if cfg.Delta.Groups != nil {
		out.Delta.Groups = make([]GroupConfig, len(cfg.Delta.Groups))
		for i, g := range cfg.Delta.Groups {
			out.Delta.Groups[i] = GroupConfig{Name: g.Name, Brokers: cloneStrings(g.Brokers)}
		}
	}
	if cfg.Delta.Aliases != nil {
		out.Delta.Aliases = make([]AliasConfig, len(cfg.Delta.Aliases))
		copy(out.Delta.Aliases, cfg.Delta.Aliases)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
