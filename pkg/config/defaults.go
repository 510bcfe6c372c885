package config

import "time"

// applyDefaults fills in Derived fields not carried by agent_0.cfg's
// documented JSON schema, using environment variable overrides where the
// original shell-script bootstrap exposed them, falling back to the
// constants named throughout spec.md §4.
func applyDefaults(c *Config) {
	if c.DBPollSleeptime <= 0 {
		c.DBPollSleeptime = 10
	}

	d := &c.Derived
	if d.QueuePollSleeptime <= 0 {
		d.QueuePollSleeptime = durationEnvOrDefault("RP_QUEUE_POLL_SLEEPTIME", time.Second)
	}
	if d.BulkCollectionTime <= 0 {
		d.BulkCollectionTime = durationEnvOrDefault("RP_BULK_COLLECTION_TIME", time.Second)
	}
	if d.TailSize <= 0 {
		d.TailSize = 64 * 1024
	}
	if d.SlotHistoryCap <= 0 {
		d.SlotHistoryCap = 4 * 1024 * 1024
	}
	if d.MaxDocumentSize <= 0 {
		d.MaxDocumentSize = 16 * 1024 * 1024
	}
}

func durationEnvOrDefault(key string, def time.Duration) time.Duration {
	v := ExpandEnv("${" + key + "}")
	if v == "" {
		return def
	}
	if parsed, err := time.ParseDuration(v); err == nil {
		return parsed
	}
	return def
}
