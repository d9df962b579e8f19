package scheduler

import "time"

type Config struct {
	// BatchSize caps how many pools one job pass touches.
	BatchSize int

	// JobTimeout bounds each job run.
	JobTimeout time.Duration

	// DisabledJobs names jobs to skip, for staged rollouts.
	DisabledJobs []string
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Second
	}
	return c
}

func (c Config) isJobEnabled(name string) bool {
	for _, disabled := range c.DisabledJobs {
		if disabled == name {
			return false
		}
	}
	return true
}
