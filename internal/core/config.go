package core

import "time"

// Config is runtime configuration for the CLI.
type Config struct {
	Addr      string
	Timeout   time.Duration
	Broker    string
	TopicBase string
}
