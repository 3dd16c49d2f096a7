package cmd

import (
	cli "github.com/urfave/cli/v3"
)

// EngineFlags are the flags every command building an Engine accepts.
func EngineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Persistence URL: a directory, file://<dir> or postgres://...",
			Value:   "./data",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "lock-url",
			Usage:   "Instance lock: local, redis://... or postgres",
			Value:   "local",
			Sources: cli.EnvVars("LOCK_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "acl-file",
			Usage:   "YAML access list; every permission is granted when empty",
			Sources: cli.EnvVars("ACL_FILE"),
		},
		&cli.BoolFlag{
			Name:    "debug",
			Usage:   "Fail transitions when an action fails instead of only recording the error",
			Sources: cli.EnvVars("DEBUG"),
		},
		&cli.DurationFlag{
			Name:    "action-timeout",
			Usage:   "Upper bound for a single action run (0 disables it)",
			Sources: cli.EnvVars("ACTION_TIMEOUT"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP/HTTP (configured by OTEL_EXPORTER_OTLP_ENDPOINT)",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// EngineConfigFromCommand reads the EngineFlags values.
func EngineConfigFromCommand(command *cli.Command, serviceName string) EngineConfig {
	return EngineConfig{
		ServiceName:   serviceName,
		DatabaseURL:   command.String("database-url"),
		LockURL:       command.String("lock-url"),
		EventBus:      command.String("event-bus"),
		KafkaBrokers:  command.String("kafka-brokers"),
		ACLFile:       command.String("acl-file"),
		Debug:         command.Bool("debug"),
		ActionTimeout: command.Duration("action-timeout"),
		Tracing:       command.Bool("tracing"),
	}
}
