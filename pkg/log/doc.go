/*
Package log provides structured logging for Herald using zerolog.

The package keeps one global zerolog.Logger and hands out child loggers
tagged with the fields every Herald subsystem logs by: the component name,
the local component address, and the remote peer a message concerns.

# Architecture

	┌──────────────────── LOGGING SYSTEM ────────────────────┐
	│                                                         │
	│  log.Init(Config)                                       │
	│    - level: debug/info/warn/error                       │
	│    - format: JSON or console                            │
	│    - output: stdout or any io.Writer                    │
	│                      │                                  │
	│  ┌───────────────────▼──────────────────────┐          │
	│  │           Child loggers                   │          │
	│  │  WithComponent("manager")                 │          │
	│  │  WithAddress(1.1.2.1)                     │          │
	│  │  WithPeer("transport", 1.2.5.1)           │          │
	│  └───────────────────────────────────────────┘          │
	└─────────────────────────────────────────────────────────┘

Until Init is called the global logger discards everything, so packages
and tests can log freely without configuring output first.

# Usage

	log.Init(log.Config{Level: log.ParseLevel(cfg.Log.Level), JSONOutput: cfg.Log.JSON})

	logger := log.WithComponent("scheduler")
	logger.Debug().Stringer("event", key).Msg("periodic event fired")

Console output is meant for development; deployments should set
JSONOutput so logs can be shipped and filtered by field.
*/
package log
