/*
Package log provides structured logging shared by every component, built on
top of zerolog.

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("manager started")
	log.Error("apply failed")

Component loggers:

	dslcLog := log.WithComponent("dslc")
	dslcLog.Info().Str("data_stream", ds.Name).Msg("issuing rollover")

	aasLog := log.WithComponent("aas").With().
		Str("deployment_id", deploymentID).Logger()
	aasLog.Debug().Int("target", target).Msg("scaling")

Context helpers:

	log.WithDataStream(ds.Name)
	log.WithIndex(idx.Name)
	log.WithDeployment(deploymentID)

# Log Levels

Debug is for development and troubleshooting. Info is the default
production level. Warn flags conditions that may need attention but are not
failures (a rejected rollover, a stats poll that returned partial results).
Error is for failed operations. Fatal logs and calls os.Exit(1); it is only
used for unrecoverable startup failures (for example, a Raft store that
cannot be opened).

# Output

JSON output is for production: one object per line, parseable by log
aggregation tools. Console output renders a human-readable line with
key=value pairs and is meant for local development.

# Best Practices

Use structured fields (.Str, .Int, .Err) rather than string concatenation,
log errors with .Err() rather than folding them into the message, and scope
a logger to its component and any stable identifier (data stream name,
deployment ID) once instead of repeating the field on every call.
*/
package log
