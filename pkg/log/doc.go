/*
Package log provides structured logging for Drover built on zerolog.

Call Init once at startup, then derive component loggers:

	log.Init(log.Config{Level: log.InfoLevel})
	logger := log.WithComponent("monitor")
	logger.Info().Str("volume_id", id).Msg("finalizing migration")

Console output is the default; JSON output is intended for production
deployments where logs are shipped to an aggregator.
*/
package log
