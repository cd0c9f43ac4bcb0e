// Package log is the structured logging facade used by the flolog engine,
// its runtime and the CLI.
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Records flow through a slog.Handler
// bridge into a Formatter and one or more Outputs, so slog-aware code and the
// facade produce identical lines.
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("queue"), log.Str("path", dir))
//	l.Info("segment rolled", log.Uint64("base", 4096))
//
// Use ApplyConfig to build a logger from a declarative Config. Libraries that
// only speak *log.Logger can be routed through RedirectStdLog.
package log
