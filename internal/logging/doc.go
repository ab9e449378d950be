// Package logging provides per-module slog loggers for svcmgr.
//
// Each component asks for its own logger with GetLogger. Every record carries
// a "module" attribute and is written to stdout (text or JSON) and, when
// journald is reachable, to the systemd journal as well:
//
//	logger := logging.GetLogger("supervisor")
//	logger.Info("Process started", "pid", pid)
//
// Levels are held in slog.LevelVar values, so Initialize and SetModuleLevel
// change the level of loggers that were already handed out. This is what a
// config reload relies on.
//
// Output of the supervised executable goes through the "output" module with a
// "source" attribute of stdout, stderr, system or service. In the journal,
// attribute keys become upper-case fields and groups are joined with "_":
//
//	journalctl -t svcmgr MODULE=output SOURCE=stderr
//	journalctl -t svcmgr -p err -f
//
// In the config file the global level and format sit next to one key per
// module:
//
//	[logging]
//	level = "info"
//	format = "text"
//	process = "debug"
//	output = "warn"
//
// RingBuffer keeps the most recent entries of the supervised process for
// snapshots.
package logging
