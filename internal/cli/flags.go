package cli

import "io"

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// IngestCommand flags: start the sitetime daemon.
type IngestCommand struct {
	Port     int    `long:"port" description:"Override daemon port"`
	LogLevel string `long:"log-level" description:"Override log level (debug, info, warn, error)"`

	globals *GlobalFlags
	version string
}

// StatusCommand flags: show totals, tracked sites, database stats, daemon health.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}

// TimesCommand flags: list accumulated time per site.
type TimesCommand struct {
	Limit int `long:"limit" description:"Maximum rows (0 for all)" default:"20"`

	globals *GlobalFlags
}

// TrackListCommand flags: print the tracked list.
type TrackListCommand struct {
	globals *GlobalFlags
}

// TrackAddCommand flags: append sites to the tracked list.
type TrackAddCommand struct {
	globals *GlobalFlags
}

// TrackRemoveCommand flags: drop sites from the tracked list.
type TrackRemoveCommand struct {
	globals *GlobalFlags
}

// TrackSetCommand flags: replace the tracked list.
type TrackSetCommand struct {
	globals *GlobalFlags
}

// RecordCommand flags: manually add time to a site.
type RecordCommand struct {
	Domain  string `long:"domain" description:"Site to credit (required)"`
	Seconds int64  `long:"seconds" description:"Seconds to add (required, > 0)"`

	globals *GlobalFlags
}

// ResetCommand flags: delete all recorded time with safety confirmation.
type ResetCommand struct {
	All   bool `long:"all" description:"Required flag to confirm reset intent"`
	Force bool `long:"force" description:"Skip safety confirmation prompt"`

	globals *GlobalFlags
	in      io.Reader // injectable for testing; nil means os.Stdin
}

// PruneCommand flags: trim the change log.
type PruneCommand struct {
	OlderThan string `long:"older-than" description:"Override retention period (e.g., 7d, 48h)"`
	DryRun    bool   `long:"dry-run" description:"Show what would be pruned without deleting"`

	globals *GlobalFlags
}

// TokenCommand flags: sign an auth token for the extension.
type TokenCommand struct {
	TTL string `long:"ttl" description:"Token lifetime (e.g., 30d, 12h; 0 for no expiry)" default:"30d"`

	globals *GlobalFlags
}
