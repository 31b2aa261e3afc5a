package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Ingest      *IngestCommand
	Status      *StatusCommand
	Times       *TimesCommand
	TrackList   *TrackListCommand
	TrackAdd    *TrackAddCommand
	TrackRemove *TrackRemoveCommand
	TrackSet    *TrackSetCommand
	Record      *RecordCommand
	Reset       *ResetCommand
	Prune       *PruneCommand
	Token       *TokenCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "sitetime"
	parser.LongDescription = "Local per-site browsing time accounting for the sitetime browser extension."

	cmds := &commands{
		Ingest:      &IngestCommand{globals: &globals, version: version},
		Status:      &StatusCommand{globals: &globals, version: version},
		Times:       &TimesCommand{globals: &globals},
		TrackList:   &TrackListCommand{globals: &globals},
		TrackAdd:    &TrackAddCommand{globals: &globals},
		TrackRemove: &TrackRemoveCommand{globals: &globals},
		TrackSet:    &TrackSetCommand{globals: &globals},
		Record:      &RecordCommand{globals: &globals},
		Reset:       &ResetCommand{globals: &globals},
		Prune:       &PruneCommand{globals: &globals},
		Token:       &TokenCommand{globals: &globals},
	}

	parser.AddCommand("ingest", "Start the sitetime daemon", "Start the sitetime daemon (local HTTP and WebSocket service for the extension).", cmds.Ingest)
	parser.AddCommand("status", "Show accounting totals and daemon health", "Show tracked sites, totals, database statistics, and whether the daemon is running.", cmds.Status)
	parser.AddCommand("times", "List time per site", "List accumulated seconds per site, largest first.", cmds.Times)

	track, _ := parser.AddCommand("track", "Manage tracked sites", "List or change the sites whose time counts as tracked.", &struct{}{})
	track.AddCommand("list", "List tracked sites", "List tracked sites in order.", cmds.TrackList)
	track.AddCommand("add", "Track a site", "Add a site to the tracked list. Totals are reclassified.", cmds.TrackAdd)
	track.AddCommand("remove", "Stop tracking a site", "Remove a site from the tracked list. Totals are reclassified.", cmds.TrackRemove)
	track.AddCommand("set", "Replace the tracked list", "Replace the tracked list with the given sites. No sites clears it.", cmds.TrackSet)

	parser.AddCommand("record", "Manually record time for a site", "Add seconds to a site as if the browser had reported them.", cmds.Record)
	parser.AddCommand("reset", "Delete ALL recorded time", "Delete all recorded time and totals. Tracked sites are kept. Destructive operation with safety prompt.", cmds.Reset)
	parser.AddCommand("prune", "Trim the change log", "Delete change-log rows older than the retention period.", cmds.Prune)
	parser.AddCommand("token", "Issue an extension auth token", "Sign a bearer token with daemon.auth_token for the extension to present.", cmds.Token)

	return parser, &globals, cmds
}

// Run is the main entry point for the sitetime CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("sitetime %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
