package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/runnerr0/sitetime/internal/accounting"
	"github.com/runnerr0/sitetime/internal/config"
	"github.com/runnerr0/sitetime/internal/storage"
)

// Execute implements the go-flags Commander interface for ResetCommand.
func (c *ResetCommand) Execute(args []string) error {
	if !c.All {
		return fmt.Errorf("reset requires --all flag for safety")
	}
	if err := c.confirm(); err != nil {
		return err
	}
	return withConfigStore(c.globals, c.executeWithStore)
}

// confirm asks for the confirmation word unless --force.
func (c *ResetCommand) confirm() error {
	if c.Force {
		return nil
	}

	fmt.Println("⚠ WARNING: This will permanently delete ALL recorded time.")
	fmt.Println("  - Time for every site")
	fmt.Println("  - Tracked and other totals")
	fmt.Println()
	fmt.Println("Tracked sites are kept. This action cannot be undone.")
	fmt.Println()
	fmt.Print(`Type "RESET" to confirm: `)

	var in io.Reader = os.Stdin
	if c.in != nil {
		in = c.in
	}
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return fmt.Errorf("aborted: no input received")
	}
	if strings.TrimSpace(scanner.Text()) != "RESET" {
		return fmt.Errorf("aborted: confirmation text did not match")
	}
	return nil
}

func (c *ResetCommand) executeWithStore(store *storage.SQLiteStore, cfg *config.Config) error {
	err := withTracker(store, cfg, cliLogger(c.globals), func(ctx context.Context, tr *accounting.Tracker) error {
		return tr.Reset(ctx)
	})
	if err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]any{
			"reset":   true,
			"message": "all recorded time deleted",
		})
	}

	fmt.Println("Reset all recorded time. Tracked sites were kept.")
	return nil
}
