package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/semmidev/wpfleet/internal/domain"
	"github.com/semmidev/wpfleet/internal/usecase"
)

var (
	restoreTarget    string
	restoreClass     string
	restoreStamp     string
	restoreFromLocal string
	restoreDryRun    bool
	restoreYes       bool
	restoreJSON      bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore <domain>",
	Short: "Rebuild a site's database and files from its latest backup",
	Long: `Restore picks the newest database dump and file archive of the domain,
recreates the database and its user from the archived wp-config.php, imports
the dump and mirrors the files into --target, deleting files the backup does
not contain. Ownership is taken from the existing target, or from
restore.fallback_owner for a new one.

This overwrites the live site. Pass --yes to proceed, or --dry-run to see
what would be restored without changing anything.`,
	Example: `  wpfleet restore shop.example --target /var/www/shop.example/public_html --yes
  wpfleet restore shop.example --class weekly --dry-run
  wpfleet restore shop.example --from-local /mnt/usb/wpfleet --stamp 20250709-033000 --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	f := restoreCmd.Flags()
	f.StringVar(&restoreTarget, "target", "", "site root to restore into (default: <sites.root>/<domain>/public_html)")
	f.StringVar(&restoreClass, "class", "", "only consider artifacts of this class")
	f.StringVar(&restoreStamp, "stamp", "", "only consider artifacts with this timestamp token")
	f.StringVar(&restoreFromLocal, "from-local", "", "read artifacts from <dir>/<domain>/ instead of the remote")
	f.BoolVar(&restoreDryRun, "dry-run", false, "resolve, fetch and inspect without changing anything")
	f.BoolVar(&restoreYes, "yes", false, "confirm overwriting the target database and files")
	f.BoolVar(&restoreJSON, "json", false, "print the result as JSON")
}

func runRestore(cmd *cobra.Command, args []string) error {
	site := args[0]

	opts := usecase.RestoreOptions{
		Domain:     site,
		TargetRoot: restoreTarget,
		Stamp:      restoreStamp,
		Confirm:    restoreYes,
		DryRun:     restoreDryRun,
	}
	if opts.TargetRoot == "" {
		opts.TargetRoot = defaultSiteRoot(site)
	}
	if restoreClass != "" {
		class, err := domain.ParseClass(restoreClass)
		if err != nil {
			return err
		}
		opts.Class = class
	}
	if !opts.Confirm && !opts.DryRun {
		return fmt.Errorf("%w: pass --yes to overwrite %s, or --dry-run", domain.ErrConsentRequired, opts.TargetRoot)
	}

	a, err := newApp(cmd.Context(), restoreJSON)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	result, err := a.Restore(cmd.Context(), opts, restoreFromLocal)
	if restoreJSON && result != nil {
		if jerr := writeJSON(result); jerr != nil {
			return jerr
		}
	}
	if err != nil {
		return err
	}

	if !restoreJSON {
		fmt.Printf("database: %s\nfiles:    %s\n", result.Database, result.Files)
		if result.DryRun {
			fmt.Printf("dry run: would restore database %s (user %s) into %s\n", result.DBName, result.DBUser, opts.TargetRoot)
			return nil
		}
		fmt.Printf("restored %s into %s (%d copied, %d removed, owner %d:%d)\n",
			site, opts.TargetRoot, result.Mirror.Copied, result.Mirror.Removed, result.Owner.UID, result.Owner.GID)
	}
	return nil
}
