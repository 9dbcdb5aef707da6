package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <domain>",
	Short: "List the artifacts stored for a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		artifacts, err := a.Artifacts(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(artifacts) == 0 {
			fmt.Printf("no artifacts for %s\n", args[0])
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CLASS\tKIND\tTIMESTAMP\tNAME")
		for _, art := range artifacts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", art.Class, art.Kind, art.Stamp, art.Name())
		}
		return w.Flush()
	},
}

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the WordPress sites found under sites.root",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		sites, err := a.Sites()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DOMAIN\tDATABASE\tSTATUS\tROOT")
		for _, s := range sites {
			status := "ok"
			if !s.Valid() {
				status = "skipped (no DB_NAME)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Domain, s.Database.Name, status, s.RootPath)
		}
		return w.Flush()
	},
}

// defaultSiteRoot follows the <sites.root>/<domain>/public_html layout that
// discovery expects.
func defaultSiteRoot(site string) string {
	return filepath.Join(cfg.Sites.Root, site, "public_html")
}
