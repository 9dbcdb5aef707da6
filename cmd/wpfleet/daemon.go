package main

import (
	"github.com/spf13/cobra"

	"github.com/semmidev/wpfleet/internal/app"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the daily backup on backup.schedule until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		return a.Run(cmd.Context())
	},
}

var gdriveListen string

var gdriveAuthCmd = &cobra.Command{
	Use:   "gdrive-auth",
	Short: "Obtain a Google Drive refresh token for the gdrive remote",
	Long: `Starts a small HTTP server. Open http://<listen>/auth/google/drive in a
browser, grant access, and copy the printed refresh token into
remote.refresh_token. The OAuth client's redirect URI must point at
/auth/google/callback on the same address.`,
	Args: cobra.NoArgs,
	// The token does not exist yet, so the remote cannot be validated.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loadEnv()
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetString("client-secret")

		log, err := newCLILogger()
		if err != nil {
			return err
		}
		defer log.Close()

		svc, err := app.NewGoogleOAuthService(log, secret)
		if err != nil {
			return err
		}
		if redirect, _ := cmd.Flags().GetString("redirect-url"); redirect != "" {
			svc.SetRedirectURL(redirect)
		}

		return svc.Serve(cmd.Context(), gdriveListen)
	},
}

func init() {
	gdriveAuthCmd.Flags().StringVar(&gdriveListen, "listen", ":8085", "address for the OAuth callback server")
	gdriveAuthCmd.Flags().String("client-secret", "client_secret.json", "OAuth client secret downloaded from Google Cloud")
	gdriveAuthCmd.Flags().String("redirect-url", "", "override the redirect URI from the client secret")
}
