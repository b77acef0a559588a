package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/thiagokokada/gitrails/internal/buildinfo"
	"github.com/thiagokokada/gitrails/internal/git/backend"
)

func newVersionCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			info := buildinfo.Read()
			gitVersion, err := backend.GitVersion()
			if err != nil {
				slog.Debug("git executable not available", slog.Any("error", err))
			}
			if asJSON {
				return json.NewEncoder(a.stdout).Encode(struct {
					buildinfo.Info
					Git string `json:"git,omitempty"`
				}{info, gitVersion})
			}
			if _, err := fmt.Fprintf(a.stdout, "gitrails %s\n", info); err != nil {
				return err
			}
			if gitVersion == "" {
				return nil
			}
			_, err = fmt.Fprintln(a.stdout, gitVersion)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
