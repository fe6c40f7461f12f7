package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// inspected — проверенный токен для YAML.
type inspected struct {
	Subject   string         `yaml:"subject"`
	Audience  string         `yaml:"audience"`
	Legacy    bool           `yaml:"legacy"`
	IssuedAt  string         `yaml:"issued_at"`
	ExpiresAt string         `yaml:"expires_at"`
	Duration  string         `yaml:"duration"`
	Claims    map[string]any `yaml:"claims"`
}

func newInspectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <token>",
		Short: "Проверить подпись и срок токена и показать его содержимое",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validateOutput(); err != nil {
				return err
			}
			codec, err := opts.codec()
			if err != nil {
				return err
			}
			grant, err := codec.Decode(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}

			view := inspected{
				Subject:   grant.Subject,
				Audience:  grant.Audience.String(),
				Legacy:    grant.Legacy,
				IssuedAt:  grant.IssuedAt.UTC().Format(time.RFC3339),
				ExpiresAt: grant.ExpiresAt.UTC().Format(time.RFC3339),
				Duration:  grant.Duration.String(),
				Claims:    grant.Claims,
			}

			out := cmd.OutOrStdout()
			if opts.output == outputYAML {
				return writeYAML(out, view)
			}
			_, err = fmt.Fprintf(out, "subject:    %s\naudience:   %s\nlegacy:     %t\nissued_at:  %s\nexpires_at: %s\nduration:   %s\n",
				view.Subject, view.Audience, view.Legacy, view.IssuedAt, view.ExpiresAt, view.Duration)
			return err
		},
	}
}
