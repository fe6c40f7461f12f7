package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/asset-proxy/internal/apptoken"
)

// audienceInfo — описание аудитории.
type audienceInfo struct {
	Audience string `yaml:"audience"`
	Grants   string `yaml:"grants"`
	Ceiling  string `yaml:"ceiling"`
}

var audienceDescriptions = map[apptoken.Audience]audienceInfo{
	apptoken.AudienceNone:           {Grants: "ничего (служебное значение)", Ceiling: "-"},
	apptoken.AudiencePreview:        {Grants: "GET /img/{identifier}/preview/{filename}", Ceiling: "short"},
	apptoken.AudienceRendition:      {Grants: "GET /img/{identifier}/rendition/{filename}", Ceiling: "short"},
	apptoken.AudienceOriginal:       {Grants: "GET /doc/{identifier}/{filename}", Ceiling: "short"},
	apptoken.AudienceManifest:       {Grants: "GET /-/data/manifest", Ceiling: "long"},
	apptoken.AudienceMetadataUpdate: {Grants: "/-/background-worker/assign-metadata, /-/webhooks/assign-metadata", Ceiling: "long"},
}

func newAudiencesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "audiences",
		Short: "Список аудиторий и эндпоинтов, которые они открывают",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.validateOutput(); err != nil {
				return err
			}

			list := make([]audienceInfo, 0, len(audienceDescriptions))
			for _, aud := range apptoken.Audiences() {
				info := audienceDescriptions[aud]
				info.Audience = aud.String()
				list = append(list, info)
			}

			out := cmd.OutOrStdout()
			if opts.output == outputYAML {
				return writeYAML(out, list)
			}
			for _, info := range list {
				if _, err := fmt.Fprintf(out, "%-4s %-6s %s\n", info.Audience, info.Ceiling, info.Grants); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
