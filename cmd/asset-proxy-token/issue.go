package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/asset-proxy/internal/apptoken"
)

// issued — результат команды issue для YAML.
type issued struct {
	Token     string `yaml:"token"`
	Subject   string `yaml:"subject"`
	Audience  string `yaml:"audience"`
	Duration  string `yaml:"duration"`
	ExpiresAt string `yaml:"expires_at"`
}

func newIssueCmd(opts *options) *cobra.Command {
	var (
		subject  string
		audience string
		duration time.Duration
		claims   []string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Выпустить токен",
		Long: `Выпустить capability-токен на subject с аудиторией audience.

Для эндпоинтов коллекций (манифест, назначение метаданных) subject пустой.
Дополнительные claims не переопределяют sub, aud, iat, exp.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.validateOutput(); err != nil {
				return err
			}
			aud, err := apptoken.ParseAudience(audience)
			if err != nil {
				return err
			}
			extra, err := parseClaims(claims)
			if err != nil {
				return err
			}
			codec, err := opts.codec()
			if err != nil {
				return err
			}

			token, err := codec.Issue(subject, aud, duration, extra)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.output == outputYAML {
				return writeYAML(out, issued{
					Token:     token,
					Subject:   subject,
					Audience:  aud.String(),
					Duration:  duration.String(),
					ExpiresAt: time.Now().UTC().Add(duration).Format(time.RFC3339),
				})
			}
			_, err = fmt.Fprintln(out, token)
			return err
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "", "идентификатор ресурса (пусто — коллекция)")
	cmd.Flags().StringVarP(&audience, "audience", "a", "", "аудитория: pre, rnd, ori, jld, uid, zzz")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 15*time.Minute, "срок действия")
	cmd.Flags().StringArrayVar(&claims, "claim", nil, "дополнительный claim key=value (можно повторять)")
	_ = cmd.MarkFlagRequired("audience")
	return cmd
}

// parseClaims разбирает пары key=value.
func parseClaims(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	claims := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("некорректный claim %q: ожидается key=value", pair)
		}
		claims[key] = value
	}
	return claims, nil
}
