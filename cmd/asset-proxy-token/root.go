package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bigkaa/goartstore/asset-proxy/internal/apptoken"
	"github.com/bigkaa/goartstore/asset-proxy/internal/config"
)

// Форматы вывода.
const (
	outputText = "text"
	outputYAML = "yaml"
)

// options — общие флаги всех команд.
type options struct {
	secret  string
	envFile string
	output  string
	getenv  func(string) string
}

// newRootCmd собирает дерево команд. getenv подменяется в тестах.
func newRootCmd(getenv func(string) string) *cobra.Command {
	opts := &options{getenv: getenv}

	root := &cobra.Command{
		Use:   "asset-proxy-token",
		Short: "Выпуск и проверка capability-токенов Asset Proxy",
		Long: `Выпуск и проверка capability-токенов Asset Proxy.

Ключ подписи берётся из --secret, иначе из AP_JWT_SECRET
(окружение или .env-файл, заданный --env-file).

Examples:
  asset-proxy-token issue --subject rabc... --audience ori --duration 10m
  asset-proxy-token issue --audience jld --duration 720h -o yaml
  asset-proxy-token inspect eyJhbGciOi...
  asset-proxy-token audiences`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.secret, "secret", "", "ключ подписи HS256 (по умолчанию AP_JWT_SECRET)")
	flags.StringVar(&opts.envFile, "env-file", "", ".env-файл с AP_JWT_SECRET")
	flags.StringVarP(&opts.output, "output", "o", outputText, "формат вывода: text или yaml")

	root.AddCommand(newIssueCmd(opts))
	root.AddCommand(newInspectCmd(opts))
	root.AddCommand(newAudiencesCmd(opts))
	return root
}

// codec создаёт Codec с ключом из флага или окружения.
// Случайный ключ здесь бесполезен: токен не примет ни один сервер.
func (o *options) codec() (*apptoken.Codec, error) {
	secret := o.secret
	if secret == "" && o.envFile != "" {
		if err := config.LoadDotEnv(o.envFile); err != nil {
			return nil, fmt.Errorf("чтение %s: %w", o.envFile, err)
		}
	}
	if secret == "" {
		secret = o.getenv(config.EnvPrefix + "JWT_SECRET")
	}
	if secret == "" {
		return nil, errors.New("не задан ключ подписи: --secret или AP_JWT_SECRET")
	}
	return apptoken.NewCodec(secret)
}

// validateOutput проверяет флаг -o.
func (o *options) validateOutput() error {
	if o.output != outputText && o.output != outputYAML {
		return fmt.Errorf("неизвестный формат вывода %q (допустимые: text, yaml)", o.output)
	}
	return nil
}

// writeYAML выводит v в YAML.
func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
