// Package relayctl implements the relayctl command line client.
package relayctl

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/ol-advisor-relay/internal/logutil"
)

// cli holds the persistent flag values of one command tree.
type cli struct {
	cfgFile       string
	contextName   string
	overrideURL   string
	overrideToken string
	outputFormat  string
	logLevel      string

	config *Config
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the relayctl command tree.
func NewRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "relayctl",
		Short: "Watch advisor relay feeds and stream advice",
		Long: `relayctl talks to an advisor relay server. Most commands require a
configured context (see 'relayctl config set-context').`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch strings.ToLower(c.outputFormat) {
			case "table", "json", "":
			default:
				return fmt.Errorf("unsupported output format %q", c.outputFormat)
			}
			logutil.SetLevel(c.logLevel)
			// Config commands load/save the file manually.
			if strings.HasPrefix(cmd.CommandPath(), "relayctl config") {
				return nil
			}
			if c.config == nil {
				cfg, err := LoadConfig(c.cfgFile)
				if err != nil {
					return err
				}
				c.config = cfg
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", defaultConfigPath(), "Path to the relayctl config file")
	flags.StringVar(&c.contextName, "context", "", "Context name to use (overrides current)")
	flags.StringVar(&c.overrideURL, "server", "", "Override API server URL")
	flags.StringVar(&c.overrideToken, "token", "", "Override API token")
	flags.StringVarP(&c.outputFormat, "output", "o", "table", "Output format: table|json")
	flags.StringVar(&c.logLevel, "log-level", "warn", "Log level for diagnostics on stderr: debug|info|warn|error")

	root.AddCommand(c.configCmd())
	root.AddCommand(c.watchCmd())
	root.AddCommand(c.adviseCmd())
	return root
}

func (c *cli) jsonOutput() bool {
	return strings.ToLower(c.outputFormat) == "json"
}

// resolvedContext merges config state with flag overrides. A --server flag
// alone is enough to run without a config file.
func (c *cli) resolvedContext() (*Context, error) {
	if c.config == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	name := c.contextName
	if name == "" {
		name = c.config.CurrentContext
	}
	ctx, ok := c.config.Contexts[name]
	if !ok && c.overrideURL == "" {
		return nil, fmt.Errorf("context %q not found; use 'relayctl config set-context'", name)
	}
	if c.overrideURL != "" {
		ctx.Server = c.overrideURL
	}
	if c.overrideToken != "" {
		ctx.Token = c.overrideToken
	}
	if ctx.Server == "" {
		return nil, fmt.Errorf("context %q is missing a server URL", name)
	}
	return &ctx, nil
}

func (c *cli) client() (*Client, *Context, error) {
	ctx, err := c.resolvedContext()
	if err != nil {
		return nil, nil, err
	}
	return &Client{
		BaseURL: ctx.Server,
		Token:   ctx.Token,
		Timeout: 15 * time.Second,
	}, ctx, nil
}
