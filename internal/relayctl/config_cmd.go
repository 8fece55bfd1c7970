package relayctl

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
	}

	setContextCmd := &cobra.Command{
		Use:   "set-context <name>",
		Short: "Create or update a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			server, _ := cmd.Flags().GetString("server")
			token, _ := cmd.Flags().GetString("token")
			makeCurrent, _ := cmd.Flags().GetBool("current")

			if server == "" {
				return fmt.Errorf("--server is required")
			}
			cfg, err := LoadConfig(c.cfgFile)
			if err != nil {
				return err
			}
			if token == "" {
				token = cfg.Contexts[name].Token
			}
			setContext(cfg, Context{Name: name, Server: server, Token: token}, makeCurrent)
			if err := SaveConfig(cfg, c.cfgFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Context %q updated.\n", name)
			return nil
		},
	}
	// Local flags shadow the persistent --server/--token overrides.
	setContextCmd.Flags().String("server", "", "API server URL")
	setContextCmd.Flags().String("token", "", "API token")
	setContextCmd.Flags().Bool("current", true, "Set as current context")

	useContextCmd := &cobra.Command{
		Use:   "use-context <name>",
		Short: "Switch the current context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(c.cfgFile)
			if err != nil {
				return err
			}
			if err := ensureContextExists(cfg, args[0]); err != nil {
				return err
			}
			cfg.CurrentContext = args[0]
			if err := SaveConfig(cfg, c.cfgFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Switched to context %q.\n", args[0])
			return nil
		},
	}

	currentContextCmd := &cobra.Command{
		Use:   "current-context",
		Short: "Print the current context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(c.cfgFile)
			if err != nil {
				return err
			}
			if cfg.CurrentContext == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No context configured.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.CurrentContext)
			return nil
		},
	}

	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "Show the configuration without tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(c.cfgFile)
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return printJSON(cmd.OutOrStdout(), cfg)
			}
			names := make([]string, 0, len(cfg.Contexts))
			for name := range cfg.Contexts {
				names = append(names, name)
			}
			sort.Strings(names)

			fmt.Fprintf(cmd.OutOrStdout(), "Config file: %s\n", c.cfgFile)
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "CURRENT\tNAME\tSERVER\tTOKEN")
			for _, name := range names {
				ctx := cfg.Contexts[name]
				current := ""
				if cfg.CurrentContext == name {
					current = "*"
				}
				token := "-"
				if ctx.Token != "" {
					token = "set"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", current, name, ctx.Server, token)
			}
			flushTable(tw)
			return nil
		},
	}

	cmd.AddCommand(setContextCmd, useContextCmd, currentContextCmd, viewCmd)
	return cmd
}
