package relayctl

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/oremus-labs/ol-advisor-relay/internal/prompt"
	"github.com/oremus-labs/ol-advisor-relay/internal/sse"
)

type adviseFlags struct {
	scope       string
	warehouse   string
	floor       string
	zone        string
	rowsFile    string
	echoPrompt  bool
	model       string
	temperature float64
}

func (c *cli) adviseCmd() *cobra.Command {
	var af adviseFlags
	cmd := &cobra.Command{
		Use:   "advise",
		Short: "Stream inventory advice for a warehouse scope",
		Example: `  relayctl advise --scope floor --warehouse North --floor F1
  relayctl advise --scope zone --floor F1 --zone Z2 --rows rows.json --echo-prompt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := c.client()
			if err != nil {
				return err
			}
			payload := map[string]interface{}{
				"scope": prompt.Scope{
					Kind:          prompt.ScopeKind(af.scope),
					WarehouseName: af.warehouse,
					FloorName:     af.floor,
					ZoneName:      af.zone,
				},
				"echoPrompt": af.echoPrompt,
			}
			if af.rowsFile != "" {
				rows, err := readRows(af.rowsFile, cmd.InOrStdin())
				if err != nil {
					return err
				}
				payload["rows"] = rows
			}
			if af.model != "" {
				payload["model"] = af.model
			}
			if cmd.Flags().Changed("temperature") {
				payload["temperature"] = af.temperature
			}

			body, err := client.OpenStream(cmd.Context(), "/advisor/stream", payload)
			if err != nil {
				return err
			}
			defer body.Close()
			return c.printAdvice(cmd.OutOrStdout(), cmd.ErrOrStderr(), body)
		},
	}
	cmd.Flags().StringVar(&af.scope, "scope", string(prompt.ScopeWarehouse), "Scope kind: warehouse|floor|zone")
	cmd.Flags().StringVar(&af.warehouse, "warehouse", "", "Warehouse name")
	cmd.Flags().StringVar(&af.floor, "floor", "", "Floor name")
	cmd.Flags().StringVar(&af.zone, "zone", "", "Zone name")
	cmd.Flags().StringVar(&af.rowsFile, "rows", "", "JSON file with prompt rows ('-' reads stdin); default aggregates server inventory")
	cmd.Flags().BoolVar(&af.echoPrompt, "echo-prompt", false, "Ask the server to echo the generated prompt")
	cmd.Flags().StringVar(&af.model, "model", "", "Override the upstream model")
	cmd.Flags().Float64Var(&af.temperature, "temperature", 0, "Override the sampling temperature")
	return cmd
}

func readRows(path string, stdin io.Reader) ([]prompt.Row, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	var rows []prompt.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse rows %s: %w", path, err)
	}
	if rows == nil {
		rows = []prompt.Row{}
	}
	return rows, nil
}

// printAdvice renders a relay stream. Deltas go to out as they arrive; the
// echoed prompt goes to errOut in table mode.
func (c *cli) printAdvice(out, errOut io.Writer, body io.Reader) error {
	scanner := sse.NewScanner(body)
	for scanner.Next() {
		msg := scanner.Message()
		if c.jsonOutput() && msg.Event != "" {
			_ = printJSONLine(out, map[string]interface{}{"event": msg.Event, "data": json.RawMessage(msg.Data)})
		}
		switch msg.Event {
		case feed.EventPrompt:
			var p struct {
				Prompt string `json:"prompt"`
			}
			if err := msg.Decode(&p); err == nil && !c.jsonOutput() {
				fmt.Fprintf(errOut, "--- prompt ---\n%s\n--- end prompt ---\n", p.Prompt)
			}
		case feed.EventDelta:
			var d struct {
				Text string `json:"text"`
			}
			if err := msg.Decode(&d); err == nil && !c.jsonOutput() {
				fmt.Fprint(out, d.Text)
			}
		case feed.EventDone:
			if !c.jsonOutput() {
				fmt.Fprintln(out)
			}
			return nil
		case feed.EventServerError:
			var e struct {
				Message string `json:"message"`
			}
			_ = msg.Decode(&e)
			if e.Message == "" {
				e.Message = "unknown error"
			}
			return fmt.Errorf("advisor: %s", e.Message)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("advisor stream: %w", err)
	}
	return errors.New("advisor stream ended without a terminal event")
}
