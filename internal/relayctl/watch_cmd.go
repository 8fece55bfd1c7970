package relayctl

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/oremus-labs/ol-advisor-relay/internal/logutil"
	"github.com/oremus-labs/ol-advisor-relay/internal/subscriber"
)

type watchFlags struct {
	pathLimit   int
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

func (c *cli) watchCmd() *cobra.Command {
	var wf watchFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a live feed, reconnecting with backoff",
	}
	cmd.PersistentFlags().IntVar(&wf.maxAttempts, "max-attempts", subscriber.DefaultMaxAttempts, "Reconnect attempts before giving up")
	cmd.PersistentFlags().DurationVar(&wf.baseDelay, "retry-base", subscriber.DefaultBaseDelay, "First reconnect delay")
	cmd.PersistentFlags().DurationVar(&wf.maxDelay, "retry-max", subscriber.DefaultMaxDelay, "Reconnect delay cap")

	locationCmd := &cobra.Command{
		Use:   "location <jobId>",
		Short: "Follow a job's location until it completes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.subscriberOptions(wf)
			if err != nil {
				return err
			}
			sub, locations := subscriber.NewLocationSubscriber(opts, wf.pathLimit)
			printer := &locationPrinter{out: cmd.OutOrStdout(), json: c.jsonOutput(), feed: locations}
			locations.OnUpdate = printer.update
			return runSubscription(cmd.Context(), sub, args[0])
		},
	}
	locationCmd.Flags().IntVar(&wf.pathLimit, "path-limit", 0, "Samples retained in the local path (default 2000)")

	notificationsCmd := &cobra.Command{
		Use:   "notifications <recipient>",
		Short: "Follow new notifications for a recipient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.subscriberOptions(wf)
			if err != nil {
				return err
			}
			sub, notes := subscriber.NewNotificationSubscriber(opts)
			out, asJSON := cmd.OutOrStdout(), c.jsonOutput()
			notes.OnNotification = func(n feed.Notification) {
				printNotification(out, asJSON, n)
			}
			return runSubscription(cmd.Context(), sub, args[0])
		},
	}

	cmd.AddCommand(locationCmd, notificationsCmd)
	return cmd
}

func (c *cli) subscriberOptions(wf watchFlags) (subscriber.Options, error) {
	ctx, err := c.resolvedContext()
	if err != nil {
		return subscriber.Options{}, err
	}
	return subscriber.Options{
		BaseURL:     ctx.Server,
		Token:       ctx.Token,
		MaxAttempts: wf.maxAttempts,
		BaseDelay:   wf.baseDelay,
		MaxDelay:    wf.maxDelay,
		OnReconnect: func(n int, delay time.Duration) {
			logutil.Debug("watch_reconnect", map[string]interface{}{"attempt": n, "delay": delay.String()})
		},
	}, nil
}

// runSubscription follows key until the feed closes, the subscriber gives up
// or the process is interrupted.
func runSubscription(parent context.Context, sub *subscriber.Subscriber, key string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub.SetKey(key)
	defer sub.Close()
	if err := sub.Wait(ctx); err != nil {
		return nil
	}
	state := sub.State()
	if state.Status == subscriber.StatusFailed {
		return fmt.Errorf("subscription to %s failed after %d reconnect attempts", key, state.ReconnectAttempt)
	}
	return nil
}

type locationPrinter struct {
	out  io.Writer
	json bool
	feed *subscriber.LocationFeed

	last      string
	completed bool
}

// update runs on the subscriber goroutine only.
func (p *locationPrinter) update() {
	if cur := p.feed.Current(); cur != nil && cur.Timestamp != p.last {
		p.last = cur.Timestamp
		if p.json {
			_ = printJSONLine(p.out, map[string]interface{}{"event": feed.EventLocation, "data": cur})
		} else {
			fmt.Fprintf(p.out, "%-30s %11.6f %11.6f  accuracy=%v\n", cur.Timestamp, cur.Lat, cur.Lng, optionalFloat(cur.Accuracy))
		}
	}
	if done := p.feed.Completion(); done != nil && !p.completed {
		p.completed = true
		if p.json {
			_ = printJSONLine(p.out, map[string]interface{}{"event": feed.EventCompleted, "data": done})
		} else {
			fmt.Fprintf(p.out, "Job completed: %s (%d samples)\n", done.Status, len(p.feed.Samples()))
		}
	}
}

func printNotification(out io.Writer, asJSON bool, n feed.Notification) {
	if asJSON {
		_ = printJSONLine(out, map[string]interface{}{"event": feed.EventNotification, "data": n})
		return
	}
	kind := n.Kind
	if kind == "" {
		kind = "-"
	}
	fmt.Fprintf(out, "%-30s %-12s %s", n.CreatedAt, kind, n.Title)
	if n.Body != "" {
		fmt.Fprintf(out, ": %s", n.Body)
	}
	fmt.Fprintln(out)
}
