package main

import (
	"context"
	"fmt"

	"github.com/cuemby/charmed-norris/pkg/client"
	"github.com/cuemby/charmed-norris/pkg/events"
	"github.com/spf13/cobra"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch EVENT",
	Short: "Dispatch one lifecycle event",
	Long: `Dispatch runs the handler bound to EVENT against the unit's state.

Known events:
  norris-pebble-ready        workload supervisor became reachable
  config-changed             charm config values changed
  ingress-relation-joined    ingress provider joined
  ingress-relation-changed   ingress provider changed its data

Unknown events are accepted and ignored. An event whose workload is not
reachable yet is reported as deferred and exits successfully.

With --agent the event is sent to a running agent, which holds the state.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := events.ParseKind(args[0])
		agentAddr, _ := cmd.Flags().GetString("agent")
		if agentAddr != "" {
			return dispatchRemote(agentAddr, kind)
		}

		op, err := newOperator(settings, nil)
		if err != nil {
			return err
		}
		defer op.Close()

		outcome, err := op.dispatcher.Dispatch(context.Background(), events.NewEvent(kind, map[string]string{
			"unit": settings.UnitName,
		}))
		if err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
		printResult(kind, outcome.Result(), outcome.Err)

		state, err := op.charm.Status()
		if err != nil {
			return err
		}
		fmt.Print(keyValues("  ", kv("status", statusText(state.Status))))
		return nil
	},
}

func init() {
	dispatchCmd.Flags().String("agent", "", "Address of a running agent to dispatch through")
}

func dispatchRemote(addr string, kind events.EventKind) error {
	ctx := context.Background()
	c := client.NewClient(addr)

	result, err := c.Dispatch(ctx, string(kind))
	if err != nil {
		return err
	}
	if result.Result == events.ResultError {
		return fmt.Errorf("%s: %s", kind, result.Error)
	}
	var cause error
	if result.Error != "" {
		cause = fmt.Errorf("%s", result.Error)
	}
	printResult(kind, result.Result, cause)

	state, err := c.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Print(keyValues("  ", kv("status", statusText(state.Status))))
	return nil
}

func printResult(kind events.EventKind, result string, cause error) {
	switch result {
	case events.ResultIgnored:
		fmt.Println(infoMsg("%s ignored", kind))
	case events.ResultDeferred:
		fmt.Println(warnMsg("%s deferred: %v", kind, cause))
	default:
		fmt.Println(successMsg("%s handled", kind))
	}
}
