package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cuemby/charmed-norris/pkg/client"
	"github.com/cuemby/charmed-norris/pkg/plan"
	"github.com/cuemby/charmed-norris/pkg/types"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show unit status, supervised services and ingress data",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		agentAddr, _ := cmd.Flags().GetString("agent")
		if agentAddr != "" {
			state, err := client.NewClient(agentAddr).Status(context.Background())
			if err != nil {
				return err
			}
			fmt.Print(keyValues("", unitPairs(state)...))
			return nil
		}

		op, err := newOperator(settings, nil)
		if err != nil {
			return err
		}
		defer op.Close()

		state, err := op.charm.Status()
		if err != nil {
			return err
		}

		reachable := op.sup.CanConnect()
		pairs := append(unitPairs(state), kv("supervisor", reachableText(reachable, settings.Backend)))
		fmt.Print(keyValues("", pairs...))

		if reachable {
			services, err := op.sup.Services()
			if err != nil {
				fmt.Println(warnMsg("cannot list services: %v", err))
			} else if len(services) > 0 {
				fmt.Println(renderTable([]string{"SERVICE", "STARTUP", "CURRENT", "SINCE"}, serviceRows(services)))
			}
		}

		data, err := op.requirer.Published()
		if err == nil && len(data) > 0 {
			fmt.Println()
			fmt.Println(infoMsg("ingress"))
			keys := make([]string, 0, len(data))
			for k := range data {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			pairs := make([]pair, 0, len(keys))
			for _, k := range keys {
				pairs = append(pairs, kv(k, data[k]))
			}
			fmt.Print(keyValues("  ", pairs...))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("agent", "", "Address of a running agent to query")
}

// unitPairs summarizes a unit state
func unitPairs(state *types.UnitState) []pair {
	updated := "never"
	if !state.Status.UpdatedAt.IsZero() {
		updated = state.Status.UpdatedAt.Format(time.RFC3339)
	}
	category := "-"
	if state.LastApplied != nil {
		if svc, ok := state.LastApplied.Services[plan.ServiceName]; ok {
			category = strconv.Quote(svc.Environment[plan.CategoryEnv])
		}
	}
	lastEvent := state.LastEvent
	if lastEvent == "" {
		lastEvent = "-"
	}

	return []pair{
		kv("unit", settings.UnitName),
		kv("status", statusText(state.Status)),
		kv("updated", muted(updated)),
		kv("last event", lastEvent),
		kv("category", category),
		kv("restarts", strconv.Itoa(state.Restarts)),
	}
}

func reachableText(ok bool, backend string) string {
	if ok {
		return successStyle.Render("reachable") + " " + muted("("+backend+")")
	}
	return errorStyle.Render("unreachable") + " " + muted("("+backend+")")
}

func serviceRows(services []types.ServiceInfo) [][]string {
	rows := make([][]string, 0, len(services))
	for _, svc := range services {
		since := "-"
		if !svc.CurrentSince.IsZero() {
			since = svc.CurrentSince.Format(time.RFC3339)
		}
		rows = append(rows, []string{svc.Name, string(svc.Startup), string(svc.Current), since})
	}
	return rows
}
