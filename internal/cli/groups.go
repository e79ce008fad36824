package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bindery/internal/store"
)

// GroupsOptions holds flags for the groups command.
type GroupsOptions struct {
	*RootOptions
	Database string
	Conn     string // optional - only this connection
	Prefix   string // optional - only groups starting with this
}

// GroupSummary lists the connections subscribed to one group.
type GroupSummary struct {
	Group       string   `json:"group"`
	Connections []string `json:"connections"`
}

// GroupsResult holds the complete groups output.
type GroupsResult struct {
	Groups []GroupSummary `json:"groups"`
	Stats  GroupsStats    `json:"stats"`
}

// GroupsStats holds summary statistics for the listing.
type GroupsStats struct {
	Groups        int `json:"groups"`
	Connections   int `json:"connections"`
	Subscriptions int `json:"subscriptions"`
}

// NewGroupsCommand creates the groups command.
func NewGroupsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GroupsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List persisted group subscriptions",
		Long: `List the group memberships recorded by a server.

The server records every join and leave in its database so operators can
inspect which connections will receive which notifications. Memberships
are cleared when the server starts.

Group names follow <resource>-<action>[-<id>][-<user>].

Examples:
  bindery groups --db ./bindery.db
  bindery groups --db ./bindery.db --conn 0192f7c4-...
  bindery groups --db ./bindery.db --prefix todo-update --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGroups(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Conn, "conn", "", "only show this connection")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "only show groups with this prefix")

	return cmd
}

func runGroups(opts *GroupsOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var subs []store.Subscription
	if opts.Conn != "" {
		subs, err = st.Subscriptions(ctx, opts.Conn)
	} else {
		subs, err = st.AllSubscriptions(ctx)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read subscriptions", err)
	}

	result := summarizeGroups(subs, opts.Prefix)

	if opts.Format == "json" {
		return outputGroupsJSON(cmd, result)
	}
	return outputGroupsText(cmd, result)
}

// summarizeGroups folds subscriptions into per-group connection lists,
// keeping the order groups first appear in.
func summarizeGroups(subs []store.Subscription, prefix string) GroupsResult {
	result := GroupsResult{Groups: []GroupSummary{}}
	index := map[string]int{}
	conns := map[string]bool{}

	for _, sub := range subs {
		if prefix != "" && !strings.HasPrefix(sub.Group, prefix) {
			continue
		}
		i, ok := index[sub.Group]
		if !ok {
			i = len(result.Groups)
			index[sub.Group] = i
			result.Groups = append(result.Groups, GroupSummary{Group: sub.Group})
		}
		result.Groups[i].Connections = append(result.Groups[i].Connections, sub.ConnID)
		conns[sub.ConnID] = true
		result.Stats.Subscriptions++
	}

	result.Stats.Groups = len(result.Groups)
	result.Stats.Connections = len(conns)
	return result
}

// outputGroupsJSON outputs the groups result as JSON.
func outputGroupsJSON(cmd *cobra.Command, result GroupsResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputGroupsText outputs the groups result as text.
func outputGroupsText(cmd *cobra.Command, result GroupsResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "=== Groups ===")
	if len(result.Groups) == 0 {
		fmt.Fprintln(w, "  (no subscriptions)")
	} else {
		for _, g := range result.Groups {
			fmt.Fprintf(w, "  %s\n", g.Group)
			for _, c := range g.Connections {
				fmt.Fprintf(w, "    %s\n", truncateID(c))
			}
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Groups:        %d\n", result.Stats.Groups)
	fmt.Fprintf(w, "  Connections:   %d\n", result.Stats.Connections)
	fmt.Fprintf(w, "  Subscriptions: %d\n", result.Stats.Subscriptions)

	return nil
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
