package commands

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opencode-ai/wagate/internal/registry"
	"github.com/opencode-ai/wagate/internal/storage"
	"github.com/opencode-ai/wagate/internal/whatsapp"
	"github.com/opencode-ai/wagate/pkg/types"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"ls"},
	Short:   "List persisted sessions",
	Long: `List the sessions stored in the registry.

Subcommands:
  remove   Remove a session and its stored credentials`,
	RunE: runSessionsList,
}

var sessionsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a session from the registry",
	Long: `Remove a session descriptor and its stored credentials.

Use this while the gateway is stopped; a running gateway removes sessions
through DELETE /sessions/{id} instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsRemove,
}

func init() {
	sessionsCmd.AddCommand(sessionsRemoveCmd)
}

func openRegistry(cmd *cobra.Command) (registry.Store, *types.Config, error) {
	cfg, paths, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	initLogging(cmd, cfg, paths, false)

	store, err := registry.Open(cmd.Context(), cfg.Registry.Backend, cfg.Registry.Path)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, cfg, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	descriptors, err := store.Load(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(descriptors) == 0 {
		fmt.Fprintf(out, "No sessions in %s\n", cfg.Registry.Path)
		return nil
	}

	stored, err := storage.New(cfg.Credentials.Path).List(cmd.Context(), whatsapp.CredentialRoot())
	if err != nil {
		return err
	}
	paired := make(map[string]bool, len(stored))
	for _, id := range stored {
		paired[id] = true
	}
	printSessions(out, descriptors, paired)

	var orphans []string
	for _, id := range stored {
		if !slices.ContainsFunc(descriptors, func(d types.SessionDescriptor) bool { return d.ID == id }) {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) > 0 {
		fmt.Fprintf(out, "\n%s credentials without a session: %s\n",
			color.YellowString("!"), strings.Join(orphans, ", "))
	}
	return nil
}

func printSessions(out io.Writer, descriptors []types.SessionDescriptor, paired map[string]bool) {
	yes := color.New(color.FgGreen).SprintFunc()
	no := color.New(color.FgYellow).SprintFunc()
	header := color.New(color.Bold).SprintFunc()
	flag := func(v bool) string {
		if v {
			return yes("yes")
		}
		return no("no")
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", header("ID"), header("READY"), header("PAIRED"), header("DESCRIPTION"))
	for _, d := range descriptors {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, flag(d.Ready), flag(paired[d.ID]), d.Description)
	}
	tw.Flush()
}

func runSessionsRemove(cmd *cobra.Command, args []string) error {
	id := args[0]
	store, cfg, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()

	descriptors, err := store.Load(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, d := range descriptors {
		if d.ID == id {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", registry.ErrNotFound, id)
	}

	if err := store.Remove(ctx, id); err != nil {
		return err
	}

	creds := storage.New(cfg.Credentials.Path)
	if err := creds.Delete(ctx, whatsapp.CredentialPath(id)); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: credentials not removed: %v\n", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Removed session %s\n", color.GreenString("✓"), id)
	return nil
}
