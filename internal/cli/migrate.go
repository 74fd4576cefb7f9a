package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/archon-research/fraud-scoring/db"
	"github.com/archon-research/fraud-scoring/db/migrator"
)

func newMigrateCmd(opts *options) *cobra.Command {
	var status, dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long: `Apply the embedded schema migrations in lexical order.

Applied files are checksum-verified; an edited migration aborts the run.
Concurrent invocations wait for each other.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if status && dryRun {
				return fmt.Errorf("--status and --dry-run are mutually exclusive")
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			m := migrator.New(pool, db.Migrations, db.MigrationsDir, opts.logger)
			out := cmd.OutOrStdout()
			switch {
			case status:
				st, err := m.Status(ctx)
				if err != nil {
					return err
				}
				renderMigrationStatus(out, st)
				return nil
			case dryRun:
				pending, err := m.Pending(ctx)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Fprintln(out, "Schema is up to date")
				}
				for _, mig := range pending {
					fmt.Fprintf(out, "would apply %s\n", mig.Name)
				}
				return nil
			}

			n, err := m.Up(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Applied %d migration(s)\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "Show applied and pending migrations instead of applying")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List the migrations that would be applied")
	return cmd
}

func renderMigrationStatus(w io.Writer, status []migrator.Status) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Migration", "Checksum", "Applied At"})
	for _, st := range status {
		applied := "pending"
		if st.Applied() {
			applied = st.AppliedAt.UTC().Format(time.RFC3339)
		}
		table.Append([]string{st.Name, st.Checksum[:min(12, len(st.Checksum))], applied})
	}
	table.Render()
}
