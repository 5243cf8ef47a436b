package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jmehdipour/wx-ci/internal/config"
	"github.com/jmehdipour/wx-ci/internal/db"
	"github.com/jmehdipour/wx-ci/internal/model"
	"github.com/jmehdipour/wx-ci/internal/repository"
	"github.com/spf13/cobra"
)

var historyFlags struct {
	limit  int
	offset int
	typ    string
	asJSON bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent upload and preview runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := repository.ListFilter{Limit: historyFlags.limit, Offset: historyFlags.offset}
		if historyFlags.typ != "" {
			t, ok := model.ParseRunType(historyFlags.typ)
			if !ok {
				return fmt.Errorf("invalid --type %q (upload|preview)", historyFlags.typ)
			}
			f.Type = t
		}

		cfg, err := config.Load(cfgPath, "", "")
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.History.Driver == "" {
			return fmt.Errorf("history.driver is not configured")
		}
		f.AppID = cfg.AppID

		dbx, err := db.Open(cfg.HistoryOpts())
		if err != nil {
			return fmt.Errorf("%s connect: %w", cfg.History.Driver, err)
		}
		defer dbx.Close()

		rows, err := repository.NewRunsRepository(dbx).List(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}

		if historyFlags.asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ACTION ID\tTYPE\tVERSION\tENV\tMODE\tUSER\tBRANCH\tSTATE\tSTARTED")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.ActionID, r.Type, r.Version, r.Env, r.Mode, r.User, r.Branch, r.State,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 20, "max rows (1..1000)")
	historyCmd.Flags().IntVar(&historyFlags.offset, "offset", 0, "rows to skip")
	historyCmd.Flags().StringVar(&historyFlags.typ, "type", "", "upload | preview")
	historyCmd.Flags().BoolVar(&historyFlags.asJSON, "json", false, "print JSON instead of a table")
}
