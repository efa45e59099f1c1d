package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/loreguard/internal/model"
	"github.com/ppiankov/loreguard/internal/pipeline"
	"github.com/ppiankov/loreguard/internal/storage"
)

var (
	jobsLimit int
	jobsJSON  bool
)

// jobsCmd represents the jobs command
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect archived analysis jobs",
	Long: `Inspect jobs saved to the archive. The archive is enabled by setting
storage.path in the config file or LOREGUARD_STORAGE_PATH.`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived jobs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		store, err := openArchive(cfg)
		if err != nil {
			return err
		}
		defer closeQuietly(store, "job archive")

		jobs, err := store.List(cmd.Context(), jobsLimit)
		if err != nil {
			return err
		}
		if jobsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(jobs)
		}
		if len(jobs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No archived jobs")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTORY\tTRACK\tSTATUS\tVERDICT\tSTARTED")
		for _, j := range jobs {
			verdict := "-"
			if j.ConsistencyLabel != nil {
				verdict = (&model.AnalysisResult{ConsistencyLabel: *j.ConsistencyLabel}).Verdict()
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				shortID(j.ID), j.StoryID, j.Track, j.Status, verdict, j.StartTime.Local().Format(time.DateTime))
		}
		return tw.Flush()
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one archived job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		store, err := openArchive(cfg)
		if err != nil {
			return err
		}
		defer closeQuietly(store, "job archive")

		report, err := store.Get(cmd.Context(), args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("job %s not found", args[0])
		}
		if err != nil {
			return err
		}

		if jobsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		return pipeline.NewRenderer(cfg.Output).RenderTerminal(cmd.OutOrStdout(), report, termWidth)
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)

	jobsCmd.PersistentFlags().BoolVar(&jobsJSON, "json", false, "print JSON")
	jobsShowCmd.Flags().IntVar(&termWidth, "width", 100, "terminal report width")
	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", 20, "maximum number of jobs (0 for all)")
}

// openArchive opens the configured job archive
func openArchive(cfg *model.Config) (*storage.SQLiteStore, error) {
	if cfg.Storage.Path == "" {
		return nil, errors.New("job archive is disabled; set storage.path or LOREGUARD_STORAGE_PATH")
	}
	return storage.Open(cfg.Storage.Path)
}
