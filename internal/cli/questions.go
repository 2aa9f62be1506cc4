package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/config"
)

// NewQuestionsCmd manages the question bank from the command line.
func NewQuestionsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Manage the question bank",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Append questions from a YAML file to the bank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			if err := runMigrations(cmd.Context(), cfg, log); err != nil {
				return err
			}
			questions, err := config.LoadQuestions(args[0])
			if err != nil {
				return err
			}
			b, err := openBackends(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()

			n, err := app.NewQuestionService(b.questions, log).Import(cmd.Context(), questions)
			if err != nil {
				return err
			}
			log.Info("questions imported", "file", args[0], "count", n)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the question bank",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			b, err := openBackends(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()

			service := app.NewQuestionService(b.questions, log)
			if err := seedQuestions(cmd.Context(), cfg, service, log); err != nil {
				return err
			}
			questions, err := service.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LEVEL\tORDER\tID\tTEXT")
			for _, q := range questions {
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", q.Level, q.Order, q.ID, q.Text)
			}
			return tw.Flush()
		},
	})
	return cmd
}
