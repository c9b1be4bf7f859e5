package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/knoldeck/internal/app"
	"github.com/conorfennell/knoldeck/internal/config"
	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/scheduler"
)

// session carries the application opened by the root command's pre-run.
type session struct {
	app *app.App
	out io.Writer
	now func() time.Time
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	s := &session{out: stdout, now: time.Now}

	root := &cobra.Command{
		Use:           "knoldeck",
		Short:         "Spaced-repetition study from markdown decks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path, cmd.Flags())
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			s.app = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if s.app == nil {
				return nil
			}
			return s.app.Close()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(newMigrateCmd(s))
	root.AddCommand(newSchemaVersionCmd(s))
	root.AddCommand(newCollectionCmd(s))
	root.AddCommand(newImportCmd(s))
	root.AddCommand(newNextCmd(s))
	root.AddCommand(newAnswerCmd(s))
	root.AddCommand(newResetCmd(s))
	root.AddCommand(newUndoCmd(s))
	root.AddCommand(newExportCmd(s))
	return root
}

func parseID(arg string) (domain.ID, error) {
	id, err := domain.ParseID(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", arg, err)
	}
	return id, nil
}

func parseQueues(names []string) ([]domain.Queue, error) {
	if names == nil {
		return nil, nil
	}
	queues := make([]domain.Queue, 0, len(names))
	for _, n := range names {
		q, err := domain.ParseQueue(strings.TrimSpace(n))
		if err != nil {
			return nil, err
		}
		queues = append(queues, q)
	}
	return queues, nil
}

func newMigrateCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := s.app.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "schema version %d\n", v)
			return nil
		},
	}
}

func newSchemaVersionCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "schema-version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := s.app.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(s.out, v)
			return nil
		},
	}
}

func newCollectionCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage collections",
	}

	var title, description string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title is required")
			}
			id, err := s.app.CreateCollection(cmd.Context(), title, description, s.now())
			if err != nil {
				return err
			}
			fmt.Fprintln(s.out, id)
			return nil
		},
	}
	create.Flags().StringVar(&title, "title", "", "Collection title")
	create.Flags().StringVar(&description, "description", "", "Collection description")

	list := &cobra.Command{
		Use:   "list",
		Short: "List collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries, err := s.app.ListCollections(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range summaries {
				fmt.Fprintf(s.out, "%s\t%s\t%d cards\n", c.ID, c.Header.Title, c.Cards)
			}
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <collection>",
		Short: "Delete a collection with its cards and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return s.app.DeleteCollection(cmd.Context(), id)
		},
	}

	cmd.AddCommand(create, list, del)
	return cmd
}

func newImportCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "import <collection> <dir-or-git-url>",
		Short: "Reconcile a collection with a markdown deck",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			report, err := s.app.Import(cmd.Context(), id, args[1], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "parsed %d, created %d, deleted %d, errors %d\n",
				report.Parsed, report.Created, report.Deleted, len(report.Errors))
			for _, e := range report.Errors {
				fmt.Fprintf(s.out, "- %s\n", e)
			}
			return nil
		},
	}
}

func newNextCmd(s *session) *cobra.Command {
	var queueNames []string
	cmd := &cobra.Command{
		Use:   "next <collection>",
		Short: "Show the card to study next",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("queue") {
				queueNames = nil
			}
			queues, err := parseQueues(queueNames)
			if err != nil {
				return err
			}
			study, ok, err := s.app.Next(cmd.Context(), id, queues)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(s.out, "nothing to study")
				return nil
			}
			fmt.Fprintf(s.out, "card %s [%s]\nQ: %s\nA: %s\n", study.Card.ID(), study.State.Queue, study.Data.Question, study.Data.Answer)
			if study.Data.Context != "" {
				fmt.Fprintf(s.out, "C: %s\n", study.Data.Context)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&queueNames, "queue", nil, "Restrict to queues (new,learning,learned,relearning)")
	return cmd
}

func newAnswerCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "answer <collection> <card> <again|hard|good|easy>",
		Short: "Record a review",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, err := parseID(args[0])
			if err != nil {
				return err
			}
			card, err := parseID(args[1])
			if err != nil {
				return err
			}
			rating, err := scheduler.ParseRating(args[2])
			if err != nil {
				return err
			}
			state, err := s.app.Answer(cmd.Context(), collection, card, rating, s.now())
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "card %s due %s [%s]\n", card, state.Due.Format(time.RFC3339), state.Queue)
			return nil
		},
	}
}

func newResetCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <collection> <card>",
		Short: "Forget a card's memory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, err := parseID(args[0])
			if err != nil {
				return err
			}
			card, err := parseID(args[1])
			if err != nil {
				return err
			}
			return s.app.Reset(cmd.Context(), collection, card, s.now())
		},
	}
}

func newUndoCmd(s *session) *cobra.Command {
	var cardArg string
	cmd := &cobra.Command{
		Use:   "undo <collection>",
		Short: "Undo the latest review in a collection, or of one card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, err := parseID(args[0])
			if err != nil {
				return err
			}
			var card domain.ID
			if cardArg != "" {
				if card, err = parseID(cardArg); err != nil {
					return err
				}
			}
			return s.app.Undo(cmd.Context(), collection, card)
		},
	}
	cmd.Flags().StringVar(&cardArg, "card", "", "Only undo this card's latest review")
	return cmd
}

func newExportCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "export <collection>",
		Short: "Write a collection as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return s.app.Export(cmd.Context(), id, s.out)
		},
	}
}
