package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DoyleJ11/olympics-backend/internal/config"
	"github.com/DoyleJ11/olympics-backend/internal/logging"
	"github.com/DoyleJ11/olympics-backend/internal/rooms"
	"github.com/DoyleJ11/olympics-backend/internal/store"
	"github.com/DoyleJ11/olympics-backend/internal/store/postgres"
)

type options struct {
	roomID    string
	resetOnly bool
	dsn       string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newCmd(&options{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		os.Exit(1)
	}
}

func newCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Reset or replace the challenge list of a room.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.roomID == "" {
				return fmt.Errorf("--room is required")
			}
			if opts.dsn == "" {
				// the seeder only needs the database, so server-only settings may be missing
				cfg, err := config.Load()
				opts.dsn = cfg.DatabaseURL
				if opts.dsn == "" && err != nil {
					return err
				}
			}
			if opts.dsn == "" {
				return fmt.Errorf("no database: set DATABASE_URL or --dsn")
			}

			log, err := logging.New("info", true)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			pg, err := postgres.Open(cmd.Context(), opts.dsn, log)
			if err != nil {
				return err
			}
			defer pg.Close()

			return seed(cmd.Context(), pg, opts, log)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&opts.roomID, "room", "", "room id to seed")
	fs.BoolVar(&opts.resetOnly, "reset-only", false, "only mark existing challenges pending, keep the list")
	fs.StringVar(&opts.dsn, "dsn", "", "postgres connection string (default: DATABASE_URL)")

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return cmd
}

func seed(ctx context.Context, st store.Store, opts *options, log *zap.Logger) error {
	if _, err := st.GetRoom(ctx, opts.roomID); err != nil {
		return err
	}
	if opts.resetOnly {
		if err := st.ResetChallenges(ctx, opts.roomID); err != nil {
			return err
		}
		log.Info("challenges reset", zap.String("room_id", opts.roomID))
		return nil
	}

	list := rooms.CatalogFor(opts.roomID)
	if err := st.ReplaceChallenges(ctx, opts.roomID, list); err != nil {
		return err
	}
	log.Info("challenges seeded", zap.String("room_id", opts.roomID), zap.Int("count", len(list)))
	return nil
}
