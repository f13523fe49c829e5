package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/inbox-sync/internal/app"
	"github.com/nhle/inbox-sync/internal/model"
	appsync "github.com/nhle/inbox-sync/internal/sync"
	"github.com/nhle/inbox-sync/internal/theme"
)

// runUI starts the terminal UI on the configured backend.
func runUI(_ *cobra.Command, opts *RootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger, closeLog, err := openLogger(filepath.Join(model.ConfigDir(), "inboxsync.log"), opts.Verbose)
	if err != nil {
		return err
	}
	defer closeLog()

	theme.Apply(cfg.Display.Theme)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.Close(); err != nil {
			logger.Warn("closing backend failed", "error", err)
		}
	}()

	feed := app.NewChangeFeed()
	storeOpts := []appsync.Option{
		appsync.WithLogger(logger),
		appsync.WithOnChange(feed.Notify),
	}
	notes := appsync.NewNotificationStore(be.notifications, storeOpts...)
	defer notes.Close()
	convs := appsync.NewConversationStore(be.conversations, be.users, notes, storeOpts...)
	defer convs.Close()

	logger.Info("starting ui", "backend", cfg.Backend.Kind, "user", cfg.UserID)

	p := tea.NewProgram(app.New(ctx, app.Deps{
		Notifications: notes,
		Conversations: convs,
		Users:         be.users,
		Directory:     be.directory(),
		Changes:       feed,
		UserID:        cfg.UserID,
		Backend:       cfg.Backend.Kind,
		Logger:        logger,
	}),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running ui: %w", err)
	}
	return nil
}
