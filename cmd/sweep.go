package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/approvalflow/approval-gateway/internal/session"
	sessionpostgres "github.com/approvalflow/approval-gateway/internal/session/postgres"
	"github.com/approvalflow/approval-gateway/pkg/logger"
)

// sweepCmd deletes idle session rows once and exits, for operators who want
// to purge outside the server's own cron schedule.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete idle sessions once and exit",
	Run: func(cmd *cobra.Command, args []string) {
		runSweep()
	},
}

func runSweep() {
	cfg, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	gormDB, err := gorm.Open(gormpostgres.Open(cfg.Database.Source), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}

	box, err := session.NewBox(cfg.Security.SessionSecret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build session box: %v\n", err)
		os.Exit(1)
	}

	// No session manager runs in this process, so swept rows are deleted
	// directly instead of going through a forced logout.
	store := sessionpostgres.NewSessionStore(gormDB, box)
	sweeper := session.NewSweeper(store, session.Hooks{}, cfg.Session.SweepSchedule, cfg.Session.IdleCutoff, lg)
	sweeper.SweepOnce(context.Background())
}
