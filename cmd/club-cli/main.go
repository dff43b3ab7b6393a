package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/app"
	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/service"
	"github.com/noah-isme/vzs-club-api/pkg/config"
	"github.com/noah-isme/vzs-club-api/pkg/database"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
	"github.com/noah-isme/vzs-club-api/pkg/logger"
)

const usage = `usage: club-cli <command> [flags]

commands:
  migrate                     apply pending schema migrations
  createsuperuser [-sex M|F]  create a superuser account
  fetch_fio [-days N]         reconcile bank movements
  check_unclosed_events       remind about unclosed one-time events
  check_unclosed_trainings    remind about unclosed trainings
  send_feature_expiry_mail    notify about expiring features
  garbage_collect_tokens      delete expired tokens
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger, command string, args []string) error {
	switch command {
	case "migrate":
		return migrate(cfg, logr)
	case "createsuperuser":
		return createSuperuser(ctx, cfg, logr, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	}
	return runJob(ctx, cfg, logr, command, args)
}

func migrate(cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	version, err := database.Migrate(db)
	if err != nil {
		return err
	}
	logr.Info("schema migrated", zap.Uint("version", version))
	return nil
}

func createSuperuser(ctx context.Context, cfg *config.Config, logr *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("createsuperuser", flag.ContinueOnError)
	email := fs.String("email", "", "login email")
	password := fs.String("password", os.Getenv("SUPERUSER_PASSWORD"), "password, defaults to $SUPERUSER_PASSWORD")
	firstName := fs.String("first-name", "", "first name of a new person")
	lastName := fs.String("last-name", "", "last name of a new person")
	rawSex := fs.String("sex", string(models.SexMale), "sex of a new person, M or F")
	if err := fs.Parse(args); err != nil {
		return err
	}
	sex, err := parseSex(*rawSex)
	if err != nil {
		return err
	}

	a, err := app.New(context.Background(), cfg, logr, app.Options{MailWorkers: 1})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	user, err := a.Services.Auth.CreateSuperuser(ctx, service.CreateSuperuserRequest{
		Email:     *email,
		Password:  *password,
		FirstName: *firstName,
		LastName:  *lastName,
		Sex:       sex,
	})
	if err != nil {
		return describe(err)
	}
	fmt.Printf("superuser created for person %d\n", user.PersonID)
	return nil
}

func parseSex(raw string) (models.Sex, error) {
	switch sex := models.Sex(strings.ToUpper(strings.TrimSpace(raw))); sex {
	case models.SexMale, models.SexFemale:
		return sex, nil
	}
	return "", fmt.Errorf("sex must be %s or %s, got %q", models.SexMale, models.SexFemale, raw)
}

func runJob(ctx context.Context, cfg *config.Config, logr *zap.Logger, name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	days := fs.Int("days", 0, "fetch_fio look-back window in days; 0 resumes from the last fetch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *days < 0 {
		return fmt.Errorf("days must not be negative")
	}

	a, err := app.New(context.Background(), cfg, logr, app.Options{MailWorkers: 1})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	report, err := a.Services.Jobs.Run(ctx, name, service.JobOptions{Days: *days})
	if err != nil {
		return describe(err)
	}

	keys := make([]string, 0, len(report.Counts))
	for k := range report.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("%s finished in %s\n", report.Job, report.Duration)
	for _, k := range keys {
		fmt.Printf("  %-16s %d\n", k, report.Counts[k])
	}
	return nil
}

func describe(err error) error {
	appErr := appErrors.FromError(err)
	if len(appErr.Fields) == 0 {
		return fmt.Errorf("%s: %s", appErr.Code, appErr.Message)
	}
	return fmt.Errorf("%s: %s %v", appErr.Code, appErr.Message, appErr.Fields)
}
