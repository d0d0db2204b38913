package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/auth"
	"github.com/straye-as/pfmt-tracker/internal/config"
	"github.com/straye-as/pfmt-tracker/internal/logger"
	"github.com/straye-as/pfmt-tracker/internal/migration"
	"github.com/straye-as/pfmt-tracker/internal/repository"
	"github.com/straye-as/pfmt-tracker/internal/storage"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

const usage = "usage: migrate [check|migrate|validate|integrity|list|restore <backup>|token <userId>]"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Migration error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	store.UseNumericMoney()

	args := os.Args[1:]
	if len(args) == 0 {
		return errors.New(usage)
	}
	command := args[0]
	arguments := args[1:]

	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	fs := afero.NewOsFs()
	documentStore := store.New(cfg.Store.Path, fs, log)
	backups, err := storage.NewStorage(&cfg.Backup, fs, log)
	if err != nil {
		return fmt.Errorf("failed to initialize backup storage: %w", err)
	}
	manager := migration.NewManager(documentStore, log)
	runner := migration.NewRunner(documentStore, manager, backups, log)

	switch command {
	case "check":
		result, err := runner.Check(ctx)
		if err != nil {
			return fmt.Errorf("failed to check document: %w", err)
		}
		return printJSON(result)

	case "migrate":
		result, err := runner.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("failed to migrate document: %w", err)
		}
		if result.Skipped {
			fmt.Println("Document is already relational, nothing to do")
			return nil
		}
		return printJSON(result)

	case "validate":
		if err := runner.Validate(ctx); err != nil {
			return fmt.Errorf("document is invalid: %w", err)
		}
		fmt.Println("Document is valid")

	case "integrity":
		doc, err := documentStore.Snapshot()
		if err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}
		report, err := migration.CheckIntegrity(doc)
		if err != nil {
			return fmt.Errorf("failed to check integrity: %w", err)
		}
		if err := printJSON(report); err != nil {
			return err
		}
		if len(report.Issues) > 0 {
			return fmt.Errorf("%d integrity issues found", len(report.Issues))
		}

	case "list":
		objects, err := runner.Backups(ctx)
		if err != nil {
			return fmt.Errorf("failed to list backups: %w", err)
		}
		return printJSON(objects)

	case "restore":
		if len(arguments) == 0 {
			return fmt.Errorf("restore requires a backup name")
		}
		if err := runner.Restore(ctx, arguments[0]); err != nil {
			return fmt.Errorf("failed to restore %s: %w", arguments[0], err)
		}
		fmt.Printf("Restored %s\n", arguments[0])

	case "token":
		if len(arguments) == 0 {
			return fmt.Errorf("token requires a user id")
		}
		userID, err := strconv.Atoi(arguments[0])
		if err != nil {
			return fmt.Errorf("invalid user id %q", arguments[0])
		}
		return issueToken(ctx, cfg, documentStore, log, userID)

	default:
		return fmt.Errorf("unknown command: %s\n%s", command, usage)
	}

	return nil
}

// issueToken prints a bearer token for a stored user
func issueToken(ctx context.Context, cfg *config.Config, s *store.Store, log *zap.Logger, userID int) error {
	tokens, err := auth.NewTokenManager(&cfg.Auth)
	if err != nil {
		return err
	}
	user, ok, err := repository.NewRepositories(s, log).Users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %d not found", userID)
	}
	token, err := tokens.Issue(user)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
