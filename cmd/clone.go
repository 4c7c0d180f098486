package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"loftdata/backup"
	"loftdata/clone"
	"loftdata/config"
	"loftdata/internal"
	"loftdata/plan"
)

var cloneCmd = &cobra.Command{
	Use:           "clone",
	Short:         "Clone data from a source environment to a target environment",
	RunE:          runClone,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func runClone(cmd *cobra.Command, args []string) error {
	source, _ := cmd.Flags().GetString("source")
	target, _ := cmd.Flags().GetString("target")
	tables, _ := cmd.Flags().GetString("tables")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	truncate, _ := cmd.Flags().GetBool("truncate")
	excludeSensitive, _ := cmd.Flags().GetBool("exclude-sensitive")
	preserveRoles, _ := cmd.Flags().GetBool("preserve-roles")
	verify, _ := cmd.Flags().GetBool("verify")
	backupDir, _ := cmd.Flags().GetString("backup-dir")
	backupBucket, _ := cmd.Flags().GetString("backup-bucket")
	pageSize, _ := cmd.Flags().GetInt("page-size")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	interactive, _ := cmd.Flags().GetBool("interactive")
	verbose, _ := cmd.Flags().GetBool("verbose")

	if verbose {
		internal.SetLogLevel("debug")
		internal.VerboseMode = true
	} else {
		internal.SetLogLevel("error")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	sourceEnv, err := cfg.GetEnvironment(source)
	if err != nil {
		return formatError(err)
	}
	targetEnv, err := cfg.GetEnvironment(target)
	if err != nil {
		return formatError(err)
	}

	opts := clone.Options{
		DryRun:             dryRun,
		Truncate:           truncate,
		Anonymize:          excludeSensitive,
		PreserveUserRoles:  preserveRoles,
		ValidateAfterClone: verify,
		PageSize:           pageSize,
		BatchSize:          batchSize,
	}

	if tables != "" {
		opts.Tables = splitTables(tables)
	} else if interactive {
		selector := internal.NewTableSelector(plan.TableNames())
		selected, err := selector.SelectTables()
		if err != nil {
			return formatError(err)
		}
		opts.Tables = selected
	}

	switch {
	case backupBucket != "":
		s3store, err := backup.NewS3Store(cmd.Context(), sourceEnv.Host, backupBucket)
		if err != nil {
			return formatError(err)
		}
		opts.CreateBackup = true
		opts.BackupStore = s3store
	case backupDir != "":
		opts.CreateBackup = true
		opts.BackupStore = &backup.LocalStore{Dir: backupDir}
	}

	internal.Logger.Info("Starting clone operation",
		"source", sourceEnv.Name,
		"target", targetEnv.Name,
		"dryRun", dryRun)

	cloner, err := clone.New(*sourceEnv, *targetEnv)
	if err != nil {
		return formatError(err)
	}
	defer cloner.Close()

	result, err := cloner.Clone(context.Background(), opts)
	if result != nil {
		printResult(result)
	}
	if err != nil {
		return formatError(err)
	}
	if !result.Success {
		return fmt.Errorf("❌ Clone completed with errors")
	}
	return nil
}

func printResult(result *clone.Result) {
	fmt.Printf("\nClone %s → %s (operation %s)\n",
		result.SourceEnvironment, result.TargetEnvironment, result.OperationID)

	for _, tr := range result.Tables {
		switch tr.Status {
		case clone.StatusSuccess:
			fmt.Printf("  ✅ %-28s %d record(s)\n", tr.Table, tr.Records)
		case clone.StatusDryRun:
			fmt.Printf("  ✅ %-28s %d record(s) (dry-run)\n", tr.Table, tr.Records)
		case clone.StatusEmpty:
			fmt.Printf("  ℹ️  %-28s empty\n", tr.Table)
		case clone.StatusError:
			fmt.Printf("  ❌ %-28s %s\n", tr.Table, tr.Error)
		}
	}

	success, errored, empty := result.Counts()
	fmt.Printf("\n%d succeeded, %d failed, %d empty: %d record(s) in %s\n",
		success, errored, empty, result.Statistics.RecordsCloned, result.Duration.Round(1e6))
	if result.Statistics.RecordsAnonymized > 0 {
		fmt.Printf("%d record(s) anonymized\n", result.Statistics.RecordsAnonymized)
	}
	if result.BackupID != "" {
		fmt.Printf("Backup: %s\n", result.BackupID)
	}
	for _, warning := range result.Warnings {
		fmt.Printf("⚠️  %s\n", warning)
	}
}

func formatError(err error) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") {
		return fmt.Errorf("❌ Cannot connect to the database server. Please check your connection settings.")
	}

	if strings.Contains(errStr, "Access denied") || strings.Contains(errStr, "password authentication failed") {
		return fmt.Errorf("❌ Database authentication failed. Please check your credentials.")
	}

	if strings.Contains(errStr, "Unknown database") || strings.Contains(errStr, "does not exist") {
		return fmt.Errorf("❌ Database does not exist. Please check your database name.")
	}

	return fmt.Errorf("❌ %s", errStr)
}

func splitTables(csv string) []string {
	var tables []string
	for _, table := range strings.Split(csv, ",") {
		table = strings.TrimSpace(table)
		if table != "" {
			tables = append(tables, table)
		}
	}
	return tables
}

func init() {
	rootCmd.AddCommand(cloneCmd)

	cloneCmd.Flags().String("source", "", "Source environment name (required)")
	cloneCmd.Flags().String("target", "", "Target environment name (required)")
	cloneCmd.MarkFlagRequired("source")
	cloneCmd.MarkFlagRequired("target")

	cloneCmd.Flags().String("tables", "", "Comma-separated table list (default: full plan)")
	cloneCmd.Flags().Bool("dry-run", false, "Report would-be record counts without writing")
	cloneCmd.Flags().Bool("truncate", false, "Clear target tables before loading")
	cloneCmd.Flags().Bool("exclude-sensitive", false, "Anonymize PII while cloning")
	cloneCmd.Flags().Bool("preserve-roles", true, "Keep profile roles intact during anonymization")
	cloneCmd.Flags().Bool("verify", false, "Run integrity and anonymization validation after cloning")
	cloneCmd.Flags().String("backup-dir", "", "Back up target tables to a local directory first")
	cloneCmd.Flags().String("backup-bucket", "", "Back up target tables to an S3 bucket first")
	cloneCmd.Flags().Int("page-size", 0, "Rows per source fetch (default 1000)")
	cloneCmd.Flags().Int("batch-size", 0, "Rows per target write (default 500)")
	cloneCmd.Flags().Bool("interactive", false, "Select tables interactively")
	cloneCmd.Flags().Bool("verbose", false, "Enable verbose logging")
}
