package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"loftdata/config"
	"loftdata/internal"
	"loftdata/systems"
)

var systemsCmd = &cobra.Command{
	Use:           "systems",
	Short:         "Clone the specialized systems (audit, conversations, reservations)",
	RunE:          runSystems,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func runSystems(cmd *cobra.Command, args []string) error {
	source, _ := cmd.Flags().GetString("source")
	target, _ := cmd.Flags().GetString("target")
	includeAudit, _ := cmd.Flags().GetBool("audit")
	includeConversations, _ := cmd.Flags().GetBool("conversations")
	includeReservations, _ := cmd.Flags().GetBool("reservations")
	anonymize, _ := cmd.Flags().GetBool("exclude-sensitive")
	maxMessageAge, _ := cmd.Flags().GetInt("max-message-age")
	maxReservationAge, _ := cmd.Flags().GetInt("max-reservation-age")
	statuses, _ := cmd.Flags().GetString("reservation-statuses")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	verbose, _ := cmd.Flags().GetBool("verbose")

	if verbose {
		internal.SetLogLevel("debug")
		internal.VerboseMode = true
	} else {
		internal.SetLogLevel("error")
	}

	if !includeAudit && !includeConversations && !includeReservations {
		return fmt.Errorf("select at least one of --audit, --conversations, --reservations")
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

	opts := systems.Options{DryRun: dryRun}
	if includeAudit {
		opts.IncludeAudit = true
		opts.Audit = &systems.AuditOptions{
			AnonymizeLogs:    anonymize,
			IncludeFunctions: true,
			IncludeTriggers:  true,
		}
	}
	if includeConversations {
		opts.IncludeConversations = true
		opts.Conversations = &systems.ConversationsOptions{
			AnonymizeContent:  anonymize,
			MaxMessageAgeDays: maxMessageAge,
		}
	}
	if includeReservations {
		opts.IncludeReservations = true
		opts.Reservations = &systems.ReservationsOptions{
			AnonymizeGuestData: anonymize,
			AnonymizePricing:   anonymize,
			MaxAgeDays:         maxReservationAge,
		}
		if statuses != "" {
			opts.Reservations.StatusFilter = splitTables(statuses)
		}
	}

	cloner, err := systems.NewSystemsCloner(*sourceEnv, *targetEnv)
	if err != nil {
		return formatError(err)
	}
	defer cloner.Close()

	result, err := cloner.CloneAll(context.Background(), opts)
	if result != nil {
		printSystemsResult(result)
	}
	if err != nil {
		return formatError(err)
	}
	if !result.Success {
		return fmt.Errorf("❌ Specialized systems clone completed with errors")
	}
	return nil
}

func printSystemsResult(result *systems.ComprehensiveResult) {
	fmt.Printf("\nSpecialized systems clone %s → %s (operation %s)\n",
		result.SourceEnvironment, result.TargetEnvironment, result.OperationID)

	if result.Audit != nil {
		printSystemLine(result.Audit.Success, "audit",
			fmt.Sprintf("%d log(s), %d function(s), %d trigger(s)",
				result.Audit.LogsCloned, result.Audit.FunctionsCloned, result.Audit.TriggersCloned))
	}
	if result.Conversations != nil {
		printSystemLine(result.Conversations.Success, "conversations",
			fmt.Sprintf("%d conversation(s), %d participant(s), %d message(s)",
				result.Conversations.ConversationsCloned,
				result.Conversations.ParticipantsCloned,
				result.Conversations.MessagesCloned))
	}
	if result.Reservations != nil {
		printSystemLine(result.Reservations.Success, "reservations",
			fmt.Sprintf("%d reservation(s), %d availability row(s), %d payment(s)",
				result.Reservations.ReservationsCloned,
				result.Reservations.AvailabilityCloned,
				result.Reservations.PaymentsCloned))
	}

	for _, warning := range result.Warnings {
		fmt.Printf("⚠️  %s\n", warning)
	}
	for _, errMsg := range result.Errors {
		fmt.Printf("❌ %s\n", errMsg)
	}
	fmt.Printf("Completed in %s\n", result.Duration.Round(1e6))
}

func printSystemLine(success bool, name, detail string) {
	symbol := "✅"
	if !success {
		symbol = "❌"
	}
	fmt.Printf("  %s %-16s %s\n", symbol, name, detail)
}

func init() {
	rootCmd.AddCommand(systemsCmd)

	systemsCmd.Flags().String("source", "", "Source environment name (required)")
	systemsCmd.Flags().String("target", "", "Target environment name (required)")
	systemsCmd.MarkFlagRequired("source")
	systemsCmd.MarkFlagRequired("target")

	systemsCmd.Flags().Bool("audit", false, "Clone the audit system")
	systemsCmd.Flags().Bool("conversations", false, "Clone the conversations system")
	systemsCmd.Flags().Bool("reservations", false, "Clone the reservations system")
	systemsCmd.Flags().Bool("exclude-sensitive", false, "Anonymize PII while cloning")
	systemsCmd.Flags().Int("max-message-age", 0, "Only clone messages newer than N days")
	systemsCmd.Flags().Int("max-reservation-age", 0, "Only clone reservations newer than N days")
	systemsCmd.Flags().String("reservation-statuses", "", "Comma-separated reservation statuses to keep")
	systemsCmd.Flags().Bool("dry-run", false, "Report would-be record counts without writing")
	systemsCmd.Flags().Bool("verbose", false, "Enable verbose logging")
}
