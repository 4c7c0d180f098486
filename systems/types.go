// Package systems clones the specialized table groups (audit, conversations
// and reservations) with relationship-preserving anonymization, structural
// validation and per-system statistics, following the same five-step shape
// as the generic cloner.
package systems

import (
	"fmt"
	"time"
)

type AuditOptions struct {
	AnonymizeLogs    bool
	IncludeFunctions bool
	IncludeTriggers  bool
}

type ConversationsOptions struct {
	AnonymizeContent  bool
	MaxMessageAgeDays int
	// MessageTypes filters messages by type before cloning; empty keeps all.
	MessageTypes []string
}

type ReservationsOptions struct {
	AnonymizeGuestData bool
	AnonymizePricing   bool
	// StatusFilter keeps only reservations in the listed statuses.
	StatusFilter []string
	MaxAgeDays   int
}

// Options selects which systems to clone. Every include flag that is set
// must carry a populated sub-options object.
type Options struct {
	IncludeAudit bool
	Audit        *AuditOptions

	IncludeConversations bool
	Conversations        *ConversationsOptions

	IncludeReservations bool
	Reservations        *ReservationsOptions

	PageSize  int
	BatchSize int
	DryRun    bool
}

func (o *Options) Validate() error {
	if o.IncludeAudit && o.Audit == nil {
		return fmt.Errorf("audit system requested without audit options")
	}
	if o.IncludeConversations && o.Conversations == nil {
		return fmt.Errorf("conversations system requested without conversations options")
	}
	if o.IncludeReservations && o.Reservations == nil {
		return fmt.Errorf("reservations system requested without reservations options")
	}
	return nil
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.PageSize <= 0 {
		opts.PageSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	return opts
}

// SystemResult is the shared shape of every specialized system's outcome.
type SystemResult struct {
	System        string
	Success       bool
	RecordsCloned int
	Errors        []string
	Warnings      []string
	Duration      time.Duration
}

func (r *SystemResult) fail(format string, args ...any) {
	r.Success = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *SystemResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

type AuditResult struct {
	SystemResult
	LogsCloned         int
	LogsAnonymized     int
	FunctionsCloned    int
	TriggersCloned     int
	StructurePreserved bool
	TriggerVerified    bool
}

type ConversationsResult struct {
	SystemResult
	ConversationsCloned    int
	ParticipantsCloned     int
	MessagesCloned         int
	MessagesAnonymized     int
	RelationshipsPreserved bool
	RealtimeVerified       bool
}

type ReservationsResult struct {
	SystemResult
	ReservationsCloned           int
	AvailabilityCloned           int
	PricingRulesCloned           int
	PaymentsCloned               int
	GuestsAnonymized             int
	CalendarConsistencyValidated bool
}

// ComprehensiveResult aggregates all requested systems. Success is false if
// any requested system failed, even when the others completed.
type ComprehensiveResult struct {
	Success           bool
	OperationID       string
	SourceEnvironment string
	TargetEnvironment string
	SystemsCloned     []string
	Audit             *AuditResult
	Conversations     *ConversationsResult
	Reservations      *ReservationsResult
	Errors            []string
	Warnings          []string
	Duration          time.Duration
	CompletedAt       time.Time
}
