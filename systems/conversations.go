package systems

import (
	"context"
	"fmt"
	"time"

	"loftdata/anonymize"
	"loftdata/internal"
	"loftdata/plan"
	"loftdata/store"
)

// ConversationsCloner clones conversations, participants and messages while
// preserving the three-way relationship between them.
type ConversationsCloner struct {
	source   store.TableStore
	target   store.TableStore
	registry *anonymize.Registry
}

func NewConversationsCloner(source, target store.TableStore, registry *anonymize.Registry) *ConversationsCloner {
	return &ConversationsCloner{source: source, target: target, registry: registry}
}

func (c *ConversationsCloner) Clone(ctx context.Context, opts ConversationsOptions, pageSize, batchSize int, dryRun bool) *ConversationsResult {
	start := time.Now()
	result := &ConversationsResult{
		SystemResult: SystemResult{System: "conversations", Success: true},
	}
	defer func() { result.Duration = time.Since(start) }()

	for _, table := range []string{"conversations", "conversation_participants", "messages"} {
		for side, st := range map[string]store.TableStore{"source": c.source, "target": c.target} {
			present, err := tablePresent(ctx, st, table)
			if err != nil {
				result.fail("%v", err)
				return result
			}
			if !present {
				result.warn("conversations system missing (%s has no %s); skipped", side, table)
				return result
			}
		}
	}

	conversations, err := fetchAll(ctx, c.source, "conversations", pageSize)
	if err != nil {
		result.fail("%v", err)
		return result
	}
	conversationIDs := idSet(conversations)

	participants, err := fetchAll(ctx, c.source, "conversation_participants", pageSize)
	if err != nil {
		result.fail("%v", err)
		return result
	}

	messages, err := fetchAll(ctx, c.source, "messages", pageSize)
	if err != nil {
		result.fail("%v", err)
		return result
	}

	// A dangling conversation reference is a data-integrity violation and
	// is fatal for this sub-clone.
	for _, row := range participants {
		if !conversationIDs[fmt.Sprintf("%v", row["conversation_id"])] {
			result.fail("participant %v references missing conversation %v", row["id"], row["conversation_id"])
			return result
		}
	}
	messages = filterMessages(messages, opts)
	for _, row := range messages {
		if !conversationIDs[fmt.Sprintf("%v", row["conversation_id"])] {
			result.fail("message %v references missing conversation %v", row["id"], row["conversation_id"])
			return result
		}
	}
	result.RelationshipsPreserved = true

	if opts.AnonymizeContent {
		var applied bool
		messages, applied = c.registry.Apply("messages", messages)
		if applied {
			result.MessagesAnonymized = len(messages)
		}
	}

	if dryRun {
		result.ConversationsCloned = len(conversations)
		result.ParticipantsCloned = len(participants)
		result.MessagesCloned = len(messages)
		result.RecordsCloned = len(conversations) + len(participants) + len(messages)
		return result
	}

	// Parents before children keeps the target consistent at every point.
	groups := []struct {
		table string
		rows  []store.Row
		count *int
	}{
		{"conversations", conversations, &result.ConversationsCloned},
		{"conversation_participants", participants, &result.ParticipantsCloned},
		{"messages", messages, &result.MessagesCloned},
	}
	for _, group := range groups {
		written, err := writeRows(ctx, c.target, group.table, plan.ConflictKey(group.table), group.rows, batchSize)
		*group.count = written
		result.RecordsCloned += written
		if err != nil {
			result.fail("%v", err)
			return result
		}
	}

	c.verifyRealtime(ctx, result)
	return result
}

// filterMessages applies the age and type filters before cloning.
func filterMessages(messages []store.Row, opts ConversationsOptions) []store.Row {
	if opts.MaxMessageAgeDays <= 0 && len(opts.MessageTypes) == 0 {
		return messages
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -opts.MaxMessageAgeDays)
	typeAllowed := make(map[string]bool, len(opts.MessageTypes))
	for _, t := range opts.MessageTypes {
		typeAllowed[t] = true
	}

	var kept []store.Row
	for _, row := range messages {
		if opts.MaxMessageAgeDays > 0 {
			created, ok := parseDate(row["created_at"])
			if !ok || created.Before(cutoff) {
				continue
			}
		}
		if len(typeAllowed) > 0 {
			msgType, _ := row["type"].(string)
			if !typeAllowed[msgType] {
				continue
			}
		}
		kept = append(kept, row)
	}
	return kept
}

// verifyRealtime is a functional smoke test: confirm a subscription can be
// established on the target's messages table. Stores without realtime
// support produce a warning, not a failure.
func (c *ConversationsCloner) verifyRealtime(ctx context.Context, result *ConversationsResult) {
	sub, ok := c.target.(store.Subscriber)
	if !ok {
		result.warn("target store has no realtime support; subscription check skipped")
		return
	}

	closer, err := sub.Subscribe(ctx, "messages")
	if err != nil {
		result.warn("realtime subscription check failed: %v", err)
		return
	}
	if err := closer(); err != nil {
		result.warn("realtime subscription close failed: %v", err)
		return
	}
	result.RealtimeVerified = true
	internal.Logger.Debug("Realtime subscription check succeeded")
}
