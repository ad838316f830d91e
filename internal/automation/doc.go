// Package automation implements the trigger engine: condition evaluation,
// trigger import, due-time computation and idempotent firing.
//
// The engine works in three phases:
//
//  1. Import. When an inspection is created (or on demand) the importer
//     selects the company's active actions whose conditions match the
//     inspection and materializes them as trigger snapshots embedded on the
//     inspection record. Conditions are evaluated exactly once, here.
//
//  2. Scheduling. Event-keyed triggers become eligible the moment their
//     governing event arrives; date-relative triggers become eligible at an
//     offset from the inspection date. Both are then gated by the action's
//     business-hour and weekend constraints in the company's local time.
//
//  3. Firing. The executor claims a trigger with a single conditional
//     storage update, hands the snapshot to the delivery collaborator, and
//     records the terminal outcome. The claim is the only concurrency
//     mechanism: concurrent callers race on the compare-and-swap and the
//     loser no-ops without error.
//
// Example usage:
//
//	service := automation.NewService(store, sender, logger)
//
//	// Inspection was scheduled: attach matching actions, fire what is due.
//	if err := service.ProcessEvent(ctx, inspectionID, models.KeyInspectionScheduled); err != nil {
//		log.Printf("trigger processing failed: %v", err)
//	}
//
//	// Periodic sweep for date-relative and deferred triggers.
//	due, _ := service.Due(ctx, inspectionID, time.Now())
//	for _, trigger := range due {
//		service.Fire(ctx, inspectionID, trigger.ID)
//	}
package automation
