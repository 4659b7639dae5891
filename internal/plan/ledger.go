package plan

// repairNoteBudget bounds how many individual repair notes accumulate on a
// plan. Notes past the budget are dropped (still counted in totalRepairs)
// and the report is flagged BudgetExhausted; no summary note is written.
// Mirrors PLAN_REPAIR_NOTE_BUDGET.
const repairNoteBudget = 12

// repairLedger accumulates everything a Normalizer changes about a plan
// during one pass, matching PlanRepairLedger.
type repairLedger struct {
	totalRepairs    int
	notes           []string
	noteBudget      int
	tokenBudget     int
	usedTokens      int
	budgetExhausted bool
	overlays        []map[string]any
}

func newRepairLedger(noteBudget int) *repairLedger {
	return &repairLedger{noteBudget: noteBudget, tokenBudget: repairNoteTokenBudget}
}

// markStep records note against step's metadata and the ledger.
func (l *repairLedger) markStep(step *Step, note string) {
	step.MarkRepaired(note)
	l.pushNote(note)
}

func (l *repairLedger) recordNote(note string) {
	l.pushNote(note)
}

func (l *repairLedger) recordOverlay(overlay map[string]any) {
	l.overlays = append(l.overlays, overlay)
}

func (l *repairLedger) pushNote(note string) {
	l.totalRepairs++
	if len(l.notes) >= l.noteBudget {
		l.budgetExhausted = true
		return
	}
	tokens := countTokens(note)
	if l.usedTokens+tokens > l.tokenBudget {
		l.budgetExhausted = true
		return
	}
	l.usedTokens += tokens
	l.notes = append(l.notes, note)
}

// Note, Overlay and MarkStep satisfy RepairRecorder so a stage auditor in
// another package can record against the same ledger a Normalizer uses.
func (l *repairLedger) Note(note string)                    { l.recordNote(note) }
func (l *repairLedger) Overlay(overlay map[string]any)       { l.recordOverlay(overlay) }
func (l *repairLedger) MarkStep(step *Step, note string)     { l.markStep(step, note) }

func (l *repairLedger) intoReport() RepairReport {
	return RepairReport{
		TotalRepairs:    l.totalRepairs,
		Notes:           l.notes,
		BudgetExhausted: l.budgetExhausted,
		Overlays:        l.overlays,
	}
}
