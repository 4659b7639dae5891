package plan

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// repairNoteTokenBudget caps the repair ledger's notes by token count, not
// just item count: a handful of long repair explanations can bloat the
// plan's persisted metadata far more than repairNoteBudget alone would
// catch. cl100k_base is the encoding most general-purpose chat models use,
// which is the audience this ledger is ultimately rendered for.
const repairNoteTokenBudget = 2000

var loadEncoding = sync.OnceValues(func() (*tiktoken.Tiktoken, error) {
	return tiktoken.GetEncoding("cl100k_base")
})

// countTokens returns note's token count under cl100k_base, falling back to
// a character-based approximation if the encoding can't be loaded (e.g. no
// network access to fetch its BPE ranks on first use).
func countTokens(text string) int {
	enc, err := loadEncoding()
	if err != nil || enc == nil {
		return approxTokenCount(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func approxTokenCount(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}
