package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/FACorreiaa/bankstatement2csv/internal/domain/transaction"
)

// DefaultBatchLimit caps the records requested per reply.
const DefaultBatchLimit = 200

const recentHistory = 5

// PromptOptions parameterizes BuildExtractionPrompt.
type PromptOptions struct {
	BatchLimit int
	Cursor     transaction.Raw
	// Thorough asks the model to scan further after it repeated rows.
	Thorough bool
	History  []transaction.Raw
}

// BuildExtractionPrompt renders the instruction that opens a chunk conversation.
func BuildExtractionPrompt(opts PromptOptions) string {
	limit := opts.BatchLimit
	if limit <= 0 {
		limit = DefaultBatchLimit
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Parse ALL transactions from the bank statement document pdf provided.
Return ONLY a JSON object: { "transactions": [ { "date": "YYYY-MM-DD", "debit": number, "credit": number, "category": string, "title": string, "note": string, "amount": number } ] }

Rules:
- Return at most %d new transactions in chronological order.
- Normalize date to YYYY-MM-DD; detect locale from context.
- Interpret Amount/Value/Charge columns: if a single column represents net amount, return positive values as debits and negative values (or credit indicators) as credits.
- If separate debit/credit columns exist, map them accordingly.
- Recognize alternate headings (Amount, Value, Withdrawal, Deposit, DR/CR, +/-).
- Convert comma/dot decimals correctly; do not lose decimals.
- Treat blank fields as zero; never drop a transaction row even if data seems incomplete.
- Title should summarize the payee/description.
- Category should be one of: Food, Transport, Shopping, Bills, Income, Other (choose best guess).
- Note can include original memo or additional context.
- Do NOT omit rows; ignore headers/balances/totals.
- If a row is ambiguous, still return best effort (never skip).
- Only return an empty array if the statement truly contains zero transactions.
- The array of transactions should be returned in the same order they appear in the pdf!`, limit)

	if opts.Cursor != nil {
		fmt.Fprintf(&b, `

Continue immediately after this transaction (do NOT repeat it or earlier rows):
%s

If you cannot locate this entry, advance until you find it and then continue forward.`, compactJSON(opts.Cursor))
	} else {
		b.WriteString("\n\nStart from the earliest transaction in the statement.")
	}

	writeHistory(&b, opts.History)
	if opts.Thorough {
		b.WriteString(thoroughHint)
	}
	return b.String()
}

const thoroughHint = `

The previous output repeated earlier rows. Carefully scan forward to find new pages or later rows before replying.`

// OutputRules describes the marker protocol the loop relies on.
func OutputRules(batchLimit int) string {
	if batchLimit <= 0 {
		batchLimit = DefaultBatchLimit
	}
	return fmt.Sprintf(`
Output rules:
1. Return "CONTINUE ---" if there are more transactions remaining in the document. Return "END ---" ONLY if you have verified the document contains no more transactions (you've reached the absolute end).
2. After the marker, output a JSON object: { "transactions": [ ... ] }
3. Output up to %d transactions per response.
4. Do NOT wrap JSON in code fences.
5. When asked to continue, provide the NEXT transactions after the cursor. Do NOT repeat the cursor transaction.
`, batchLimit)
}

// InitialPrompt is the text of the first request of a chunk conversation.
func InitialPrompt(batchLimit int) string {
	return BuildExtractionPrompt(PromptOptions{BatchLimit: batchLimit}) + "\n\n" + OutputRules(batchLimit)
}

// ContinuationPrompt asks for the records after cursor. A nil cursor yields
// the bare marker.
func ContinuationPrompt(cursor transaction.Raw) string {
	if cursor == nil {
		return ContinueMarker
	}
	return fmt.Sprintf("The last transaction you provided was:\n%s\n\n"+
		"Now continue with the NEXT transactions that come AFTER this one. "+
		"Do NOT repeat this transaction or any earlier ones. Start with %q.",
		compactJSON(cursor), ContinueMarker)
}

// RepeatedPrompt is the continuation sent after a turn that only repeated
// known rows.
func RepeatedPrompt(cursor transaction.Raw, history []transaction.Raw) string {
	var b strings.Builder
	b.WriteString(ContinuationPrompt(cursor))
	writeHistory(&b, history)
	b.WriteString(thoroughHint)
	return b.String()
}

func writeHistory(b *strings.Builder, history []transaction.Raw) {
	if len(history) == 0 {
		return
	}
	if len(history) > recentHistory {
		history = history[len(history)-recentHistory:]
	}
	b.WriteString("\n\nThese transactions are already captured:\n")
	for _, h := range history {
		b.WriteString("- ")
		b.WriteString(compactJSON(h))
		b.WriteString("\n")
	}
	b.WriteString("Only output rows that appear after the last entry in this list.")
}

func compactJSON(r transaction.Raw) string {
	b, err := json.Marshal(r)
	if err != nil {
		return "{}"
	}
	return string(b)
}
