package categorize

import (
	"sort"
	"strings"

	"finsync/internal/core"
	"finsync/internal/normalize"
)

// Heuristic is one entry of the built-in keyword table.
type Heuristic struct {
	Label    string
	Polarity core.TransactionType // empty for neutral
	Icon     string
	Keywords []string
}

const (
	// MinHeuristicScore is the lowest score that beats the fallback.
	MinHeuristicScore = 1.0
	// FallbackConfidence is reported for Uncategorized results.
	FallbackConfidence = 0.2

	heuristicBase  = 0.4
	heuristicStep  = 0.15
	heuristicCeil  = 0.95
	phraseBonus    = 0.5
	wholeTokenSize = 3
)

// LabelUncategorized is the fallback label.
const LabelUncategorized = "uncategorized"

// heuristics is ordered by tie-break priority: income buckets first, generic
// expense buckets last.
var heuristics = []Heuristic{
	{Label: "salary", Polarity: core.Income, Icon: "briefcase", Keywords: []string{
		"salary", "salary payment", "payroll", "wages", "stipend", "monthly pay",
	}},
	{Label: "business_income", Polarity: core.Income, Icon: "store", Keywords: []string{
		"sales proceeds", "invoice", "customer payment", "revenue", "merchant settlement", "pos settlement",
	}},
	{Label: "freelance", Polarity: core.Income, Icon: "laptop", Keywords: []string{
		"freelance", "upwork", "fiverr", "consulting", "contract payment", "gig",
	}},
	{Label: "investment_income", Polarity: core.Income, Icon: "trending-up", Keywords: []string{
		"dividend", "interest credit", "interest earned", "coupon payment", "treasury bill", "capital gain",
	}},
	{Label: "transfer_in", Polarity: core.Income, Icon: "arrow-down-left", Keywords: []string{
		"received from", "transfer from", "cash in", "deposit", "money received", "refund",
	}},
	{Label: "bank_fees", Polarity: core.Expense, Icon: "receipt", Keywords: []string{
		"fee", "fees", "charge", "charges", "commission", "levy", "e levy", "sms alert", "stamp duty", "maintenance fee",
	}},
	{Label: "subscriptions", Polarity: core.Expense, Icon: "repeat", Keywords: []string{
		"netflix", "spotify", "subscription", "apple music", "youtube premium", "dstv", "showmax", "icloud",
	}},
	{Label: "utilities", Polarity: core.Expense, Icon: "zap", Keywords: []string{
		"electricity", "water bill", "prepaid meter", "ecg", "internet", "broadband", "airtime", "data bundle", "utility", "gas",
	}},
	{Label: "transport", Polarity: core.Expense, Icon: "car", Keywords: []string{
		"uber", "bolt", "taxi", "trip", "bus", "fuel", "petrol", "diesel", "trotro", "parking", "toll", "flight", "airline", "train",
	}},
	{Label: "food", Polarity: core.Expense, Icon: "utensils", Keywords: []string{
		"restaurant", "cafe", "coffee", "kfc", "pizza", "burger", "chicken", "eats", "uber eats", "lunch", "dinner",
		"breakfast", "bakery", "glovo", "chop bar", "food",
	}},
	{Label: "groceries", Polarity: core.Expense, Icon: "shopping-cart", Keywords: []string{
		"supermarket", "grocery", "groceries", "shoprite", "carrefour", "maxmart", "fresh produce", "market",
	}},
	{Label: "healthcare", Polarity: core.Expense, Icon: "heart", Keywords: []string{
		"pharmacy", "hospital", "clinic", "doctor", "medical", "chemist", "dental", "health insurance", "nhis", "lab",
	}},
	{Label: "education", Polarity: core.Expense, Icon: "book", Keywords: []string{
		"school fees", "school", "tuition", "university", "college", "course", "textbook", "exam", "udemy", "coursera",
	}},
	{Label: "entertainment", Polarity: core.Expense, Icon: "film", Keywords: []string{
		"cinema", "movie", "concert", "ticket", "playstation", "steam", "betting", "bet", "club", "bar",
	}},
	{Label: "transfer_out", Polarity: core.Expense, Icon: "arrow-up-right", Keywords: []string{
		"sent to", "transfer to", "cash out", "withdrawal", "atm", "money sent",
	}},
	{Label: "shopping", Polarity: core.Expense, Icon: "shopping-bag", Keywords: []string{
		"amazon", "jumia", "aliexpress", "store", "shop", "mall", "purchase", "melcom", "clothing", "fashion",
		"electronics", "boutique", "online order",
	}},
}

var heuristicIndex = func() map[string]int {
	m := make(map[string]int, len(heuristics))
	for i, h := range heuristics {
		m[h.Label] = i
	}
	return m
}()

// Heuristics returns a copy of the built-in table.
func Heuristics() []Heuristic {
	out := make([]Heuristic, len(heuristics))
	copy(out, heuristics)
	return out
}

// IconFor returns the icon for a label or category name, "tag" when unknown.
func IconFor(label string) string {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(label), " ", "_"))
	if i, ok := heuristicIndex[key]; ok {
		return heuristics[i].Icon
	}
	if key == LabelUncategorized {
		return "help-circle"
	}
	return "tag"
}

// PolarityOf returns the polarity of a heuristic label, empty if neutral or unknown.
func PolarityOf(label string) core.TransactionType {
	if i, ok := heuristicIndex[label]; ok {
		return heuristics[i].Polarity
	}
	return ""
}

// Scored is a heuristic label with its score.
type Scored struct {
	Label    string
	Score    float64
	Polarity core.TransactionType
	order    int
}

// Confidence maps a score to [0, 0.95].
func (s Scored) Confidence() float64 {
	c := heuristicBase + heuristicStep*s.Score
	if c > heuristicCeil {
		c = heuristicCeil
	}
	if c < 0 {
		c = 0
	}
	return c
}

// Rank scores every heuristic against text and returns those at or above
// MinHeuristicScore, best first. preferExpense moves expense buckets ahead on ties.
func Rank(text string, preferExpense bool) []Scored {
	tokens := normalize.Tokens(text)
	if len(tokens) == 0 {
		return nil
	}
	joined := " " + strings.Join(tokens, " ") + " "
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}

	var out []Scored
	for i, h := range heuristics {
		var score float64
		for _, kw := range h.Keywords {
			if keywordMatches(kw, joined, tokenSet) {
				score += 1 + phraseBonus*float64(strings.Count(kw, " "))
			}
		}
		if score >= MinHeuristicScore {
			out = append(out, Scored{Label: h.Label, Score: score, Polarity: h.Polarity, order: i})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if preferExpense && (a.Polarity == core.Expense) != (b.Polarity == core.Expense) {
			return a.Polarity == core.Expense
		}
		return a.order < b.order
	})
	return out
}

// keywordMatches matches phrases on token boundaries. Short keywords must
// equal a token; longer ones may also be a token prefix so "charge" covers
// "charged" but not "recharge".
func keywordMatches(kw, joined string, tokens map[string]bool) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(joined, " "+kw+" ")
	}
	if tokens[kw] || len(kw) <= wholeTokenSize {
		return tokens[kw]
	}
	return strings.Contains(joined, " "+kw)
}
