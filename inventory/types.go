package inventory

import (
	"sort"
	"time"
)

// Status is the outcome of one account task.
type Status string

const (
	// StatusSuccess means the account was fully processed.
	StatusSuccess Status = "success"
	// StatusFailed means role assumption or listing failed.
	StatusFailed Status = "failed"
	// StatusCircuitOpen means an open circuit blocked the account
	// before any work was attempted.
	StatusCircuitOpen Status = "circuit_open"
)

// AccountTask identifies one member account to inventory. Immutable
// input to the collector.
type AccountTask struct {
	AccountID string
	RoleName  string
	Region    string
}

// Credentials are short-lived assumed-role credentials.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// Session couples an account with the credentials assumed in it.
type Session struct {
	AccountID   string
	Region      string
	Credentials Credentials
}

// Item is one entry from a resource listing, before detail enrichment.
type Item struct {
	ID         string
	Attributes map[string]string
}

// Page is one page of a resource listing. An empty NextCursor marks the
// last page.
type Page struct {
	Items      []Item
	NextCursor string
}

// Record is one fully collected resource. Immutable once produced.
type Record struct {
	ID         string            `json:"resource_id"`
	AccountID  string            `json:"account_id"`
	Region     string            `json:"region"`
	Service    string            `json:"service"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// Tagged reports whether the resource carries any tags.
func (r Record) Tagged() bool {
	return len(r.Tags) > 0
}

// Statistics summarizes the resources collected for one account.
// Total counts only items whose detail fetch succeeded; FailedItems
// counts the ones dropped by per-item failures.
type Statistics struct {
	Total          int     `json:"total"`
	Tagged         int     `json:"tagged"`
	Untagged       int     `json:"untagged"`
	FailedItems    int     `json:"failed_items"`
	TaggingPercent float64 `json:"tagging_percentage"`
}

// ErrorDetail carries enough structure to diagnose an account failure
// without consulting logs.
type ErrorDetail struct {
	Operation string `json:"operation"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// AccountResult is the outcome of one account task. Created once, never
// mutated after the task completes.
type AccountResult struct {
	AccountID  string       `json:"account_id"`
	Status     Status       `json:"status"`
	Items      []Record     `json:"items"`
	Error      *ErrorDetail `json:"error,omitempty"`
	Statistics Statistics   `json:"statistics"`
}

// Summary aggregates outcomes across all account tasks.
type Summary struct {
	TotalAccounts       int               `json:"total_accounts"`
	SuccessfulAccounts  int               `json:"successful_accounts"`
	FailedAccounts      int               `json:"failed_accounts"`
	CircuitOpenAccounts int               `json:"circuit_open_accounts"`
	TotalResources      int               `json:"total_resources"`
	TaggedResources     int               `json:"tagged_resources"`
	UntaggedResources   int               `json:"untagged_resources"`
	TaggingPercent      float64           `json:"tagging_percentage"`
	Duration            time.Duration     `json:"duration_ns"`
	CircuitStates       map[string]string `json:"circuit_states"`
}

// Result is the collector's structured outcome: exactly one
// AccountResult per submitted task, keyed by account id, plus the
// global summary. It is never an exception surface; callers inspect it
// to decide whether partial success is acceptable.
type Result struct {
	Accounts map[string]*AccountResult `json:"accounts"`
	Summary  Summary                   `json:"summary"`
}

// AllRecords flattens the successfully collected resources across
// accounts, ordered by account id then resource id.
func (r *Result) AllRecords() []Record {
	accountIDs := make([]string, 0, len(r.Accounts))
	for id := range r.Accounts {
		accountIDs = append(accountIDs, id)
	}
	sort.Strings(accountIDs)

	var records []Record
	for _, id := range accountIDs {
		records = append(records, r.Accounts[id].Items...)
	}
	return records
}
