package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

// PlanSnapshot freezes the plan a transaction was billed against, so invoice
// rendering survives later plan edits.
type PlanSnapshot struct {
	PlanID       string             `json:"plan_id"`
	PlanName     string             `json:"plan_name"`
	BillingCycle enums.BillingCycle `json:"billing_cycle"`
	Region       enums.Region       `json:"region"`
	Price        decimal.Decimal    `json:"price"`
	Currency     enums.Currency     `json:"currency"`
}

// CurrencyMismatch records that the gateway reported a charge in a currency
// other than the one expected for the subscriber's region. The transaction
// itself carries the corrected amount; this keeps the raw report for audit.
type CurrencyMismatch struct {
	ExpectedCurrency enums.Currency  `json:"expected_currency"`
	ReportedCurrency enums.Currency  `json:"reported_currency"`
	ReportedAmount   decimal.Decimal `json:"reported_amount"`
}

// AuthNormalized records a mis-tagged authentication charge that was
// normalized to the provider's nominal verification amount.
type AuthNormalized struct {
	ReportedCurrency enums.Currency  `json:"reported_currency"`
	ReportedAmount   decimal.Decimal `json:"reported_amount"`
	MatchedPlanID    string          `json:"matched_plan_id"`
}

// Renewal marks a transaction created by a billing-cycle renewal.
type Renewal struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Scheduled   bool      `json:"scheduled"`
}

// DowngradeCredit records unused value carried into the next cycle after a
// scheduled plan downgrade.
type DowngradeCredit struct {
	FromPlanID string          `json:"from_plan_id"`
	ToPlanID   string          `json:"to_plan_id"`
	Credit     decimal.Decimal `json:"credit"`
	Currency   enums.Currency  `json:"currency"`
}

// TransactionAnnotations is the tagged union persisted on ledger
// transactions. Known kinds are typed fields; Extra is an opaque extension
// map for anything the engine does not interpret.
type TransactionAnnotations struct {
	PlanSnapshot     *PlanSnapshot     `json:"plan_snapshot,omitempty"`
	CurrencyMismatch *CurrencyMismatch `json:"currency_mismatch,omitempty"`
	AuthNormalized   *AuthNormalized   `json:"auth_normalized,omitempty"`
	Renewal          *Renewal          `json:"renewal,omitempty"`
	DowngradeCredit  *DowngradeCredit  `json:"downgrade_credit,omitempty"`
	Extra            map[string]string `json:"extra,omitempty"`
}

// IsZero reports whether no annotation kind is set.
func (a TransactionAnnotations) IsZero() bool {
	return a.PlanSnapshot == nil &&
		a.CurrencyMismatch == nil &&
		a.AuthNormalized == nil &&
		a.Renewal == nil &&
		a.DowngradeCredit == nil &&
		len(a.Extra) == 0
}

// Value marshals the annotations into a jsonb column.
func (a TransactionAnnotations) Value() (driver.Value, error) {
	if a.IsZero() {
		return nil, nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction annotations: %w", err)
	}
	return string(raw), nil
}

// Scan decodes the jsonb column back into typed annotations.
func (a *TransactionAnnotations) Scan(value any) error {
	if value == nil {
		*a = TransactionAnnotations{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("transaction annotations: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		*a = TransactionAnnotations{}
		return nil
	}
	return json.Unmarshal(raw, a)
}
