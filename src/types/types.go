package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

// StringList is a JSON encoded list of strings. Evidence references and
// excluded contractor ids are stored with it.
type StringList []string

func (a StringList) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *StringList) Scan(value any) error {
	if value == nil {
		*a = nil
		return nil
	}
	b, err := scanBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, a)
}
func (StringList) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return jsonDataType(db)
}

// Contains reports whether v is in the list.
func (a StringList) Contains(v string) bool {
	for _, s := range a {
		if s == v {
			return true
		}
	}
	return false
}

// Merge appends the values of other that are not already present, keeping
// the original order. Empty values are dropped.
func (a StringList) Merge(other ...string) StringList {
	out := make(StringList, 0, len(a)+len(other))
	seen := make(map[string]struct{}, len(a)+len(other))
	for _, s := range append(append([]string{}, a...), other...) {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

type IncludedItem struct {
	Name string `json:"name" binding:"required"`
	Cost int64  `json:"cost" binding:"gte=0"`
}

type IncludedItems []IncludedItem

func (a IncludedItems) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *IncludedItems) Scan(value any) error {
	if value == nil {
		*a = nil
		return nil
	}
	b, err := scanBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, a)
}
func (IncludedItems) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return jsonDataType(db)
}

func scanBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("type assertion to []byte failed")
	}
}

func jsonDataType(db *gorm.DB) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "json"
}

type ServiceCategory string

const (
	CATEGORY_AIRCON     ServiceCategory = "aircon"
	CATEGORY_PLUMBING   ServiceCategory = "plumbing"
	CATEGORY_ELECTRICAL ServiceCategory = "electrical"
	CATEGORY_CLEANING   ServiceCategory = "cleaning"
	CATEGORY_PAINTING   ServiceCategory = "painting"
)

func (c ServiceCategory) Valid() bool {
	switch c {
	case CATEGORY_AIRCON, CATEGORY_PLUMBING, CATEGORY_ELECTRICAL, CATEGORY_CLEANING, CATEGORY_PAINTING:
		return true
	}
	return false
}

// Stage identifiers are persisted and transmitted verbatim. Renaming one is a
// breaking change for every consumer.
type Stage string

const (
	STAGE_SEEKING_CONTRACTOR  Stage = "seeking_contractor"
	STAGE_ASSIGNED            Stage = "assigned"
	STAGE_CONTRACTOR_EN_ROUTE Stage = "contractor_en_route"
	STAGE_WORK_STARTED        Stage = "work_started"
	STAGE_WORK_IN_PROGRESS    Stage = "work_in_progress"
	STAGE_WORK_COMPLETED      Stage = "work_completed"
	STAGE_AWAITING_PAYMENT    Stage = "awaiting_payment"
	STAGE_PAID                Stage = "paid"
	STAGE_CANCELLED           Stage = "cancelled"
	STAGE_FORFEITED           Stage = "forfeited"
)

func (s Stage) Valid() bool {
	switch s {
	case STAGE_SEEKING_CONTRACTOR, STAGE_ASSIGNED, STAGE_CONTRACTOR_EN_ROUTE, STAGE_WORK_STARTED,
		STAGE_WORK_IN_PROGRESS, STAGE_WORK_COMPLETED, STAGE_AWAITING_PAYMENT, STAGE_PAID,
		STAGE_CANCELLED, STAGE_FORFEITED:
		return true
	}
	return false
}

func (s Stage) Terminal() bool {
	return s == STAGE_PAID || s == STAGE_CANCELLED
}

type AssignmentMode string

const (
	MODE_OPEN_BIDDING         AssignmentMode = "open_bidding"
	MODE_PREFERRED_CONTRACTOR AssignmentMode = "preferred_contractor"
)

type BidStatus string

const (
	BID_PENDING  BidStatus = "pending"
	BID_ACCEPTED BidStatus = "accepted"
	BID_REJECTED BidStatus = "rejected"
	BID_EXPIRED  BidStatus = "expired"
)

type ExtraPartsStatus string

const (
	EXTRA_PARTS_PENDING        ExtraPartsStatus = "pending"
	EXTRA_PARTS_APPROVED       ExtraPartsStatus = "approved"
	EXTRA_PARTS_REJECTED       ExtraPartsStatus = "rejected"
	EXTRA_PARTS_DISREGARDED    ExtraPartsStatus = "disregarded"
	EXTRA_PARTS_PAY_AND_APPEAL ExtraPartsStatus = "pay_and_appeal"
	EXTRA_PARTS_WITHDRAWN      ExtraPartsStatus = "withdrawn"
)

// BILLABLE_EXTRA_PARTS are the resolved statuses that add to the payable total.
var BILLABLE_EXTRA_PARTS = []ExtraPartsStatus{EXTRA_PARTS_APPROVED, EXTRA_PARTS_PAY_AND_APPEAL}

type Decision string

const (
	DECISION_APPROVE        Decision = "approve"
	DECISION_REJECT         Decision = "reject"
	DECISION_DISREGARD      Decision = "disregard"
	DECISION_PAY_AND_APPEAL Decision = "pay_and_appeal"
)

func (d Decision) Valid() bool {
	switch d {
	case DECISION_APPROVE, DECISION_REJECT, DECISION_DISREGARD, DECISION_PAY_AND_APPEAL:
		return true
	}
	return false
}

// Status is the terminal request status a decision resolves to.
func (d Decision) Status() ExtraPartsStatus {
	switch d {
	case DECISION_APPROVE:
		return EXTRA_PARTS_APPROVED
	case DECISION_REJECT:
		return EXTRA_PARTS_REJECTED
	case DECISION_DISREGARD:
		return EXTRA_PARTS_DISREGARDED
	case DECISION_PAY_AND_APPEAL:
		return EXTRA_PARTS_PAY_AND_APPEAL
	}
	return ""
}

type RescheduleStatus string

const (
	RESCHEDULE_PENDING   RescheduleStatus = "pending"
	RESCHEDULE_APPROVED  RescheduleStatus = "approved"
	RESCHEDULE_REJECTED  RescheduleStatus = "rejected"
	RESCHEDULE_WITHDRAWN RescheduleStatus = "withdrawn"
)

type AppealStatus string

const (
	APPEAL_OPEN   AppealStatus = "open"
	APPEAL_UPHELD AppealStatus = "upheld"
	APPEAL_DENIED AppealStatus = "denied"
)

type PaymentStatus string

const (
	PAYMENT_AUTHORIZED     PaymentStatus = "authorized"
	PAYMENT_CAPTURED       PaymentStatus = "captured"
	PAYMENT_CAPTURE_FAILED PaymentStatus = "capture_failed"
)

type Role string

const (
	ROLE_CUSTOMER   Role = "customer"
	ROLE_CONTRACTOR Role = "contractor"
	ROLE_ARBITRATOR Role = "arbitrator"
	ROLE_SYSTEM     Role = "system"
)

// Actor is whoever issues a command against the engine.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func Customer(id string) Actor   { return Actor{ID: id, Role: ROLE_CUSTOMER} }
func Contractor(id string) Actor { return Actor{ID: id, Role: ROLE_CONTRACTOR} }

var System = Actor{ID: "system", Role: ROLE_SYSTEM}

type Environment string

const (
	Local      Environment = "local"
	Test       Environment = "test"
	Production Environment = "production"
)
