package types

type SimpleRequestParams struct {
	ID string `uri:"id" binding:"required,uuid"`
}

type CreateBookingRequestBody struct {
	Category              ServiceCategory `json:"category" binding:"required,servicecategory"`
	BudgetMin             int64           `json:"budgetMin" binding:"gte=0"`
	BudgetMax             int64           `json:"budgetMax" binding:"required,gt=0,gtefield=BudgetMin"`
	Currency              string          `json:"currency,omitempty" binding:"omitempty,len=3"`
	ScheduledAt           *string         `json:"scheduledAt,omitempty" binding:"required_without=ASAP,omitempty,bookabledate"`
	ASAP                  bool            `json:"asap,omitempty"`
	Mode                  AssignmentMode  `json:"mode,omitempty" binding:"omitempty,oneof=open_bidding preferred_contractor"`
	PreferredContractorID string          `json:"preferredContractorId,omitempty" binding:"required_if=Mode preferred_contractor"`
}

type BookingsQueryFilters struct {
	Stage    Stage `form:"stage"`
	Page     int   `form:"page" binding:"gte=0"`
	PageSize int   `form:"pageSize" binding:"gte=0,lte=100"`
}

// StatusPatchRequestBody is the status patch contract: { stage, contractorId?, evidence?, eta? }.
type StatusPatchRequestBody struct {
	Stage        Stage    `json:"stage" binding:"required,stage"`
	ContractorID string   `json:"contractorId,omitempty"`
	Evidence     []string `json:"evidence,omitempty" binding:"omitempty,dive,required"`
	ETA          *int     `json:"eta,omitempty" binding:"omitempty,gt=0"`
}

type CancelBookingRequestBody struct {
	Reason string `json:"reason,omitempty"`
}

type SubmitBidRequestBody struct {
	BookingID        string         `json:"bookingId" binding:"required,uuid"`
	ContractorID     string         `json:"contractorId" binding:"required"`
	Amount           int64          `json:"amount" binding:"required,gt=0"`
	IncludedItems    []IncludedItem `json:"includedItems,omitempty" binding:"omitempty,dive"`
	ETAMinutes       int            `json:"etaMinutes" binding:"required,gt=0"`
	Note             string         `json:"note,omitempty"`
	ExpiresInMinutes int            `json:"expiresInMinutes" binding:"gte=0"`
}

type AcceptBidRequestBody struct {
	CustomerID string `json:"customerId" binding:"required"`
}

type RejectBidRequestBody struct {
	CustomerID string `json:"customerId" binding:"required"`
	Reason     string `json:"reason,omitempty"`
}

type CreateExtraPartsRequestBody struct {
	ContractorID  string `json:"contractorId" binding:"required"`
	PartName      string `json:"partName" binding:"required"`
	Quantity      int    `json:"quantity" binding:"required,gt=0"`
	UnitPrice     int64  `json:"unitPrice" binding:"required,gt=0"`
	TotalPrice    int64  `json:"totalPrice,omitempty" binding:"gte=0"`
	Justification string `json:"justification" binding:"required"`
	PhotoRef      string `json:"photoRef,omitempty"`
}

// ResolveExtraPartsRequestBody is { requestId, customerId, decision, appealReason? }; the
// request id travels in the URI.
type ResolveExtraPartsRequestBody struct {
	CustomerID   string   `json:"customerId" binding:"required"`
	Decision     Decision `json:"decision" binding:"required,decision"`
	Confirm      bool     `json:"confirm,omitempty"`
	AppealReason string   `json:"appealReason,omitempty" binding:"required_if=Decision pay_and_appeal"`
}

type CreateRescheduleRequestBody struct {
	ProposedAt *string `json:"proposedAt,omitempty" binding:"required_without=ASAP,omitempty,bookabledate"`
	ASAP       bool    `json:"asap,omitempty"`
	Reason     string  `json:"reason" binding:"required"`
}

type ResolveRescheduleRequestBody struct {
	Approve bool `json:"approve"`
}

type SettlePaymentRequestBody struct {
	PayerID       string `json:"payerId" binding:"required"`
	PaymentMethod string `json:"paymentMethodId,omitempty"`
}

type ResolveAppealRequestBody struct {
	Outcome AppealStatus `json:"outcome" binding:"required,oneof=upheld denied"`
	Note    string       `json:"note,omitempty"`
}
