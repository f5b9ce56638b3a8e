package models

// All lists every table the engine owns, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&Booking{},
		&Bid{},
		&ExtraPartsRequest{},
		&RescheduleRequest{},
		&Appeal{},
		&PaymentRecord{},
		&StageTransition{},
	}
}
