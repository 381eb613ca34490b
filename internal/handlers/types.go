package handlers

// CreateBookingRequest is the body of POST /api/bookings.
type CreateBookingRequest struct {
	Trainer     string `json:"trainer"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	SlotID      string `json:"slot_id"`
	PaymentType string `json:"payment_type"`
	LessonType  string `json:"lesson_type"`
}

// CompleteRescheduleRequest names the newly chosen slot.
type CompleteRescheduleRequest struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	SlotID string `json:"slot_id"`
}

// UpdateProfileRequest is the body of PATCH /api/me.
type UpdateProfileRequest struct {
	FullName *string `json:"full_name"`
	Phone    *string `json:"phone"`
}

// GrantSubscriptionRequest is the admin subscription grant body.
type GrantSubscriptionRequest struct {
	ClassesTotal int `json:"classes_total"`
}
