package domain

import "time"

type ReminderStatus string

const (
	ReminderPending ReminderStatus = "pending"
	ReminderSent    ReminderStatus = "sent"
	ReminderFailed  ReminderStatus = "failed"
)

type ReminderChannel string

const (
	ChannelSMS      ReminderChannel = "sms"
	ChannelTelegram ReminderChannel = "telegram"
)

// Reminder is a scheduled visit notification for a patient. Patient contact
// fields are denormalised onto the reminder when it is created.
type Reminder struct {
	ID           string          `json:"id" bson:"_id"`
	PatientID    string          `json:"patient_id" bson:"patient_id"`
	VisitOrderID string          `json:"visit_order_id" bson:"visit_order_id"`
	Channel      ReminderChannel `json:"channel" bson:"channel"`
	Message      string          `json:"message" bson:"message"`
	RemindAt     time.Time       `json:"remind_at" bson:"remind_at"`
	Status       ReminderStatus  `json:"status" bson:"status"`
	SentAt       *time.Time      `json:"sent_at,omitempty" bson:"sent_at,omitempty"`
	PatientName  string          `json:"patient_name,omitempty" bson:"patient_name,omitempty"`
	PatientPhone string          `json:"patient_phone,omitempty" bson:"patient_phone,omitempty"`
	CreatedAt    time.Time       `json:"created_at" bson:"created_at"`
}
