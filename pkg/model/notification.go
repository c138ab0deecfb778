package model

// Notification is one delivered lifecycle event for one recipient,
// persisted by the notifier worker.
type Notification struct {
	ID        string         `json:"id,omitempty" bson:"_id,omitempty"`
	UserID    string         `json:"user_id" bson:"user_id"`
	Type      string         `json:"type" bson:"type"`
	EntityID  string         `json:"entity_id" bson:"entity_id"`
	Payload   map[string]any `json:"payload,omitempty" bson:"payload,omitempty"`
	Read      bool           `json:"read" bson:"read"`
	CreatedAt DateTime       `json:"created_at" bson:"created_at"`
}
