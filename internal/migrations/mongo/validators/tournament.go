package validators

import "go.mongodb.org/mongo-driver/bson"

var TournamentValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"campus_id", "name", "groups", "event_date", "registration_window", "status", "created_at"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":       bson.M{"bsonType": "string"},
			"campus_id": bson.M{"bsonType": "string"},
			"name":      bson.M{"bsonType": "string"},
			"groups": bson.M{
				"bsonType": "array",
				"minItems": 1,
				"items":    bson.M{"bsonType": "string"},
			},
			"event_date": bson.M{"bsonType": "date"},
			"registration_window": bson.M{
				"bsonType": "object",
				"required": []string{"open", "close"},
				"properties": bson.M{
					"open":  bson.M{"bsonType": "date"},
					"close": bson.M{"bsonType": "date"},
				},
			},
			"status": bson.M{
				"enum": []string{"DRAFT", "PUBLISHED", "REGISTRATION_CLOSED", "IN_PROGRESS", "COMPLETED", "CANCELLED"},
			},
			"created_by": bson.M{"bsonType": "string"},
			"created_at": bson.M{"bsonType": "date"},
		},
	},
}
