package validators

import "go.mongodb.org/mongo-driver/bson"

var RelationValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"coach_id", "student_id", "status", "applied_at"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":        bson.M{"bsonType": "string"},
			"coach_id":   bson.M{"bsonType": "string"},
			"student_id": bson.M{"bsonType": "string"},
			"status": bson.M{
				"enum": []string{"PENDING", "APPROVED", "REJECTED"},
			},
			"reason":     bson.M{"bsonType": "string"},
			"applied_at": bson.M{"bsonType": "date"},
			"decided_at": bson.M{"bsonType": "date"},
		},
	},
}
