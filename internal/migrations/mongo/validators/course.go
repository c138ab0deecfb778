package validators

import "go.mongodb.org/mongo-driver/bson"

var CourseValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"coach_id", "student_id", "table_id", "start_time", "end_time", "status", "created_at"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":        bson.M{"bsonType": "string"},
			"coach_id":   bson.M{"bsonType": "string"},
			"student_id": bson.M{"bsonType": "string"},
			"campus_id":  bson.M{"bsonType": "string"},
			"table_id":   bson.M{"bsonType": "string"},
			"start_time": bson.M{"bsonType": "date"},
			"end_time":   bson.M{"bsonType": "date"},
			"fee_minor":  bson.M{"bsonType": "long"},
			"status": bson.M{
				"enum": []string{"PENDING", "CONFIRMED", "REJECTED", "CANCELLED", "COMPLETED"},
			},
			"created_at": bson.M{"bsonType": "date"},
		},
	},
}
