package validators

import "go.mongodb.org/mongo-driver/bson"

var TransactionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"order_id", "user_id", "type", "amount_minor", "created_at"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":      bson.M{"bsonType": "string"},
			"order_id": bson.M{"bsonType": "string"},
			"user_id":  bson.M{"bsonType": "string"},
			"type": bson.M{
				"enum": []string{"RECHARGE", "COURSE_FEE", "REFUND"},
			},
			"amount_minor": bson.M{"bsonType": "long"},
			"related_id":   bson.M{"bsonType": "string"},
			"created_at":   bson.M{"bsonType": "date"},
		},
	},
}
