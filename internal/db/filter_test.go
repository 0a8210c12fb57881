package db

import (
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestFilterBuilder(t *testing.T) {
	filter := NewFilter().
		Eq("store_id", "store-1").
		Eq("deleted", false).
		Gt("unread_count", 0).
		Build()

	want := bson.M{
		"store_id":     "store-1",
		"deleted":      false,
		"unread_count": bson.M{"$gt": 0},
	}
	if !reflect.DeepEqual(filter, want) {
		t.Fatalf("filter = %v, want %v", filter, want)
	}
}

func TestFilterBuilderOr(t *testing.T) {
	filter := NewFilter().
		Eq("store_id", "store-1").
		Or(
			NewFilter().Eq("sender_id", "u1").Build(),
			NewFilter().Eq("recipient_id", "u1").Build(),
		).
		Build()

	or, ok := filter["$or"].([]bson.M)
	if !ok || len(or) != 2 {
		t.Fatalf("$or = %v", filter["$or"])
	}
	if or[0]["sender_id"] != "u1" || or[1]["recipient_id"] != "u1" {
		t.Fatalf("or branches = %v", or)
	}
}

func TestFilterBuilderObjectIDIgnoresInvalid(t *testing.T) {
	filter := NewFilter().ObjectID("_id", "not-a-hex-id").Build()
	if _, present := filter["_id"]; present {
		t.Fatalf("invalid object id should be skipped, got %v", filter)
	}
}

func TestEmptyFilter(t *testing.T) {
	if got := Empty(); len(got) != 0 {
		t.Fatalf("Empty() = %v", got)
	}
}
