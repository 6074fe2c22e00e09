package store

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestUnreadOwnedFilter(t *testing.T) {
	req := require.New(t)
	id := primitive.NewObjectID()

	filter, ok := unreadOwnedFilter("client", []string{id.Hex(), id.Hex(), "not-an-id"})

	req.True(ok)
	req.Equal(bson.M{"$in": []primitive.ObjectID{id}}, filter["_id"])
	req.Equal("client", filter["receiverId"])
	req.Equal(false, filter["read"])
}

func TestUnreadOwnedFilter_No_Valid_Ids(t *testing.T) {
	_, ok := unreadOwnedFilter("client", []string{"nope"})
	require.False(t, ok)
}

func TestPairFilter_Matches_Both_Directions(t *testing.T) {
	req := require.New(t)
	or := pairFilter("a", "b")["$or"].(bson.A)
	req.Len(or, 2)
	req.Contains(or, bson.M{"senderId": "a", "receiverId": "b"})
	req.Contains(or, bson.M{"senderId": "b", "receiverId": "a"})
}
