package mongostore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestToDocument_NormalizesBSONValues(t *testing.T) {
	now := time.Now()
	d := document{
		ID:      "id-1",
		OwnerID: "u1",
		Data: bson.M{
			"userId":         "u1",
			"points":         int32(30),
			"reviewedJobIds": bson.A{"a", "b"},
		},
		UpdatedAt: now,
	}

	out, err := toDocument(d)
	require.NoError(t, err)
	require.Equal(t, "id-1", out.ID)
	require.Equal(t, "u1", out.OwnerID)
	require.Equal(t, float64(30), out.Data["points"])
	require.Equal(t, []any{"a", "b"}, out.Data["reviewedJobIds"])
	require.Equal(t, now, out.UpdatedAt)
}

func TestToDocument_NilData(t *testing.T) {
	out, err := toDocument(document{ID: "x"})
	require.NoError(t, err)
	require.NotNil(t, out.Data)
	require.Empty(t, out.Data)
}
