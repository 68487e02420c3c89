package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type feeHolder struct {
	Fee Fee `bson:"fee"`
}

func TestFeeBSON(t *testing.T) {
	t.Run("stored as a decimal string and read back exactly", func(t *testing.T) {
		in := feeHolder{Fee: NewFee(decimal.RequireFromString("150000.50"))}
		data, err := bson.Marshal(in)
		require.NoError(t, err)

		var raw bson.M
		require.NoError(t, bson.Unmarshal(data, &raw))
		assert.Equal(t, "150000.5", raw["fee"])

		var out feeHolder
		require.NoError(t, bson.Unmarshal(data, &out))
		assert.True(t, in.Fee.Equal(out.Fee.Decimal), "got %s", out.Fee)
	})

	t.Run("null and empty decode to zero", func(t *testing.T) {
		for _, doc := range []bson.M{{"fee": nil}, {"fee": ""}} {
			data, err := bson.Marshal(doc)
			require.NoError(t, err)
			out := feeHolder{Fee: NewFee(decimal.NewFromInt(7))}
			require.NoError(t, bson.Unmarshal(data, &out))
			assert.True(t, out.Fee.IsZero())
		}
	})

	t.Run("non-numeric strings are rejected", func(t *testing.T) {
		data, err := bson.Marshal(bson.M{"fee": "free"})
		require.NoError(t, err)
		var out feeHolder
		assert.Error(t, bson.Unmarshal(data, &out))
	})
}
