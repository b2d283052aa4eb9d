package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"expense-tracker/internal/domain"
	"expense-tracker/internal/storage"
	"expense-tracker/internal/storage/storagetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testDatabase = "expense_tracker_test"

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	storagetest.Run(t, func(t *testing.T) storage.Store {
		ctx := context.Background()
		s, err := Open(ctx, uri, testDatabase)
		require.NoError(t, err)
		require.NoError(t, s.db.Drop(ctx))
		require.NoError(t, s.ensureIndexes(ctx))
		return s
	})
}

func TestDecimal128RoundTrip(t *testing.T) {
	for _, in := range []string{"0", "0.01", "123.45", "99999999.99"} {
		dec, err := toDecimal128(decimal.RequireFromString(in))
		require.NoError(t, err)
		out, err := fromDecimal128(dec)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString(in).Equal(out), "%s != %s", in, out)
	}
}

func TestObjectID(t *testing.T) {
	_, err := objectID("not-hex")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	oid, err := objectID("507f1f77bcf86cd799439011")
	require.NoError(t, err)
	assert.Equal(t, "507f1f77bcf86cd799439011", oid.Hex())
}

func TestExpenseDocReadsNumericAmounts(t *testing.T) {
	uid := primitive.NewObjectID()
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	stored, err := primitive.ParseDecimal128("12.50")
	require.NoError(t, err)

	for name, amount := range map[string]any{
		"double":     12.5,
		"int32":      int32(12),
		"int64":      int64(12),
		"decimal128": stored,
	} {
		t.Run(name, func(t *testing.T) {
			raw, err := bson.Marshal(bson.D{
				{Key: "_id", Value: primitive.NewObjectID()},
				{Key: "userId", Value: uid},
				{Key: "description", Value: "Bus pass"},
				{Key: "amount", Value: amount},
				{Key: "category", Value: "Transport"},
				{Key: "date", Value: day},
			})
			require.NoError(t, err)

			var doc expenseDoc
			require.NoError(t, bson.Unmarshal(raw, &doc))
			e, err := doc.toDomain()
			require.NoError(t, err)
			assert.Equal(t, uid.Hex(), e.UserID)
			assert.True(t, e.Amount.GreaterThanOrEqual(decimal.NewFromInt(12)), "amount %s", e.Amount)
			assert.Equal(t, day, e.Date)
		})
	}
}

func TestExpenseDocWritesDecimal128(t *testing.T) {
	raw, err := bson.Marshal(expenseDoc{
		ID:     primitive.NewObjectID(),
		UserID: primitive.NewObjectID(),
		Amount: money{decimal.RequireFromString("19.99")},
	})
	require.NoError(t, err)

	amount := bson.Raw(raw).Lookup("amount")
	assert.Equal(t, bson.TypeDecimal128, amount.Type)
	assert.Equal(t, "19.99", amount.Decimal128().String())
	assert.Equal(t, bson.TypeObjectID, bson.Raw(raw).Lookup("userId").Type)
}

func TestUserDocReadsNumericBudget(t *testing.T) {
	raw, err := bson.Marshal(bson.D{
		{Key: "_id", Value: primitive.NewObjectID()},
		{Key: "email", Value: "asha@example.com"},
		{Key: "monthlyBudget", Value: 1500.0},
		{Key: "budgetWarningThreshold", Value: 75.0},
	})
	require.NoError(t, err)

	var doc userDoc
	require.NoError(t, bson.Unmarshal(raw, &doc))
	require.NotNil(t, doc.MonthlyBudget)
	assert.True(t, decimal.NewFromInt(1500).Equal(doc.MonthlyBudget.Decimal))
	require.NotNil(t, doc.BudgetWarningThreshold)
	assert.Equal(t, 75, *doc.BudgetWarningThreshold)
}
