package postgres

import (
	"context"
	"os"
	"testing"

	"expense-tracker/internal/domain"
	"expense-tracker/internal/storage"
	"expense-tracker/internal/storage/storagetest"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Needs a disposable database: every test truncates all tables.
func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_URL")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	_, err = s.db.Exec(ctx, "TRUNCATE budgets, expenses, users")
	require.NoError(t, err)
	return s
}

func TestPostgresStore(t *testing.T) {
	if os.Getenv("POSTGRES_TEST_URL") == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s := openTestStorage(t)
		storagetest.RequireEmpty(t, s)
		return s
	})
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	s := openTestStorage(t)
	defer s.Close()
	ctx := context.Background()

	_, err := s.GetExpense(ctx, "not-a-uuid", "also-not")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.DeleteExpense(ctx, "x", "y"), domain.ErrNotFound)
	_, err = s.GetUserByID(ctx, "42")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestParseID(t *testing.T) {
	_, err := parseID("abc")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	id, err := parseID("1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	require.NoError(t, err)
	assert.Equal(t, "1b4e28ba-2fa1-11d2-883f-0016d3cca427", id.String())
}

// legacySchema is the layout the Node server created on startup.
const legacySchema = `
DROP TABLE IF EXISTS budgets, expenses, users, goose_db_version CASCADE;
CREATE TABLE users (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name VARCHAR(255) NOT NULL,
	email VARCHAR(255) UNIQUE NOT NULL,
	password VARCHAR(255) NOT NULL,
	role VARCHAR(50) DEFAULT 'user',
	is_verified BOOLEAN DEFAULT false,
	verification_token VARCHAR(255),
	verification_token_expires TIMESTAMP,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE expenses (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	description VARCHAR(255) NOT NULL,
	amount DECIMAL(10, 2) NOT NULL,
	category VARCHAR(100) NOT NULL,
	date DATE NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE budgets (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id UUID NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
	monthly_budget DECIMAL(10, 2),
	warning_threshold INTEGER DEFAULT 80,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
INSERT INTO users (id, name, email, password, role)
	VALUES ('6f1c2a4e-9d3b-4c1a-8e2f-1a2b3c4d5e6f', 'Asha', 'asha@example.com', 'bcrypt-hash', NULL);
INSERT INTO expenses (user_id, description, amount, category, date)
	VALUES ('6f1c2a4e-9d3b-4c1a-8e2f-1a2b3c4d5e6f', 'Bus pass', 30.00, 'Transport', '2024-03-10');
INSERT INTO budgets (user_id, monthly_budget, warning_threshold)
	VALUES ('6f1c2a4e-9d3b-4c1a-8e2f-1a2b3c4d5e6f', 1000.00, NULL);
`

func TestOpenAdoptsLegacySchema(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_URL")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}
	ctx := context.Background()

	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, legacySchema)
	require.NoError(t, err)
	require.NoError(t, conn.Close(ctx))
	t.Cleanup(func() {
		// leave a fresh schema behind for the other tests
		conn, err := pgx.Connect(ctx, dsn)
		require.NoError(t, err)
		defer conn.Close(ctx)
		_, err = conn.Exec(ctx, "DROP TABLE IF EXISTS budgets, expenses, users, goose_db_version CASCADE")
		require.NoError(t, err)
	})

	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	u, err := s.GetUserByEmail(ctx, "asha@example.com")
	require.NoError(t, err)
	assert.Equal(t, "bcrypt-hash", u.PasswordHash)
	assert.Equal(t, domain.RoleUser, u.Role)
	assert.False(t, u.IsVerified)

	b, err := s.GetBudget(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "1000", b.MonthlyBudget.String())
	assert.Equal(t, domain.DefaultWarningThreshold, b.WarningThreshold)

	n, err := s.RenameCategory(ctx, domain.LegacyCategoryTransport, domain.CategoryTravelling)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	expenses, err := s.ListExpenses(ctx, u.ID, domain.ExpenseFilter{})
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, domain.CategoryTravelling, expenses[0].Category)
}
