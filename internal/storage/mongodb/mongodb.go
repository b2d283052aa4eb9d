// internal/storage/mongodb/mongodb.go
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"expense-tracker/internal/domain"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// the budget lives on the user document, one-to-one with its owner
type userDoc struct {
	ID                       primitive.ObjectID    `bson:"_id"`
	Name                     string                `bson:"name"`
	Email                    string                `bson:"email"`
	Password                 string                `bson:"password"`
	Role                     string                `bson:"role"`
	IsVerified               bool                  `bson:"isVerified"`
	VerificationToken        string                `bson:"verificationToken,omitempty"`
	VerificationTokenExpires *time.Time            `bson:"verificationTokenExpires,omitempty"`
	MonthlyBudget            *money                `bson:"monthlyBudget,omitempty"`
	BudgetWarningThreshold   *int                  `bson:"budgetWarningThreshold,omitempty"`
	BudgetUpdatedAt          *time.Time            `bson:"budgetUpdatedAt,omitempty"`
	CreatedAt                time.Time             `bson:"createdAt"`
}

type expenseDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	UserID      primitive.ObjectID `bson:"userId"`
	Description string             `bson:"description"`
	Amount      money              `bson:"amount"`
	Category    string             `bson:"category"`
	Date        time.Time          `bson:"date"`
	CreatedAt   time.Time          `bson:"createdAt"`
}

type Storage struct {
	client   *mongo.Client
	db       *mongo.Database
	users    *mongo.Collection
	expenses *mongo.Collection
	now      func() time.Time
}

// Open connects to uri, pings and makes sure the indexes exist.
func Open(ctx context.Context, uri, database string) (*Storage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database(database)
	s := &Storage{
		client:   client,
		db:       db,
		users:    db.Collection("users"),
		expenses: db.Collection("expenses"),
		now:      time.Now,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "verificationToken", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	_, err = s.expenses.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "date", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create expense indexes: %w", err)
	}
	return nil
}

func (s *Storage) Name() string { return "mongodb" }

func (s *Storage) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

func (s *Storage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, domain.ErrNotFound
	}
	return oid, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	dec, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("convert amount %s: %w", d, err)
	}
	return dec, nil
}

func fromDecimal128(d primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(d.String())
}

// === UserStorage ===

func (d userDoc) toDomain() domain.User {
	return domain.User{
		ID:                       d.ID.Hex(),
		Name:                     d.Name,
		Email:                    d.Email,
		PasswordHash:             d.Password,
		Role:                     domain.Role(d.Role),
		IsVerified:               d.IsVerified,
		CreatedAt:                d.CreatedAt.UTC(),
		VerificationTokenHash:    d.VerificationToken,
		VerificationTokenExpires: d.VerificationTokenExpires,
	}
}

func (s *Storage) CreateUser(ctx context.Context, u *domain.User) error {
	oid := primitive.NewObjectID()
	if u.ID != "" {
		parsed, err := primitive.ObjectIDFromHex(u.ID)
		if err != nil {
			return fmt.Errorf("create user: invalid id %q: %w", u.ID, err)
		}
		oid = parsed
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC().Truncate(time.Millisecond)
	}
	doc := userDoc{
		ID:                       oid,
		Name:                     u.Name,
		Email:                    strings.ToLower(u.Email),
		Password:                 u.PasswordHash,
		Role:                     string(u.Role),
		IsVerified:               u.IsVerified,
		VerificationToken:        u.VerificationTokenHash,
		VerificationTokenExpires: u.VerificationTokenExpires,
		CreatedAt:                u.CreatedAt,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("create user %s: %w", u.Email, domain.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	u.ID = oid.Hex()
	return nil
}

func (s *Storage) findUser(ctx context.Context, filter bson.D) (*userDoc, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &doc, nil
}

func (s *Storage) getUser(ctx context.Context, filter bson.D) (*domain.User, error) {
	doc, err := s.findUser(ctx, filter)
	if err != nil {
		return nil, err
	}
	u := doc.toDomain()
	return &u, nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return s.getUser(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, bson.D{{Key: "email", Value: strings.ToLower(email)}})
}

func (s *Storage) GetUserByVerificationToken(ctx context.Context, tokenHash string) (*domain.User, error) {
	if tokenHash == "" {
		return nil, domain.ErrNotFound
	}
	return s.getUser(ctx, bson.D{{Key: "verificationToken", Value: tokenHash}})
}

func (s *Storage) updateUser(ctx context.Context, op, id string, update bson.D) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := s.users.UpdateByID(ctx, oid, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Storage) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.updateUser(ctx, "update password", id, bson.D{{Key: "$set", Value: bson.D{{Key: "password", Value: passwordHash}}}})
}

func (s *Storage) SetVerificationToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	return s.updateUser(ctx, "set verification token", id, bson.D{{Key: "$set", Value: bson.D{
		{Key: "verificationToken", Value: tokenHash},
		{Key: "verificationTokenExpires", Value: expires},
	}}})
}

func (s *Storage) MarkVerified(ctx context.Context, id string) error {
	return s.updateUser(ctx, "mark verified", id, bson.D{
		{Key: "$set", Value: bson.D{{Key: "isVerified", Value: true}}},
		{Key: "$unset", Value: bson.D{{Key: "verificationToken", Value: ""}, {Key: "verificationTokenExpires", Value: ""}}},
	})
}

func (s *Storage) SetRole(ctx context.Context, id string, role domain.Role) error {
	return s.updateUser(ctx, "set role", id, bson.D{{Key: "$set", Value: bson.D{{Key: "role", Value: string(role)}}}})
}

func (s *Storage) ListUsers(ctx context.Context) ([]domain.User, error) {
	cur, err := s.users.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	users := make([]domain.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.toDomain())
	}
	return users, nil
}

func (s *Storage) DeleteUser(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := s.users.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	if _, err := s.expenses.DeleteMany(ctx, bson.D{{Key: "userId", Value: oid}}); err != nil {
		return fmt.Errorf("delete user expenses: %w", err)
	}
	return nil
}

func (s *Storage) CountUsers(ctx context.Context) (int64, error) {
	n, err := s.users.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// === ExpenseStorage ===

func (d expenseDoc) toDomain() (domain.Expense, error) {
	return domain.Expense{
		ID:          d.ID.Hex(),
		UserID:      d.UserID.Hex(),
		Description: d.Description,
		Amount:      d.Amount.Decimal,
		Category:    domain.Category(d.Category),
		Date:        domain.DateOf(d.Date.UTC()),
		CreatedAt:   d.CreatedAt.UTC(),
	}, nil
}

func (s *Storage) CreateExpense(ctx context.Context, e *domain.Expense) error {
	uid, err := objectID(e.UserID)
	if err != nil {
		return fmt.Errorf("create expense: unknown user %q: %w", e.UserID, err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC().Truncate(time.Millisecond)
	}
	doc := expenseDoc{
		ID:          primitive.NewObjectID(),
		UserID:      uid,
		Description: e.Description,
		Amount:      money{e.Amount},
		Category:    string(e.Category),
		Date:        e.Date,
		CreatedAt:   e.CreatedAt,
	}
	if _, err := s.expenses.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	e.ID = doc.ID.Hex()
	return nil
}

func ownedFilter(userID, id string) (bson.D, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	uid, err := objectID(userID)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: "_id", Value: oid}, {Key: "userId", Value: uid}}, nil
}

func (s *Storage) GetExpense(ctx context.Context, userID, id string) (*domain.Expense, error) {
	filter, err := ownedFilter(userID, id)
	if err != nil {
		return nil, err
	}
	var doc expenseDoc
	if err := s.expenses.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get expense: %w", err)
	}
	e, err := doc.toDomain()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

var newestFirst = bson.D{{Key: "date", Value: -1}, {Key: "createdAt", Value: -1}}

func (s *Storage) findExpenses(ctx context.Context, filter bson.D) ([]domain.Expense, error) {
	cur, err := s.expenses.Find(ctx, filter, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	var docs []expenseDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode expenses: %w", err)
	}
	out := make([]domain.Expense, 0, len(docs))
	for _, d := range docs {
		e, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func dateRange(from, to *time.Time) bson.D {
	r := bson.D{}
	if from != nil {
		r = append(r, bson.E{Key: "$gte", Value: *from})
	}
	if to != nil {
		r = append(r, bson.E{Key: "$lte", Value: *to})
	}
	return r
}

func (s *Storage) ListExpenses(ctx context.Context, userID string, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	uid, err := objectID(userID)
	if err != nil {
		return []domain.Expense{}, nil
	}
	q := bson.D{{Key: "userId", Value: uid}}
	if filter.StartDate != nil || filter.EndDate != nil {
		q = append(q, bson.E{Key: "date", Value: dateRange(filter.StartDate, filter.EndDate)})
	}
	if filter.Category != "" {
		q = append(q, bson.E{Key: "category", Value: string(filter.Category)})
	}
	return s.findExpenses(ctx, q)
}

func (s *Storage) UpdateExpense(ctx context.Context, userID, id string, patch domain.ExpensePatch) (*domain.Expense, error) {
	filter, err := ownedFilter(userID, id)
	if err != nil {
		return nil, err
	}
	set := bson.D{}
	if patch.Description != nil {
		set = append(set, bson.E{Key: "description", Value: *patch.Description})
	}
	if patch.Amount != nil {
		set = append(set, bson.E{Key: "amount", Value: money{*patch.Amount}})
	}
	if patch.Category != nil {
		set = append(set, bson.E{Key: "category", Value: string(*patch.Category)})
	}
	if patch.Date != nil {
		set = append(set, bson.E{Key: "date", Value: *patch.Date})
	}
	if len(set) == 0 {
		return s.GetExpense(ctx, userID, id)
	}

	var doc expenseDoc
	err = s.expenses.FindOneAndUpdate(ctx, filter, bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("update expense: %w", err)
	}
	e, err := doc.toDomain()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Storage) DeleteExpense(ctx context.Context, userID, id string) error {
	filter, err := ownedFilter(userID, id)
	if err != nil {
		return err
	}
	res, err := s.expenses.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Storage) SumExpenses(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, error) {
	uid, err := objectID(userID)
	if err != nil {
		return decimal.Zero, nil
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "userId", Value: uid},
			{Key: "date", Value: dateRange(&from, &to)},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$amount"}}},
		}}},
	}
	cur, err := s.expenses.Aggregate(ctx, pipeline)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expenses: %w", err)
	}
	var out []struct {
		Total money `bson:"total"`
	}
	if err := cur.All(ctx, &out); err != nil {
		return decimal.Zero, fmt.Errorf("decode sum: %w", err)
	}
	if len(out) == 0 {
		return decimal.Zero, nil
	}
	return out[0].Total.Decimal, nil
}

func (s *Storage) ListAllExpenses(ctx context.Context) ([]domain.Expense, error) {
	return s.findExpenses(ctx, bson.D{})
}

func (s *Storage) RenameCategory(ctx context.Context, from, to domain.Category) (int64, error) {
	res, err := s.expenses.UpdateMany(ctx,
		bson.D{{Key: "category", Value: string(from)}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "category", Value: string(to)}}}})
	if err != nil {
		return 0, fmt.Errorf("rename category: %w", err)
	}
	return res.ModifiedCount, nil
}

// === BudgetStorage ===

func (s *Storage) GetBudget(ctx context.Context, userID string) (*domain.Budget, error) {
	oid, err := objectID(userID)
	if err != nil {
		return nil, nil
	}
	doc, err := s.findUser(ctx, bson.D{{Key: "_id", Value: oid}})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if doc.MonthlyBudget == nil {
		return nil, nil
	}
	b := &domain.Budget{UserID: userID, MonthlyBudget: doc.MonthlyBudget.Decimal, WarningThreshold: domain.DefaultWarningThreshold}
	if doc.BudgetWarningThreshold != nil {
		b.WarningThreshold = *doc.BudgetWarningThreshold
	}
	if doc.BudgetUpdatedAt != nil {
		b.UpdatedAt = doc.BudgetUpdatedAt.UTC()
	}
	return b, nil
}

func (s *Storage) UpsertBudget(ctx context.Context, userID string, amount decimal.Decimal, threshold *int) (*domain.Budget, error) {
	oid, err := objectID(userID)
	if err != nil {
		return nil, err
	}
	dec, err := toDecimal128(amount)
	if err != nil {
		return nil, err
	}
	var th any = bson.D{{Key: "$ifNull", Value: bson.A{"$budgetWarningThreshold", domain.DefaultWarningThreshold}}}
	if threshold != nil {
		th = *threshold
	}
	// pipeline form so a missing threshold can fall back to the default in one round trip
	update := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "monthlyBudget", Value: dec},
		{Key: "budgetWarningThreshold", Value: th},
		{Key: "budgetUpdatedAt", Value: s.now().UTC()},
	}}}}
	res, err := s.users.UpdateByID(ctx, oid, update)
	if err != nil {
		return nil, fmt.Errorf("upsert budget: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, domain.ErrNotFound
	}
	return s.GetBudget(ctx, userID)
}
