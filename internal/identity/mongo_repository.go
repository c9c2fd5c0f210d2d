package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

// MongoRepository implements Repository on a MongoDB collection.
type MongoRepository struct {
	col *mongo.Collection
}

// NewMongoRepository binds the users collection and ensures its indexes.
func NewMongoRepository(ctx context.Context, db *mongo.Database) (*MongoRepository, error) {
	r := &MongoRepository{col: db.Collection(usersCollection)}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *MongoRepository) ensureIndexes(ctx context.Context) error {
	verified := bson.M{"accountVerified": true}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "phone", Value: 1}, {Key: "createdAt", Value: -1}}},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("verified_email_uniq").SetUnique(true).SetPartialFilterExpression(verified),
		},
		{
			Keys:    bson.D{{Key: "phone", Value: 1}},
			Options: options.Index().SetName("verified_phone_uniq").SetUnique(true).SetPartialFilterExpression(verified),
		},
		{
			Keys:    bson.D{{Key: "resetPasswordToken", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}
	if _, err := r.col.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

// Create inserts a new user document.
func (r *MongoRepository) Create(ctx context.Context, user User) error {
	user.CreatedAt = user.CreatedAt.UTC()
	_, err := r.col.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

// FindByID fetches a user by id.
func (r *MongoRepository) FindByID(ctx context.Context, id string) (User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// FindVerified fetches a verified user by email or phone.
func (r *MongoRepository) FindVerified(ctx context.Context, email, phone string) (User, error) {
	return r.findOne(ctx, bson.M{"accountVerified": true, "$or": eitherContact(email, phone)})
}

// FindVerifiedByEmail fetches a verified user by email.
func (r *MongoRepository) FindVerifiedByEmail(ctx context.Context, email string) (User, error) {
	return r.findOne(ctx, bson.M{"accountVerified": true, "email": email})
}

// CountUnverified counts pending registrations sharing the email or phone.
func (r *MongoRepository) CountUnverified(ctx context.Context, email, phone string) (int, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"accountVerified": false, "$or": eitherContact(email, phone)})
	if err != nil {
		return 0, fmt.Errorf("count unverified: %w", err)
	}
	return int(n), nil
}

// LatestUnverified fetches the newest pending registration for the email or phone.
func (r *MongoRepository) LatestUnverified(ctx context.Context, email, phone string) (User, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return r.findOne(ctx, bson.M{"accountVerified": false, "$or": eitherContact(email, phone)}, opts)
}

// FindByResetToken fetches the user owning an unexpired reset token hash.
func (r *MongoRepository) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (User, error) {
	return r.findOne(ctx, bson.M{
		"resetPasswordToken":  tokenHash,
		"resetPasswordExpire": bson.M{"$gt": now.UTC()},
	})
}

// Update replaces the stored document, keeping its creation time.
func (r *MongoRepository) Update(ctx context.Context, user User) error {
	res, err := r.col.UpdateByID(ctx, user.ID, bson.M{"$set": bson.M{
		"name":                   user.Name,
		"email":                  user.Email,
		"phone":                  user.Phone,
		"password":               user.PasswordHash,
		"accountVerified":        user.AccountVerified,
		"verificationCode":       user.VerificationCode,
		"verificationCodeExpire": utcPtr(user.VerificationCodeExpire),
		"resetPasswordToken":     user.ResetPasswordToken,
		"resetPasswordExpire":    utcPtr(user.ResetPasswordExpire),
	}})
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetResetToken stores a reset token hash and expiry without touching other fields.
func (r *MongoRepository) SetResetToken(ctx context.Context, id, tokenHash string, expire time.Time) error {
	res, err := r.col.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"resetPasswordToken":  tokenHash,
		"resetPasswordExpire": expire.UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (User, error) {
	var user User
	err := r.col.FindOne(ctx, filter, opts...).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.VerificationCodeExpire = utcPtr(user.VerificationCodeExpire)
	user.ResetPasswordExpire = utcPtr(user.ResetPasswordExpire)
	return user, nil
}

func eitherContact(email, phone string) bson.A {
	return bson.A{bson.M{"email": email}, bson.M{"phone": phone}}
}
