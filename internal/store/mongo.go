package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nhle/taskminder/internal/model"
)

// maxToggleAttempts bounds the compare-and-set retries of ToggleTask.
const maxToggleAttempts = 5

// MongoStore implements the Store interface on MongoDB with one document
// per user holding the tasks as an embedded array.
type MongoStore struct {
	client *mongo.Client
	tasks  *mongo.Collection
	users  *mongo.Collection
}

// NewMongoStore connects to uri, selects database dbName and ensures the
// unique email indexes exist.
func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	s := newMongoStore(client, client.Database(dbName))

	emailIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	for _, coll := range []*mongo.Collection{s.tasks, s.users} {
		if _, err := coll.Indexes().CreateOne(ctx, emailIndex); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("creating email index on %s: %w", coll.Name(), err)
		}
	}

	// Sparse, so password-only accounts without a googleId do not collide.
	googleIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "googleId", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	}
	if _, err := s.users.Indexes().CreateOne(ctx, googleIndex); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("creating googleId index: %w", err)
	}

	return s, nil
}

func newMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{
		client: client,
		tasks:  db.Collection("tasks"),
		users:  db.Collection("users"),
	}
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// GetCollection returns the user's document.
func (s *MongoStore) GetCollection(
	ctx context.Context,
	email string,
) (*model.UserTaskCollection, error) {
	var col model.UserTaskCollection
	err := s.tasks.FindOne(ctx, bson.M{"email": email}).Decode(&col)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("collection %s: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("finding collection %s: %w", email, err)
	}
	if col.Tasks == nil {
		col.Tasks = []model.Task{}
	}
	return &col, nil
}

// EnsureCollection upserts an empty document for email.
func (s *MongoStore) EnsureCollection(ctx context.Context, email string) error {
	_, err := s.tasks.UpdateOne(ctx,
		bson.M{"email": email},
		bson.M{"$setOnInsert": bson.M{"tasks": bson.A{}}},
		options.Update().SetUpsert(true),
	)
	// A concurrent upsert may win the race on the unique index.
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("ensuring collection %s: %w", email, err)
	}
	return nil
}

// PushTask appends task to the embedded array with $push.
func (s *MongoStore) PushTask(
	ctx context.Context,
	email string,
	task model.Task,
) error {
	res, err := s.tasks.UpdateOne(ctx,
		bson.M{"email": email},
		bson.M{"$push": bson.M{"tasks": task}},
	)
	if err != nil {
		return fmt.Errorf("pushing task %s: %w", task.ID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("pushing task to %s: collection %w", email, ErrNotFound)
	}
	return nil
}

// UpdateTask sets the patch's fields on the matched array element using
// the positional operator. The pre-image is returned by the server and the
// patch applied to it locally, so the result reflects exactly this write.
func (s *MongoStore) UpdateTask(
	ctx context.Context,
	email, id string,
	patch model.TaskPatch,
) (*model.Task, error) {
	filter := bson.M{"email": email, "tasks._id": id}

	var col model.UserTaskCollection
	var err error
	if patch.Empty() {
		err = s.tasks.FindOne(ctx, filter).Decode(&col)
	} else {
		err = s.tasks.FindOneAndUpdate(ctx, filter,
			bson.M{"$set": patchSet(patch)},
			options.FindOneAndUpdate().SetReturnDocument(options.Before),
		).Decode(&col)
	}
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("updating task %s: %w", id, err)
	}

	task, ok := col.Find(id)
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	task = patch.Apply(task)
	return &task, nil
}

// patchSet maps the non-nil patch fields onto positional $set paths.
func patchSet(patch model.TaskPatch) bson.M {
	set := bson.M{}
	if patch.Title != nil {
		set["tasks.$.title"] = *patch.Title
	}
	if patch.Description != nil {
		set["tasks.$.description"] = *patch.Description
	}
	if patch.DueDate != nil {
		set["tasks.$.dueDate"] = *patch.DueDate
	}
	if patch.Status != nil {
		set["tasks.$.status"] = *patch.Status
	}
	return set
}

// ToggleTask flips the status with an optimistic compare-and-set on the
// status it read, retrying if another writer changed it in between.
func (s *MongoStore) ToggleTask(
	ctx context.Context,
	email, id string,
) (*model.Task, error) {
	for attempt := 0; attempt < maxToggleAttempts; attempt++ {
		col, err := s.GetCollection(ctx, email)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
			}
			return nil, err
		}
		task, ok := col.Find(id)
		if !ok {
			return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}

		toggled := task.Toggled()
		res, err := s.tasks.UpdateOne(ctx,
			bson.M{
				"email": email,
				"tasks": bson.M{"$elemMatch": bson.M{"_id": id, "status": task.Status}},
			},
			bson.M{"$set": bson.M{"tasks.$.status": toggled.Status}},
		)
		if err != nil {
			return nil, fmt.Errorf("toggling task %s: %w", id, err)
		}
		if res.MatchedCount == 1 {
			return &toggled, nil
		}
	}
	return nil, fmt.Errorf("toggling task %s: gave up after %d concurrent modifications",
		id, maxToggleAttempts)
}

// RemoveTask pulls the task out of the embedded array.
func (s *MongoStore) RemoveTask(ctx context.Context, email, id string) error {
	res, err := s.tasks.UpdateOne(ctx,
		bson.M{"email": email, "tasks._id": id},
		bson.M{"$pull": bson.M{"tasks": bson.M{"_id": id}}},
	)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListCollections returns every user document.
func (s *MongoStore) ListCollections(
	ctx context.Context,
) ([]model.UserTaskCollection, error) {
	cur, err := s.tasks.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "email", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("querying collections: %w", err)
	}

	var cols []model.UserTaskCollection
	if err := cur.All(ctx, &cols); err != nil {
		return nil, fmt.Errorf("decoding collections: %w", err)
	}
	return cols, nil
}

// MarkReminded sets reminded on the matching array elements with one
// update using an array filter.
func (s *MongoStore) MarkReminded(
	ctx context.Context,
	email string,
	ids []string,
) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := s.tasks.UpdateOne(ctx,
		bson.M{"email": email},
		bson.M{"$set": bson.M{"tasks.$[t].reminded": true}},
		options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{bson.M{"t._id": bson.M{"$in": ids}}},
		}),
	)
	if err != nil {
		return fmt.Errorf("marking %d tasks reminded for %s: %w", len(ids), email, err)
	}
	return nil
}

// CreateUser inserts a new user document. Generates a UUID if ID is empty.
func (s *MongoStore) CreateUser(ctx context.Context, u model.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	if _, err := s.users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("creating user %s: %w", u.Email, ErrConflict)
		}
		return fmt.Errorf("creating user %s: %w", u.Email, err)
	}
	return nil
}

// GetUserByEmail retrieves a single user by email.
func (s *MongoStore) GetUserByEmail(
	ctx context.Context,
	email string,
) (*model.User, error) {
	var u model.User
	err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("getting user %s: %w", email, err)
	}
	return &u, nil
}

// GetUserByGoogleID retrieves the user linked to a Google account.
func (s *MongoStore) GetUserByGoogleID(
	ctx context.Context,
	googleID string,
) (*model.User, error) {
	if googleID == "" {
		return nil, fmt.Errorf("user with empty google id: %w", ErrNotFound)
	}
	var u model.User
	err := s.users.FindOne(ctx, bson.M{"googleId": googleID}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user %s: %w", googleID, ErrNotFound)
		}
		return nil, fmt.Errorf("getting user %s: %w", googleID, err)
	}
	return &u, nil
}

// LinkGoogleID sets googleId on the user document with email.
func (s *MongoStore) LinkGoogleID(ctx context.Context, email, googleID string) error {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"email": email},
		bson.M{"$set": bson.M{"googleId": googleID}},
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("linking google account to %s: %w", email, ErrConflict)
		}
		return fmt.Errorf("linking google account to %s: %w", email, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	return nil
}
