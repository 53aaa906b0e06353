package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/nhle/taskminder/internal/model"
)

const tasksNS = "taskminder.tasks"

func mockStore(mt *mtest.T) *MongoStore {
	return newMongoStore(mt.Client, mt.DB)
}

// updated returns n matched documents, as the server reports for update.
func updated(n int) bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "n", Value: n}, bson.E{Key: "nModified", Value: n})
}

func collectionDoc(email string, tasks ...model.Task) bson.D {
	arr := bson.A{}
	for _, t := range tasks {
		arr = append(arr, t)
	}
	return bson.D{{Key: "email", Value: email}, {Key: "tasks", Value: arr}}
}

func found(docs ...bson.D) bson.D {
	return mtest.CreateCursorResponse(0, tasksNS, mtest.FirstBatch, docs...)
}

// nextUpdate pops the next started event, which must be a single-statement
// update, and returns its filter and update documents.
func nextUpdate(mt *mtest.T) (q, u bson.Raw, stmt bson.Raw) {
	mt.Helper()
	ev := mt.GetStartedEvent()
	require.NotNil(mt, ev)
	require.Equal(mt, "update", ev.CommandName)
	stmt = ev.Command.Lookup("updates", "0").Document()
	return stmt.Lookup("q").Document(), stmt.Lookup("u").Document(), stmt
}

func nextCommand(mt *mtest.T) string {
	mt.Helper()
	ev := mt.GetStartedEvent()
	require.NotNil(mt, ev)
	return ev.CommandName
}

func sampleTask(id string, status model.Status) model.Task {
	return model.Task{
		ID:          id,
		Title:       "title " + id,
		Description: "desc " + id,
		DueDate:     "2026-10-20T10:00",
		Status:      status,
		Reminded:    true,
	}
}

func TestMongoStore_EnsureCollection(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("upserts empty array", func(mt *mtest.T) {
		mt.AddMockResponses(updated(1))

		require.NoError(mt, mockStore(mt).EnsureCollection(ctx, "a@example.com"))

		q, u, stmt := nextUpdate(mt)
		assert.Equal(mt, "a@example.com", q.Lookup("email").StringValue())
		assert.True(mt, stmt.Lookup("upsert").Boolean())
		arr, ok := u.Lookup("$setOnInsert", "tasks").ArrayOK()
		require.True(mt, ok)
		vals, err := arr.Values()
		require.NoError(mt, err)
		assert.Empty(mt, vals)
	})

	mt.Run("duplicate key from racing upsert is success", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 11000, Message: "E11000 duplicate key error",
		}))

		assert.NoError(mt, mockStore(mt).EnsureCollection(ctx, "a@example.com"))
	})

	mt.Run("other write errors surface", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 2, Message: "bad value",
		}))

		assert.Error(mt, mockStore(mt).EnsureCollection(ctx, "a@example.com"))
	})
}

func TestMongoStore_GetCollection(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("decodes tasks in order", func(mt *mtest.T) {
		mt.AddMockResponses(found(collectionDoc("a@example.com",
			sampleTask("t2", model.StatusOpen), sampleTask("t1", model.StatusCompleted))))

		col, err := mockStore(mt).GetCollection(ctx, "a@example.com")
		require.NoError(mt, err)
		require.Len(mt, col.Tasks, 2)
		assert.Equal(mt, "t2", col.Tasks[0].ID)
		assert.Equal(mt, sampleTask("t1", model.StatusCompleted), col.Tasks[1])
	})

	mt.Run("missing tasks field reads as empty", func(mt *mtest.T) {
		mt.AddMockResponses(found(bson.D{{Key: "email", Value: "a@example.com"}}))

		col, err := mockStore(mt).GetCollection(ctx, "a@example.com")
		require.NoError(mt, err)
		assert.NotNil(mt, col.Tasks)
		assert.Empty(mt, col.Tasks)
	})

	mt.Run("missing collection", func(mt *mtest.T) {
		mt.AddMockResponses(found())

		_, err := mockStore(mt).GetCollection(ctx, "a@example.com")
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestMongoStore_PushTask(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("appends with $push", func(mt *mtest.T) {
		mt.AddMockResponses(updated(1))

		require.NoError(mt, mockStore(mt).PushTask(ctx, "a@example.com", sampleTask("t1", model.StatusOpen)))

		q, u, _ := nextUpdate(mt)
		assert.Equal(mt, "a@example.com", q.Lookup("email").StringValue())
		assert.Equal(mt, "t1", u.Lookup("$push", "tasks", "_id").StringValue())
		assert.Equal(mt, "open", u.Lookup("$push", "tasks", "status").StringValue())
		_, err := u.LookupErr("$set")
		assert.Error(mt, err)
	})

	mt.Run("no collection", func(mt *mtest.T) {
		mt.AddMockResponses(updated(0))

		err := mockStore(mt).PushTask(ctx, "a@example.com", sampleTask("t1", model.StatusOpen))
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestMongoStore_UpdateTask(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("sets only patched fields through the positional operator", func(mt *mtest.T) {
		before := collectionDoc("a@example.com",
			sampleTask("t0", model.StatusOpen), sampleTask("t1", model.StatusOpen))
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: before}))

		title := "renamed"
		completed := model.StatusCompleted
		got, err := mockStore(mt).UpdateTask(ctx, "a@example.com", "t1",
			model.TaskPatch{Title: &title, Status: &completed})
		require.NoError(mt, err)

		want := sampleTask("t1", model.StatusCompleted)
		want.Title = "renamed"
		assert.Equal(mt, want, *got)

		ev := mt.GetStartedEvent()
		require.NotNil(mt, ev)
		require.Equal(mt, "findAndModify", ev.CommandName)
		assert.Equal(mt, "a@example.com", ev.Command.Lookup("query", "email").StringValue())
		assert.Equal(mt, "t1", ev.Command.Lookup("query", "tasks._id").StringValue())

		set := ev.Command.Lookup("update", "$set").Document()
		assert.Equal(mt, "renamed", set.Lookup("tasks.$.title").StringValue())
		assert.Equal(mt, "completed", set.Lookup("tasks.$.status").StringValue())
		for _, untouched := range []string{"tasks.$.description", "tasks.$.dueDate", "tasks.$.reminded", "tasks.$._id"} {
			_, err := set.LookupErr(untouched)
			assert.Error(mt, err, untouched)
		}
	})

	mt.Run("empty patch only reads", func(mt *mtest.T) {
		mt.AddMockResponses(found(collectionDoc("a@example.com", sampleTask("t1", model.StatusOpen))))

		got, err := mockStore(mt).UpdateTask(ctx, "a@example.com", "t1", model.TaskPatch{})
		require.NoError(mt, err)
		assert.Equal(mt, sampleTask("t1", model.StatusOpen), *got)
		assert.Equal(mt, "find", nextCommand(mt))
	})

	mt.Run("unknown task", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}))

		title := "x"
		_, err := mockStore(mt).UpdateTask(ctx, "a@example.com", "missing", model.TaskPatch{Title: &title})
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestMongoStore_ToggleTask(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("compare-and-set on the status it read", func(mt *mtest.T) {
		mt.AddMockResponses(
			found(collectionDoc("a@example.com", sampleTask("t1", model.StatusOpen))),
			updated(1),
		)

		got, err := mockStore(mt).ToggleTask(ctx, "a@example.com", "t1")
		require.NoError(mt, err)
		assert.Equal(mt, sampleTask("t1", model.StatusCompleted), *got)

		assert.Equal(mt, "find", nextCommand(mt))
		q, u, _ := nextUpdate(mt)
		assert.Equal(mt, "t1", q.Lookup("tasks", "$elemMatch", "_id").StringValue())
		assert.Equal(mt, "open", q.Lookup("tasks", "$elemMatch", "status").StringValue())
		assert.Equal(mt, "completed", u.Lookup("$set", "tasks.$.status").StringValue())
	})

	mt.Run("retries after a concurrent toggle", func(mt *mtest.T) {
		mt.AddMockResponses(
			found(collectionDoc("a@example.com", sampleTask("t1", model.StatusOpen))),
			updated(0),
			found(collectionDoc("a@example.com", sampleTask("t1", model.StatusCompleted))),
			updated(1),
		)

		got, err := mockStore(mt).ToggleTask(ctx, "a@example.com", "t1")
		require.NoError(mt, err)
		assert.Equal(mt, model.StatusOpen, got.Status)

		assert.Equal(mt, "find", nextCommand(mt))
		q, _, _ := nextUpdate(mt)
		assert.Equal(mt, "open", q.Lookup("tasks", "$elemMatch", "status").StringValue())
		assert.Equal(mt, "find", nextCommand(mt))
		q, u, _ := nextUpdate(mt)
		assert.Equal(mt, "completed", q.Lookup("tasks", "$elemMatch", "status").StringValue())
		assert.Equal(mt, "open", u.Lookup("$set", "tasks.$.status").StringValue())
	})

	mt.Run("gives up under constant contention", func(mt *mtest.T) {
		for i := 0; i < maxToggleAttempts; i++ {
			mt.AddMockResponses(
				found(collectionDoc("a@example.com", sampleTask("t1", model.StatusOpen))),
				updated(0),
			)
		}

		_, err := mockStore(mt).ToggleTask(ctx, "a@example.com", "t1")
		require.Error(mt, err)
		assert.NotErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("unknown task sends no update", func(mt *mtest.T) {
		mt.AddMockResponses(found(collectionDoc("a@example.com", sampleTask("t0", model.StatusOpen))))

		_, err := mockStore(mt).ToggleTask(ctx, "a@example.com", "t1")
		assert.ErrorIs(mt, err, ErrNotFound)
		assert.Equal(mt, "find", nextCommand(mt))
		assert.Nil(mt, mt.GetStartedEvent())
	})

	mt.Run("unknown collection", func(mt *mtest.T) {
		mt.AddMockResponses(found())

		_, err := mockStore(mt).ToggleTask(ctx, "a@example.com", "t1")
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestMongoStore_RemoveTask(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("pulls the element", func(mt *mtest.T) {
		mt.AddMockResponses(updated(1))

		require.NoError(mt, mockStore(mt).RemoveTask(ctx, "a@example.com", "t1"))

		q, u, _ := nextUpdate(mt)
		assert.Equal(mt, "t1", q.Lookup("tasks._id").StringValue())
		assert.Equal(mt, "t1", u.Lookup("$pull", "tasks", "_id").StringValue())
	})

	mt.Run("nothing matched", func(mt *mtest.T) {
		mt.AddMockResponses(updated(0))

		err := mockStore(mt).RemoveTask(ctx, "a@example.com", "t1")
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestMongoStore_ListCollections(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("returns every document sorted by email", func(mt *mtest.T) {
		mt.AddMockResponses(found(
			collectionDoc("a@example.com", sampleTask("t1", model.StatusOpen)),
			collectionDoc("b@example.com"),
		))

		cols, err := mockStore(mt).ListCollections(ctx)
		require.NoError(mt, err)
		require.Len(mt, cols, 2)
		assert.Equal(mt, "a@example.com", cols[0].Email)
		assert.Len(mt, cols[0].Tasks, 1)
		assert.Equal(mt, "b@example.com", cols[1].Email)

		ev := mt.GetStartedEvent()
		require.NotNil(mt, ev)
		assert.Equal(mt, "find", ev.CommandName)
		assert.EqualValues(mt, 1, ev.Command.Lookup("sort", "email").Int32())
	})
}

func TestMongoStore_MarkReminded(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("one update with an array filter", func(mt *mtest.T) {
		mt.AddMockResponses(updated(1))

		require.NoError(mt, mockStore(mt).MarkReminded(ctx, "a@example.com", []string{"t1", "t3"}))

		q, u, stmt := nextUpdate(mt)
		assert.Equal(mt, "a@example.com", q.Lookup("email").StringValue())
		assert.True(mt, u.Lookup("$set", "tasks.$[t].reminded").Boolean())

		set := u.Lookup("$set").Document()
		elems, err := set.Elements()
		require.NoError(mt, err)
		assert.Len(mt, elems, 1)

		in, err := stmt.Lookup("arrayFilters", "0", "t._id", "$in").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, in, 2)
		assert.Equal(mt, "t1", in[0].StringValue())
		assert.Equal(mt, "t3", in[1].StringValue())

		assert.Nil(mt, mt.GetStartedEvent())
	})

	mt.Run("no ids sends nothing", func(mt *mtest.T) {
		require.NoError(mt, mockStore(mt).MarkReminded(ctx, "a@example.com", nil))
		assert.Nil(mt, mt.GetStartedEvent())
	})
}

func TestMongoStore_Users(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("duplicate email is a conflict", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 11000, Message: "E11000 duplicate key error",
		}))

		err := mockStore(mt).CreateUser(ctx, model.User{Name: "Ada", Email: "ada@example.com"})
		assert.ErrorIs(mt, err, ErrConflict)
	})

	mt.Run("google-only account omits password", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		require.NoError(mt, mockStore(mt).CreateUser(ctx, model.User{
			Name: "Gia", Email: "gia@example.com", GoogleID: "g-gia",
		}))

		ev := mt.GetStartedEvent()
		require.NotNil(mt, ev)
		require.Equal(mt, "insert", ev.CommandName)
		doc := ev.Command.Lookup("documents", "0").Document()
		assert.Equal(mt, "g-gia", doc.Lookup("googleId").StringValue())
		assert.NotEmpty(mt, doc.Lookup("_id").StringValue())
		_, err := doc.LookupErr("password")
		assert.Error(mt, err)
	})

	mt.Run("lookup by google id", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "taskminder.users", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "u1"},
			{Key: "name", Value: "Gia"},
			{Key: "email", Value: "gia@example.com"},
			{Key: "googleId", Value: "g-gia"},
		}))

		u, err := mockStore(mt).GetUserByGoogleID(ctx, "g-gia")
		require.NoError(mt, err)
		assert.Equal(mt, "u1", u.ID)
		assert.Equal(mt, "gia@example.com", u.Email)

		ev := mt.GetStartedEvent()
		require.NotNil(mt, ev)
		assert.Equal(mt, "g-gia", ev.Command.Lookup("filter", "googleId").StringValue())
	})

	mt.Run("link google id", func(mt *mtest.T) {
		mt.AddMockResponses(updated(1), updated(0), mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 11000, Message: "E11000 duplicate key error",
		}))
		s := mockStore(mt)

		require.NoError(mt, s.LinkGoogleID(ctx, "ada@example.com", "g-ada"))
		q, u, _ := nextUpdate(mt)
		assert.Equal(mt, "ada@example.com", q.Lookup("email").StringValue())
		assert.Equal(mt, "g-ada", u.Lookup("$set", "googleId").StringValue())

		assert.ErrorIs(mt, s.LinkGoogleID(ctx, "nobody@example.com", "g-x"), ErrNotFound)
		assert.ErrorIs(mt, s.LinkGoogleID(ctx, "bob@example.com", "g-ada"), ErrConflict)
	})
}
