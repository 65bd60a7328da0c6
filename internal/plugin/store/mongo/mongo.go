package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-service/internal/config"
	"github.com/chirino/conversation-service/internal/model"
	registrymigrate "github.com/chirino/conversation-service/internal/registry/migrate"
	registrystore "github.com/chirino/conversation-service/internal/registry/store"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const dbName = "conversation_service"

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrystore.ConversationStore, error) {
			cfg := config.FromContext(ctx)
			opts := options.Client().ApplyURI(cfg.DBURL)
			if cfg.DBMaxOpenConns > 0 {
				opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
			}
			if cfg.DBMaxIdleConns > 0 {
				opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
			}
			client, err := mongo.Connect(opts)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
			}
			if err := client.Ping(ctx, nil); err != nil {
				return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
			}
			return &MongoStore{client: client, db: client.Database(dbName)}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }
func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "mongo" {
		return nil // skip if not using mongo
	}

	log.Info("Running migration", "name", m.Name())
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return fmt.Errorf("mongo migration: failed to connect: %w", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(dbName)

	collections := map[string][]mongo.IndexModel{
		"conversations": {
			{
				// One direct conversation per unordered pair. Groups carry no key.
				Keys: bson.D{{Key: "direct_key", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetName("unique_direct_key").
					SetPartialFilterExpression(bson.M{"direct_key": bson.M{"$type": "string"}}),
			},
			{Keys: bson.D{{Key: "members.user_id", Value: 1}, {Key: "updated_at", Value: -1}}},
		},
		"users": {
			{Keys: bson.D{{Key: "email", Value: 1}}},
		},
	}

	for name, indexes := range collections {
		// Ensure collection exists
		db.CreateCollection(ctx, name)
		if len(indexes) > 0 {
			if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
				return fmt.Errorf("mongo migration: failed to create indexes for %s: %w", name, err)
			}
		}
	}

	log.Info("MongoDB schema migration complete")
	return nil
}

// MongoStore implements ConversationStore using MongoDB. A conversation is a
// single document holding its members and their unread counters, so every
// membership change is one atomic document update.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// --- Document types ---

type memberDoc struct {
	UserID      string    `bson:"user_id"`
	UnreadCount int       `bson:"unread_count"`
	JoinedAt    time.Time `bson:"joined_at"`
}

type convDoc struct {
	ID            string      `bson:"_id"`
	IsGroup       bool        `bson:"is_group"`
	DirectKey     *string     `bson:"direct_key,omitempty"`
	Name          string      `bson:"name,omitempty"`
	GroupAdmin    string      `bson:"group_admin,omitempty"`
	GroupPic      string      `bson:"group_pic,omitempty"`
	LatestMessage string      `bson:"latest_message"`
	Members       []memberDoc `bson:"members"`
	CreatedAt     time.Time   `bson:"created_at"`
	UpdatedAt     time.Time   `bson:"updated_at"`
}

func toDoc(c *model.Conversation) convDoc {
	doc := convDoc{
		ID:            c.ID,
		IsGroup:       c.IsGroup(),
		LatestMessage: c.LatestMessage,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
		Members:       make([]memberDoc, len(c.Members)),
	}
	if key := c.DirectKey(); key != "" {
		doc.DirectKey = &key
	}
	if c.Group != nil {
		doc.Name = c.Group.Name
		doc.GroupAdmin = c.Group.AdminID
		doc.GroupPic = c.Group.Pic
	}
	for i, m := range c.Members {
		doc.Members[i] = memberDoc{UserID: m.UserID, UnreadCount: m.UnreadCount, JoinedAt: m.JoinedAt}
	}
	return doc
}

func (d convDoc) toModel() *model.Conversation {
	c := &model.Conversation{
		ID:            d.ID,
		Kind:          model.KindDirect,
		LatestMessage: d.LatestMessage,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		Members:       make([]model.Member, len(d.Members)),
	}
	if d.IsGroup {
		c.Kind = model.KindGroup
		c.Group = &model.GroupInfo{Name: d.Name, AdminID: d.GroupAdmin, Pic: d.GroupPic}
	}
	for i, m := range d.Members {
		c.Members[i] = model.Member{UserID: m.UserID, UnreadCount: m.UnreadCount, JoinedAt: m.JoinedAt}
	}
	return c
}

// --- Collection accessors ---

func (s *MongoStore) conversations() *mongo.Collection { return s.db.Collection("conversations") }
func (s *MongoStore) users() *mongo.Collection         { return s.db.Collection("users") }

func now() time.Time {
	return time.Now().UTC()
}

func notFound(id string) error {
	return &registrystore.NotFoundError{Resource: "conversation", ID: id}
}

func afterUpdate() *options.FindOneAndUpdateOptionsBuilder {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*model.Conversation, error) {
	var doc convDoc
	if err := s.conversations().FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

// update applies a single-document update and returns the result. When the
// filter does not match, fallback decides between a no-op and NotFound.
func (s *MongoStore) update(ctx context.Context, id string, filter, update bson.M, opts *options.FindOneAndUpdateOptionsBuilder, fallback bson.M) (*model.Conversation, error) {
	var doc convDoc
	err := s.conversations().FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.toModel(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	c, err := s.findOne(ctx, fallback)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(id)
	}
	return c, err
}

// --- Users ---

func (s *MongoStore) PutUser(ctx context.Context, user model.User) error {
	_, err := s.users().ReplaceOne(ctx, bson.M{"_id": user.ID}, user, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) GetUsers(ctx context.Context, ids []string) (map[string]model.User, error) {
	result := make(map[string]model.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	cursor, err := s.users().Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var users []model.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}

// --- Conversations ---

func (s *MongoStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	c, err := s.findOne(ctx, bson.M{"_id": id})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(id)
	}
	return c, err
}

func (s *MongoStore) FindOrCreateDirect(ctx context.Context, a, b string) (*model.Conversation, bool, error) {
	conv, err := model.NewDirect(a, b, now())
	if err != nil {
		return nil, false, &registrystore.ValidationError{Field: "members", Message: err.Error()}
	}
	conv.ID = uuid.NewString()
	doc := toDoc(conv)
	key := *doc.DirectKey

	// Insert-if-absent keyed on the pair. The filter seeds direct_key on insert.
	update := bson.M{"$setOnInsert": bson.M{
		"_id":            doc.ID,
		"is_group":       false,
		"latest_message": "",
		"members":        doc.Members,
		"created_at":     doc.CreatedAt,
		"updated_at":     doc.UpdatedAt,
	}}
	var stored convDoc
	err = s.conversations().FindOneAndUpdate(ctx, bson.M{"direct_key": key}, update,
		afterUpdate().SetUpsert(true)).Decode(&stored)
	if mongo.IsDuplicateKeyError(err) {
		// Two upserts raced; the loser reads the winner's document.
		existing, err := s.findOne(ctx, bson.M{"direct_key": key})
		return existing, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return stored.toModel(), stored.ID == doc.ID, nil
}

func (s *MongoStore) CreateGroup(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	if !conv.IsGroup() {
		return nil, &registrystore.ValidationError{Field: "isGroup", Message: "not a group conversation"}
	}
	if err := conv.Validate(); err != nil {
		return nil, &registrystore.ValidationError{Field: "members", Message: err.Error()}
	}
	created := *conv
	created.ID = uuid.NewString()
	if _, err := s.conversations().InsertOne(ctx, toDoc(&created)); err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, created.ID)
}

func (s *MongoStore) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.conversations().Find(ctx, bson.M{"members.user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []convDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	result := make([]model.Conversation, len(docs))
	for i, d := range docs {
		result[i] = *d.toModel()
	}
	return result, nil
}

func (s *MongoStore) RenameGroup(ctx context.Context, id, name string) (*model.Conversation, error) {
	group := bson.M{"_id": id, "is_group": true}
	return s.update(ctx, id, group,
		bson.M{"$set": bson.M{"name": name, "updated_at": now()}},
		afterUpdate(), group)
}

func (s *MongoStore) AddMember(ctx context.Context, id, userID string) (*model.Conversation, error) {
	member := memberDoc{UserID: userID, JoinedAt: now()}
	return s.update(ctx, id,
		bson.M{"_id": id, "is_group": true, "members.user_id": bson.M{"$ne": userID}},
		bson.M{
			"$push": bson.M{"members": member},
			"$set":  bson.M{"updated_at": member.JoinedAt},
		},
		afterUpdate(), bson.M{"_id": id, "is_group": true})
}

func (s *MongoStore) RemoveMember(ctx context.Context, id, userID string) (*model.Conversation, error) {
	return s.update(ctx, id,
		bson.M{"_id": id, "is_group": true, "members.user_id": userID},
		bson.M{
			"$pull": bson.M{"members": bson.M{"user_id": userID}},
			"$set":  bson.M{"updated_at": now()},
		},
		afterUpdate(), bson.M{"_id": id, "is_group": true})
}

func (s *MongoStore) RecordMessage(ctx context.Context, id, senderID, text string) (*model.Conversation, error) {
	opts := afterUpdate().SetArrayFilters([]any{
		bson.M{"other.user_id": bson.M{"$ne": senderID}},
	})
	var doc convDoc
	err := s.conversations().FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"latest_message": text, "updated_at": now()},
		"$inc": bson.M{"members.$[other].unread_count": 1},
	}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

func (s *MongoStore) ResetUnread(ctx context.Context, id, userID string) (*model.Conversation, error) {
	return s.update(ctx, id,
		bson.M{"_id": id, "members.user_id": userID},
		bson.M{"$set": bson.M{"members.$.unread_count": 0}},
		afterUpdate(), bson.M{"_id": id})
}

var _ registrystore.ConversationStore = (*MongoStore)(nil)
