package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/park285/llm-chess-bot/internal/domain"
)

const (
	mongoCollection = "games"
	mongoOpTimeout  = 5 * time.Second
)

type gameDocument struct {
	SessionID     string    `bson:"_id"`
	UserID        string    `bson:"user_id"`
	Room          string    `bson:"room"`
	PlayerName    string    `bson:"player_name"`
	UserSide      string    `bson:"user_side"`
	Result        string    `bson:"result"`
	Termination   string    `bson:"termination"`
	MovesSAN      []string  `bson:"moves_san"`
	PGN           string    `bson:"pgn"`
	StartedAt     time.Time `bson:"started_at"`
	EndedAt       time.Time `bson:"ended_at"`
	DurationMS    int64     `bson:"duration_ms"`
	AIMoves       int       `bson:"ai_moves"`
	FallbackMoves int       `bson:"fallback_moves"`
}

// MongoRepository stores one document per session, keyed by session id.
type MongoRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewMongoRepository(ctx context.Context, uri, database string) (*MongoRepository, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("MONGO_URI is required")
	}
	if strings.TrimSpace(database) == "" {
		database = "llm_chess"
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	coll := client.Database(database).Collection(mongoCollection)
	_, err = coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "ended_at", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo index: %w", err)
	}
	return &MongoRepository{client: client, coll: coll}, nil
}

func (r *MongoRepository) Close(ctx context.Context) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Disconnect(ctx)
}

func (r *MongoRepository) SaveGame(ctx context.Context, g *domain.ArchivedGame) error {
	if g == nil {
		return fmt.Errorf("nil archived game")
	}
	prepare(g)
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, toDocument(g))
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateGame
	}
	if err != nil {
		return fmt.Errorf("insert archived game: %w", err)
	}
	return nil
}

func (r *MongoRepository) RecentGames(ctx context.Context, userID string, limit int) ([]*domain.ArchivedGame, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	opts := options.Find().
		SetSort(bson.D{{Key: "ended_at", Value: -1}}).
		SetLimit(int64(clampLimit(limit)))
	cur, err := r.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find archived games: %w", err)
	}
	defer cur.Close(ctx)

	var docs []gameDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode archived games: %w", err)
	}
	out := make([]*domain.ArchivedGame, 0, len(docs))
	for i := range docs {
		out = append(out, fromDocument(&docs[i]))
	}
	return out, nil
}

func (r *MongoRepository) Game(ctx context.Context, sessionID string) (*domain.ArchivedGame, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	var doc gameDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": strings.TrimSpace(sessionID)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find archived game: %w", err)
	}
	return fromDocument(&doc), nil
}

func toDocument(g *domain.ArchivedGame) gameDocument {
	return gameDocument{
		SessionID:     g.SessionID,
		UserID:        g.UserID,
		Room:          g.Room,
		PlayerName:    g.PlayerName,
		UserSide:      string(g.UserSide),
		Result:        g.Result,
		Termination:   g.Termination,
		MovesSAN:      g.MovesSAN,
		PGN:           g.PGN,
		StartedAt:     g.StartedAt,
		EndedAt:       g.EndedAt,
		DurationMS:    g.Duration.Milliseconds(),
		AIMoves:       g.AIMoves,
		FallbackMoves: g.FallbackMoves,
	}
}

func fromDocument(d *gameDocument) *domain.ArchivedGame {
	return &domain.ArchivedGame{
		SessionID:     d.SessionID,
		UserID:        d.UserID,
		Room:          d.Room,
		PlayerName:    d.PlayerName,
		UserSide:      domain.Side(d.UserSide),
		Result:        d.Result,
		Termination:   d.Termination,
		MovesSAN:      d.MovesSAN,
		PGN:           d.PGN,
		StartedAt:     d.StartedAt,
		EndedAt:       d.EndedAt,
		Duration:      time.Duration(d.DurationMS) * time.Millisecond,
		AIMoves:       d.AIMoves,
		FallbackMoves: d.FallbackMoves,
	}
}
