// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists experiment records in MongoDB.
//
// Experiments live in the experiment_db database, experiments collection.
// Records track lifecycle state (Created, Running, Re-Running, Finished,
// Error); the re-run manager and its janitor drive the state transitions.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JoeMat18/simulations-platform/services/assistant/datatypes"
	"github.com/JoeMat18/simulations-platform/services/assistant/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/otel"
)

// storeTracer is the OpenTelemetry tracer for store operations.
var storeTracer = otel.Tracer("floodns.assistant.store")

const (
	// DatabaseName is the MongoDB database holding experiment records.
	DatabaseName = "experiment_db"

	// CollectionName is the experiments collection.
	CollectionName = "experiments"

	defaultOpTimeout = 5 * time.Second
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNotFound is returned when no experiment matches the given id.
	ErrNotFound = errors.New("experiment not found")

	// ErrInvalidID is returned when an id is not a valid hex ObjectID.
	ErrInvalidID = errors.New("invalid experiment id")
)

// =============================================================================
// Connection
// =============================================================================

// Connect dials MongoDB and verifies the connection with a ping. The server
// selection timeout is bounded so a missing server fails fast at startup.
func Connect(ctx context.Context, uri string) (*mongodriver.Client, error) {
	if uri == "" {
		return nil, errors.New("mongodb uri must not be empty")
	}

	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(defaultOpTimeout)

	client, err := mongodriver.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	slog.Info("Connected to MongoDB", "database", DatabaseName)
	return client, nil
}

// =============================================================================
// Store
// =============================================================================

// collection is the slice of the MongoDB collection API the store uses.
// Tests substitute a fake; production wraps *mongodriver.Collection.
type collection interface {
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error)
	InsertOne(ctx context.Context, doc any, opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error)
	UpdateOne(ctx context.Context, filter any, update any, opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error)
	DeleteOne(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongodriver.DeleteResult, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...*options.CreateIndexesOptions) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

type cursor interface {
	Close(ctx context.Context) error
	Decode(val any) error
	Err() error
	Next(ctx context.Context) bool
}

// ExperimentStore runs CRUD and state transitions on experiment records.
//
// Thread Safety: Safe for concurrent use; the driver synchronizes internally.
type ExperimentStore struct {
	mongo       *mongodriver.Client
	experiments collection
	timeout     time.Duration
}

// New creates an ExperimentStore on the experiments collection and ensures
// its indexes exist.
func New(ctx context.Context, client *mongodriver.Client) (*ExperimentStore, error) {
	if client == nil {
		return nil, errors.New("mongo client is required")
	}
	coll := mongoCollection{coll: client.Database(DatabaseName).Collection(CollectionName)}

	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	if err := ensureIndexes(ctx, coll); err != nil {
		return nil, fmt.Errorf("ensure experiment indexes: %w", err)
	}

	return &ExperimentStore{
		mongo:       client,
		experiments: coll,
		timeout:     defaultOpTimeout,
	}, nil
}

// newWithCollection wires an arbitrary collection; tests use it with fakes.
func newWithCollection(coll collection) *ExperimentStore {
	return &ExperimentStore{experiments: coll, timeout: defaultOpTimeout}
}

// Ping verifies the MongoDB connection.
func (s *ExperimentStore) Ping(ctx context.Context) error {
	if s.mongo == nil {
		return nil
	}
	return s.mongo.Ping(ctx, readpref.Primary())
}

// recordOp counts one store operation when metrics are initialized.
func recordOp(operation string, status observability.StoreStatus) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordStoreOperation(operation, status)
	}
}

// Create inserts a new experiment in state Created and returns it.
func (s *ExperimentStore) Create(ctx context.Context, req *datatypes.CreateExperimentRequest) (*datatypes.Experiment, error) {
	ctx, span := storeTracer.Start(ctx, "ExperimentStore.Create")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := experimentDocument{
		ID:             primitive.NewObjectID(),
		SimulationName: req.SimulationName,
		Params:         req.Params,
		Date:           now.Format(time.RFC3339),
		State:          datatypes.StateCreated,
		RunDir:         req.RunDir,
		StateChangedAt: now,
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.experiments.InsertOne(ctx, doc); err != nil {
		recordOp("create", observability.StoreError)
		return nil, fmt.Errorf("insert experiment: %w", err)
	}
	recordOp("create", observability.StoreSuccess)
	slog.Info("Created experiment", "id", doc.ID.Hex(), "simulation_name", doc.SimulationName)

	exp := doc.toExperiment()
	return &exp, nil
}

// Get fetches one experiment by hex id.
func (s *ExperimentStore) Get(ctx context.Context, id string) (*datatypes.Experiment, error) {
	ctx, span := storeTracer.Start(ctx, "ExperimentStore.Get")
	defer span.End()

	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc experimentDocument
	if err := s.experiments.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			recordOp("get", observability.StoreMiss)
			return nil, ErrNotFound
		}
		recordOp("get", observability.StoreError)
		return nil, fmt.Errorf("find experiment: %w", err)
	}
	recordOp("get", observability.StoreSuccess)

	exp := doc.toExperiment()
	return &exp, nil
}

// List returns all experiments, newest first.
func (s *ExperimentStore) List(ctx context.Context) ([]datatypes.Experiment, error) {
	ctx, span := storeTracer.Start(ctx, "ExperimentStore.List")
	defer span.End()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.experiments.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}))
	if err != nil {
		recordOp("list", observability.StoreError)
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []datatypes.Experiment
	for cur.Next(ctx) {
		var doc experimentDocument
		if err := cur.Decode(&doc); err != nil {
			recordOp("list", observability.StoreError)
			return nil, fmt.Errorf("decode experiment: %w", err)
		}
		out = append(out, doc.toExperiment())
	}
	if err := cur.Err(); err != nil {
		recordOp("list", observability.StoreError)
		return nil, fmt.Errorf("iterate experiments: %w", err)
	}
	recordOp("list", observability.StoreSuccess)
	return out, nil
}

// Update edits an experiment's simulation name and params.
func (s *ExperimentStore) Update(ctx context.Context, id string, req *datatypes.UpdateExperimentRequest) (*datatypes.Experiment, error) {
	ctx, span := storeTracer.Start(ctx, "ExperimentStore.Update")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	update := bson.M{"$set": bson.M{
		"simulation_name": req.SimulationName,
		"params":          req.Params,
	}}
	result, err := s.experiments.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		recordOp("update", observability.StoreError)
		return nil, fmt.Errorf("update experiment: %w", err)
	}
	if result.MatchedCount == 0 {
		recordOp("update", observability.StoreMiss)
		return nil, ErrNotFound
	}
	recordOp("update", observability.StoreSuccess)

	return s.Get(ctx, id)
}

// UpdateState moves an experiment to the given lifecycle state.
func (s *ExperimentStore) UpdateState(ctx context.Context, id, state string) error {
	return s.transition(ctx, id, bson.M{
		"state":            state,
		"state_changed_at": time.Now().UTC(),
	})
}

// MarkFinished moves an experiment to Finished and records its end time.
func (s *ExperimentStore) MarkFinished(ctx context.Context, id string, endTime time.Time) error {
	return s.transition(ctx, id, bson.M{
		"state":            datatypes.StateFinished,
		"end_time":         endTime.UTC().Format(time.RFC3339),
		"error":            "",
		"state_changed_at": time.Now().UTC(),
	})
}

// MarkError moves an experiment to Error and records the failure message.
func (s *ExperimentStore) MarkError(ctx context.Context, id, message string) error {
	return s.transition(ctx, id, bson.M{
		"state":            datatypes.StateError,
		"error":            message,
		"state_changed_at": time.Now().UTC(),
	})
}

// transition applies a state-changing $set to one experiment.
func (s *ExperimentStore) transition(ctx context.Context, id string, set bson.M) error {
	ctx, span := storeTracer.Start(ctx, "ExperimentStore.transition")
	defer span.End()

	oid, err := objectID(id)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	result, err := s.experiments.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		recordOp("transition", observability.StoreError)
		return fmt.Errorf("update experiment state: %w", err)
	}
	if result.MatchedCount == 0 {
		recordOp("transition", observability.StoreMiss)
		return ErrNotFound
	}
	recordOp("transition", observability.StoreSuccess)
	if state, ok := set["state"].(string); ok {
		slog.Info("Experiment state changed", "id", id, "state", state)
	}
	return nil
}

// Delete removes an experiment.
func (s *ExperimentStore) Delete(ctx context.Context, id string) error {
	ctx, span := storeTracer.Start(ctx, "ExperimentStore.Delete")
	defer span.End()

	oid, err := objectID(id)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	result, err := s.experiments.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		recordOp("delete", observability.StoreError)
		return fmt.Errorf("delete experiment: %w", err)
	}
	if result.DeletedCount == 0 {
		recordOp("delete", observability.StoreMiss)
		return ErrNotFound
	}
	recordOp("delete", observability.StoreSuccess)
	slog.Info("Deleted experiment", "id", id)
	return nil
}

// ListStaleReRunning returns experiments stuck in Re-Running since before
// the cutoff. The janitor flips them to Error.
func (s *ExperimentStore) ListStaleReRunning(ctx context.Context, cutoff time.Time) ([]datatypes.Experiment, error) {
	ctx, span := storeTracer.Start(ctx, "ExperimentStore.ListStaleReRunning")
	defer span.End()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{
		"state":            datatypes.StateReRunning,
		"state_changed_at": bson.M{"$lt": cutoff.UTC()},
	}
	cur, err := s.experiments.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list stale re-running experiments: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []datatypes.Experiment
	for cur.Next(ctx) {
		var doc experimentDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode experiment: %w", err)
		}
		out = append(out, doc.toExperiment())
	}
	return out, cur.Err()
}

func (s *ExperimentStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// objectID parses a hex id, mapping parse failures to ErrInvalidID.
func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return oid, nil
}

// =============================================================================
// Documents
// =============================================================================

// experimentDocument is the BSON shape of one experiment record.
type experimentDocument struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	SimulationName string             `bson:"simulation_name"`
	Params         string             `bson:"params"`
	Date           string             `bson:"date,omitempty"`
	StartTime      string             `bson:"start_time,omitempty"`
	EndTime        string             `bson:"end_time,omitempty"`
	State          string             `bson:"state"`
	RunDir         string             `bson:"run_dir,omitempty"`
	Error          string             `bson:"error,omitempty"`
	StateChangedAt time.Time          `bson:"state_changed_at,omitempty"`
}

func (doc experimentDocument) toExperiment() datatypes.Experiment {
	return datatypes.Experiment{
		ID:             doc.ID.Hex(),
		SimulationName: doc.SimulationName,
		Params:         doc.Params,
		Date:           doc.Date,
		StartTime:      doc.StartTime,
		EndTime:        doc.EndTime,
		State:          doc.State,
		RunDir:         doc.RunDir,
		Error:          doc.Error,
	}
}

func ensureIndexes(ctx context.Context, coll collection) error {
	nameIndex := mongodriver.IndexModel{
		Keys: bson.D{{Key: "simulation_name", Value: 1}},
	}
	if _, err := coll.Indexes().CreateOne(ctx, nameIndex); err != nil {
		return err
	}
	stateIndex := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "state", Value: 1},
			{Key: "state_changed_at", Value: 1},
		},
	}
	if _, err := coll.Indexes().CreateOne(ctx, stateIndex); err != nil {
		return err
	}
	return nil
}

// =============================================================================
// Driver Wrappers
// =============================================================================

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult {
	return mongoSingleResult{res: c.coll.FindOne(ctx, filter, opts...)}
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return mongoCursor{cur: cur}, nil
}

func (c mongoCollection) InsertOne(ctx context.Context, doc any, opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, doc, opts...)
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter any, update any, opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

func (c mongoCollection) DeleteOne(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongodriver.DeleteResult, error) {
	return c.coll.DeleteOne(ctx, filter, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoSingleResult struct {
	res *mongodriver.SingleResult
}

func (r mongoSingleResult) Decode(val any) error {
	return r.res.Decode(val)
}

type mongoCursor struct {
	cur *mongodriver.Cursor
}

func (c mongoCursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }
func (c mongoCursor) Decode(val any) error            { return c.cur.Decode(val) }
func (c mongoCursor) Err() error                      { return c.cur.Err() }
func (c mongoCursor) Next(ctx context.Context) bool   { return c.cur.Next(ctx) }

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...*options.CreateIndexesOptions) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
