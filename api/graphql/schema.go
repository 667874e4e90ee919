package graphql

import (
	"context"

	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/internal/model"
	"github.com/0xmhha/predict-indexer/storage"
)

// Store is the read side of the document store the schema serves
type Store interface {
	LatestBlock(ctx context.Context) (*model.Block, error)
	FindEvents(ctx context.Context, filter storage.EventFilter) ([]*model.Event, error)
	GetEventByAddress(ctx context.Context, address string) (*model.Event, error)
	FindEventLeaderboard(ctx context.Context, eventAddress string) ([]*model.EventLeaderboard, error)
	ListGlobalLeaderboard(ctx context.Context) ([]*model.GlobalLeaderboard, error)
}

// SyncSource reports the sync progress last published by the sync loop
type SyncSource interface {
	LatestSyncInfo() (model.SyncInfo, bool)
}

// HeadReader reads the chain head
type HeadReader interface {
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
}

// NameResolver attaches display names to addresses
type NameResolver interface {
	ResolveNames(ctx context.Context, addresses []string) map[string]string
}

// Deps holds the collaborators of the schema. Only Store is required;
// mutations are served only when Pending is set.
type Deps struct {
	Store   Store
	Sync    SyncSource
	Head    HeadReader
	Names   NameResolver
	Pending PendingService
	Logger  *zap.Logger
}

// Schema holds the GraphQL schema
type Schema struct {
	schema graphql.Schema
	deps   Deps
	logger *zap.Logger
}

// NewSchema creates a new GraphQL schema
func NewSchema(deps Deps) (*Schema, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Schema{
		deps:   deps,
		logger: logger,
	}

	pageArgs := func(extra graphql.FieldConfigArgument) graphql.FieldConfigArgument {
		extra["limit"] = &graphql.ArgumentConfig{Type: graphql.Int}
		extra["skip"] = &graphql.ArgumentConfig{Type: graphql.Int}
		return extra
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"syncInfo": &graphql.Field{
				Type:    graphql.NewNonNull(syncInfoType),
				Resolve: s.resolveSyncInfo,
			},
			"leaderboard": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(leaderboardEntryType))),
				Args: pageArgs(graphql.FieldConfigArgument{
					"eventAddress": &graphql.ArgumentConfig{Type: addressType},
					"userAddress":  &graphql.ArgumentConfig{Type: addressType},
				}),
				Resolve: s.resolveLeaderboard,
			},
			"event": &graphql.Field{
				Type: eventType,
				Args: graphql.FieldConfigArgument{
					"address": &graphql.ArgumentConfig{Type: graphql.NewNonNull(addressType)},
				},
				Resolve: s.resolveEvent,
			},
			"events": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(eventType))),
				Args: pageArgs(graphql.FieldConfigArgument{
					"status":   &graphql.ArgumentConfig{Type: eventStatusEnumType},
					"txStatus": &graphql.ArgumentConfig{Type: txStatusEnumType},
				}),
				Resolve: s.resolveEvents,
			},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: s.mutationType(),
	})
	if err != nil {
		return nil, err
	}

	s.schema = schema
	return s, nil
}

// Schema returns the executable schema
func (s *Schema) Schema() graphql.Schema {
	return s.schema
}
