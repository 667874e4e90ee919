package graphql

import (
	"github.com/graphql-go/graphql"
)

var (
	// Scalar types
	bigIntType  = graphql.String
	addressType = graphql.String
	amountType  = graphql.String

	syncInfoType         *graphql.Object
	leaderboardEntryType *graphql.Object
	eventType            *graphql.Object

	eventStatusEnumType *graphql.Enum
	txStatusEnumType    *graphql.Enum
)

func init() {
	initTypes()
	initMutationTypes()
}

func initTypes() {
	syncInfoType = graphql.NewObject(graphql.ObjectConfig{
		Name: "SyncInfo",
		Fields: graphql.Fields{
			"syncBlockNum": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
			"syncBlockTime": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
			"syncPercent": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
			},
		},
	})

	// eventAddress is null on global rows
	leaderboardEntryType = graphql.NewObject(graphql.ObjectConfig{
		Name: "LeaderboardEntry",
		Fields: graphql.Fields{
			"eventAddress": &graphql.Field{
				Type: addressType,
			},
			"userAddress": &graphql.Field{
				Type: graphql.NewNonNull(addressType),
			},
			"userName": &graphql.Field{
				Type: graphql.String,
			},
			"investments": &graphql.Field{
				Type: graphql.NewNonNull(amountType),
			},
			"winnings": &graphql.Field{
				Type: graphql.NewNonNull(amountType),
			},
			"returnRatio": &graphql.Field{
				Type: graphql.NewNonNull(amountType),
			},
		},
	})

	eventStatusEnumType = graphql.NewEnum(graphql.EnumConfig{
		Name: "EventStatus",
		Values: graphql.EnumValueConfigMap{
			"CREATED":               &graphql.EnumValueConfig{Value: "CREATED"},
			"BETTING":               &graphql.EnumValueConfig{Value: "BETTING"},
			"ORACLE_RESULT_SETTING": &graphql.EnumValueConfig{Value: "ORACLE_RESULT_SETTING"},
			"OPEN_RESULT_SETTING":   &graphql.EnumValueConfig{Value: "OPEN_RESULT_SETTING"},
			"ARBITRATION":           &graphql.EnumValueConfig{Value: "ARBITRATION"},
			"WITHDRAWING":           &graphql.EnumValueConfig{Value: "WITHDRAWING"},
		},
	})

	txStatusEnumType = graphql.NewEnum(graphql.EnumConfig{
		Name: "TransactionStatus",
		Values: graphql.EnumValueConfigMap{
			"PENDING": &graphql.EnumValueConfig{Value: "PENDING"},
			"SUCCESS": &graphql.EnumValueConfig{Value: "SUCCESS"},
			"FAIL":    &graphql.EnumValueConfig{Value: "FAIL"},
		},
	})

	eventType = graphql.NewObject(graphql.ObjectConfig{
		Name: "MultipleResultsEvent",
		Fields: graphql.Fields{
			"txid": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
			},
			"txStatus": &graphql.Field{
				Type: graphql.NewNonNull(txStatusEnumType),
			},
			"blockNum": &graphql.Field{
				Type: bigIntType,
			},
			"address": &graphql.Field{
				Type: addressType,
			},
			"ownerAddress": &graphql.Field{
				Type: addressType,
			},
			"version": &graphql.Field{
				Type: graphql.Int,
			},
			"name": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
			},
			"results": &graphql.Field{
				Type: graphql.NewList(graphql.NewNonNull(graphql.String)),
			},
			"numOfResults": &graphql.Field{
				Type: graphql.Int,
			},
			"centralizedOracle": &graphql.Field{
				Type: addressType,
			},
			"betStartTime": &graphql.Field{
				Type: bigIntType,
			},
			"betEndTime": &graphql.Field{
				Type: bigIntType,
			},
			"resultSetStartTime": &graphql.Field{
				Type: bigIntType,
			},
			"resultSetEndTime": &graphql.Field{
				Type: bigIntType,
			},
			"escrowAmount": &graphql.Field{
				Type: amountType,
			},
			"currentRound": &graphql.Field{
				Type: graphql.Int,
			},
			"currentResultIndex": &graphql.Field{
				Type: graphql.Int,
			},
			"consensusThreshold": &graphql.Field{
				Type: amountType,
			},
			"arbitrationEndTime": &graphql.Field{
				Type: bigIntType,
			},
			"status": &graphql.Field{
				Type: graphql.NewNonNull(eventStatusEnumType),
			},
			"language": &graphql.Field{
				Type: graphql.String,
			},
		},
	})
}
