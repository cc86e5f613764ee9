// Package testutils holds shared test fixtures: canonical schemas, tuple
// generators and a zap-backed test logger.
package testutils

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/l7mp/triejoin/pkg/schema"
)

// NewTestLogger returns a development-mode logger for tests.
func NewTestLogger() logr.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	zl, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return zapr.NewLogger(zl)
}

// UsersSchema is the canonical test schema {id:ID, age:Integer}.
func UsersSchema() *schema.Schema {
	s, err := schema.New(
		schema.Column{Name: "id", Type: schema.ID},
		schema.Column{Name: "age", Type: schema.Integer},
	)
	if err != nil {
		panic(err)
	}
	return s
}

// OrdersSchema is the canonical test schema {userId:ID, amount:Float}.
func OrdersSchema() *schema.Schema {
	s, err := schema.New(
		schema.Column{Name: "userId", Type: schema.ID},
		schema.Column{Name: "amount", Type: schema.Float},
	)
	if err != nil {
		panic(err)
	}
	return s
}

// EdgeSchema builds a binary Integer schema with the given column names,
// used by the triangle-query tests and benchmarks.
func EdgeSchema(from, to string) *schema.Schema {
	s, err := schema.New(
		schema.Column{Name: from, Type: schema.Integer},
		schema.Column{Name: to, Type: schema.Integer},
	)
	if err != nil {
		panic(err)
	}
	return s
}
