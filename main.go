package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/l7mp/triejoin/pkg/delta"
	"github.com/l7mp/triejoin/pkg/engine"
	"github.com/l7mp/triejoin/pkg/join"
	"github.com/l7mp/triejoin/pkg/schema"
	"github.com/l7mp/triejoin/pkg/visualize"
)

// A small demo driver: registers a users/orders catalog, commits a batch,
// runs a leapfrog join over it and optionally dumps the query graph.
func main() {
	var graphFormat string
	var verbosity int

	flag.StringVar(&graphFormat, "graph", "", "Dump the query graph instead of results (dot or mermaid).")
	flag.IntVar(&verbosity, "v", 0, "Log verbosity level.")
	flag.Parse()

	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	zapLog, err := logCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not create logger: %s\n", err)
		os.Exit(1)
	}
	log := zapr.NewLogger(zapLog)

	eng := engine.New(engine.WithLogger(log))

	users, err := schema.New(
		schema.Column{Name: "id", Type: schema.ID},
		schema.Column{Name: "age", Type: schema.Integer},
	)
	if err != nil {
		log.Error(err, "invalid users schema")
		os.Exit(1)
	}
	orders, err := schema.New(
		schema.Column{Name: "userId", Type: schema.ID},
		schema.Column{Name: "amount", Type: schema.Float},
	)
	if err != nil {
		log.Error(err, "invalid orders schema")
		os.Exit(1)
	}

	if err := eng.RegisterRelation("Users", users); err != nil {
		log.Error(err, "could not register relation", "name", "Users")
		os.Exit(1)
	}
	if err := eng.RegisterRelation("Orders", orders); err != nil {
		log.Error(err, "could not register relation", "name", "Orders")
		os.Exit(1)
	}

	batch := delta.Batch{
		delta.Insert("Users", schema.Tuple{"u1", 30}),
		delta.Insert("Users", schema.Tuple{"u2", 25}),
		delta.Insert("Orders", schema.Tuple{"u1", 9.99}),
		delta.Insert("Orders", schema.Tuple{"u1", 4.50}),
	}
	if err := eng.SubmitBatch(batch); err != nil {
		log.Error(err, "batch failed")
		os.Exit(1)
	}

	spec := join.Spec{
		Terms: []join.Term{
			{Relation: "Users", Vars: []string{"user", "age"}},
			{Relation: "Orders", Vars: []string{"user", "amount"}},
		},
		VarOrder: []string{"user", "age", "amount"},
	}

	if graphFormat != "" {
		g := visualize.BuildGraph("users-orders", spec)
		switch graphFormat {
		case "dot":
			fmt.Print((&visualize.DotGenerator{}).Generate(g))
		case "mermaid":
			fmt.Print((&visualize.MermaidGenerator{}).Generate(g))
		default:
			fmt.Fprintf(os.Stderr, "unknown graph format %q\n", graphFormat)
			os.Exit(1)
		}
		return
	}

	it, err := eng.Query(spec)
	if err != nil {
		log.Error(err, "query failed")
		os.Exit(1)
	}

	for {
		row, ok := it.Next()
		if !ok {
			break
		}
		fmt.Printf("%v x%d\n", []any(row.Tuple), row.Mult)
	}
}
