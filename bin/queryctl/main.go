// Command queryctl is a small end-to-end demonstration of the query
// evaluator: it seeds a list-valued param, runs a tiny query graph
// (Length / RefRead / Sum) to a fixed point, optionally reruns it
// concurrently to show dedup, and optionally writes a JSONL trace file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kvlabs/queries/qid"
	"github.com/kvlabs/queries/reactor"
	"github.com/kvlabs/queries/tracer"
)

var inputParam = qid.NewParam[[]uint64]("input")

type lengthQuery struct{}

func (lengthQuery) ID() qid.QueryId { return qid.New("Length") }

func (lengthQuery) Body(_ context.Context, ec *reactor.ExecutionContext) (int, error) {
	values, err := reactor.GetParam(ec, inputParam)
	if err != nil {
		return 0, err
	}
	return len(values), nil
}

type refReadQuery struct{ n int }

func (q refReadQuery) ID() qid.QueryId { return qid.New(fmt.Sprintf("RefRead(%d)", q.n)) }

func (q refReadQuery) Body(_ context.Context, ec *reactor.ExecutionContext) (uint64, error) {
	values, err := reactor.GetParam(ec, inputParam)
	if err != nil {
		return 0, err
	}
	return values[q.n], nil
}

type sumQuery struct{}

func (sumQuery) ID() qid.QueryId { return qid.New("Sum") }

func (sumQuery) Body(ctx context.Context, ec *reactor.ExecutionContext) (uint64, error) {
	length, err := reactor.Run(ctx, ec, lengthQuery{})
	if err != nil {
		return 0, err
	}
	results := make([]uint64, length)
	errs := make([]error, length)
	var wg sync.WaitGroup
	for i := 0; i < length; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = reactor.Run(ctx, ec, refReadQuery{n: i})
		}(i)
	}
	wg.Wait()
	var sum uint64
	for i, err := range errs {
		if err != nil {
			return 0, err
		}
		sum += results[i]
	}
	return sum, nil
}

func parseInput(s string) ([]uint64, error) {
	var out []uint64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q as uint64: %w", part, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func main() {
	var (
		input      string
		concurrent int
		traceFile  string
	)
	flag.StringVar(&input, "input", "2,5,7", "Comma-separated uint64 values for the input param.")
	flag.IntVar(&concurrent, "concurrent", 1, "Number of concurrent execute(Sum) calls to run, demonstrating dedup.")
	flag.StringVar(&traceFile, "tracefile", "", "Path to a JSONL trace file (default: none).")
	flag.Parse()

	values, err := parseInput(input)
	if err != nil {
		log.Fatal(err)
	}

	opts := []reactor.Option{}
	var ft *tracer.FileTracer
	if traceFile != "" {
		ft = tracer.NewFileTracer(traceFile)
		defer ft.Close()
		opts = append(opts, reactor.WithTracer(ft))
	}

	r := reactor.New(opts...)
	reactor.SetParam(r, inputParam, values)

	if ft != nil {
		ft.NewChapter(input, uuid.New())
	}

	if concurrent < 1 {
		concurrent = 1
	}
	results := make([]uint64, concurrent)
	errs := make([]error, concurrent)
	var wg sync.WaitGroup
	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = reactor.Execute[uint64](context.Background(), r, sumQuery{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			log.Fatalf("execute(Sum) #%d: %v", i, err)
		}
	}
	log.Printf("sum(%v) = %d (%d concurrent callers, %d body runs traced)", values, results[0], concurrent, len(r.Trace()))
}
