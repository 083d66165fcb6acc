package vecseg_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hupe1980/vecseg"
	"github.com/hupe1980/vecseg/directory"
	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
	"github.com/hupe1980/vecseg/sysdb/memory"
)

// register stores a collection and its descriptors in the system-of-record.
func register(ctx context.Context, db *memory.Store, m vecseg.SegmentManager, c model.Collection) {
	segs, err := m.CreateSegments(c)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.CreateCollection(ctx, c); err != nil {
		log.Fatal(err)
	}
	for _, seg := range segs {
		if err := db.CreateSegment(ctx, seg); err != nil {
			log.Fatal(err)
		}
	}
}

// Example_localMemory demonstrates lazily instantiating the segments of a
// collection in memory.
func Example_localMemory() {
	ctx := context.Background()
	db := memory.New()

	m, err := vecseg.NewLocalManager(db)
	if err != nil {
		log.Fatal(err)
	}
	defer m.Stop()

	c := model.Collection{ID: model.NewUniqueID(), Name: "docs"}
	register(ctx, db, m, c)

	vr, err := m.VectorReader(ctx, c.ID)
	if err != nil {
		log.Fatal(err)
	}
	w := vr.(segment.Writer)
	_ = w.Apply(ctx, []segment.Record{
		{ID: "a", Operation: model.OperationAdd, Embedding: []float32{1, 2, 3}},
	})

	n, _ := vr.Count(ctx)
	fmt.Println("records:", n)
	// Output: records: 1
}

// Example_localPersisted demonstrates a persisted deployment with a
// footprint budget.
func Example_localPersisted() {
	ctx := context.Background()
	dir, err := os.MkdirTemp("", "vecseg-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	db := memory.New()
	m, err := vecseg.NewLocalManager(db,
		vecseg.WithPersistDirectory(dir),
		vecseg.WithMemoryLimit(64<<20),
		vecseg.WithMaxFileHandles(64),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer m.Stop()

	c := model.Collection{ID: model.NewUniqueID(), Name: "docs"}
	register(ctx, db, m, c)

	if err := m.HintUseCollection(ctx, c.ID, model.OperationUpsert); err != nil {
		log.Fatal(err)
	}

	stats := m.Stats()
	fmt.Println("open segments:", stats.OpenSegments)
	fmt.Println("file handle budget:", stats.FileHandleBudget)
	// Output:
	// open segments: 1
	// file handle budget: 16
}

// Example_distributed demonstrates resolving the endpoint serving a
// collection.
func Example_distributed() {
	ctx := context.Background()
	db := memory.New()

	m, err := vecseg.NewDistributedManager(db, directory.NewStatic("segment-server:50051"))
	if err != nil {
		log.Fatal(err)
	}
	defer m.Stop()

	c := model.Collection{ID: model.NewUniqueID(), Name: "docs"}
	register(ctx, db, m, c)

	endpoint, err := m.GetEndpoint(ctx, c.ID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(endpoint)
	// Output: segment-server:50051
}
