package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chainfill/chainfill/internal/core/domain"
	"github.com/chainfill/chainfill/internal/indexing/plan"
	"github.com/chainfill/chainfill/internal/infra/storage"
	"github.com/chainfill/chainfill/internal/infra/storage/memory"
)

type fakeHeads struct{ head uint64 }

func (f fakeHeads) HeadBlock(ctx context.Context, network domain.Network) (uint64, error) {
	return f.head, nil
}

// fakeFetcher records chunk boundaries and fails chunks starting at failAt.
type fakeFetcher struct {
	chunks   [][2]uint64
	failAt   uint64
	failErr  error
	cancelAt uint64
	cancel   context.CancelFunc
}

func (f *fakeFetcher) FetchRange(ctx context.Context, p *plan.BackfillPlan, fromBlock, toBlock uint64) error {
	if f.failErr != nil && fromBlock == f.failAt {
		return f.failErr
	}
	if f.cancel != nil && fromBlock == f.cancelAt {
		f.cancel()
	}
	f.chunks = append(f.chunks, [2]uint64{fromBlock, toBlock})
	return nil
}

func testConfig() Config {
	return Config{BatchSize: 300, MaxRetries: 2, RetryBase: time.Millisecond}
}

func buildPlan(t *testing.T, repo *memory.RangeRepo, fromBlock, toBlock string) *plan.BackfillPlan {
	t.Helper()
	p, err := plan.NewBackfillPlan(context.Background(), plan.Request{
		DataType:  domain.DataTypeBlocks,
		Network:   domain.NetworkEthereum,
		FromBlock: fromBlock,
		ToBlock:   toBlock,
	}, repo, fakeHeads{head: 100_000}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func ledger(t *testing.T, repo *memory.RangeRepo) []*domain.BackfilledRange {
	t.Helper()
	got, err := repo.List(context.Background(), storage.RangeFilter{})
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestRunFullSuccess(t *testing.T) {
	repo := memory.NewRangeRepo(memory.NewMemoryStorage())
	fetcher := &fakeFetcher{}
	exec := New(testConfig(), fetcher, repo, nil)

	p := buildPlan(t, repo, "100", "1100")
	if err := exec.Run(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	want := [][2]uint64{{100, 400}, {400, 700}, {700, 1000}, {1000, 1100}}
	if len(fetcher.chunks) != len(want) {
		t.Fatalf("chunks = %v, want %v", fetcher.chunks, want)
	}
	for i, chunk := range want {
		if fetcher.chunks[i] != chunk {
			t.Errorf("chunk %d = %v, want %v", i, fetcher.chunks[i], chunk)
		}
	}

	records := ledger(t, repo)
	if len(records) != 1 || records[0].StartBlock != 100 || records[0].EndBlock != 1100 {
		t.Fatalf("ledger = %+v", records)
	}
}

func TestRunFailurePersistsPartialProgress(t *testing.T) {
	repo := memory.NewRangeRepo(memory.NewMemoryStorage())
	fetchErr := errors.New("node unavailable")
	fetcher := &fakeFetcher{failAt: 700, failErr: fetchErr}
	exec := New(testConfig(), fetcher, repo, nil)

	p := buildPlan(t, repo, "100", "1100")
	err := exec.Run(context.Background(), p)
	if !errors.Is(err, fetchErr) {
		t.Fatalf("Run error = %v, want wrapped fetch error", err)
	}

	records := ledger(t, repo)
	if len(records) != 1 || records[0].StartBlock != 100 || records[0].EndBlock != 700 {
		t.Fatalf("ledger = %+v, want single record (100, 700)", records)
	}
	if !p.Range.Failed() {
		t.Error("plan should be terminal after a failed range")
	}
}

func TestRunFailureAtRangeStart(t *testing.T) {
	repo := memory.NewRangeRepo(memory.NewMemoryStorage())
	fetchErr := errors.New("node unavailable")
	fetcher := &fakeFetcher{failAt: 100, failErr: fetchErr}
	exec := New(testConfig(), fetcher, repo, nil)

	p := buildPlan(t, repo, "100", "1100")
	if err := exec.Run(context.Background(), p); !errors.Is(err, fetchErr) {
		t.Fatalf("Run error = %v", err)
	}

	if records := ledger(t, repo); len(records) != 0 {
		t.Fatalf("nothing fetched, ledger should be empty, got %+v", records)
	}
}

func TestRunCancellation(t *testing.T) {
	repo := memory.NewRangeRepo(memory.NewMemoryStorage())
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &fakeFetcher{cancelAt: 400, cancel: cancel}
	exec := New(testConfig(), fetcher, repo, nil)

	p := buildPlan(t, repo, "100", "1100")
	err := exec.Run(ctx, p)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}

	// The chunk that triggered cancellation still completed; progress stops at
	// its end.
	records := ledger(t, repo)
	if len(records) != 1 || records[0].EndBlock != 700 {
		t.Fatalf("ledger = %+v, want single record ending at 700", records)
	}
}

func TestRunExtendAdoptsStoredRecord(t *testing.T) {
	store := memory.NewMemoryStorage()
	repo := memory.NewRangeRepo(store)
	repo.Seed(&domain.BackfilledRange{
		ID:         "stored",
		DataType:   domain.DataTypeBlocks,
		Network:    domain.NetworkEthereum,
		StartBlock: 400,
		EndBlock:   700,
	})

	fetcher := &fakeFetcher{}
	exec := New(testConfig(), fetcher, repo, nil)

	p := buildPlan(t, repo, "100", "1000")
	if err := exec.Run(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	// Only the gaps were fetched.
	want := [][2]uint64{{100, 400}, {700, 1000}}
	if len(fetcher.chunks) != len(want) || fetcher.chunks[0] != want[0] || fetcher.chunks[1] != want[1] {
		t.Fatalf("chunks = %v, want %v", fetcher.chunks, want)
	}

	records := ledger(t, repo)
	if len(records) != 1 || records[0].StartBlock != 100 || records[0].EndBlock != 1000 {
		t.Fatalf("ledger = %+v, want single merged record (100, 1000)", records)
	}
	if records[0].ID != "stored" {
		t.Error("the stored record should have been extended in place")
	}
}

func TestRunJoinAbsorbsStoredRecords(t *testing.T) {
	store := memory.NewMemoryStorage()
	repo := memory.NewRangeRepo(store)
	repo.Seed(
		&domain.BackfilledRange{
			ID:         "first",
			DataType:   domain.DataTypeBlocks,
			Network:    domain.NetworkEthereum,
			StartBlock: 400,
			EndBlock:   500,
		},
		&domain.BackfilledRange{
			ID:         "second",
			DataType:   domain.DataTypeBlocks,
			Network:    domain.NetworkEthereum,
			StartBlock: 700,
			EndBlock:   800,
		},
	)

	fetcher := &fakeFetcher{}
	exec := New(testConfig(), fetcher, repo, nil)

	p := buildPlan(t, repo, "100", "1000")
	if err := exec.Run(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	records := ledger(t, repo)
	if len(records) != 1 || records[0].StartBlock != 100 || records[0].EndBlock != 1000 {
		t.Fatalf("ledger = %+v, want single merged record (100, 1000)", records)
	}
	if records[0].ID != "first" {
		t.Errorf("merged record id = %s, want the adopted first conflict", records[0].ID)
	}
}

func TestRunEmptyPlan(t *testing.T) {
	repo := memory.NewRangeRepo(memory.NewMemoryStorage())
	repo.Seed(&domain.BackfilledRange{
		ID:         "stored",
		DataType:   domain.DataTypeBlocks,
		Network:    domain.NetworkEthereum,
		StartBlock: 100,
		EndBlock:   2000,
	})

	fetcher := &fakeFetcher{}
	exec := New(testConfig(), fetcher, repo, nil)

	p := buildPlan(t, repo, "200", "1900")
	if err := exec.Run(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if len(fetcher.chunks) != 0 {
		t.Errorf("covered request should fetch nothing, got %v", fetcher.chunks)
	}

	records := ledger(t, repo)
	if len(records) != 1 || records[0].ID != "stored" {
		t.Fatalf("ledger should be untouched, got %+v", records)
	}
}

func TestBatchSizeFromRequest(t *testing.T) {
	repo := memory.NewRangeRepo(memory.NewMemoryStorage())
	fetcher := &fakeFetcher{}
	exec := New(testConfig(), fetcher, repo, nil)

	p, err := plan.NewBackfillPlan(context.Background(), plan.Request{
		DataType:  domain.DataTypeBlocks,
		Network:   domain.NetworkEthereum,
		FromBlock: "100",
		ToBlock:   "300",
		Kwargs:    map[string]any{"batch_size": 50},
	}, repo, fakeHeads{head: 100_000}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := exec.Run(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if len(fetcher.chunks) != 4 {
		t.Fatalf("chunks = %v, want 4 chunks of 50", fetcher.chunks)
	}
	if fetcher.chunks[0] != [2]uint64{100, 150} {
		t.Errorf("first chunk = %v", fetcher.chunks[0])
	}
}
