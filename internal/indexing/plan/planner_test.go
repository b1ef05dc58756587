package plan

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/chainfill/chainfill/internal/core/domain"
)

type fakeConflictSource struct {
	records []*domain.BackfilledRange
	err     error
}

func (f *fakeConflictSource) GetByType(
	ctx context.Context,
	dataType domain.BackfillDataType,
	network domain.Network,
) ([]*domain.BackfilledRange, error) {
	return f.records, f.err
}

type fakeHeadSource struct {
	head uint64
	err  error
}

func (f *fakeHeadSource) HeadBlock(ctx context.Context, network domain.Network) (uint64, error) {
	return f.head, f.err
}

type fakeDecoder struct {
	abis       []string
	signatures map[string]map[string]string
}

func (d *fakeDecoder) LoadedABIs() []string { return d.abis }

func (d *fakeDecoder) EventSignatures(abiName string) map[string]string {
	return d.signatures[abiName]
}

func erc20Decoder() *fakeDecoder {
	return &fakeDecoder{
		abis: []string{"ERC20"},
		signatures: map[string]map[string]string{
			"ERC20": {
				"Transfer": "Transfer(address,address,uint256)",
				"Approval": "Approval(address,address,uint256)",
			},
		},
	}
}

func TestNewBackfillPlanBlocks(t *testing.T) {
	src := &fakeConflictSource{records: fixtureConflicts()}
	heads := &fakeHeadSource{head: 20_000_000}

	p, err := NewBackfillPlan(context.Background(), Request{
		DataType:  domain.DataTypeBlocks,
		Network:   domain.NetworkEthereum,
		Source:    domain.DataSourceJSONRPC,
		FromBlock: "5000000",
		ToBlock:   "18000000",
	}, src, heads, nil)
	if err != nil {
		t.Fatal(err)
	}

	if p.Range.Mode != ModeJoin {
		t.Fatalf("mode = %s, want join", p.Range.Mode)
	}
	if p.TotalBlocks() != 10_000_000 {
		t.Errorf("TotalBlocks = %d, want 10000000", p.TotalBlocks())
	}
	if got := p.Label(); got != "Backfill Ethereum Blocks" {
		t.Errorf("Label = %q", got)
	}
}

func TestNewBackfillPlanClampsToHead(t *testing.T) {
	src := &fakeConflictSource{}
	heads := &fakeHeadSource{head: 10_000_000}

	p, err := NewBackfillPlan(context.Background(), Request{
		DataType:  domain.DataTypeBlocks,
		Network:   domain.NetworkEthereum,
		FromBlock: "9000000",
		ToBlock:   "99000000",
	}, src, heads, nil)
	if err != nil {
		t.Fatal(err)
	}
	assertRanges(t, p.Range, []BlockRange{{9_000_000, 10_000_000}})
}

func TestNewBackfillPlanResolvesIdentifiers(t *testing.T) {
	src := &fakeConflictSource{}
	heads := &fakeHeadSource{head: 10_000_000}

	p, err := NewBackfillPlan(context.Background(), Request{
		DataType:  domain.DataTypeBlocks,
		Network:   domain.NetworkEthereum,
		FromBlock: "earliest",
		ToBlock:   "latest",
	}, src, heads, nil)
	if err != nil {
		t.Fatal(err)
	}
	assertRanges(t, p.Range, []BlockRange{{0, 10_000_000}})

	if _, err := NewBackfillPlan(context.Background(), Request{
		DataType:  domain.DataTypeBlocks,
		Network:   domain.NetworkEthereum,
		FromBlock: "safe",
		ToBlock:   "latest",
	}, src, heads, nil); err == nil {
		t.Error("safe identifier should be rejected")
	}
}

func TestNewBackfillPlanEmpty(t *testing.T) {
	src := &fakeConflictSource{records: fixtureConflicts()}
	heads := &fakeHeadSource{head: 20_000_000}

	p, err := NewBackfillPlan(context.Background(), Request{
		DataType:  domain.DataTypeBlocks,
		Network:   domain.NetworkEthereum,
		FromBlock: "14500000",
		ToBlock:   "14600000",
	}, src, heads, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Empty() {
		t.Fatal("fully covered request should produce an empty plan")
	}
}

func TestNewBackfillPlanEvents(t *testing.T) {
	src := &fakeConflictSource{}
	heads := &fakeHeadSource{head: 20_000_000}

	p, err := NewBackfillPlan(context.Background(), Request{
		DataType:  domain.DataTypeEvents,
		Network:   domain.NetworkEthereum,
		FromBlock: "10000000",
		ToBlock:   "11000000",
		Kwargs: map[string]any{
			"contract_address": addrUSDT,
			"event_names":      []string{"Transfer"},
			"batch_size":       500,
		},
		DecodedABIs: []string{"ERC20"},
		Decoder:     erc20Decoder(),
	}, src, heads, nil)
	if err != nil {
		t.Fatal(err)
	}

	if abi, _ := p.FilterParam("abi_name"); abi != "ERC20" {
		t.Errorf("abi_name = %q, want ERC20", abi)
	}
	topics, err := p.MetadataValue("topics")
	if err != nil {
		t.Fatal(err)
	}
	selectors, ok := topics.([]string)
	if !ok || len(selectors) != 1 {
		t.Fatalf("topics = %v, want one Transfer selector", topics)
	}
	// keccak256("Transfer(address,address,uint256)")
	want := "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	if selectors[0] != want {
		t.Errorf("Transfer topic = %s, want %s", selectors[0], want)
	}
	if got := p.Label(); got != "Backfill ERC20 Events" {
		t.Errorf("Label = %q", got)
	}

	add := p.Range.AddBackfill()
	if add != nil {
		t.Fatal("no finalize happened yet")
	}
	if err := p.Range.MarkFinalized(0); err != nil {
		t.Fatal(err)
	}
	add = p.Range.AddBackfill()
	if add.FilterData["contract_address"] != addrUSDT {
		t.Error("minted record should carry the request filters")
	}
	if len(add.DecodedABIs) != 1 || add.DecodedABIs[0] != "ERC20" {
		t.Error("minted record should carry the decoded ABI names")
	}
	if add.ID == "" {
		t.Error("minted record needs a fresh id")
	}
}

func TestNewBackfillPlanEventsRequireSingleABI(t *testing.T) {
	src := &fakeConflictSource{}
	heads := &fakeHeadSource{head: 20_000_000}

	_, err := NewBackfillPlan(context.Background(), Request{
		DataType:  domain.DataTypeEvents,
		Network:   domain.NetworkEthereum,
		FromBlock: "10000000",
		ToBlock:   "11000000",
		Kwargs:    map[string]any{"contract_address": addrUSDT},
		Decoder:   &fakeDecoder{abis: []string{"ERC20", "ERC721"}},
	}, src, heads, nil)
	if err == nil || !strings.Contains(err.Error(), "expected 1 ABI") {
		t.Fatalf("err = %v, want single-ABI violation", err)
	}
}

func TestEventTopicsMissingEvent(t *testing.T) {
	_, err := EventTopics(erc20Decoder(), "ERC20", []string{"Transfer", "Mint"})
	if err == nil || !strings.Contains(err.Error(), "Mint") {
		t.Fatalf("err = %v, want missing event error", err)
	}
}

func TestEventTopicsDefaultsToAllEvents(t *testing.T) {
	topics, err := EventTopics(erc20Decoder(), "ERC20", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(topics) != 2 {
		t.Fatalf("got %d topics, want 2", len(topics))
	}
}

func TestProcessFailed(t *testing.T) {
	t.Run("mid range", func(t *testing.T) {
		src := &fakeConflictSource{records: fixtureConflicts()}
		p, err := NewBackfillPlan(context.Background(), Request{
			DataType:  domain.DataTypeBlocks,
			Network:   domain.NetworkEthereum,
			FromBlock: "5000000",
			ToBlock:   "18000000",
		}, src, &fakeHeadSource{head: 20_000_000}, nil)
		if err != nil {
			t.Fatal(err)
		}

		// Ranges: (5-8M), (9-14M), (15-16M), (17-18M). Stop inside the second.
		if err := p.ProcessFailed(11_000_000); err != nil {
			t.Fatal(err)
		}
		add := p.Range.AddBackfill()
		if add.StartBlock != 5_000_000 || add.EndBlock != 11_000_000 {
			t.Fatalf("add = (%d, %d), want (5000000, 11000000)", add.StartBlock, add.EndBlock)
		}
	})

	t.Run("before first range", func(t *testing.T) {
		src := &fakeConflictSource{}
		p, err := NewBackfillPlan(context.Background(), Request{
			DataType:  domain.DataTypeBlocks,
			Network:   domain.NetworkEthereum,
			FromBlock: "5000000",
			ToBlock:   "6000000",
		}, src, &fakeHeadSource{head: 20_000_000}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := p.ProcessFailed(4_000_000); err != nil {
			t.Fatal(err)
		}
		if p.Range.AddBackfill() != nil {
			t.Error("no coverage recorded before the first range")
		}
	})
}

func TestDescribe(t *testing.T) {
	src := &fakeConflictSource{records: fixtureConflicts()}
	p, err := NewBackfillPlan(context.Background(), Request{
		DataType:  domain.DataTypeBlocks,
		Network:   domain.NetworkEthereum,
		FromBlock: "13500000",
		ToBlock:   "15500000",
	}, src, &fakeHeadSource{head: 20_000_000}, nil)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	p.Describe(&buf)
	out := buf.String()

	for _, want := range []string{"Backfill Ethereum Blocks", "13500000", "15500000", "mode extend"} {
		if !strings.Contains(out, want) {
			t.Errorf("Describe output missing %q:\n%s", want, out)
		}
	}
}
