package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polysight/ctfindexer/internal/domain"
)

type archiveOrders struct {
	orders  []domain.Order
	deleted int64
	listErr error
}

func (s *archiveOrders) GetByID(context.Context, string) (domain.Order, error) {
	return domain.Order{}, domain.ErrNotFound
}

func (s *archiveOrders) CreateIfAbsent(context.Context, domain.Order) (bool, error) {
	return false, nil
}

func (s *archiveOrders) LastTimestamp(context.Context) (time.Time, error) {
	return time.Time{}, nil
}

func (s *archiveOrders) ListRecent(context.Context, domain.ListOpts) ([]domain.Order, error) {
	return nil, nil
}

func (s *archiveOrders) ListBefore(_ context.Context, before time.Time) ([]domain.Order, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.Order
	for _, o := range s.orders {
		if o.Timestamp.Before(before) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *archiveOrders) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	var kept []domain.Order
	for _, o := range s.orders {
		if o.Timestamp.Before(before) {
			s.deleted++
			continue
		}
		kept = append(kept, o)
	}
	s.orders = kept
	return s.deleted, nil
}

type putCall struct {
	path        string
	contentType string
	body        []byte
}

type memBlob struct {
	puts       []putCall
	multiparts []putCall
}

func (b *memBlob) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.puts = append(b.puts, putCall{path: path, contentType: contentType, body: body})
	return nil
}

func (b *memBlob) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.multiparts = append(b.multiparts, putCall{path: path, body: body})
	return nil
}

var _ interface {
	domain.BlobWriter
	multipartWriter
} = (*memBlob)(nil)

func archiveOrder(id string, ts time.Time) domain.Order {
	return domain.Order{
		ID:                id,
		OrderHash:         id,
		MakerAmountFilled: big.NewInt(1_000000),
		TakerAmountFilled: big.NewInt(2),
		Fee:               big.NewInt(0),
		Side:              domain.SideBuy,
		Price:             decimal.NewFromInt(50),
		VolumeUSD:         decimal.NewFromInt(1),
		Timestamp:         ts,
	}
}

func testArchiver(orders domain.OrderStore, blob domain.BlobWriter, prune bool) *Archiver {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewArchiver(orders, blob, 24*time.Hour, prune, logger)
}

func TestArchiverRun(t *testing.T) {
	old := time.Now().UTC().Add(-48 * time.Hour)
	fresh := time.Now().UTC()

	t.Run("writes expired orders as JSONL", func(t *testing.T) {
		store := &archiveOrders{orders: []domain.Order{
			archiveOrder("0xaa", old),
			archiveOrder("0xbb", old.Add(time.Hour)),
			archiveOrder("0xcc", fresh),
		}}
		blob := &memBlob{}

		if err := testArchiver(store, blob, false).Run(context.Background()); err != nil {
			t.Fatalf("run: %v", err)
		}
		if len(blob.puts) != 1 {
			t.Fatalf("puts = %d, want 1", len(blob.puts))
		}

		put := blob.puts[0]
		if put.contentType != "application/x-ndjson" {
			t.Errorf("contentType = %q, want application/x-ndjson", put.contentType)
		}
		if !strings.HasPrefix(put.path, "orders/") || !strings.HasSuffix(put.path, ".jsonl") {
			t.Errorf("path = %q, want orders/<date>/...jsonl", put.path)
		}

		var ids []string
		sc := bufio.NewScanner(bytes.NewReader(put.body))
		for sc.Scan() {
			var row struct{ ID string }
			if err := json.Unmarshal(sc.Bytes(), &row); err != nil {
				t.Fatalf("line not valid JSON: %v", err)
			}
			ids = append(ids, row.ID)
		}
		if len(ids) != 2 || ids[0] != "0xaa" || ids[1] != "0xbb" {
			t.Errorf("archived ids = %v, want [0xaa 0xbb]", ids)
		}

		if store.deleted != 0 {
			t.Errorf("deleted = %d, want 0 without prune", store.deleted)
		}
	})

	t.Run("nothing expired uploads nothing", func(t *testing.T) {
		store := &archiveOrders{orders: []domain.Order{archiveOrder("0xaa", fresh)}}
		blob := &memBlob{}

		if err := testArchiver(store, blob, true).Run(context.Background()); err != nil {
			t.Fatalf("run: %v", err)
		}
		if len(blob.puts) != 0 {
			t.Errorf("puts = %d, want 0", len(blob.puts))
		}
		if store.deleted != 0 {
			t.Errorf("deleted = %d, want 0", store.deleted)
		}
	})

	t.Run("prune deletes only after upload", func(t *testing.T) {
		store := &archiveOrders{orders: []domain.Order{
			archiveOrder("0xaa", old),
			archiveOrder("0xbb", fresh),
		}}
		blob := &memBlob{}

		if err := testArchiver(store, blob, true).Run(context.Background()); err != nil {
			t.Fatalf("run: %v", err)
		}
		if store.deleted != 1 {
			t.Errorf("deleted = %d, want 1", store.deleted)
		}
		if len(store.orders) != 1 || store.orders[0].ID != "0xbb" {
			t.Errorf("remaining orders = %+v, want only 0xbb", store.orders)
		}
	})

	t.Run("list failure surfaces", func(t *testing.T) {
		boom := errors.New("db down")
		store := &archiveOrders{listErr: boom}

		err := testArchiver(store, &memBlob{}, true).Run(context.Background())
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want wrapped list failure", err)
		}
	})
}

func TestArchiverUpload(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("small batch uses single put", func(t *testing.T) {
		blob := &memBlob{}
		a := NewArchiver(&archiveOrders{}, blob, time.Hour, false, logger)

		buf := bytes.NewBufferString("{}\n")
		if err := a.upload(context.Background(), "orders/x.jsonl", buf); err != nil {
			t.Fatalf("upload: %v", err)
		}
		if len(blob.puts) != 1 || len(blob.multiparts) != 0 {
			t.Errorf("puts/multiparts = %d/%d, want 1/0", len(blob.puts), len(blob.multiparts))
		}
	})

	t.Run("large batch uses multipart", func(t *testing.T) {
		blob := &memBlob{}
		a := NewArchiver(&archiveOrders{}, blob, time.Hour, false, logger)

		var buf bytes.Buffer
		buf.Write(bytes.Repeat([]byte("x"), multipartThreshold))
		if err := a.upload(context.Background(), "orders/x.jsonl", &buf); err != nil {
			t.Fatalf("upload: %v", err)
		}
		if len(blob.multiparts) != 1 || len(blob.puts) != 0 {
			t.Errorf("puts/multiparts = %d/%d, want 0/1", len(blob.puts), len(blob.multiparts))
		}
	})

	t.Run("large batch without multipart support falls back", func(t *testing.T) {
		inner := &memBlob{}
		a := NewArchiver(&archiveOrders{}, &plainBlob{inner}, time.Hour, false, logger)

		var buf bytes.Buffer
		buf.Write(bytes.Repeat([]byte("x"), multipartThreshold))
		if err := a.upload(context.Background(), "orders/x.jsonl", &buf); err != nil {
			t.Fatalf("upload: %v", err)
		}
		if len(inner.puts) != 1 || len(inner.multiparts) != 0 {
			t.Errorf("puts/multiparts = %d/%d, want 1/0", len(inner.puts), len(inner.multiparts))
		}
	})
}

// plainBlob hides PutMultipart so type assertion in upload fails.
type plainBlob struct{ inner *memBlob }

func (b *plainBlob) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	return b.inner.Put(ctx, path, data, contentType)
}
