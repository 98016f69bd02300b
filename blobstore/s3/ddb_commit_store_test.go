package s3

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/korpus/blobstore"
)

// fakeCommitTable is an in-memory stand-in for the DynamoDB table,
// honoring conditional writes so the CAS path can be exercised.
type fakeCommitTable struct {
	mu   sync.RWMutex
	rows map[string]map[string]types.AttributeValue
}

func newFakeCommitTable() *fakeCommitTable {
	return &fakeCommitTable{rows: make(map[string]map[string]types.AttributeValue)}
}

func itemString(item map[string]types.AttributeValue, attr string) string {
	switch v := item[attr].(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	default:
		return ""
	}
}

func (f *fakeCommitTable) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rowKey := itemString(params.Item, attrBaseURI) + "#" + itemString(params.Item, attrVersion)

	if params.ConditionExpression != nil {
		if _, taken := f.rows[rowKey]; taken {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("version exists")}
		}
	}

	f.rows[rowKey] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeCommitTable) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	wantURI := params.ExpressionAttributeValues[":uri"].(*types.AttributeValueMemberS).Value

	var matched []map[string]types.AttributeValue
	for _, row := range f.rows {
		if itemString(row, attrBaseURI) == wantURI {
			matched = append(matched, row)
		}
	}

	// ScanIndexForward=false ordering: newest version first.
	slices.SortFunc(matched, func(a, b map[string]types.AttributeValue) int {
		av, _ := strconv.ParseUint(itemString(a, attrVersion), 10, 64)
		bv, _ := strconv.ParseUint(itemString(b, attrVersion), 10, 64)
		return cmp.Compare(bv, av)
	})

	if params.Limit != nil && int(*params.Limit) < len(matched) {
		matched = matched[:*params.Limit]
	}

	return &dynamodb.QueryOutput{Items: matched}, nil
}

func newCommitStoreUnderTest(tbl *fakeCommitTable, baseURI string) *DDBCommitStore {
	blobs := NewStore(&MockS3Client{}, "test-bucket", "test/")
	return NewDDBCommitStore(blobs, tbl, "korpus-commits", baseURI)
}

func readPointer(t *testing.T, store *DDBCommitStore) string {
	t.Helper()

	blob, err := store.Open(context.Background(), "CURRENT")
	require.NoError(t, err)
	defer blob.Close()

	buf := make([]byte, blob.Size())
	n, err := blob.ReadAt(context.Background(), buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("read CURRENT: %v", err)
	}
	return string(buf[:n])
}

func TestDDBCommitStore_FirstCommit(t *testing.T) {
	store := newCommitStoreUnderTest(newFakeCommitTable(), "s3://test-bucket/test/")

	require.NoError(t, store.Put(context.Background(), "CURRENT", []byte("MANIFEST-000001.json")))
	assert.Equal(t, "MANIFEST-000001.json", readPointer(t, store))
}

func TestDDBCommitStore_LatestWins(t *testing.T) {
	store := newCommitStoreUnderTest(newFakeCommitTable(), "s3://test-bucket/test/")

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.Put(context.Background(), "CURRENT",
			[]byte(fmt.Sprintf("MANIFEST-%06d.json", i))))
	}

	assert.Equal(t, "MANIFEST-000003.json", readPointer(t, store))
}

func TestDDBCommitStore_ConcurrentCommits(t *testing.T) {
	store := newCommitStoreUnderTest(newFakeCommitTable(), "s3://test-bucket/test/")

	require.NoError(t, store.Put(context.Background(), "CURRENT", []byte("MANIFEST-000001.json")))

	// Every writer races for version 2. Winners get nil, losers must get
	// the concurrent-modification sentinel and nothing else.
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Put(context.Background(), "CURRENT",
				[]byte(fmt.Sprintf("MANIFEST-%06d.json", i+2)))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, blobstore.ErrConcurrentModification):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Greater(t, successes, 0, "at least one writer should win")
	assert.Equal(t, 5, successes+conflicts)
}

func TestDDBCommitStore_NotFoundBeforeCommit(t *testing.T) {
	store := newCommitStoreUnderTest(newFakeCommitTable(), "s3://test-bucket/test/")

	_, err := store.Open(context.Background(), "CURRENT")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestDDBCommitStore_IsolatedNamespaces(t *testing.T) {
	tbl := newFakeCommitTable()
	storeA := newCommitStoreUnderTest(tbl, "s3://bucket-a/path/")
	storeB := newCommitStoreUnderTest(tbl, "s3://bucket-b/path/")

	require.NoError(t, storeA.Put(context.Background(), "CURRENT", []byte("MANIFEST-A.json")))
	require.NoError(t, storeB.Put(context.Background(), "CURRENT", []byte("MANIFEST-B.json")))

	assert.Equal(t, "MANIFEST-A.json", readPointer(t, storeA))
	assert.Equal(t, "MANIFEST-B.json", readPointer(t, storeB))
}
