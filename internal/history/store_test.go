package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bingyoan/SAUSEGE/internal/localstore"
	"github.com/bingyoan/SAUSEGE/internal/menu"
)

func newStore(t *testing.T) (*Store, *localstore.Store) {
	t.Helper()
	kv, err := localstore.Open(t.TempDir())
	require.NoError(t, err)
	return NewStore(kv, nil), kv
}

func record(id string, ts int64, total float64) menu.HistoryRecord {
	return menu.HistoryRecord{
		ID:                 id,
		Timestamp:          ts,
		Currency:           "JPY",
		TotalOriginalPrice: total,
		Items: []menu.CartItem{
			{Item: menu.MenuItem{ID: "a", TranslatedName: "Gyoza", Price: total}, Quantity: 1},
		},
	}
}

func TestAppendPrependsNewestFirst(t *testing.T) {
	s, _ := newStore(t)

	require.NoError(t, s.Append(record("r1", 100, 450)))
	require.NoError(t, s.Append(record("r2", 200, 980)))
	require.NoError(t, s.Append(record("r3", 300, 1200)))

	got := s.LoadAll()
	require.Len(t, got, 3)
	assert.Equal(t, "r3", got[0].ID)
	assert.Equal(t, "r2", got[1].ID)
	assert.Equal(t, "r1", got[2].ID)
}

func TestLoadAllEmptyStore(t *testing.T) {
	s, _ := newStore(t)
	assert.Empty(t, s.LoadAll())
}

func TestLoadAllRecoversFromCorruptBlob(t *testing.T) {
	s, kv := newStore(t)

	require.NoError(t, kv.Set(localstore.KeyHistory, `{"definitely": "not an array"`))
	assert.Empty(t, s.LoadAll())

	// The store stays usable after recovery.
	require.NoError(t, s.Append(record("r1", 100, 450)))
	require.Len(t, s.LoadAll(), 1)
}

func TestRemove(t *testing.T) {
	s, _ := newStore(t)

	require.NoError(t, s.Append(record("r1", 100, 450)))
	require.NoError(t, s.Append(record("r2", 200, 980)))

	require.NoError(t, s.Remove("r1"))
	got := s.LoadAll()
	require.Len(t, got, 1)
	assert.Equal(t, "r2", got[0].ID)
}

func TestRemoveUnknownIDIsNoOp(t *testing.T) {
	s, _ := newStore(t)

	require.NoError(t, s.Append(record("r1", 100, 450)))
	require.NoError(t, s.Remove("missing"))
	require.Len(t, s.LoadAll(), 1)
}

func TestRecordRoundTripPreservesItems(t *testing.T) {
	s, _ := newStore(t)

	rec := record("r1", 100, 450)
	rec.Location = &menu.GeoLocation{Lat: 35.6895, Lng: 139.6917}
	rec.TaxRate = 10
	rec.ServiceRate = 8
	rec.PaidBy = "Alice"
	require.NoError(t, s.Append(rec))

	got := s.LoadAll()
	require.Len(t, got, 1)
	assert.Equal(t, rec, got[0])
}
