package ledger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
)

func TestFileStore(t *testing.T) {
	fs, err := OpenFileStore(filepath.Join(t.TempDir(), "journal.json"))
	require.NoError(t, err)
	exerciseStore(t, fs)
}

func TestFileStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.json")

	fs, err := OpenFileStore(path)
	require.NoError(t, err)
	p3 := seedChain(t, fs)
	head := fs.Journal().Head()

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, head, reopened.Journal().Head())

	inputs, err := reopened.InputsOf(ctx, p3)
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2"}, inputs)

	payout, err := reopened.PayoutFor(ctx, "P2")
	require.NoError(t, err)
	require.NotNil(t, payout)
	assert.Equal(t, "20", payout.Amount.String())
}

func TestFileStore_RejectsTamperedJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")
	fs, err := OpenFileStore(path)
	require.NoError(t, err)
	seedChain(t, fs)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(raw), "Huila", "Narino", 1)), 0600))

	_, err = OpenFileStore(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
}

func TestFileStore_FailedSaveRollsBack(t *testing.T) {
	dir := t.TempDir()
	fs, err := OpenFileStore(filepath.Join(dir, "missing", "journal.json"))
	require.NoError(t, err)

	_, err = fs.RegisterActor(context.Background(), domain.Actor{Name: "Ana", Type: domain.ActorFarmer})
	require.Error(t, err)
	assert.Equal(t, 0, fs.Journal().Len())

	actors, err := fs.Actors(context.Background())
	require.NoError(t, err)
	assert.Empty(t, actors)
}
