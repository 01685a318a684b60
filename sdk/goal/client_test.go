package goal

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"bullseye/core"
	goalcore "bullseye/core/goal"
	"bullseye/crypto"
	"bullseye/rpc"
	"bullseye/storage"
)

const testNow = int64(1_700_000_000)

func testAddress(seed byte) string {
	var raw [20]byte
	for i := range raw {
		raw[i] = seed
	}
	return crypto.NewAddress(crypto.ByePrefix, raw[:]).String()
}

func newTestEnv(t *testing.T) (*Client, *core.Node) {
	t.Helper()
	var treasury [20]byte
	treasury[19] = 0xEE
	node := core.NewNode(storage.NewMemDB(), treasury)
	node.SetNowFunc(func() int64 { return testNow })
	srv := httptest.NewServer(rpc.NewServer(node, nil).Handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL), node
}

func creditAddress(t *testing.T, node *core.Node, bech string, amount *big.Int) {
	t.Helper()
	addr, err := crypto.DecodeAddress(bech)
	require.NoError(t, err)
	var raw [20]byte
	copy(raw[:], addr.Bytes())
	require.NoError(t, node.Credit(raw, amount))
}

func TestClientLifecycle(t *testing.T) {
	client, node := newTestEnv(t)
	ctx := context.Background()
	owner := testAddress(0x01)
	arbiters := [3]string{testAddress(0x11), testAddress(0x12), testAddress(0x13)}
	creditAddress(t, node, owner, goalcore.MinStake)

	dir, err := client.InitializeDirectory(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, owner, dir.Owner)
	require.Nil(t, dir.OpenSequence)

	created, err := client.CreateGoal(ctx, CreateGoalRequest{
		Caller:      owner,
		Title:       "ship the release",
		Description: "cut and publish the next release",
		Amount:      new(big.Int).Set(goalcore.MinStake),
		Deadline:    testNow + 7*24*3600,
		Route:       "treasury",
		Arbiters:    arbiters,
	})
	require.NoError(t, err)
	require.Equal(t, "active", created.Status)

	submitted, err := client.RequestVerification(ctx, owner, created.ID)
	require.NoError(t, err)
	require.Equal(t, "submitted", submitted.Status)

	ballot, err := client.CastVote(ctx, arbiters[0], created.ID, false)
	require.NoError(t, err)
	require.False(t, ballot.Finalized)

	ballot, err = client.CastVote(ctx, arbiters[1], created.ID, false)
	require.NoError(t, err)
	require.True(t, ballot.Finalized)
	require.NotNil(t, ballot.Outcome)
	require.Equal(t, "failure", *ballot.Outcome)

	settled, err := client.Settle(ctx, owner, created.ID)
	require.NoError(t, err)
	require.Equal(t, "settled", settled.Status)

	fetched, err := client.GetGoal(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "settled", fetched.Status)

	fetchedBallot, err := client.GetBallot(ctx, created.Ballot)
	require.NoError(t, err)
	require.True(t, fetchedBallot.Finalized)

	dir, err = client.GetDirectory(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, uint64(1), dir.TotalCreated)
	require.Nil(t, dir.OpenSequence)

	account, err := client.GetAccount(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, "0", account.Balance)

	events, err := client.Events(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	require.Equal(t, "goal.directory_initialized", events[0].Type)
	require.NotEmpty(t, events[0].Attributes)

	// Re-encoding an event must reproduce the node's wire keys.
	encoded, err := json.Marshal(events[0])
	require.NoError(t, err)
	require.Contains(t, string(encoded), `"type"`)
	require.Contains(t, string(encoded), `"attributes"`)
}

func TestClientSurfacesRPCErrors(t *testing.T) {
	client, _ := newTestEnv(t)
	ctx := context.Background()

	_, err := client.GetGoal(ctx, "00")
	require.Error(t, err)

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))

	_, err = client.InitializeDirectory(ctx, "not-an-address")
	require.Error(t, err)
	require.True(t, errors.As(err, &rpcErr))
}

func TestClientRequiresAmount(t *testing.T) {
	client, _ := newTestEnv(t)
	_, err := client.CreateGoal(context.Background(), CreateGoalRequest{Caller: testAddress(0x01)})
	require.Error(t, err)
}
