package chain

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

// scriptedReceipts returns queued receipts in order and reports the
// standard not-found sentinel once the queue is empty.
type scriptedReceipts struct {
	receipts []*types.Receipt
	calls    int
}

func (s *scriptedReceipts) TransactionReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	s.calls++
	if len(s.receipts) == 0 {
		return nil, ethereum.NotFound
	}
	r := s.receipts[0]
	s.receipts = s.receipts[1:]
	return r, nil
}

func TestWaitForReceiptReturnsMinedReceipt(t *testing.T) {
	mined := &types.Receipt{Status: types.ReceiptStatusSuccessful}
	reader := &scriptedReceipts{receipts: []*types.Receipt{mined}}

	receipt, err := WaitForReceipt(context.Background(), reader, common.HexToHash("0x01"))
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	require.Equal(t, 1, reader.calls)
}

func TestWaitForReceiptHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	reader := &scriptedReceipts{}

	_, err := WaitForReceipt(ctx, reader, common.HexToHash("0x02"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
