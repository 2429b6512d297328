package ethereum

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
)

var (
	tokenAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	aliceAddr = common.HexToAddress("0x00000000000000000000000000000000000000Aa")
	bobAddr   = common.HexToAddress("0x00000000000000000000000000000000000000bB")
)

func newTestDecoder(t *testing.T) *Decoder {
	t.Helper()
	d, err := NewDecoder()
	require.NoError(t, err)
	return d
}

func addressTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func uint256Word(v int64) []byte {
	return common.LeftPadBytes(big.NewInt(v).Bytes(), 32)
}

func transferLog(block uint64, index uint, from, to common.Address, value int64) types.Log {
	return types.Log{
		Address:     tokenAddr,
		Topics:      []common.Hash{TransferTopic, addressTopic(from), addressTopic(to)},
		Data:        uint256Word(value),
		BlockNumber: block,
		TxHash:      crypto.Keccak256Hash(big.NewInt(int64(block)).Bytes(), big.NewInt(int64(index)).Bytes()),
		Index:       index,
	}
}

func TestTopicsMatchSignatures(t *testing.T) {
	assert.Equal(t,
		common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"),
		TransferTopic,
	)

	d := newTestDecoder(t)
	for kind, name := range eventNames {
		topic, err := TopicForKind(kind)
		require.NoError(t, err)
		assert.Equal(t, d.abi.Events[name].ID, topic, name)
	}

	_, err := TopicForKind("unknown")
	assert.Error(t, err)
}

func TestDecode_Transfer(t *testing.T) {
	d := newTestDecoder(t)
	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	log := transferLog(120, 4, common.Address{}, aliceAddr, 1000)
	ev, err := d.Decode(entities.EventKindTransfer, log, ts)
	require.NoError(t, err)
	require.NotNil(t, ev.Transfer)

	assert.Equal(t, entities.EventKindTransfer, ev.Kind)
	assert.Equal(t, entities.ZeroAddress, ev.Transfer.From)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", ev.Transfer.To)
	assert.Equal(t, "1000", ev.Transfer.Amount.String())
	assert.True(t, ev.Transfer.IsMint())
	assert.Equal(t, int64(120), ev.Transfer.BlockNumber)
	assert.Equal(t, 4, ev.Transfer.LogIndex)
	assert.Equal(t, ts, ev.Transfer.BlockTimestamp)
	assert.Equal(t, log.TxHash.Hex(), ev.Transfer.TxHash)
	assert.Equal(t, "0x1000000000000000000000000000000000000001", ev.Transfer.ContractAddress)
	assert.NoError(t, ev.Validate())
}

func TestDecode_Allowlist(t *testing.T) {
	d := newTestDecoder(t)

	for _, tc := range []struct {
		kind  entities.EventKind
		topic common.Hash
	}{
		{entities.EventKindAllowlistAdd, AllowlistAddTopic},
		{entities.EventKindAllowlistRemove, AllowlistRemoveTopic},
	} {
		log := types.Log{
			Address:     tokenAddr,
			Topics:      []common.Hash{tc.topic, addressTopic(bobAddr)},
			BlockNumber: 10,
			Index:       0,
		}

		ev, err := d.Decode(tc.kind, log, time.Unix(0, 0))
		require.NoError(t, err)
		require.NotNil(t, ev.Allowlist)
		assert.Equal(t, "0x00000000000000000000000000000000000000bb", ev.Allowlist.Address)
	}
}

func TestDecode_StockSplitAndBuyback(t *testing.T) {
	d := newTestDecoder(t)

	split := types.Log{
		Address:     tokenAddr,
		Topics:      []common.Hash{StockSplitTopic},
		Data:        append(uint256Word(2), uint256Word(3000)...),
		BlockNumber: 30,
	}
	ev, err := d.Decode(entities.EventKindStockSplit, split, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, "2", ev.StockSplit.Multiplier.String())
	assert.Equal(t, "3000", ev.StockSplit.NewTotalSupply.String())

	buyback := types.Log{
		Address:     tokenAddr,
		Topics:      []common.Hash{BuybackTopic, addressTopic(aliceAddr)},
		Data:        uint256Word(50),
		BlockNumber: 31,
		Index:       2,
	}
	ev, err = d.Decode(entities.EventKindBuyback, buyback, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", ev.Buyback.Holder)
	assert.Equal(t, "50", ev.Buyback.Amount.String())
}

func TestDecode_MetadataChange(t *testing.T) {
	d := newTestDecoder(t)

	data, err := d.abi.Events["MetadataChanged"].Inputs.NonIndexed().Pack("Acme", "Acme Holdings", "ACME", "ACMH")
	require.NoError(t, err)

	log := types.Log{
		Address:     tokenAddr,
		Topics:      []common.Hash{MetadataChangeTopic},
		Data:        data,
		BlockNumber: 40,
	}

	ev, err := d.Decode(entities.EventKindMetadataChange, log, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, "Acme", ev.MetadataChange.OldName)
	assert.Equal(t, "Acme Holdings", ev.MetadataChange.NewName)
	assert.Equal(t, "ACME", ev.MetadataChange.OldSymbol)
	assert.Equal(t, "ACMH", ev.MetadataChange.NewSymbol)
}

func TestDecode_Rejects(t *testing.T) {
	d := newTestDecoder(t)

	tests := []struct {
		name string
		kind entities.EventKind
		log  types.Log
	}{
		{
			name: "wrong topic",
			kind: entities.EventKindTransfer,
			log:  types.Log{Topics: []common.Hash{BuybackTopic}, Data: uint256Word(1)},
		},
		{
			name: "no topics",
			kind: entities.EventKindTransfer,
			log:  types.Log{Data: uint256Word(1)},
		},
		{
			name: "missing indexed topic",
			kind: entities.EventKindTransfer,
			log:  types.Log{Topics: []common.Hash{TransferTopic, addressTopic(aliceAddr)}, Data: uint256Word(1)},
		},
		{
			name: "short data",
			kind: entities.EventKindTransfer,
			log: types.Log{
				Topics: []common.Hash{TransferTopic, addressTopic(aliceAddr), addressTopic(bobAddr)},
				Data:   []byte{0x01},
			},
		},
		{
			name: "unknown kind",
			kind: "dividend",
			log:  types.Log{Topics: []common.Hash{TransferTopic}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode(tt.kind, tt.log, time.Unix(0, 0))
			assert.ErrorIs(t, err, entities.ErrInvalidEvent)
		})
	}
}
