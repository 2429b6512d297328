/*
 * Copyright (c) 2024 Bima Kharisma Wicaksana
 * GitHub: https://github.com/bimakw
 *
 * Licensed under MIT License with Attribution Requirement.
 * See LICENSE file for details.
 */

package ethereum

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCaller struct {
	responses map[string][]byte
	err       error
}

func (c *fakeCaller) CallContract(_ context.Context, _ common.Address, data []byte) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.responses[hex.EncodeToString(data[:4])], nil
}

func newFetcherWith(t *testing.T, caller ContractCaller) *MetadataFetcher {
	t.Helper()
	f, err := NewMetadataFetcher(caller, zap.NewNop())
	require.NoError(t, err)
	return f
}

func packOutput(t *testing.T, f *MetadataFetcher, method string, value interface{}) []byte {
	t.Helper()
	out, err := f.abi.Methods[method].Outputs.Pack(value)
	require.NoError(t, err)
	return out
}

func selector(f *MetadataFetcher, method string) string {
	return hex.EncodeToString(f.abi.Methods[method].ID)
}

func TestFetchMetadata_StringGetters(t *testing.T) {
	caller := &fakeCaller{responses: map[string][]byte{}}
	f := newFetcherWith(t, caller)

	caller.responses[selector(f, "name")] = packOutput(t, f, "name", "Acme Series A")
	caller.responses[selector(f, "symbol")] = packOutput(t, f, "symbol", "ACMEA")
	caller.responses[selector(f, "decimals")] = packOutput(t, f, "decimals", uint8(0))

	meta := f.FetchMetadata(context.Background(), "0x1000000000000000000000000000000000000001")

	assert.Equal(t, "Acme Series A", meta.Name)
	assert.Equal(t, "ACMEA", meta.Symbol)
	assert.Equal(t, uint8(0), meta.Decimals)
}

func TestFetchMetadata_Bytes32Fallback(t *testing.T) {
	caller := &fakeCaller{responses: map[string][]byte{}}
	f := newFetcherWith(t, caller)

	raw, err := hex.DecodeString("4d616b6572000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)
	caller.responses[selector(f, "name")] = raw
	caller.responses[selector(f, "symbol")] = raw
	caller.responses[selector(f, "decimals")] = packOutput(t, f, "decimals", uint8(18))

	meta := f.FetchMetadata(context.Background(), "0x1000000000000000000000000000000000000001")

	assert.Equal(t, "Maker", meta.Name)
	assert.Equal(t, "Maker", meta.Symbol)
	assert.Equal(t, uint8(18), meta.Decimals)
}

func TestFetchMetadata_FallbacksOnError(t *testing.T) {
	f := newFetcherWith(t, &fakeCaller{err: errors.New("execution reverted")})

	meta := f.FetchMetadata(context.Background(), "0x1000000000000000000000000000000000000001")

	assert.Equal(t, "Unknown", meta.Name)
	assert.Equal(t, "UNK", meta.Symbol)
	assert.Equal(t, uint8(0), meta.Decimals)
}

func TestDecodeBytes32String(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"ascii", "4461690000000000000000000000000000000000000000000000000000000000", "Dai", false},
		{"all zero", "0000000000000000000000000000000000000000000000000000000000000000", "", true},
		{"binary", "ff01000000000000000000000000000000000000000000000000000000000000", "", true},
		{"short", "4461", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := hex.DecodeString(tt.input)
			require.NoError(t, err)

			got, err := decodeBytes32String(data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
