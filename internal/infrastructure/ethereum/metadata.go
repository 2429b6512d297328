/*
 * Copyright (c) 2024 Bima Kharisma Wicaksana
 * GitHub: https://github.com/bimakw
 *
 * Licensed under MIT License with Attribution Requirement.
 * See LICENSE file for details.
 */

package ethereum

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ContractMetadata holds the ERC-20 style metadata of an equity token
type ContractMetadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

const metadataABI = `[
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

// ContractCaller executes read-only calls. *Client implements it.
type ContractCaller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// MetadataFetcher reads token metadata via eth_call when a contract is
// registered without a name or symbol
type MetadataFetcher struct {
	caller ContractCaller
	abi    abi.ABI
	logger *zap.Logger
}

// NewMetadataFetcher creates a new metadata fetcher
func NewMetadataFetcher(caller ContractCaller, logger *zap.Logger) (*MetadataFetcher, error) {
	parsed, err := abi.JSON(strings.NewReader(metadataABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse metadata ABI: %w", err)
	}

	return &MetadataFetcher{
		caller: caller,
		abi:    parsed,
		logger: logger,
	}, nil
}

// FetchMetadata fetches the metadata of a contract. Fields that cannot be
// read fall back to placeholders; decimals falls back to 0 since equity
// tokens are usually indivisible.
func (f *MetadataFetcher) FetchMetadata(ctx context.Context, contractAddress string) *ContractMetadata {
	addr := common.HexToAddress(contractAddress)
	meta := &ContractMetadata{Name: "Unknown", Symbol: "UNK"}

	if name, err := f.callString(ctx, addr, "name"); err != nil {
		f.logger.Warn("Failed to fetch contract name, using fallback",
			zap.String("contract", contractAddress),
			zap.Error(err),
		)
	} else {
		meta.Name = name
	}

	if symbol, err := f.callString(ctx, addr, "symbol"); err != nil {
		f.logger.Warn("Failed to fetch contract symbol, using fallback",
			zap.String("contract", contractAddress),
			zap.Error(err),
		)
	} else {
		meta.Symbol = symbol
	}

	if decimals, err := f.callDecimals(ctx, addr); err != nil {
		f.logger.Warn("Failed to fetch contract decimals, using fallback",
			zap.String("contract", contractAddress),
			zap.Error(err),
		)
	} else {
		meta.Decimals = decimals
	}

	return meta
}

func (f *MetadataFetcher) call(ctx context.Context, addr common.Address, method string) ([]byte, error) {
	input, err := f.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}
	out, err := f.caller.CallContract(ctx, addr, input)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty result for %s", method)
	}
	return out, nil
}

// callString reads a string getter. Some older tokens return bytes32 instead
// of a dynamic string, so that encoding is accepted too.
func (f *MetadataFetcher) callString(ctx context.Context, addr common.Address, method string) (string, error) {
	out, err := f.call(ctx, addr, method)
	if err != nil {
		return "", err
	}

	if values, err := f.abi.Unpack(method, out); err == nil && len(values) == 1 {
		if s, ok := values[0].(string); ok {
			return s, nil
		}
	}

	return decodeBytes32String(out)
}

func (f *MetadataFetcher) callDecimals(ctx context.Context, addr common.Address) (uint8, error) {
	out, err := f.call(ctx, addr, "decimals")
	if err != nil {
		return 0, err
	}

	values, err := f.abi.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("failed to decode decimals: %w", err)
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", values[0])
	}
	return decimals, nil
}

// decodeBytes32String reads a NUL padded bytes32 as printable ASCII
func decodeBytes32String(data []byte) (string, error) {
	if len(data) < 32 {
		return "", fmt.Errorf("data too short: %d bytes", len(data))
	}

	trimmed := bytes.TrimRight(data[:32], "\x00")
	if len(trimmed) == 0 {
		return "", fmt.Errorf("empty bytes32 value")
	}
	for _, b := range trimmed {
		if b < 32 || b > 126 {
			return "", fmt.Errorf("bytes32 value is not printable")
		}
	}
	return string(trimmed), nil
}
