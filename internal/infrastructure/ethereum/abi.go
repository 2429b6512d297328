package ethereum

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
)

// Event signatures emitted by the equity token contract
const (
	TransferSignature        = "Transfer(address,address,uint256)"
	AllowlistAddSignature    = "AddressAllowlisted(address)"
	AllowlistRemoveSignature = "AddressRemovedFromAllowlist(address)"
	StockSplitSignature      = "StockSplit(uint256,uint256)"
	MetadataChangeSignature  = "MetadataChanged(string,string,string,string)"
	BuybackSignature         = "SharesBoughtBack(address,uint256)"
)

var (
	TransferTopic        = crypto.Keccak256Hash([]byte(TransferSignature))
	AllowlistAddTopic    = crypto.Keccak256Hash([]byte(AllowlistAddSignature))
	AllowlistRemoveTopic = crypto.Keccak256Hash([]byte(AllowlistRemoveSignature))
	StockSplitTopic      = crypto.Keccak256Hash([]byte(StockSplitSignature))
	MetadataChangeTopic  = crypto.Keccak256Hash([]byte(MetadataChangeSignature))
	BuybackTopic         = crypto.Keccak256Hash([]byte(BuybackSignature))
)

// equityTokenABI holds the event fragment of the equity token ABI
const equityTokenABI = `[
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}]},
	{"type":"event","name":"AddressAllowlisted","anonymous":false,"inputs":[
		{"name":"account","type":"address","indexed":true}]},
	{"type":"event","name":"AddressRemovedFromAllowlist","anonymous":false,"inputs":[
		{"name":"account","type":"address","indexed":true}]},
	{"type":"event","name":"StockSplit","anonymous":false,"inputs":[
		{"name":"multiplier","type":"uint256","indexed":false},
		{"name":"newTotalSupply","type":"uint256","indexed":false}]},
	{"type":"event","name":"MetadataChanged","anonymous":false,"inputs":[
		{"name":"oldName","type":"string","indexed":false},
		{"name":"newName","type":"string","indexed":false},
		{"name":"oldSymbol","type":"string","indexed":false},
		{"name":"newSymbol","type":"string","indexed":false}]},
	{"type":"event","name":"SharesBoughtBack","anonymous":false,"inputs":[
		{"name":"holder","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]}
]`

// eventNames maps each ledger event kind to its ABI event name
var eventNames = map[entities.EventKind]string{
	entities.EventKindTransfer:        "Transfer",
	entities.EventKindAllowlistAdd:    "AddressAllowlisted",
	entities.EventKindAllowlistRemove: "AddressRemovedFromAllowlist",
	entities.EventKindStockSplit:      "StockSplit",
	entities.EventKindMetadataChange:  "MetadataChanged",
	entities.EventKindBuyback:         "SharesBoughtBack",
}

var kindTopics = map[entities.EventKind]common.Hash{
	entities.EventKindTransfer:        TransferTopic,
	entities.EventKindAllowlistAdd:    AllowlistAddTopic,
	entities.EventKindAllowlistRemove: AllowlistRemoveTopic,
	entities.EventKindStockSplit:      StockSplitTopic,
	entities.EventKindMetadataChange:  MetadataChangeTopic,
	entities.EventKindBuyback:         BuybackTopic,
}

// TopicForKind returns the topic0 hash of an event kind
func TopicForKind(kind entities.EventKind) (common.Hash, error) {
	topic, ok := kindTopics[kind]
	if !ok {
		return common.Hash{}, fmt.Errorf("no topic for event kind %q", kind)
	}
	return topic, nil
}

func parseEquityTokenABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(equityTokenABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse equity token ABI: %w", err)
	}
	return parsed, nil
}
