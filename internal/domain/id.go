package domain

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// MovementID = "<tx_hash>-<log_index>"
func MakeMovementID(txHash string, logIndex uint32) string {
	return fmt.Sprintf("%s-%d", strings.ToLower(txHash), logIndex)
}

type ParsedMovementID struct {
	TxHash   string
	LogIndex uint32
}

func ParseMovementID(id string) (ParsedMovementID, error) {
	var out ParsedMovementID

	idx := strings.LastIndexByte(id, '-')
	if idx <= 0 || idx == len(id)-1 {
		return out, fmt.Errorf("invalid movement id format: %s", id)
	}

	txHash, err := NormalizeTxHash(id[:idx])
	if err != nil {
		return out, err
	}

	logIdx, err := strconv.ParseUint(id[idx+1:], 10, 32)
	if err != nil {
		return out, fmt.Errorf("invalid log_index, err=%v", err)
	}

	out.TxHash = txHash
	out.LogIndex = uint32(logIdx)

	return out, nil
}

// NormalizeAddress checks 0x + 40 hex and lower-cases
func NormalizeAddress(addr string) (string, error) {
	return normalizeHex(addr, 20, "address")
}

// NormalizeTxHash checks 0x + 64 hex and lower-cases
func NormalizeTxHash(h string) (string, error) {
	return normalizeHex(h, 32, "tx hash")
}

func normalizeHex(s string, size int, what string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) != 2+size*2 || !(strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		return "", fmt.Errorf("invalid %s: %q", what, s)
	}

	body := strings.ToLower(s[2:])
	if _, err := hex.DecodeString(body); err != nil {
		return "", fmt.Errorf("invalid %s: %q", what, s)
	}

	return "0x" + body, nil
}
