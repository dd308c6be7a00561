package core

import (
	"fmt"
	"strings"
)

// ConservationValidator checks that a lot's supply is fully accounted for
// by holder positions, retirements, and the unallocated remainder, and that
// a holder's aggregate balance equals the sum of its positions.
type ConservationValidator struct{}

func (ConservationValidator) ValidateLot(lot CreditLot, positions []HolderPosition) error {
	tokenID := strings.TrimSpace(lot.TokenID)
	if lot.Amount <= 0 {
		return InvariantViolationError(fmt.Sprintf("lot %s has non-positive supply %d", tokenID, lot.Amount))
	}
	if lot.Retired < 0 || lot.Unallocated < 0 {
		return InvariantViolationError(fmt.Sprintf("lot %s has negative retired or unallocated quantity", tokenID))
	}
	if lot.Retired > lot.Amount {
		return InvariantViolationError(fmt.Sprintf("lot %s retired %d exceeds supply %d", tokenID, lot.Retired, lot.Amount))
	}

	var owned, retired int64
	for _, position := range positions {
		if strings.TrimSpace(position.TokenID) != tokenID {
			return InvariantViolationError(fmt.Sprintf("position for %s does not belong to lot %s", position.TokenID, tokenID))
		}
		if position.Owned < 0 || position.Retired < 0 {
			return InvariantViolationError(fmt.Sprintf("holder %s has a negative position in lot %s", position.HolderAddress, tokenID))
		}
		owned += position.Owned
		retired += position.Retired
	}
	if retired != lot.Retired {
		return InvariantViolationError(fmt.Sprintf("lot %s retired %d does not match holder retirements %d", tokenID, lot.Retired, retired))
	}
	if accounted := owned + lot.Retired + lot.Unallocated; accounted != lot.Amount {
		return InvariantViolationError(fmt.Sprintf("lot %s supply %d does not match accounted quantity %d", tokenID, lot.Amount, accounted))
	}
	return nil
}

func (ConservationValidator) ValidateHolder(balance HolderBalance, positions []HolderPosition) error {
	holder := strings.TrimSpace(balance.HolderAddress)
	if balance.Owned < 0 || balance.Retired < 0 {
		return InvariantViolationError(fmt.Sprintf("holder %s has a negative balance", holder))
	}
	var owned, retired int64
	for _, position := range positions {
		if strings.TrimSpace(position.HolderAddress) != holder {
			return InvariantViolationError(fmt.Sprintf("position for %s does not belong to holder %s", position.HolderAddress, holder))
		}
		owned += position.Owned
		retired += position.Retired
	}
	if owned != balance.Owned || retired != balance.Retired {
		return InvariantViolationError(fmt.Sprintf(
			"holder %s balance owned=%d retired=%d does not match positions owned=%d retired=%d",
			holder, balance.Owned, balance.Retired, owned, retired,
		))
	}
	return nil
}

// mergePositions overlays updated positions onto current, matched by holder
// and token.
func mergePositions(current []HolderPosition, updates ...HolderPosition) []HolderPosition {
	out := make([]HolderPosition, 0, len(current)+len(updates))
	replaced := map[string]bool{}
	for _, position := range current {
		key := positionKey(position.HolderAddress, position.TokenID)
		swapped := false
		for _, update := range updates {
			if positionKey(update.HolderAddress, update.TokenID) == key {
				out = append(out, update)
				replaced[key] = true
				swapped = true
				break
			}
		}
		if !swapped {
			out = append(out, position)
		}
	}
	for _, update := range updates {
		key := positionKey(update.HolderAddress, update.TokenID)
		if !replaced[key] {
			out = append(out, update)
			replaced[key] = true
		}
	}
	return out
}

func positionKey(holder string, tokenID string) string {
	return strings.TrimSpace(holder) + "|" + strings.TrimSpace(tokenID)
}

var _ ProvenanceValidator = ConservationValidator{}
