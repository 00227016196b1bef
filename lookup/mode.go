package lookup

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects which product attribute a search matches against
type Mode string

const (
	ModeBrand      Mode = "brand"
	ModeDIN        Mode = "din"
	ModeIngredient Mode = "ingredient"
)

// ErrUnknownMode is returned by ParseMode for values other than brand, din or ingredient
var ErrUnknownMode = errors.New("unknown search mode")

// ParseMode maps a wire value to a Mode; empty means brand
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeBrand:
		return ModeBrand, nil
	case ModeDIN:
		return ModeDIN, nil
	case ModeIngredient:
		return ModeIngredient, nil
	}
	return "", fmt.Errorf("%w: %q (must be brand, din or ingredient)", ErrUnknownMode, s)
}
