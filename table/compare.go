package table

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Compare orders two cell values for the sort step of the insert
// engine's merge (spec.md §4.7.2 step 5). nil (missing) sorts first.
// Mixed-kind numerics are compared as exact decimals rather than
// float64, so a large int64 sorts correctly against a float column
// without the precision loss a float64 cast would introduce.
// time.Time values compare by instant.
func Compare(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	if ad, aok := asDecimal(a); aok {
		if bd, bok := asDecimal(b); bok {
			return ad.Cmp(bd)
		}
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			switch {
			case as < bs:
				return -1
			case as > bs:
				return 1
			default:
				return 0
			}
		}
	}
	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			if ab == bb {
				return 0
			}
			if !ab {
				return -1
			}
			return 1
		}
	}
	return 0
}

func asDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case int64:
		return decimal.NewFromInt(n), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0), true
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	default:
		return decimal.Decimal{}, false
	}
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			return at.Equal(bt)
		}
		return false
	}
	if ad, aok := asDecimal(a); aok {
		if bd, bok := asDecimal(b); bok {
			return ad.Equal(bd)
		}
		return false
	}
	return a == b
}
