package ebird

import (
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/openaviary/birdfeed/pkg/models"
)

// normalizeObservation enriches a raw observation in place: provenance
// fields, the derived observation date, an explicit notability flag, and
// numeric coercion of the count field.
//
// The upstream feed stamps notability only on the notable stream; here the
// flag is normalized to an explicit boolean on both streams so the derived
// schema keeps the same arity across resources.
func (s *Source) normalizeObservation(source string, obs map[string]interface{}, region string, loadedAt time.Time, notable bool) *models.Record {
	obs["_region_code"] = region
	obs["_loaded_at"] = loadedAt.UTC().Format(time.RFC3339)
	obs["_is_notable"] = notable

	if v, ok := obs["obsDt"]; ok {
		obs["_observation_date"] = v
	} else {
		obs["_observation_date"] = nil
	}

	if raw, ok := obs["howMany"]; ok {
		count, ok := coerceCount(raw)
		if !ok {
			// Malformed counts are a data-quality signal, not a failure;
			// the record proceeds with a null count.
			s.logger.Debug("non-numeric count coerced to null",
				zap.String("resource", source),
				zap.Any("howMany", raw))
		}
		obs["howMany"] = count
	}

	return models.New(source, region, obs, loadedAt)
}

// coerceCount converts the raw count field to an int64, preserving the
// distinction between "reported without a count" (nil) and "reported as
// zero" (0). The second return value is false when a present value could
// not be parsed.
func coerceCount(v interface{}) (interface{}, bool) {
	switch n := v.(type) {
	case nil:
		return nil, true
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return int64(f), true
		}
		return nil, false
	default:
		return nil, false
	}
}
