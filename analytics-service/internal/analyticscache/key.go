package analyticscache

import (
	"encoding/hex"
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/thryec/pebbles-backend/shared/models"
	"golang.org/x/crypto/blake2b"
)

// CanonicalParams returns the order-independent JSON encoding of params that
// cache keys are derived from. Absent values (nil, "", empty lists) are
// omitted, lists are trimmed, de-duplicated and sorted, dates are rendered in
// UTC and unknown periods are dropped.
func CanonicalParams(params models.AnalyticsParams) []byte {
	canon := make(map[string]any)

	if params.Period != nil && params.Period.Valid() {
		canon["period"] = string(*params.Period)
	}
	if params.StartDate != nil {
		canon["startDate"] = params.StartDate.UTC().Format(time.RFC3339Nano)
	}
	if params.EndDate != nil {
		canon["endDate"] = params.EndDate.UTC().Format(time.RFC3339Nano)
	}
	putString(canon, "transactionType", params.TransactionType)
	putString(canon, "groupBy", params.GroupBy)
	putString(canon, "currency", strings.ToUpper(params.Currency))
	putList(canon, "categories", params.Categories)
	putList(canon, "tags", params.Tags)
	putList(canon, "clients", params.Clients)
	if params.IncludeDetails != nil {
		canon["includeDetails"] = *params.IncludeDetails
	}

	// encoding/json writes map keys in sorted order.
	out, err := json.Marshal(canon)
	if err != nil {
		// only strings and bools go in, so this cannot happen
		panic("analyticscache: canonical params not encodable: " + err.Error())
	}
	return out
}

// GenerateCacheKey derives the cache key for queryType and params: the hex
// BLAKE2b-256 digest of the length-prefixed query type followed by the
// canonical params.
func GenerateCacheKey(queryType string, params models.AnalyticsParams) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(strconv.Itoa(len(queryType))))
	h.Write([]byte{':'})
	h.Write([]byte(queryType))
	h.Write(CanonicalParams(params))
	return hex.EncodeToString(h.Sum(nil))
}

func putString(m map[string]any, name, v string) {
	if v = strings.TrimSpace(v); v != "" {
		m[name] = v
	}
}

func putList(m map[string]any, name string, vs []string) {
	if list := normalizeList(vs); len(list) > 0 {
		m[name] = list
	}
}

func normalizeList(vs []string) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
