package reportapi

import (
	"bytes"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"
)

// Fields never included in the signature input.
var signExcluded = map[string]struct{}{
	"timestamp": {},
	"signature": {},
	"track":     {},
}

// SignParams adds the common request parameters the reporting API
// verifies on every call: a unix timestamp, a 12-digit nonce and an
// uppercase MD5 signature over the canonical JSON of the remaining
// scalar fields. The input map is mutated.
func SignParams(params map[string]interface{}) map[string]interface{} {
	params["timestamp"] = time.Now().Unix()
	params["random"] = nonce(12)
	params["signature"] = Signature(params)
	return params
}

// Signature computes the uppercase MD5 hex digest of the canonical
// JSON form of params: keys sorted, compact separators, list-valued
// and excluded fields dropped.
func Signature(params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if _, skip := signExcluded[k]; skip {
			continue
		}
		if isList(v) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(jsonValue(k))
		buf.WriteByte(':')
		buf.Write(jsonValue(params[k]))
	}
	buf.WriteByte('}')

	sum := md5.Sum(buf.Bytes())
	return strings.ToUpper(fmt.Sprintf("%x", sum))
}

// jsonValue encodes v without the HTML escaping json.Marshal applies;
// the server hashes <, > and & literally.
func jsonValue(v interface{}) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil
	}
	return bytes.TrimRight(buf.Bytes(), "\n")
}

func isList(v interface{}) bool {
	switch v.(type) {
	case []interface{}, []string, []int, []int64, []float64:
		return true
	default:
		return false
	}
}

// nonce returns a random positive integer with exactly n digits.
func nonce(n int) int64 {
	var v int64 = int64(1 + rand.Intn(9))
	for i := 1; i < n; i++ {
		v = v*10 + int64(rand.Intn(10))
	}
	return v
}
