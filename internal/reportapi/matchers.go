package reportapi

import "time"

// The API is fronted by more than one gateway and each wraps a
// successful login differently. Matchers are tried in order; the first
// one producing a non-empty token wins.
type tokenMatcher func(body map[string]interface{}) (string, bool)

var tokenMatchers = []tokenMatcher{
	// {success: true, code: 200, data: {token}}
	func(body map[string]interface{}) (string, bool) {
		success, _ := body["success"].(bool)
		code, ok := numberField(body, "code")
		if !success || !ok || int(code) != 200 {
			return "", false
		}
		return tokenFromData(body)
	},
	// {code: 0, msg: "Succeed", data: {token}}
	func(body map[string]interface{}) (string, bool) {
		code, ok := numberField(body, "code")
		msg, _ := body["msg"].(string)
		if !ok || int(code) != 0 || msg != "Succeed" {
			return "", false
		}
		return tokenFromData(body)
	},
	// {response: {data: {token}}}
	func(body map[string]interface{}) (string, bool) {
		inner, ok := body["response"].(map[string]interface{})
		if !ok {
			return "", false
		}
		return tokenFromData(inner)
	},
}

// ExtractToken tries every known response shape and returns the first
// non-empty token.
func ExtractToken(body map[string]interface{}) (string, bool) {
	for _, match := range tokenMatchers {
		if token, ok := match(body); ok && token != "" {
			return token, true
		}
	}
	return "", false
}

func tokenFromData(body map[string]interface{}) (string, bool) {
	data, ok := body["data"].(map[string]interface{})
	if !ok {
		return "", false
	}
	token, ok := data["token"].(string)
	return token, ok && token != ""
}

// extractExpiry reads the optional expiresIn field, a unix timestamp.
func extractExpiry(body map[string]interface{}) time.Time {
	scope := body
	if inner, ok := body["response"].(map[string]interface{}); ok {
		scope = inner
	}
	if data, ok := scope["data"].(map[string]interface{}); ok {
		if exp, ok := numberField(data, "expiresIn"); ok && exp > 0 {
			return time.Unix(int64(exp), 0)
		}
	}
	return time.Time{}
}

// errorMessage digs an error description out of the reply, trying the
// same envelope variants the matchers know about.
func errorMessage(body map[string]interface{}) string {
	if msg, ok := body["message"].(string); ok && msg != "" {
		return msg
	}
	if msg, ok := body["msg"].(string); ok && msg != "" {
		return msg
	}
	if inner, ok := body["response"].(map[string]interface{}); ok {
		if msg, ok := inner["msg"].(string); ok && msg != "" {
			return msg
		}
	}
	return "unknown error"
}

func numberField(body map[string]interface{}, key string) (float64, bool) {
	switch v := body[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
