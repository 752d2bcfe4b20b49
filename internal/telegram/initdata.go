// Package telegram verifies Telegram Mini App launch payloads and sends bot notifications.
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strings"
)

const webAppDataKey = "WebAppData"

// WebAppUser is the "user" object embedded in initData.
type WebAppUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
}

// DisplayName returns the best human readable label for the user.
func (u WebAppUser) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName + " " + u.LastName))
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return ""
}

// Identity is the outcome of a successful verification. User is nil when the
// signed payload carried no user field.
type Identity struct {
	User     *WebAppUser
	AuthDate string
	QueryID  string
}

// ValidateInitData checks the initData signature against botToken.
// It never returns an error: any malformed input simply fails verification.
func ValidateInitData(initData, botToken string) (Identity, bool) {
	if initData == "" || botToken == "" {
		return Identity{}, false
	}

	values, err := url.ParseQuery(initData)
	if err != nil {
		return Identity{}, false
	}
	hash := values.Get("hash")
	if hash == "" {
		return Identity{}, false
	}
	values.Del("hash")

	expected := hex.EncodeToString(sign(dataCheckString(values), botToken))
	if !hmac.Equal([]byte(hash), []byte(expected)) {
		return Identity{}, false
	}

	identity := Identity{
		AuthDate: values.Get("auth_date"),
		QueryID:  values.Get("query_id"),
	}
	if raw := values.Get("user"); raw != "" {
		var user WebAppUser
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			return Identity{}, false
		}
		identity.User = &user
	}
	return identity, true
}

// SignInitData returns values encoded as an initData payload with a valid hash.
func SignInitData(values url.Values, botToken string) string {
	signed := url.Values{}
	for k, v := range values {
		if k == "hash" {
			continue
		}
		signed[k] = append([]string(nil), v...)
	}
	signed.Set("hash", hex.EncodeToString(sign(dataCheckString(signed), botToken)))
	return signed.Encode()
}

// dataCheckString joins the sorted key=value pairs (excluding hash) with newlines.
// Repeated keys keep only the first value, matching url.Values.Get.
func dataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}
	return strings.Join(pairs, "\n")
}

func sign(checkString, botToken string) []byte {
	secret := hmacSHA256([]byte(webAppDataKey), []byte(botToken))
	return hmacSHA256(secret, []byte(checkString))
}

func hmacSHA256(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}
