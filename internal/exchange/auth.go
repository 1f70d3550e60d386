package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Auth holds the pre-issued API credentials used to sign AuthenticateUser
// requests. There is no on-chain signing step here — credentials are
// plain, out-of-band issued key/secret pairs.
type Auth struct {
	UserId int
	ApiKey string
	secret []byte
}

func NewAuth(userId int, apiKey, secret string) *Auth {
	return &Auth{UserId: userId, ApiKey: apiKey, secret: []byte(secret)}
}

// AuthenticateUserRequest is the wire payload for the AuthenticateUser
// REQUEST frame.
type AuthenticateUserRequest struct {
	APIKey    string `json:"APIKey"`
	Signature string `json:"Signature"`
	UserId    int    `json:"UserId"`
	Nonce     string `json:"Nonce"`
}

// Sign builds an AuthenticateUserRequest for the given nonce. Signature is
// HMAC-SHA256(secret, "{nonce}{user_id}{api_key}"), hex-encoded.
func (a *Auth) Sign(nonce int64) AuthenticateUserRequest {
	nonceStr := strconv.FormatInt(nonce, 10)
	message := nonceStr + strconv.Itoa(a.UserId) + a.ApiKey

	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(message))
	signature := hex.EncodeToString(mac.Sum(nil))

	return AuthenticateUserRequest{
		APIKey:    a.ApiKey,
		Signature: signature,
		UserId:    a.UserId,
		Nonce:     nonceStr,
	}
}
