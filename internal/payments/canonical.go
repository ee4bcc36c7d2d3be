package payments

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

const upperHex = "0123456789ABCDEF"

// Gateway parameter names.
const (
	ParamVersion           = "vnp_Version"
	ParamCommand           = "vnp_Command"
	ParamTmnCode           = "vnp_TmnCode"
	ParamLocale            = "vnp_Locale"
	ParamCurrCode          = "vnp_CurrCode"
	ParamTxnRef            = "vnp_TxnRef"
	ParamOrderInfo         = "vnp_OrderInfo"
	ParamOrderType         = "vnp_OrderType"
	ParamAmount            = "vnp_Amount"
	ParamReturnURL         = "vnp_ReturnUrl"
	ParamIPAddr            = "vnp_IpAddr"
	ParamCreateDate        = "vnp_CreateDate"
	ParamExpireDate        = "vnp_ExpireDate"
	ParamBankCode          = "vnp_BankCode"
	ParamSecureHash        = "vnp_SecureHash"
	ParamSecureHashType    = "vnp_SecureHashType"
	ParamTransactionNo     = "vnp_TransactionNo"
	ParamResponseCode      = "vnp_ResponseCode"
	ParamTransactionStatus = "vnp_TransactionStatus"
	ParamBankTranNo        = "vnp_BankTranNo"
	ParamPayDate           = "vnp_PayDate"

	paramPrefix = "vnp_"
)

// shouldKeep reports the bytes encodeURIComponent leaves as-is.
func shouldKeep(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

// encodeComponent percent-encodes s byte by byte with uppercase hex. When
// formSpace is set a space becomes '+' rather than %20.
func encodeComponent(s string, formSpace bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case shouldKeep(c):
			b.WriteByte(c)
		case c == ' ' && formSpace:
			b.WriteByte('+')
		default:
			b.WriteByte('%')
			b.WriteByte(upperHex[c>>4])
			b.WriteByte(upperHex[c&0x0F])
		}
	}
	return b.String()
}

// Canonicalize renders params as the signing string: keys and values encoded,
// sorted by encoded key bytewise, joined with '=' and '&'.
func Canonicalize(params map[string]string) string {
	type pair struct{ key, value string }
	pairs := make([]pair, 0, len(params))
	for k, v := range params {
		pairs = append(pairs, pair{key: encodeComponent(k, false), value: encodeComponent(v, true)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(p.value)
	}
	return b.String()
}

// Sign returns the lowercase hex HMAC-SHA512 of data.
func Sign(secret, data string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedParams strips the hash fields and anything outside the gateway's
// parameter family, leaving exactly what the digest covers.
func SignedParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if k == ParamSecureHash || k == ParamSecureHashType {
			continue
		}
		if !strings.HasPrefix(k, paramPrefix) {
			continue
		}
		out[k] = v
	}
	return out
}

// VerifyDigest recomputes the digest over params and compares it with the
// claimed hash in constant time.
func VerifyDigest(secret string, params map[string]string) bool {
	claimed := strings.ToLower(strings.TrimSpace(params[ParamSecureHash]))
	if claimed == "" {
		return false
	}
	expected := Sign(secret, Canonicalize(SignedParams(params)))
	return hmac.Equal([]byte(expected), []byte(claimed))
}

// ParamsFromQuery flattens a decoded query string, keeping the first value.
func ParamsFromQuery(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
