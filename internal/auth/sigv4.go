// Package auth implements AWS Signature Version 4 request authentication
// against a single static credential pair.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

const (
	// algorithm is the signing algorithm identifier.
	algorithm = "AWS4-HMAC-SHA256"

	// scopeTerminator is the fixed suffix of the credential scope.
	scopeTerminator = "aws4_request"

	// unsignedPayload is the body hash used by presigned URLs.
	unsignedPayload = "UNSIGNED-PAYLOAD"

	// streamingPayload indicates chunked upload with per-chunk signing.
	streamingPayload = "STREAMING-AWS4-HMAC-SHA256-PAYLOAD"

	// emptySHA256 is the SHA-256 hash of an empty body.
	emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

// Verifier validates SigV4-signed requests against the configured
// credential pair.
type Verifier struct {
	AccessKey string
	SecretKey string
}

// NewVerifier creates a Verifier for the given credential pair.
func NewVerifier(accessKey, secretKey string) *Verifier {
	return &Verifier{AccessKey: accessKey, SecretKey: secretKey}
}

// signedRequest holds everything extracted from one request that is
// needed to recompute its signature.
type signedRequest struct {
	Credential   string // access key id
	Date         string // YYYYMMDD scope date
	Region       string
	Service      string
	Signature    string
	StringToSign string
}

// Verify checks the request against both SigV4 variants: the
// Authorization header first, then presigned query parameters. The
// signature comparison is constant-time.
func (v *Verifier) Verify(r *http.Request) bool {
	parsed, ok := fromAuthorizationHeader(r)
	if !ok {
		parsed, ok = fromQueryParams(r)
	}
	if !ok {
		return false
	}

	if parsed.Credential != v.AccessKey {
		return false
	}

	signingKey := deriveSigningKey(v.SecretKey, parsed.Date, parsed.Region, parsed.Service)
	expected := hex.EncodeToString(hmacSHA256(signingKey, parsed.StringToSign))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(parsed.Signature)) == 1
}

// fromAuthorizationHeader extracts the signed request from the
// Authorization header variant:
//
//	Authorization: AWS4-HMAC-SHA256 Credential=KEY/date/region/service/aws4_request,
//	               SignedHeaders=host;..., Signature=hex
func fromAuthorizationHeader(r *http.Request) (*signedRequest, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, algorithm+" ") {
		return nil, false
	}
	amzDate := r.Header.Get("X-Amz-Date")
	if amzDate == "" {
		return nil, false
	}

	parts := make(map[string]string)
	for _, part := range strings.Split(strings.TrimPrefix(header, algorithm+" "), ",") {
		part = strings.TrimSpace(part)
		idx := strings.IndexByte(part, '=')
		if idx < 0 {
			continue
		}
		parts[part[:idx]] = part[idx+1:]
	}

	credential := parts["Credential"]
	signedHeadersList := parts["SignedHeaders"]
	signature := parts["Signature"]
	if credential == "" || signedHeadersList == "" || signature == "" {
		return nil, false
	}

	credParts := strings.SplitN(credential, "/", 5)
	if len(credParts) != 5 || credParts[4] != scopeTerminator {
		return nil, false
	}

	// The body hash is taken from x-amz-content-sha256 to avoid reading
	// the body twice; absent header means an unsigned empty body.
	bodyHash := r.Header.Get("X-Amz-Content-Sha256")
	if bodyHash == "" {
		bodyHash = emptySHA256
	}

	signedHeaders := strings.Split(signedHeadersList, ";")
	canonicalRequest := buildCanonicalRequest(r, signedHeaders, signedHeadersList, bodyHash)
	scope := credParts[1] + "/" + credParts[2] + "/" + credParts[3] + "/" + scopeTerminator

	return &signedRequest{
		Credential:   credParts[0],
		Date:         credParts[1],
		Region:       credParts[2],
		Service:      credParts[3],
		Signature:    signature,
		StringToSign: buildStringToSign(amzDate, scope, canonicalRequest),
	}, true
}

// fromQueryParams extracts the signed request from the presigned-URL
// variant, where x-amz-* query parameters carry the credential and
// signature. Parameter keys match case-insensitively and the body hash is
// always UNSIGNED-PAYLOAD.
func fromQueryParams(r *http.Request) (*signedRequest, bool) {
	query := make(map[string]string)
	for key, vals := range r.URL.Query() {
		if len(vals) > 0 {
			query[strings.ToLower(key)] = vals[0]
		}
	}

	credential := query["x-amz-credential"]
	signature := query["x-amz-signature"]
	amzDate := query["x-amz-date"]
	if credential == "" || signature == "" || amzDate == "" {
		return nil, false
	}
	signedHeadersList := query["x-amz-signedheaders"]

	credParts := strings.SplitN(credential, "/", 5)
	if len(credParts) != 5 || credParts[4] != scopeTerminator {
		return nil, false
	}

	signedHeaders := strings.Split(signedHeadersList, ";")
	canonicalRequest := buildCanonicalRequest(r, signedHeaders, signedHeadersList, unsignedPayload)
	scope := credParts[1] + "/" + credParts[2] + "/" + credParts[3] + "/" + scopeTerminator

	return &signedRequest{
		Credential:   credParts[0],
		Date:         credParts[1],
		Region:       credParts[2],
		Service:      credParts[3],
		Signature:    signature,
		StringToSign: buildStringToSign(amzDate, scope, canonicalRequest),
	}, true
}

// buildCanonicalRequest assembles the canonical request string:
//
//	METHOD \n URI \n QUERY \n HEADERS \n\n SIGNED_HEADERS \n BODY_HASH
func buildCanonicalRequest(r *http.Request, signedHeaders []string, signedHeadersList, bodyHash string) string {
	var sb strings.Builder
	sb.WriteString(r.Method)
	sb.WriteByte('\n')
	sb.WriteString(canonicalURI(r.URL.Path))
	sb.WriteByte('\n')
	sb.WriteString(canonicalQueryString(r.URL.Query()))
	sb.WriteByte('\n')
	sb.WriteString(canonicalHeaders(r, signedHeaders))
	sb.WriteString("\n\n")
	sb.WriteString(signedHeadersList)
	sb.WriteByte('\n')
	sb.WriteString(bodyHash)
	return sb.String()
}

// buildStringToSign builds the SigV4 string to sign.
func buildStringToSign(amzDate, scope, canonicalRequest string) string {
	hash := sha256.Sum256([]byte(canonicalRequest))
	return algorithm + "\n" +
		amzDate + "\n" +
		scope + "\n" +
		hex.EncodeToString(hash[:])
}

// deriveSigningKey derives the SigV4 signing key using the HMAC chain.
func deriveSigningKey(secretKey, dateStr, region, svc string) []byte {
	dateKey := hmacSHA256([]byte("AWS4"+secretKey), dateStr)
	regionKey := hmacSHA256(dateKey, region)
	serviceKey := hmacSHA256(regionKey, svc)
	return hmacSHA256(serviceKey, scopeTerminator)
}

// canonicalURI returns the URI-encoded absolute path. Each segment is
// encoded separately so slashes are preserved; the root "/" stays "/".
func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = URIEncode(seg, false)
	}
	return strings.Join(segments, "/")
}

// canonicalQueryString re-encodes the query: the x-amz-signature
// parameter is dropped (case-insensitively), each pair is encoded as k=v,
// and pairs are sorted ascending by the encoded string.
func canonicalQueryString(values url.Values) string {
	var pairs []string
	for key, vals := range values {
		if strings.EqualFold(key, "x-amz-signature") {
			continue
		}
		encodedKey := URIEncode(key, true)
		if len(vals) == 0 {
			pairs = append(pairs, encodedKey+"=")
		}
		for _, val := range vals {
			pairs = append(pairs, encodedKey+"="+URIEncode(val, true))
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// canonicalHeaders formats each signed header as "name:value" with the
// name lowercased and the value trimmed, sorts the formatted lines, and
// joins them with newlines.
func canonicalHeaders(r *http.Request, signedHeaders []string) string {
	lines := make([]string, 0, len(signedHeaders))
	for _, name := range signedHeaders {
		name = strings.ToLower(name)
		var value string
		if name == "host" {
			// The Host header lives on r.Host, not in r.Header.
			value = r.Host
			if value == "" {
				value = r.Header.Get("Host")
			}
		} else {
			value = r.Header.Get(name)
		}
		lines = append(lines, name+":"+strings.TrimSpace(value))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

// URIEncode encodes a string per the SigV4 URI encoding rules: bytes
// outside A-Z a-z 0-9 - _ . ~ are percent-encoded with uppercase hex. If
// encodeSlash is false, '/' is passed through as well.
func URIEncode(s string, encodeSlash bool) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isURIUnreserved(c) || (!encodeSlash && c == '/') {
			sb.WriteByte(c)
		} else {
			sb.WriteByte('%')
			sb.WriteByte(hexDigit(c >> 4))
			sb.WriteByte(hexDigit(c & 0x0f))
		}
	}
	return sb.String()
}

// isURIUnreserved reports whether the byte is an unreserved URI character.
func isURIUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

// hexDigit returns the uppercase hex digit for a 4-bit value.
func hexDigit(b byte) byte {
	if b < 10 {
		return '0' + b
	}
	return 'A' + b - 10
}

// hmacSHA256 computes HMAC-SHA256 of the data using the given key.
func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}
