// Package awsauth verifies AWS4-HMAC-SHA256 Authorization headers on
// incoming HTTP requests: the server-side counterpart of pkg/awssig.Signer.
// Rather than maintaining a second, separately-derived canonicalization
// algorithm, the verifier rebuilds the same canonical request and calls the
// same signing-key chain pkg/awssig exports, then compares signatures — if
// the two sides ever disagree about what a canonical request looks like,
// this package breaks in exactly the way the signer does.
//
// Presigned-URL ("X-Amz-Signature" query parameter) authentication and
// chunked/streaming payload verification are both out of scope: nothing in
// this repo issues a presigned URL, and pkg/awssig never signs anything but
// "UNSIGNED-PAYLOAD" (spec.md's non-empty-body-signing non-goal), so no
// client this server talks to ever sends a streamed, signed body either.
package awsauth

import (
	"encoding/xml"
	"net/http"
	"sort"
	"strings"

	"github.com/wzshiming/s3c/pkg/awsclient"
	"github.com/wzshiming/s3c/pkg/awssig"
	"github.com/wzshiming/s3c/pkg/awsurl"
)

// Verifier checks incoming requests against a fixed set of known
// credentials, the same (accessKeyID -> secretAccessKey) shape
// pkg/awscreds.Credentials resolves on the client side.
type Verifier struct {
	credentials map[string]string
}

// NewVerifier returns a Verifier with no known credentials.
func NewVerifier() *Verifier {
	return &Verifier{credentials: make(map[string]string)}
}

// AddCredentials registers a secret a request may be signed with.
func (v *Verifier) AddCredentials(accessKeyID, secretAccessKey string) {
	v.credentials[accessKeyID] = secretAccessKey
}

// AuthMiddleware rejects any request whose Authorization header does not
// verify, writing an S3-shaped XML error body before next ever runs.
func (v *Verifier) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := v.Verify(r); err != nil {
			writeAuthError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Verify checks r's Authorization header against the verifier's known
// credentials, returning nil if it verifies. Failures are reported through
// pkg/awsclient.AwsError, the same typed-error shape every client operation
// in this repo returns, rather than a bespoke auth-only error type.
func (v *Verifier) Verify(r *http.Request) *awsclient.AwsError {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return &awsclient.AwsError{Kind: awsclient.KindAccessDenied, Message: "Missing authentication"}
	}
	if !strings.HasPrefix(authHeader, "AWS4-HMAC-SHA256 ") {
		return &awsclient.AwsError{Kind: awsclient.KindAccessDenied, Message: "Unsupported authorization type"}
	}

	accessKeyID, simpleDate, region, service, signedHeaderNames, wantSignature, err := parseAuthorization(authHeader)
	if err != nil {
		return err
	}

	secretAccessKey, ok := v.credentials[accessKeyID]
	if !ok {
		return &awsclient.AwsError{Kind: awsclient.KindInvalidToken, Message: "The AWS access key ID you provided does not exist in our records"}
	}

	dateHeader := r.Header.Get("X-Amz-Date")
	payloadHash := r.Header.Get("X-Amz-Content-Sha256")
	if payloadHash == "" {
		payloadHash = "UNSIGNED-PAYLOAD"
	}

	path, query := canonicalPathAndQuery(r)
	canonicalRequest := awssig.CanonicalRequest(r.Method, path, query, signedHeaderNames, headerValue(r), payloadHash)
	credentialScope := awssig.CredentialScope(simpleDate, region, service)
	stringToSign := awssig.StringToSign(dateHeader, credentialScope, canonicalRequest)
	gotSignature := awssig.Signature(secretAccessKey, simpleDate, region, service, stringToSign)

	if gotSignature != wantSignature {
		return &awsclient.AwsError{Kind: awsclient.KindUnauthorized, Message: "The request signature we calculated does not match the signature you provided"}
	}
	return nil
}

// parseAuthorization splits "AWS4-HMAC-SHA256 Credential=.../SignedHeaders=.../Signature=..."
// into its credential-scope components, the signed header names (sorted
// ascending, matching what CanonicalRequest requires), and the signature.
func parseAuthorization(header string) (accessKeyID, simpleDate, region, service string, signedHeaderNames []string, signature string, authErr *awsclient.AwsError) {
	malformed := &awsclient.AwsError{Kind: awsclient.KindAccessDenied, Message: "Malformed authorization header"}

	fields := make(map[string]string)
	for _, part := range strings.Split(strings.TrimPrefix(header, "AWS4-HMAC-SHA256 "), ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return "", "", "", "", nil, "", malformed
		}
		fields[kv[0]] = kv[1]
	}

	credential := fields["Credential"]
	signedHeaders := fields["SignedHeaders"]
	sig := fields["Signature"]
	if credential == "" || signedHeaders == "" || sig == "" {
		return "", "", "", "", nil, "", malformed
	}

	credParts := strings.Split(credential, "/")
	if len(credParts) != 5 || credParts[4] != "aws4_request" {
		return "", "", "", "", nil, "", malformed
	}

	names := strings.Split(signedHeaders, ";")
	sort.Strings(names)
	return credParts[0], credParts[1], credParts[2], credParts[3], names, sig, nil
}

// canonicalPathAndQuery re-encodes r's path and query the AWS way, by
// replaying them through pkg/awsurl.URL — the same type the client builds
// its own canonical request from — instead of a second hand-rolled
// percent-encoder that could diverge from it.
func canonicalPathAndQuery(r *http.Request) (path, query string) {
	u := awsurl.New()
	u.SetPath(r.URL.Path)
	for key, values := range r.URL.Query() {
		for _, value := range values {
			u.AddParam(key, value)
		}
	}
	return u.EncodedPath(), u.QueryString()
}

// headerValue returns a lookup matching pkg/awssig's view of a header:
// "host" reads the request's Host field, since net/http special-cases it
// out of r.Header; everything else is a case-insensitive header lookup.
func headerValue(r *http.Request) func(name string) string {
	return func(name string) string {
		if name == "host" {
			return r.Host
		}
		return r.Header.Get(name)
	}
}

// xmlAuthError mirrors the <Error><Code><Message> body internal/s3mock's
// own handler writes for every other failure.
type xmlAuthError struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

var authErrorCodes = map[awsclient.Kind]string{
	awsclient.KindInvalidToken: "InvalidAccessKeyId",
	awsclient.KindUnauthorized: "SignatureDoesNotMatch",
}

func writeAuthError(w http.ResponseWriter, err *awsclient.AwsError) {
	code := authErrorCodes[err.Kind]
	if code == "" {
		code = "AccessDenied"
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(xml.Header))
	xml.NewEncoder(w).Encode(xmlAuthError{Code: code, Message: err.Message})
}
