package media

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"
)

const defaultS3RequestTimeout = 60 * time.Second

// S3Config points the media store at an S3-compatible bucket. AccessKey and
// SecretKey may be empty for anonymous endpoints such as local MinIO in
// development mode.
type S3Config struct {
	Endpoint       string
	PublicEndpoint string
	Bucket         string
	Prefix         string
	Region         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	RequestTimeout time.Duration
}

// S3Store uploads assets to an S3-compatible bucket using SigV4 signing over
// plain HTTP requests, avoiding a full SDK dependency for the four calls it
// needs.
type S3Store struct {
	cfg      S3Config
	endpoint *url.URL
	client   *http.Client
}

// NewS3Store validates the configuration and returns a bucket-backed store.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Bucket == "" || cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 media store requires bucket and endpoint")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultS3RequestTimeout
	}
	host := cfg.Endpoint
	if strings.Contains(host, "://") {
		parsed, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("parse s3 endpoint: %w", err)
		}
		host = parsed.Host
	}
	if host == "" {
		return nil, fmt.Errorf("s3 endpoint has no host")
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return &S3Store{
		cfg:      cfg,
		endpoint: &url.URL{Scheme: scheme, Host: host},
		client:   &http.Client{Timeout: cfg.RequestTimeout},
	}, nil
}

func (s *S3Store) Save(ctx context.Context, kind Kind, filename, contentType string, body io.Reader) (Object, error) {
	key, err := objectKey(kind, filename)
	if err != nil {
		return Object{}, err
	}
	if prefix := strings.Trim(s.cfg.Prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}

	limit := kind.MaxSizeBytes()
	payload, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return Object{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(payload)) > limit {
		return Object{}, fmt.Errorf("upload exceeds %d byte limit for %s", limit, kind)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.objectURL(key), bytes.NewReader(payload))
	if err != nil {
		return Object{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", guessContentType(contentType, filename))
	s.sign(req, sha256Hex(payload))

	resp, err := s.client.Do(req)
	if err != nil {
		return Object{}, fmt.Errorf("upload %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Object{}, fmt.Errorf("upload %s: unexpected status %d", key, resp.StatusCode)
	}
	return Object{Key: key, URL: s.publicURL(key)}, nil
}

func (s *S3Store) Remove(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(key), nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	s.sign(req, emptySHA256)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delete %s: unexpected status %d", key, resp.StatusCode)
	}
	return nil
}

func (s *S3Store) KeyFromURL(rawURL string) (string, bool) {
	base := strings.TrimRight(strings.TrimSpace(s.cfg.PublicEndpoint), "/")
	if base == "" {
		u := *s.endpoint
		u.Path = "/" + s.cfg.Bucket
		base = u.String()
	}
	key, ok := strings.CutPrefix(rawURL, base+"/")
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

func (s *S3Store) objectURL(key string) string {
	u := *s.endpoint
	u.Path = path.Join("/", s.cfg.Bucket, key)
	return u.String()
}

func (s *S3Store) publicURL(key string) string {
	base := strings.TrimRight(strings.TrimSpace(s.cfg.PublicEndpoint), "/")
	if base == "" {
		return s.objectURL(key)
	}
	return base + "/" + strings.TrimLeft(key, "/")
}

// sign applies AWS SigV4 headers in place. Unsigned requests go out as-is
// when no credentials are configured.
func (s *S3Store) sign(req *http.Request, payloadHash string) {
	req.Host = req.URL.Host
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("x-amz-content-sha256", payloadHash)

	accessKey := strings.TrimSpace(s.cfg.AccessKey)
	secretKey := strings.TrimSpace(s.cfg.SecretKey)
	if accessKey == "" || secretKey == "" {
		return
	}
	region := strings.TrimSpace(s.cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	now := time.Now().UTC()
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")
	req.Header.Set("x-amz-date", amzDate)

	canonicalHeaders, signedHeaders := canonicalHeaderSet(req)
	canonicalRequest := strings.Join([]string{
		req.Method,
		req.URL.EscapedPath(),
		canonicalQueryString(req.URL),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")
	scope := dateStamp + "/" + region + "/s3/aws4_request"
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		scope,
		sha256Hex([]byte(canonicalRequest)),
	}, "\n")

	kDate := hmacSHA256([]byte("AWS4"+secretKey), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, "s3")
	signingKey := hmacSHA256(kService, "aws4_request")
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		accessKey, scope, signedHeaders, signature,
	))
}

func canonicalHeaderSet(req *http.Request) (string, string) {
	names := make([]string, 0, len(req.Header))
	values := make(map[string]string, len(req.Header))
	for name, vals := range req.Header {
		lower := strings.ToLower(name)
		if lower == "authorization" {
			continue
		}
		trimmed := make([]string, len(vals))
		for i, v := range vals {
			trimmed[i] = strings.TrimSpace(v)
		}
		names = append(names, lower)
		values[lower] = strings.Join(trimmed, ",")
	}
	sort.Strings(names)

	var canonical strings.Builder
	for _, name := range names {
		canonical.WriteString(name)
		canonical.WriteByte(':')
		canonical.WriteString(values[name])
		canonical.WriteByte('\n')
	}
	return canonical.String(), strings.Join(names, ";")
}

func canonicalQueryString(u *url.URL) string {
	values, err := url.ParseQuery(u.RawQuery)
	if err != nil || len(values) == 0 {
		return ""
	}
	return values.Encode()
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var emptySHA256 = sha256Hex(nil)
