// Package core contains the request dispatcher shared by generated service
// clients: it builds outbound requests, applies authentication, delegates to
// the HTTP transport and translates responses into a DetailedResponse or a
// typed error.
package core

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"runtime"
	"time"

	"github.com/jinzhu/copier"

	"github.com/ibmcloud-go/sdk-core/auth"
	"github.com/ibmcloud-go/sdk-core/common"
	"github.com/ibmcloud-go/sdk-core/credentials"
	"github.com/ibmcloud-go/sdk-core/logger"
)

// defaultRequestTimeout applies when neither the service HTTP config nor the
// per-call options override it.
const defaultRequestTimeout = 60 * time.Second

// Transport is the HTTP transport collaborator. *http.Client satisfies it;
// tests substitute fakes.
type Transport interface {
	Do(request *http.Request) (*http.Response, error)
}

// HTTPConfig carries service-level transport settings.
type HTTPConfig struct {
	// Timeout overrides the default per-request timeout when positive.
	Timeout time.Duration
}

// ServiceOptions are the construction parameters for a BaseService. When no
// Authenticator is supplied the credential fields are resolved through the
// credentials package (explicit arguments, then credentials file, then VCAP
// catalog).
type ServiceOptions struct {
	URL string

	Username       string
	Password       string
	APIKey         string
	IAMApiKey      string
	IAMAccessToken string
	IAMURL         string

	// DisplayName selects entries in a credentials file.
	DisplayName string
	// ServiceName is the VCAP service catalog key.
	ServiceName string
	// DisableVCAPServices skips the catalog credential source.
	DisableVCAPServices bool

	// Authenticator, when set, is used directly and credential resolution is
	// skipped.
	Authenticator auth.Authenticator

	// Client is the HTTP client used for both API and token-exchange calls.
	// When nil a client with its own cookie jar is created once here.
	Client *http.Client

	// Environment supplies env vars and the filesystem to credential
	// resolution; nil selects the real process environment.
	Environment credentials.Environment
}

// BaseService dispatches outbound requests for one service instance. It is
// the receiver embedded by generated per-service clients.
type BaseService struct {
	// URL is the service base URL; request paths are concatenated onto it
	// verbatim.
	URL string

	// DefaultHeaders are sent with every request, below per-call headers in
	// precedence.
	DefaultHeaders http.Header

	// Authenticator decorates each outbound request.
	Authenticator auth.Authenticator

	// Client is the transport collaborator requests are delegated to.
	Client Transport

	userAgent   string
	httpConfig  HTTPConfig
	retryConfig *common.RetryConfig

	// httpClient is retained when the transport is a real *http.Client so
	// TLS verification can be toggled on it.
	httpClient *http.Client
}

// NewBaseService constructs a service instance, resolving credentials into
// an authenticator unless one was supplied. Construction either fully
// succeeds or returns a ConfigurationError; no partially configured service
// is ever produced.
func NewBaseService(options *ServiceOptions) (*BaseService, error) {
	client := options.Client
	if client == nil {
		// The cookie store belongs to the transport and is created exactly
		// once, not per credential change.
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		client = &http.Client{Jar: jar}
	}

	service := &BaseService{
		URL:        options.URL,
		Client:     client,
		httpClient: client,
		userAgent:  buildUserAgent(),
	}

	if options.Authenticator != nil {
		if err := common.ValidateCredential("url", options.URL); err != nil {
			return nil, err
		}
		if err := options.Authenticator.Validate(); err != nil {
			return nil, err
		}
		service.Authenticator = options.Authenticator
		return service, nil
	}

	creds, err := credentials.Resolve(credentials.ResolveOptions{
		URL:                 options.URL,
		Username:            options.Username,
		Password:            options.Password,
		APIKey:              options.APIKey,
		IAMApiKey:           options.IAMApiKey,
		IAMAccessToken:      options.IAMAccessToken,
		IAMURL:              options.IAMURL,
		DisplayName:         options.DisplayName,
		ServiceName:         options.ServiceName,
		DisableVCAPServices: options.DisableVCAPServices,
	}, options.Environment)
	if err != nil {
		return nil, err
	}

	authenticator, err := credentials.NewAuthenticator(creds, client)
	if err != nil {
		return nil, err
	}

	// The file and catalog sources can override the base URL.
	service.URL = creds.URL
	service.Authenticator = authenticator
	return service, nil
}

// SetURL replaces the service base URL.
func (s *BaseService) SetURL(serviceURL string) error {
	if err := common.ValidateCredential("url", serviceURL); err != nil {
		return err
	}
	s.URL = serviceURL
	return nil
}

// SetUsernameAndPassword switches the service to basic authentication.
func (s *BaseService) SetUsernameAndPassword(username, password string) error {
	authenticator, err := auth.NewBasicAuthenticator(username, password)
	if err != nil {
		return err
	}
	s.Authenticator = authenticator
	return nil
}

// SetIAMApiKey installs a new IAM api key, reusing the existing token
// manager when the service is already in IAM mode so its endpoint
// configuration survives.
func (s *BaseService) SetIAMApiKey(apiKey string) error {
	if iam, ok := s.Authenticator.(*auth.IAMAuthenticator); ok {
		return iam.TokenManager().SetApiKey(apiKey)
	}
	authenticator, err := auth.NewIAMAuthenticator(apiKey, "", "", s.httpClient)
	if err != nil {
		return err
	}
	s.Authenticator = authenticator
	return nil
}

// SetIAMAccessToken installs a caller-managed bearer token.
func (s *BaseService) SetIAMAccessToken(accessToken string) error {
	if iam, ok := s.Authenticator.(*auth.IAMAuthenticator); ok {
		iam.TokenManager().SetAccessToken(accessToken)
		return nil
	}
	authenticator, err := auth.NewIAMAuthenticator("", accessToken, "", s.httpClient)
	if err != nil {
		return err
	}
	s.Authenticator = authenticator
	return nil
}

// SetIAMURL overrides the IAM token-exchange endpoint.
func (s *BaseService) SetIAMURL(iamURL string) error {
	if iam, ok := s.Authenticator.(*auth.IAMAuthenticator); ok {
		return iam.TokenManager().SetIAMURL(iamURL)
	}
	authenticator, err := auth.NewIAMAuthenticator("", "", iamURL, s.httpClient)
	if err != nil {
		return err
	}
	s.Authenticator = authenticator
	return nil
}

// SetDefaultHeaders sets headers sent with every request.
func (s *BaseService) SetDefaultHeaders(headers http.Header) {
	s.DefaultHeaders = headers
}

// SetHTTPConfig replaces the service-level transport settings.
func (s *BaseService) SetHTTPConfig(config HTTPConfig) {
	s.httpConfig = config
}

// SetUserAgent overrides the computed User-Agent header value.
func (s *BaseService) SetUserAgent(userAgent string) {
	if userAgent != "" {
		s.userAgent = userAgent
	}
}

// GetUserAgent returns the User-Agent header value sent with each request.
func (s *BaseService) GetUserAgent() string {
	return s.userAgent
}

// DisableSSLVerification turns off TLS certificate verification on the
// underlying client. Only effective when the transport is a real
// *http.Client.
func (s *BaseService) DisableSSLVerification() {
	if s.httpClient == nil {
		logger.GetLogger().Warn("DisableSSLVerification has no effect on a custom transport")
		return
	}
	transport, ok := s.httpClient.Transport.(*http.Transport)
	if !ok || transport == nil {
		transport = &http.Transport{}
		s.httpClient.Transport = transport
	}
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{} // nolint: gosec
	}
	transport.TLSClientConfig.InsecureSkipVerify = true
}

// EnableRetries turns on opt-in retries for transport failures and
// throttling/server statuses. Disabled by default; a non-2xx response with
// retries off is mapped straight to an APIError.
func (s *BaseService) EnableRetries(config common.RetryConfig) {
	s.retryConfig = &config
}

// DisableRetries turns retries back off.
func (s *BaseService) DisableRetries() {
	s.retryConfig = nil
}

// Clone returns a copy of the service with an independent default-header
// map, sharing the authenticator and transport. Generated clients use this
// for per-request customization.
func (s *BaseService) Clone() *BaseService {
	clone := &BaseService{
		URL:           s.URL,
		Authenticator: s.Authenticator,
		Client:        s.Client,
		httpClient:    s.httpClient,
		userAgent:     s.userAgent,
		httpConfig:    s.httpConfig,
		retryConfig:   s.retryConfig,
	}
	if s.DefaultHeaders != nil {
		_ = copier.CopyWithOption(&clone.DefaultHeaders, s.DefaultHeaders, copier.Option{DeepCopy: true})
	}
	return clone
}

// FormFile is one file attachment in a multipart request.
type FormFile struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// RequestOptions are the per-call parameters of Request. Nil-valued entries
// in Headers, Params, Form, Files and a map-typed JSONBody are stripped
// before sending.
type RequestOptions struct {
	// Headers are per-call headers, highest precedence in the merge. A
	// caller-supplied Content-Type wins over the one implied by the body
	// kind.
	Headers map[string]interface{}

	// Params are query parameters.
	Params map[string]interface{}

	// JSONBody is serialized as the JSON request body when Body is absent.
	JSONBody interface{}

	// Body is the raw request body; it wins over JSONBody.
	Body []byte

	// Form holds urlencoded form fields (multipart fields when Files are
	// also present).
	Form map[string]interface{}

	// Files holds multipart file attachments.
	Files map[string]*FormFile

	// AcceptJSON requests a parsed JSON response body.
	AcceptJSON bool

	// Timeout overrides the service and default timeouts when positive.
	Timeout time.Duration
}

// retryableStatusError carries a throttling/server response through the
// retry helper so the final attempt's response can still be mapped normally.
type retryableStatusError struct {
	response *http.Response
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("request failed with status %d %s", e.response.StatusCode, http.StatusText(e.response.StatusCode))
}

// Request builds, authenticates and dispatches one outbound call and maps
// the transport's response. Transport-level failures are returned untouched;
// non-2xx statuses are returned as an *APIError alongside the response.
func (s *BaseService) Request(ctx context.Context, method, path string, options *RequestOptions) (*DetailedResponse, error) {
	if options == nil {
		options = &RequestOptions{}
	}

	// Straight concatenation of base URL and path, by contract.
	fullURL := s.URL + path

	headers := s.mergeHeaders(options)

	bodyBytes, contentType, err := buildBody(options)
	if err != nil {
		return nil, err
	}
	if contentType != "" && headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", contentType)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout(options))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header = headers

	if params := removeNullValues(options.Params); len(params) > 0 {
		query := req.URL.Query()
		for key, value := range params {
			query.Add(key, cleanupValue(value))
		}
		req.URL.RawQuery = query.Encode()
	}

	// May perform a blocking token refresh.
	if err := s.Authenticator.Authenticate(req); err != nil {
		return nil, err
	}

	response, err := s.send(req, bodyBytes)
	if err != nil {
		return nil, err
	}
	return s.processResponse(response, method, options.AcceptJSON)
}

// mergeHeaders layers the fixed user-agent header, the service default
// headers, the JSON accept header and the per-call headers, in ascending
// precedence. http.Header canonicalization makes the merge case-insensitive.
func (s *BaseService) mergeHeaders(options *RequestOptions) http.Header {
	headers := http.Header{}
	headers.Set("User-Agent", s.userAgent)
	for key, values := range s.DefaultHeaders {
		headers.Del(key)
		for _, value := range values {
			headers.Add(key, value)
		}
	}
	if options.AcceptJSON {
		headers.Set("Accept", "application/json")
	}
	for key, value := range removeNullValues(options.Headers) {
		headers.Set(key, cleanupValue(value))
	}
	return headers
}

// buildBody selects the request body: multipart when files are attached,
// else the raw body, else the serialized JSON body, else urlencoded form
// fields.
func buildBody(options *RequestOptions) (body []byte, contentType string, err error) {
	files := make(map[string]*FormFile, len(options.Files))
	for name, file := range options.Files {
		if file != nil {
			files[name] = file
		}
	}
	form := removeNullValues(options.Form)

	switch {
	case len(files) > 0:
		return buildMultipartBody(form, files)

	case options.Body != nil:
		return options.Body, "", nil

	case options.JSONBody != nil:
		jsonBody := options.JSONBody
		if m, ok := jsonBody.(map[string]interface{}); ok {
			jsonBody = removeNullValues(m)
		}
		body, err = json.Marshal(jsonBody)
		if err != nil {
			return nil, "", fmt.Errorf("could not serialize request body: %w", err)
		}
		return body, "application/json", nil

	case len(form) > 0:
		values := url.Values{}
		for key, value := range form {
			values.Set(key, cleanupValue(value))
		}
		return []byte(values.Encode()), "application/x-www-form-urlencoded", nil
	}
	return nil, "", nil
}

func buildMultipartBody(form map[string]interface{}, files map[string]*FormFile) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := multipart.NewWriter(buffer)

	for key, value := range form {
		if err := writer.WriteField(key, cleanupValue(value)); err != nil {
			return nil, "", err
		}
	}
	for name, file := range files {
		part, err := writer.CreateFormFile(name, file.Filename)
		if err != nil {
			return nil, "", err
		}
		if file.Content != nil {
			if _, err := io.Copy(part, file.Content); err != nil {
				return nil, "", err
			}
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buffer.Bytes(), writer.FormDataContentType(), nil
}

// requestTimeout applies the per-call override, then the service HTTP
// config, then the one minute default.
func (s *BaseService) requestTimeout(options *RequestOptions) time.Duration {
	if options.Timeout > 0 {
		return options.Timeout
	}
	if s.httpConfig.Timeout > 0 {
		return s.httpConfig.Timeout
	}
	return defaultRequestTimeout
}

// send delegates to the transport, optionally through the retry helper.
// The request body is rebuilt per attempt from the captured bytes.
func (s *BaseService) send(req *http.Request, bodyBytes []byte) (*http.Response, error) {
	sendOnce := func() (*http.Response, error) {
		attempt := req.Clone(req.Context())
		attempt.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		response, err := s.Client.Do(attempt)
		if err != nil {
			return nil, err
		}
		if s.retryConfig != nil && isRetryableStatus(response.StatusCode) {
			body, _ := io.ReadAll(response.Body)
			_ = response.Body.Close()
			response.Body = io.NopCloser(bytes.NewReader(body))
			return nil, &retryableStatusError{response: response}
		}
		return response, nil
	}

	if s.retryConfig == nil {
		return sendOnce()
	}

	response, err := common.RetryWithConfig(*s.retryConfig, sendOnce)
	if err != nil {
		// The last attempt's throttling/server response still gets mapped
		// to an APIError rather than a bare retry error.
		var statusErr *retryableStatusError
		if errors.As(err, &statusErr) {
			return statusErr.response, nil
		}
		return nil, err
	}
	return response, nil
}

func isRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// processResponse maps the transport response per the documented contract:
// any 2xx is a success, 204 and HEAD have no body, a malformed JSON body on
// a 2xx is tolerated, and anything else becomes an APIError.
func (s *BaseService) processResponse(response *http.Response, method string, acceptJSON bool) (*DetailedResponse, error) {
	defer func() { _ = response.Body.Close() }()

	detailed := &DetailedResponse{
		StatusCode: response.StatusCode,
		Headers:    response.Header,
	}

	if response.StatusCode >= 200 && response.StatusCode <= 299 {
		if response.StatusCode == http.StatusNoContent || method == http.MethodHead {
			return detailed, nil
		}

		body, err := io.ReadAll(response.Body)
		if err != nil {
			logger.GetLogger().Debug("discarding unreadable body on status %d: %s", response.StatusCode, err.Error())
			return detailed, nil
		}

		if acceptJSON {
			var result interface{}
			if err := json.Unmarshal(body, &result); err == nil {
				detailed.Result = result
			}
			// An empty or malformed JSON body on a 2xx is not an error; the
			// body is simply absent.
			return detailed, nil
		}

		detailed.RawResult = body
		return detailed, nil
	}

	body, _ := io.ReadAll(response.Body)
	detailed.RawResult = body
	apiErr := newAPIError(detailed)
	logger.GetLogger().Debug("request to %s failed: %s", s.URL, apiErr.Error())
	return detailed, apiErr
}

// buildUserAgent composes the fixed User-Agent value: sdk name and version
// followed by the platform triple.
func buildUserAgent() string {
	return fmt.Sprintf("%s-%s %s %s %s",
		common.SDKName, common.Version, runtime.GOOS, runtime.GOARCH, runtime.Version())
}
