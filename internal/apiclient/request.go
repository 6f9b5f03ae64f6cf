package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strings"
)

// RequestOption customizes a single call
type RequestOption func(*request)

// WithQuery adds query parameters. Slices expand to repeated key[]=value
// entries, maps and structs are sent as JSON text.
func WithQuery(params map[string]interface{}) RequestOption {
	return func(r *request) {
		if r.query == nil {
			r.query = make(map[string]interface{}, len(params))
		}
		for k, v := range params {
			r.query[k] = v
		}
	}
}

// WithHeader sets an extra request header
func WithHeader(key, value string) RequestOption {
	return func(r *request) {
		r.headers.Set(key, value)
	}
}

// request is everything needed to (re)build an outbound call
type request struct {
	method      string
	endpoint    string
	body        []byte
	contentType string
	multipart   bool
	headers     http.Header
	query       map[string]interface{}
	progress    ProgressFunc
}

func newRequest(method, endpoint string, opts []RequestOption) *request {
	r := &request{
		method:   method,
		endpoint: endpoint,
		headers:  make(http.Header),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *request) setJSONBody(payload interface{}) error {
	if payload == nil {
		return nil
	}
	switch p := payload.(type) {
	case json.RawMessage:
		r.body = p
	case []byte:
		r.body = p
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		r.body = data
	}
	r.contentType = "application/json"
	return nil
}

// joinURL joins base and endpoint with exactly one slash between them
func joinURL(base, endpoint string) string {
	if endpoint == "" {
		return strings.TrimRight(base, "/")
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

// encodeQuery serializes params the way the backend's query parser expects
func encodeQuery(params map[string]interface{}) string {
	values := url.Values{}
	for key, v := range params {
		if v == nil {
			continue
		}
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			if rv.Type().Elem().Kind() == reflect.Uint8 {
				values.Add(key, fmt.Sprint(v))
				continue
			}
			for i := 0; i < rv.Len(); i++ {
				values.Add(key+"[]", scalarParam(rv.Index(i).Interface()))
			}
		default:
			values.Add(key, scalarParam(v))
		}
	}
	return values.Encode()
}

func scalarParam(v interface{}) string {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Struct:
		data, err := json.Marshal(rv.Interface())
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	case reflect.Invalid:
		return ""
	}
	return fmt.Sprint(rv.Interface())
}
