package net

import (
	"errors"
	"fmt"
	stdnet "net"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"

	"github.com/lcx/commlib/metrics"
	"github.com/lcx/commlib/service"
	"github.com/lcx/commlib/utils"
)

// HttpClientServiceID is the id of the process HTTP client service.
const HttpClientServiceID service.ServiceID = 4

const (
	_httpMetricsGroup = "http_client"
	_maxRedirects     = 8
)

// ErrUnknownHttpMethod is passed to the callback of a request whose method
// is not one of the HttpMethod values.
var ErrUnknownHttpMethod = errors.New("unknown http method")

type HttpMethod int

const (
	HttpGet HttpMethod = iota
	HttpPost
	HttpPut
	HttpDelete
)

func (m HttpMethod) String() string {
	switch m {
	case HttpGet:
		return fasthttp.MethodGet
	case HttpPost:
		return fasthttp.MethodPost
	case HttpPut:
		return fasthttp.MethodPut
	case HttpDelete:
		return fasthttp.MethodDelete
	}
	return "UNKNOWN"
}

// HttpRequest is one outbound request. Body is sent for POST and PUT.
type HttpRequest struct {
	Method  HttpMethod
	URL     string
	Body    []byte
	Headers map[string]string
}

// HttpResponse is the outcome of a request that reached the server.
type HttpResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
}

// Succeed reports a 200 answer.
func (r *HttpResponse) Succeed() bool {
	return r.StatusCode == fasthttp.StatusOK
}

// HttpResponseFunc receives the response, or the transport error, on the
// requesting service.
type HttpResponseFunc func(resp *HttpResponse, err error)

// HttpClientService runs requests on a bounded pool so that no service
// waits for a remote HTTP server.
type HttpClientService struct {
	*service.ServiceHandle
	client *fasthttp.Client
	group  errgroup.Group
}

// NewHttpClientService creates the service with at most workers requests in
// flight. timeout bounds one request, connectTimeout its dial.
func NewHttpClientService(workers int, timeout, connectTimeout time.Duration) *HttpClientService {
	if workers <= 0 {
		workers = 1
	}
	s := &HttpClientService{
		ServiceHandle: service.NewServiceHandle(HttpClientServiceID, "http_client"),
		client: &fasthttp.Client{
			Name:            "commlib",
			ReadTimeout:     timeout,
			WriteTimeout:    timeout,
			MaxConnsPerHost: workers,
			Dial: func(addr string) (stdnet.Conn, error) {
				return fasthttp.DialTimeout(addr, connectTimeout)
			},
		},
	}
	s.group.SetLimit(workers)
	return s
}

func (s *HttpClientService) Conf() {}

func (s *HttpClientService) Update() {}

// Send queues req and posts cb to srv once it completed. cb may be nil.
func (s *HttpClientService) Send(srv service.Service, req *HttpRequest, cb HttpResponseFunc) {
	s.RunInService(func() {
		// blocks the service while the pool is full, later requests stay queued
		s.group.Go(func() error {
			resp, err := s.do(req)
			if cb != nil {
				srv.RunInService(func() { cb(resp, err) })
			}
			return nil
		})
	})
}

// Get sends a GET request for url.
func (s *HttpClientService) Get(srv service.Service, url string, cb HttpResponseFunc) {
	s.Send(srv, &HttpRequest{Method: HttpGet, URL: url}, cb)
}

// Post sends body to url with the given content type.
func (s *HttpClientService) Post(srv service.Service, url, contentType string, body []byte, cb HttpResponseFunc) {
	s.Send(srv, &HttpRequest{
		Method:  HttpPost,
		URL:     url,
		Body:    body,
		Headers: map[string]string{fasthttp.HeaderContentType: contentType},
	}, cb)
}

func (s *HttpClientService) do(r *HttpRequest) (*HttpResponse, error) {
	dims := metrics.Dimension{"method": r.Method.String()}
	metrics.IncrCounterWithDimGroup(_httpMetricsGroup, "requests_total", 1, dims)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(r.URL)
	req.Header.SetMethod(r.Method.String())
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	sw := utils.NewStopWatch()
	var err error
	switch r.Method {
	case HttpGet, HttpDelete:
		err = s.client.DoRedirects(req, resp, _maxRedirects)
	case HttpPost, HttpPut:
		req.SetBody(r.Body)
		err = s.client.Do(req, resp)
	default:
		err = ErrUnknownHttpMethod
	}
	metrics.RecordStopwatchWithGroup(_httpMetricsGroup, "request_time", sw.Start())
	if err != nil {
		metrics.IncrCounterWithDimGroup(_httpMetricsGroup, "failed_total", 1, dims)
		s.Logger().Warn().Str("method", r.Method.String()).Str("url", r.URL).Err(err).Msg("http request failed")
		return nil, fmt.Errorf("%s %s: %w", r.Method, r.URL, err)
	}

	out := &HttpResponse{
		StatusCode: resp.StatusCode(),
		Body:       append([]byte(nil), resp.Body()...),
		Headers:    make(map[string]string),
	}
	resp.Header.VisitAll(func(k, v []byte) {
		out.Headers[string(k)] = string(v)
	})
	return out, nil
}

// Join waits for the service and for every request still running.
func (s *HttpClientService) Join() {
	s.ServiceHandle.Join()
	_ = s.group.Wait()
}
