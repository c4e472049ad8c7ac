package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/internal/logging"
	"github.com/arloliu/courier/internal/options"
	"github.com/arloliu/courier/internal/pool"
)

const (
	// PartsPath is the route receiving framed parts.
	PartsPath = "/v1/parts"
	// FromHeader names the sender's own address, used to route replies.
	FromHeader = "X-Courier-From"
	// ContentType is the media type of a framed part.
	ContentType = "application/vnd.courier.part"
)

// HTTPConfig holds the settings of an HTTPTransport.
type HTTPConfig struct {
	client *http.Client
	from   string
	limits Limits
}

// HTTPOption configures an HTTPTransport.
type HTTPOption = options.Option[*HTTPConfig]

// WithHTTPClient sets the client used to post parts.
func WithHTTPClient(client *http.Client) HTTPOption {
	return options.New(func(c *HTTPConfig) error {
		if client == nil {
			return fmt.Errorf("%w: nil http client", errs.ErrInvalidValue)
		}
		c.client = client

		return nil
	})
}

// WithFrom sets the address announced in FromHeader, typically the base URL
// of the local HTTP handler.
func WithFrom(address string) HTTPOption {
	return options.NoError(func(c *HTTPConfig) {
		c.from = address
	})
}

// WithHTTPLimits overrides HTTPLimits.
func WithHTTPLimits(l Limits) HTTPOption {
	return options.New(func(c *HTTPConfig) error {
		if err := l.Validate(); err != nil {
			return err
		}
		c.limits = l

		return nil
	})
}

// HTTPTransport posts framed parts to the PartsPath of a correspondent's base URL.
type HTTPTransport struct {
	cfg HTTPConfig
	log *logging.Logger
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates an HTTP transport.
func NewHTTPTransport(opts ...HTTPOption) (*HTTPTransport, error) {
	cfg := HTTPConfig{
		client: &http.Client{Timeout: 30 * time.Second},
		limits: HTTPLimits,
	}
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	return &HTTPTransport{cfg: cfg, log: logging.MustGetLogger("http")}, nil
}

func (t *HTTPTransport) Kind() format.TransportKind { return format.TransportHTTP }

func (t *HTTPTransport) Limits() Limits { return t.cfg.limits }

// Send posts p to address, the base URL of the peer.
func (t *HTTPTransport) Send(ctx context.Context, address string, p Part) error {
	frame, err := p.Bytes()
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrTransportFailure, err)
	}

	url := strings.TrimSuffix(address, "/") + PartsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(frame))
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrTransportFailure, err)
	}
	req.Header.Set("Content-Type", ContentType)
	if t.cfg.from != "" {
		req.Header.Set(FromHeader, t.cfg.from)
	}

	resp, err := t.cfg.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrTransportFailure, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.log.WithError(err).Warn("Failed to close HTTP response body")
		}
	}()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%w: %s responded %d: %s", errs.ErrTransportFailure, url, resp.StatusCode, extractError(resp.Body))
	}

	return nil
}

func extractError(r io.Reader) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&body); err != nil || body.Error == "" {
		return "no error message"
	}

	return body.Error
}

// NewHTTPHandler returns a chi router accepting framed parts on PartsPath and
// handing them to recv. The sender is identified by FromHeader, falling back
// to the remote address.
//
// Responses: 202 when the part was accepted, 400 for malformed frames, 409 for
// parts conflicting with earlier ones, 413 for oversized frames and 500 for
// other receiver failures.
func NewHTTPHandler(recv Receiver, limits Limits) http.Handler {
	log := logging.MustGetLogger("http")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post(PartsPath, func(w http.ResponseWriter, req *http.Request) {
		frame := pool.GetFrameBuffer()
		defer pool.PutFrameBuffer(frame)

		if _, err := frame.ReadFrom(http.MaxBytesReader(w, req.Body, int64(HeaderSize+limits.PartSize))); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, err)
				return
			}
			writeJSON(w, http.StatusBadRequest, err)

			return
		}

		p, err := ParsePart(frame.Bytes())
		if err != nil {
			writeJSON(w, http.StatusBadRequest, err)
			return
		}

		from := req.Header.Get(FromHeader)
		if from == "" {
			from = req.RemoteAddr
		}

		if err := recv(req.Context(), from, p); err != nil {
			log.WithError(err).WithField("from", from).Warn("Rejected part")
			switch {
			case errors.Is(err, errs.ErrProtocolMismatch):
				writeJSON(w, http.StatusConflict, err)
			case errors.Is(err, errs.ErrFormat):
				writeJSON(w, http.StatusBadRequest, err)
			default:
				writeJSON(w, http.StatusInternalServerError, err)
			}

			return
		}

		w.WriteHeader(http.StatusAccepted)
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
