package imagefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/visionflow/internal/tlsutil"
	"github.com/BaSui01/visionflow/types"
)

// Config configures a Fetcher.
type Config struct {
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxBytes     int64         `yaml:"max_bytes" env:"MAX_BYTES"`
	RatePerSec   float64       `yaml:"rate_per_sec" env:"RATE_PER_SEC"`
	Burst        int           `yaml:"burst" env:"BURST"`
	BlockPrivate bool          `yaml:"block_private" env:"BLOCK_PRIVATE"`
}

// DefaultConfig returns the default fetch settings.
func DefaultConfig() Config {
	return Config{
		Timeout:    15 * time.Second,
		MaxBytes:   15 << 20,
		RatePerSec: 1,
		Burst:      3,
	}
}

// Result is a successfully fetched image.
type Result struct {
	URL         string
	Data        []byte
	StatusCode  int
	ContentType string
	Duration    time.Duration
}

// Fetcher retrieves remote images with one GET per call. No retries.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	config  Config
	logger  *zap.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// New creates a Fetcher.
func New(config Config, logger *zap.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	f := &Fetcher{
		config: config,
		logger: logger.With(zap.String("component", "image_fetcher")),
	}

	client := tlsutil.HTTPClient(config.Timeout)
	if config.BlockPrivate {
		client.Transport = publicOnlyTransport()
	}
	f.client = client

	if config.RatePerSec > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(config.RatePerSec), burst)
	}

	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads rawURL. Any non-2xx status is a failure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	start := time.Now()

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("invalid image url %q", rawURL)).WithCause(err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrRateLimited, "image fetch rate limit exceeded").WithCause(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "build fetch request").WithCause(err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, types.NewError(types.ErrTimeout, fmt.Sprintf("fetch %s timed out", rawURL)).WithCause(err)
		}
		return nil, types.NewError(types.ErrFetchFailed, fmt.Sprintf("fetch %s", rawURL)).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, types.NewError(types.ErrFetchStatus,
			fmt.Sprintf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)).
			WithHTTPStatus(resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if f.config.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.config.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, types.NewError(types.ErrFetchFailed, fmt.Sprintf("read body of %s", rawURL)).WithCause(err)
	}
	if f.config.MaxBytes > 0 && int64(len(data)) > f.config.MaxBytes {
		return nil, types.NewError(types.ErrFetchTooBig,
			fmt.Sprintf("image at %s exceeds %d bytes", rawURL, f.config.MaxBytes))
	}

	res := &Result{
		URL:         rawURL,
		Data:        data,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Duration:    time.Since(start),
	}
	f.logger.Debug("image fetched",
		zap.String("url", rawURL),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", res.Duration))
	return res, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// =============================================================================
// Private network guard
// =============================================================================

var privateRanges = func() []*net.IPNet {
	cidrs := []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	}
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}()

func isPrivateIP(ip net.IP) bool {
	return slices.ContainsFunc(privateRanges, func(n *net.IPNet) bool { return n.Contains(ip) })
}

// publicOnlyTransport resolves the target once and refuses private addresses,
// so redirects and DNS rebinding cannot reach internal hosts.
func publicOnlyTransport() *http.Transport {
	t := tlsutil.Transport(func(dial tlsutil.DialFunc) tlsutil.DialFunc {
		return func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, fmt.Errorf("invalid address %s: %w", addr, err)
			}
			ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, fmt.Errorf("dns lookup for %s: %w", host, err)
			}
			if len(ips) == 0 {
				return nil, fmt.Errorf("no addresses for %s", host)
			}
			for _, ip := range ips {
				if isPrivateIP(ip.IP) {
					return nil, fmt.Errorf("connection to private address %s blocked", ip.IP)
				}
			}
			return dial(ctx, network, net.JoinHostPort(ips[0].IP.String(), port))
		}
	})
	t.ResponseHeaderTimeout = 10 * time.Second
	return t
}
