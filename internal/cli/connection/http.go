package connection

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/russellb/corosync/internal/infra/buildinfo"
	"github.com/russellb/corosync/internal/server/httpserver/handler"
)

// AdminClient calls the daemon's admin RPC service over HTTP.
type AdminClient struct {
	baseURL string
	client  *http.Client
}

// NewAdminClient creates a client for server, an address or URL. A bare
// address uses https when tlsConfig is set.
func NewAdminClient(server string, tlsConfig *tls.Config) *AdminClient {
	baseURL := server
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		scheme := "http://"
		if tlsConfig != nil {
			scheme = "https://"
		}
		baseURL = scheme + baseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	return &AdminClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: &userAgent{next: transport},
		},
	}
}

// BaseURL returns the base URL of the client.
func (c *AdminClient) BaseURL() string {
	return c.baseURL
}

// Status fetches the daemon status document.
func (c *AdminClient) Status(ctx context.Context) (map[string]any, error) {
	rpc := handler.NewAdminClient(c.client, c.baseURL)
	res, err := rpc.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return nil, err
	}
	return res.Msg.AsMap(), nil
}

type userAgent struct {
	next http.RoundTripper
}

func (u *userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", "corosync-cli/"+buildinfo.Get().Version)
	return u.next.RoundTrip(req)
}
