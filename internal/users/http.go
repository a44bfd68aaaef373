package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/beunreal/story-service/internal/auth"
	"github.com/beunreal/story-service/internal/domain"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxParallelLookups = 8

type BreakerSettings struct {
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// HTTPDirectory calls GET {base}/api/users/{id} on the user service,
// forwarding the caller's bearer token. Calls share one circuit breaker.
type HTTPDirectory struct {
	base    string
	client  *http.Client
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// userDoc accepts both the user service's field names and ours.
type userDoc struct {
	ID             string `json:"_id"`
	AltID          string `json:"id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
	Avatar         string `json:"avatar"`
}

var errUpstreamStatus = errors.New("unexpected user service status")

func NewHTTPDirectory(baseURL string, timeout time.Duration, bs BreakerSettings, logger *zap.Logger) *HTTPDirectory {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if bs.MaxFailures == 0 {
		bs.MaxFailures = 5
	}
	st := gobreaker.Settings{
		Name:        "user-service",
		MaxRequests: 1,
		Interval:    bs.Interval,
		Timeout:     bs.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &HTTPDirectory{
		base:    strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		cb:      gobreaker.NewCircuitBreaker(st),
		log:     logger,
	}
}

func (d *HTTPDirectory) Lookup(ctx context.Context, ids []string) (map[string]domain.UserInfo, error) {
	ids = uniqueSorted(ids)
	out := make(map[string]domain.UserInfo, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	// partial results survive a failed lookup; Wait reports the first error
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(maxParallelLookups)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			info, found, err := d.fetch(ctx, id)
			if err != nil || !found {
				return err
			}
			mu.Lock()
			out[id] = info
			mu.Unlock()
			return nil
		})
	}
	return out, g.Wait()
}

type fetchResult struct {
	info  domain.UserInfo
	found bool
}

func (d *HTTPDirectory) fetch(ctx context.Context, id string) (domain.UserInfo, bool, error) {
	res, err := d.cb.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.base+"/api/users/"+url.PathEscape(id), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if tok := auth.TokenFrom(ctx); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			io.Copy(io.Discard, resp.Body)
			return fetchResult{}, nil
		case resp.StatusCode != http.StatusOK:
			io.Copy(io.Discard, resp.Body)
			return nil, fmt.Errorf("%w: %d", errUpstreamStatus, resp.StatusCode)
		}

		var doc userDoc
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode user %s: %w", id, err)
		}
		avatar := doc.ProfilePicture
		if avatar == "" {
			avatar = doc.Avatar
		}
		return fetchResult{info: domain.UserInfo{ID: id, Username: doc.Username, Avatar: avatar}, found: true}, nil
	})
	if err != nil {
		d.log.Debug("user lookup failed", zap.String("user_id", id), zap.Error(err))
		return domain.UserInfo{}, false, err
	}
	r := res.(fetchResult)
	return r.info, r.found, nil
}
