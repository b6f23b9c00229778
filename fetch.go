/*
Copyright © 2026 the Impex authors.
This file is part of Impex.

Impex is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Impex is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Impex.  If not, see <http://www.gnu.org/licenses/>.
*/

package impex

import (
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ctessum/requestcache"
	"github.com/ctessum/sparse"
	log "github.com/sirupsen/logrus"
)

func init() {
	// These are the types that will be stored in the cache.
	gob.Register(Variable{})
	gob.Register(sparse.DenseArray{})
	gob.Register(map[string]string{})
}

// FetchRequest identifies one chunk fetch. It is the cache key domain:
// requests are keyed by provider, product, chunk window and output format.
type FetchRequest struct {
	Provider string
	Product  string
	Names    []string // raw sub-variables composing the product
	Range    TimeRange
	Format   string

	// UseCredentials forces an authenticated request; it implies NoProxy
	// and NoCache so restricted data never transits shared layers.
	UseCredentials bool
	NoProxy        bool
	NoCache        bool
	Headers        map[string]string
}

// Key returns the cache entry name for the request. Keys double as disk
// cache file names, so they avoid path separators.
func (r FetchRequest) Key() string {
	const layout = "20060102T150405"
	return fmt.Sprintf("%s_%s_%s_%s_%s", sanitizeKey(r.Provider), sanitizeKey(r.Product),
		r.Range.Start.UTC().Format(layout), r.Range.Stop.UTC().Format(layout), r.Format)
}

// FetchFunc fetches one chunk. Every step of the pipeline has this
// signature, so steps can short-circuit or forward interchangeably.
type FetchFunc func(ctx context.Context, req FetchRequest) (*Variable, error)

// Pipeline composes the chunk-fetch steps in a fixed, documented order:
// cache, then proxy, then direct fetch. The range check runs before the
// pipeline, in the retrieval engine, because it needs the inventory.
// Requests flagged NoCache bypass the cache entirely; requests flagged
// NoProxy or UseCredentials skip the proxy step.
type Pipeline struct {
	cache  *requestcache.Cache
	direct FetchFunc
}

// NewPipeline builds the chunk-fetch pipeline around the direct fetch
// function. proxyURL, when non-empty, inserts a remote-proxy step;
// cacheDir, when non-empty, adds a disk layer under the memory cache.
func NewPipeline(direct FetchFunc, proxyURL, cacheDir string, memEntries int) *Pipeline {
	chain := direct
	if proxyURL != "" {
		chain = proxyStep(proxyURL, chain)
	}
	if memEntries <= 0 {
		memEntries = 100
	}
	cachefuncs := []requestcache.CacheFunc{requestcache.Deduplicate(), requestcache.Memory(memEntries)}
	if cacheDir != "" {
		cachefuncs = append(cachefuncs, requestcache.Disk(cacheDir,
			requestcache.MarshalGob, unmarshalCached))
	}
	p := &Pipeline{direct: chain}
	p.cache = requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
		v, err := chain(ctx, request.(FetchRequest))
		if err != nil {
			return nil, err
		}
		if v == nil {
			v = &Variable{} // cacheable stand-in for "no data"
		}
		return *v, nil
	}, 1, cachefuncs...)
	return p
}

// Fetch runs one request through the pipeline.
func (p *Pipeline) Fetch(ctx context.Context, req FetchRequest) (*Variable, error) {
	if req.NoCache || req.UseCredentials {
		return p.direct(ctx, req)
	}
	result, err := p.cache.NewRequest(ctx, req, req.Key()).Result()
	if err != nil {
		return nil, err
	}
	v, ok := result.(Variable)
	if !ok || v.Len() == 0 {
		return nil, nil
	}
	v.fixArrays()
	return &v, nil
}

// unmarshalCached restores a cached entry from disk.
func unmarshalCached(b []byte) (interface{}, error) {
	data, err := requestcache.UnmarshalGob(b)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// fixArrays recomputes the unexported bookkeeping of dense arrays after a
// gob round trip.
func (v *Variable) fixArrays() {
	if v.Values != nil {
		v.Values.Fix()
	}
	for i := range v.Axes {
		if v.Axes[i].Values != nil {
			v.Axes[i].Values.Fix()
		}
	}
}

// proxyStep forwards eligible requests to a remote proxy holding
// pre-computed products, falling back to next when the proxy cannot
// serve them.
func proxyStep(proxyURL string, next FetchFunc) FetchFunc {
	client := &http.Client{Timeout: DefaultTimeout}
	return func(ctx context.Context, req FetchRequest) (*Variable, error) {
		if req.NoProxy || req.UseCredentials {
			return next(ctx, req)
		}
		params := url.Values{}
		params.Set("path", req.Provider+"/"+req.Product)
		params.Set("start_time", req.Range.Start.UTC().Format(time.RFC3339))
		params.Set("stop_time", req.Range.Stop.UTC().Format(time.RFC3339))
		params.Set("format", req.Format)
		resp, err := client.Get(proxyURL + "/get_data?" + params.Encode())
		if err != nil {
			log.Debugf("proxy unreachable: %v", err)
			return next(ctx, req)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			log.Debugf("proxy returned status %d for %s", resp.StatusCode, req.Product)
			return next(ctx, req)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return next(ctx, req)
		}
		v, err := Decode(req.Format, body, req.Names)
		if err != nil {
			log.Debugf("decoding proxy payload for %s: %v", req.Product, err)
			return next(ctx, req)
		}
		return v, nil
	}
}
